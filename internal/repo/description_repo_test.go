package repo

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

func TestDescriptionAndScore_Lifecycle(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSession(t, db, "s1", "p1", now)
	seedImage(t, db, "i1", "cg1", strptr("s1"), now)
	seedImage(t, db, "i2", "cg1", strptr("s1"), now)
	seedImage(t, db, "other", "cg1", nil, now)

	d1, err := CreateDescription(ctx, db, "p1", "i1", "Veo un perro")
	if err != nil {
		t.Fatalf("create d1: %v", err)
	}
	if _, err := CreateDescription(ctx, db, "p1", "i1", "again"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	has, _ := HasDescriptionForImage(ctx, db, "i1")
	if !has {
		t.Fatalf("expected description for i1")
	}
	if _, err := CreateDescription(ctx, db, "p1", "other", "not in session"); err != nil {
		t.Fatalf("create other: %v", err)
	}

	n, err := CountDescriptionsBySession(ctx, db, "s1")
	if err != nil || n != 1 {
		t.Fatalf("count = %d err=%v", n, err)
	}

	res := domain.EvaluationResult{OmissionRate: 0.2, CommissionRate: 0.1, AccuracyRate: 0.8, CoherenceScore: 0.9, FluencyScore: 0.7, TotalScore: 0.6, Conclusion: "bien"}
	sc, err := CreateScore(ctx, db, d1.ID, res)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if sc.OmittedDetails == nil || sc.CorrectElements == nil {
		t.Fatalf("list fields must default to empty: %+v", sc)
	}
	if _, err := CreateScore(ctx, db, d1.ID, res); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on second score, got %v", err)
	}

	got, err := GetDescription(ctx, db, d1.ID)
	if err != nil || got.Score == nil || got.Score.TotalScore != 0.6 {
		t.Fatalf("get with score: %+v err=%v", got, err)
	}
	page, err := ListDescriptionsBySessionPage(ctx, db, "s1", 0, 10)
	if err != nil || len(page) != 1 || page[0].ID != d1.ID || page[0].Score == nil {
		t.Fatalf("page: %+v err=%v", page, err)
	}
}

func TestSessionAverages_AndConclusions(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSession(t, db, "s1", "p1", now)

	if _, err := SessionAverages(ctx, db, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound without scores, got %v", err)
	}

	totals := []float64{0.3, 0.6, 0.9}
	for i, id := range []string{"i1", "i2", "i3"} {
		seedImage(t, db, id, "cg1", strptr("s1"), now)
		d, err := CreateDescription(ctx, db, "p1", id, "texto")
		if err != nil {
			t.Fatalf("desc: %v", err)
		}
		conclusion := "c" + id
		if i == 1 {
			conclusion = ""
		}
		_, err = CreateScore(ctx, db, d.ID, domain.EvaluationResult{
			AccuracyRate: totals[i], TotalScore: totals[i], CoherenceScore: 0.5,
			FluencyScore: 0.5, OmissionRate: 0.1, CommissionRate: 0.2, Conclusion: conclusion,
		})
		if err != nil {
			t.Fatalf("score: %v", err)
		}
	}

	agg, err := SessionAverages(ctx, db, "s1")
	if err != nil {
		t.Fatalf("averages: %v", err)
	}
	if math.Abs(agg.Total-0.6) > 1e-9 || math.Abs(agg.Recall-0.6) > 1e-9 || math.Abs(agg.Commission-0.2) > 1e-9 {
		t.Fatalf("unexpected averages: %+v", agg)
	}

	cs, err := ListScoreConclusionsBySession(ctx, db, "s1")
	if err != nil {
		t.Fatalf("conclusions: %v", err)
	}
	if len(cs) != 2 {
		t.Fatalf("empty conclusions should be dropped, got %v", cs)
	}
}
