package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

func TestCreateSession_Defaults(t *testing.T) {
	db := newTestDB(t, true)
	s, err := CreateSession(context.Background(), db, NewSession{PatientID: "p1", CaregiverID: "cg1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := GetSession(context.Background(), db, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.SessionPending || got.Activation || got.Aggregates() != nil {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.TechnicalConclusion != domain.PendingConclusion || got.PlainConclusion != domain.PendingConclusion {
		t.Fatalf("expected placeholder conclusions, got %q / %q", got.TechnicalConclusion, got.PlainConclusion)
	}
}

func TestSessionProjections(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	seedSession(t, db, "s2", "p1", base.Add(time.Hour))
	seedSession(t, db, "s1", "p1", base)
	seedSession(t, db, "s3", "p1", base.Add(2*time.Hour))
	seedSession(t, db, "x1", "p2", base)

	n, err := CountSessionsByPatient(ctx, db, "p1")
	if err != nil || n != 3 {
		t.Fatalf("count = %d err=%v", n, err)
	}
	b, err := BaselineForPatient(ctx, db, "p1")
	if err != nil || b.ID != "s1" {
		t.Fatalf("baseline = %+v err=%v", b, err)
	}
	if _, err := BaselineForPatient(ctx, db, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for id, want := range map[string]int{"s1": 1, "s2": 2, "s3": 3, "x1": 1} {
		got, err := SessionOrdinal(ctx, db, id)
		if err != nil || got != want {
			t.Fatalf("ordinal(%s) = %d err=%v; want %d", id, got, err, want)
		}
	}

	page, err := ListSessionsByPatientPage(ctx, db, "p1", 0, 2)
	if err != nil || len(page) != 2 || page[0].ID != "s3" || page[1].ID != "s2" {
		t.Fatalf("unexpected page: %+v err=%v", page, err)
	}
}

func TestListActivePatients_Distinct(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSession(t, db, "a", "p2", now)
	seedSession(t, db, "b", "p2", now)
	seedSession(t, db, "c", "p1", now)
	seedSession(t, db, "d", "p3", now)
	for _, id := range []string{"a", "b", "c"} {
		if err := UpdateSessionFields(ctx, db, id, map[string]any{"activation": true}, false); err != nil {
			t.Fatalf("activate %s: %v", id, err)
		}
	}
	got, err := ListActivePatients(ctx, db)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0] != "p1" || got[1] != "p2" {
		t.Fatalf("unexpected active patients: %v", got)
	}
}

func TestCompleteSession_OnlyOnce(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	seedSession(t, db, "s1", "p1", time.Now().UTC())

	agg := domain.SessionAggregates{Recall: 0.8, Commission: 0.1, Omission: 0.2, Coherence: 0.7, Fluency: 0.6, Total: 0.75}
	c := domain.SessionConclusion{TechnicalConclusion: "tec", PlainConclusion: "plain"}
	if err := CompleteSession(ctx, db, "s1", agg, c); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := CompleteSession(ctx, db, "s1", agg, c); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if err := CompleteSession(ctx, db, "missing", agg, c); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, _ := GetSession(ctx, db, "s1")
	if got.State != domain.SessionCompleted || got.CompletedAt == nil {
		t.Fatalf("unexpected state: %+v", got)
	}
	a := got.Aggregates()
	if a == nil || *a != agg {
		t.Fatalf("aggregates = %+v; want %+v", a, agg)
	}
	if got.TechnicalConclusion != "tec" || got.PlainConclusion != "plain" {
		t.Fatalf("conclusions not stored: %+v", got)
	}

	n, _ := CountCompletedSessionsByPatient(ctx, db, "p1")
	if n != 1 {
		t.Fatalf("completed count = %d", n)
	}
	if id, err := FirstCompletedSessionID(ctx, db, "p1"); err != nil || id != "s1" {
		t.Fatalf("first completed = %q, %v", id, err)
	}
	if _, err := FirstCompletedSessionID(ctx, db, "p2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("first completed for p2: %v", err)
	}
	list, _ := ListCompletedSessionsByPatientPage(ctx, db, "p1", 0, 10)
	if len(list) != 1 || list[0].ID != "s1" {
		t.Fatalf("completed list = %+v", list)
	}
}

func TestUpdateSessionFields_CompletedGuard(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	seedSession(t, db, "s1", "p1", time.Now().UTC())
	_ = CompleteSession(ctx, db, "s1", domain.SessionAggregates{}, domain.SessionConclusion{})

	if err := UpdateSessionFields(ctx, db, "s1", map[string]any{"activation": true}, false); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if err := UpdateSessionFields(ctx, db, "s1", map[string]any{"doctor_notes": "ok"}, true); err != nil {
		t.Fatalf("doctor notes on completed: %v", err)
	}
	if err := UpdateSessionFields(ctx, db, "missing", map[string]any{"activation": true}, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, _ := GetSession(ctx, db, "s1")
	if got.DoctorNotes == nil || *got.DoctorNotes != "ok" || got.Activation {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestListSessionsByPatientWithGroundTruth_Preloads(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSession(t, db, "s1", "p1", now)
	seedImage(t, db, "i1", "cg1", strptr("s1"), now)
	seedImage(t, db, "i2", "cg1", strptr("s1"), now.Add(time.Second))
	if _, err := CreateGroundTruth(ctx, db, "i1", "ref", []string{"k"}, []string{"¿Qué ves?"}); err != nil {
		t.Fatalf("seed gt: %v", err)
	}

	out, err := ListSessionsByPatientWithGroundTruth(ctx, db, "p1", 0, 10)
	if err != nil || len(out) != 1 {
		t.Fatalf("list: %+v err=%v", out, err)
	}
	imgs := out[0].Images
	if len(imgs) != 2 || imgs[0].ID != "i1" {
		t.Fatalf("images not preloaded in order: %+v", imgs)
	}
	if imgs[0].GroundTruth == nil || imgs[0].GroundTruth.GuidingQuestions[0] != "¿Qué ves?" {
		t.Fatalf("ground truth not preloaded: %+v", imgs[0])
	}
	if imgs[1].GroundTruth != nil {
		t.Fatalf("i2 has no ground truth, got %+v", imgs[1].GroundTruth)
	}
}
