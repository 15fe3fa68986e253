package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

func TestGetIdempotency_BlankScopeOrKey_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, true)
	now := time.Now().UTC()

	if rec, err := GetIdempotency(context.Background(), db, "u1", "   ", "k1", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for blank scope, got (%v, %v)", rec, err)
	}
	if rec, err := GetIdempotency(context.Background(), db, "u1", "img", "", now); rec != nil || err != ErrNotFound {
		t.Fatalf("expected (nil, ErrNotFound) for blank key, got (%v, %v)", rec, err)
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, true)
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID: "expired", UserID: "u1", Scope: "img", Key: "k1", ResourceID: "d1",
		Status: 201, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	if _, err := GetIdempotency(context.Background(), db, "u1", "img", "k1", now); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for expired, got %v", err)
	}
	if _, err := GetIdempotency(context.Background(), db, "u1", "img", "nope", now); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for missing, got %v", err)
	}
}

func TestCreateIdempotency_SuccessAndDuplicate(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "img", "k1", "d1", 201, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ResourceID != "d1" || !rec.ExpiresAt.After(rec.CreatedAt) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", "img", "k1", time.Now().UTC())
	if err != nil || got.ResourceID != "d1" || got.Status != 201 {
		t.Fatalf("get: %+v err=%v", got, err)
	}

	if _, err := CreateIdempotency(ctx, db, "u1", "img", "k1", "d2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	// Same key under another scope is independent.
	if _, err := CreateIdempotency(ctx, db, "u1", "img2", "k1", "d3", 201, time.Hour); err != nil {
		t.Fatalf("other scope: %v", err)
	}
}

func TestCreateIdempotency_Error_NoTable(t *testing.T) {
	db := newTestDB(t, false)
	if _, err := CreateIdempotency(context.Background(), db, "u1", "img", "k1", "d1", 201, time.Hour); err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected raw DB error, got %v", err)
	}
}

func TestPurgeExpiredIdempotency(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()
	_ = db.Create(&domain.Idempotency{ID: "a", UserID: "u", Scope: "s", Key: "1", ResourceID: "r", Status: 201, ExpiresAt: now.Add(-time.Minute)}).Error
	_ = db.Create(&domain.Idempotency{ID: "b", UserID: "u", Scope: "s", Key: "2", ResourceID: "r", Status: 201, ExpiresAt: now.Add(time.Hour)}).Error

	n, err := PurgeExpiredIdempotency(ctx, db, now)
	if err != nil || n != 1 {
		t.Fatalf("purge = %d err=%v", n, err)
	}
}
