package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

func TestCreateImage_Error_NoTable(t *testing.T) {
	db := newTestDB(t, false)
	img, err := CreateImage(context.Background(), db, NewImage{CaregiverID: "cg", URL: "u"})
	if err == nil || img != nil {
		t.Fatalf("expected error creating without table, got img=%v err=%v", img, err)
	}
}

func TestCreateImage_DefaultsUploadedAtAndUnassigned(t *testing.T) {
	db := newTestDB(t, true)
	start := time.Now().UTC().Add(-time.Second)

	img, err := CreateImage(context.Background(), db, NewImage{CaregiverID: "cg", URL: "https://x/a.jpg", Format: "jpg"})
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	if img.ID == "" || img.SessionID != nil || img.UploadedAt.Before(start) {
		t.Fatalf("unexpected image: %+v", img)
	}
	got, err := GetImage(context.Background(), db, img.ID)
	if err != nil || got.URL != "https://x/a.jpg" || got.Format != "jpg" {
		t.Fatalf("round-trip mismatch: %+v err=%v", got, err)
	}
	if _, err := GetImage(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListImagesByCaregiverPage_OrderAndFilter(t *testing.T) {
	db := newTestDB(t, true)
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	seedImage(t, db, "a", "cg1", nil, base)
	seedImage(t, db, "b", "cg1", nil, base.Add(time.Hour))
	seedImage(t, db, "c", "cg1", nil, base.Add(2*time.Hour))
	seedImage(t, db, "z", "cg2", nil, base)

	n, err := CountImagesByCaregiver(context.Background(), db, "cg1")
	if err != nil || n != 3 {
		t.Fatalf("count = %d err=%v", n, err)
	}
	page, err := ListImagesByCaregiverPage(context.Background(), db, "cg1", 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != "b" || page[1].ID != "a" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestAttachImage_FillsSlotsThenRejects(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSession(t, db, "s1", "p1", now)
	for _, id := range []string{"i1", "i2", "i3", "i4"} {
		seedImage(t, db, id, "cg1", nil, now)
	}

	for _, id := range []string{"i1", "i2", "i3"} {
		if err := AttachImage(ctx, db, "s1", id, 3); err != nil {
			t.Fatalf("attach %s: %v", id, err)
		}
	}
	if err := AttachImage(ctx, db, "s1", "i4", 3); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("expected ErrSessionFull, got %v", err)
	}
	// Re-attaching an image already in the session is a no-op.
	if err := AttachImage(ctx, db, "s1", "i1", 3); err != nil {
		t.Fatalf("re-attach: %v", err)
	}
	n, _ := CountImagesBySession(ctx, db, "s1")
	if n != 3 {
		t.Fatalf("expected 3 attached, got %d", n)
	}
}

func TestAttachImage_AssignedElsewhereAndMissing(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSession(t, db, "s1", "p1", now)
	seedSession(t, db, "s2", "p1", now)
	seedImage(t, db, "i1", "cg1", strptr("s2"), now)

	if err := AttachImage(ctx, db, "s1", "i1", 3); !errors.Is(err, ErrImageAssigned) {
		t.Fatalf("expected ErrImageAssigned, got %v", err)
	}
	if err := AttachImage(ctx, db, "nope", "i1", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing session, got %v", err)
	}
	if err := AttachImage(ctx, db, "s1", "nope", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing image, got %v", err)
	}
}

func TestAttachImage_ConcurrentLastSlot(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSession(t, db, "s1", "p1", now)
	seedImage(t, db, "i1", "cg1", strptr("s1"), now)
	seedImage(t, db, "i2", "cg1", strptr("s1"), now)
	candidates := []string{"c1", "c2", "c3", "c4"}
	for _, id := range candidates {
		seedImage(t, db, id, "cg1", nil, now)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(candidates))
	for _, id := range candidates {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			errs <- AttachImage(ctx, db, "s1", id, 3)
		}(id)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSessionFull):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one attach to win the last slot, got %d", ok)
	}
	n, _ := CountImagesBySession(ctx, db, "s1")
	if n != 3 {
		t.Fatalf("expected 3 attached, got %d", n)
	}
}

func TestDetachAndDeleteImage(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()
	seedSession(t, db, "s1", "p1", now)
	seedImage(t, db, "i1", "cg1", strptr("s1"), now)

	if err := DetachImage(ctx, db, "i1"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	got, _ := GetImage(ctx, db, "i1")
	if got.SessionID != nil {
		t.Fatalf("expected detached image, got session %v", *got.SessionID)
	}
	if err := DetachImage(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := CreateGroundTruth(ctx, db, "i1", "t", nil, nil); err != nil {
		t.Fatalf("seed gt: %v", err)
	}
	if err := DeleteImage(ctx, db, "i1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := DeleteImage(ctx, db, "i1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
	var n int64
	db.Model(&domain.GroundTruth{}).Count(&n)
	if n != 0 {
		t.Fatalf("ground truth should cascade, got %d rows", n)
	}
}
