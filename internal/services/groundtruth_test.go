package services

import (
	"context"
	"testing"
	"time"
)

func TestGroundTruthCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	img := h.image(t, "cg1")

	gt, err := h.groundTruths.Create(ctx, GroundTruthInput{
		ActorID:          "cg1",
		ImageID:          img.ID,
		Text:             "  Una niña con un globo azul  ",
		Keywords:         []string{"niña", " ", "globo", "azul"},
		GuidingQuestions: []string{"¿De qué color es el globo?"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if gt.Text != "Una niña con un globo azul" {
		t.Fatalf("text = %q", gt.Text)
	}
	if got := []string(gt.Keywords); len(got) != 3 || got[0] != "niña" || got[2] != "azul" {
		t.Fatalf("keywords = %v", got)
	}

	_, err = h.groundTruths.Create(ctx, GroundTruthInput{ActorID: "cg1", ImageID: img.ID, Text: "otra"})
	wantErr(t, err, ErrGroundTruthExists)

	_, err = h.groundTruths.Create(ctx, GroundTruthInput{ActorID: "cg1", ImageID: "missing", Text: "x"})
	wantErr(t, err, ErrImageNotFound)

	_, err = h.groundTruths.Create(ctx, GroundTruthInput{ActorID: "cg1", ImageID: img.ID, Text: " "})
	wantKind(t, err, KindValidation)

	_, err = h.groundTruths.Create(ctx, GroundTruthInput{ActorID: "p1", ImageID: img.ID, Text: "x"})
	wantErr(t, err, ErrInvalidRole)

	byImage, err := h.groundTruths.FindByImage(ctx, img.ID)
	if err != nil || byImage.ID != gt.ID {
		t.Fatalf("find by image = %+v, %v", byImage, err)
	}
	byID, err := h.groundTruths.Find(ctx, gt.ID)
	if err != nil || byID.ImageID != img.ID {
		t.Fatalf("find = %+v, %v", byID, err)
	}
}

func TestGroundTruthUpdateAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	img := h.describedImage(t, "cg1")
	gt, _ := h.groundTruths.FindByImage(ctx, img.ID)

	text := "Un perro marrón"
	got, err := h.groundTruths.Update(ctx, "cg1", gt.ID, GroundTruthUpdate{Text: &text, Keywords: []string{"perro", "marrón"}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Text != text || len(got.Keywords) != 2 || len(got.GuidingQuestions) != 1 {
		t.Fatalf("updated = %+v", got)
	}

	_, err = h.groundTruths.Update(ctx, "cg1", gt.ID, GroundTruthUpdate{})
	wantKind(t, err, KindValidation)

	_, err = h.groundTruths.Update(ctx, "cg1", "missing", GroundTruthUpdate{Text: &text})
	wantErr(t, err, ErrGroundTruthNotFound)

	if err := h.groundTruths.Delete(ctx, "cg1", gt.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = h.groundTruths.Find(ctx, gt.ID)
	wantErr(t, err, ErrGroundTruthNotFound)
}

func TestGroundTruthFrozenAfterWindowOrDescription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, imgs := h.fullSession(t)
	h.submit(t, imgs[0].ID, "veo un perro")

	described, _ := h.groundTruths.FindByImage(ctx, imgs[0].ID)
	text := "cambio"
	_, err := h.groundTruths.Update(ctx, "cg1", described.ID, GroundTruthUpdate{Text: &text})
	wantErr(t, err, ErrImageDescribed)
	wantErr(t, h.groundTruths.Delete(ctx, "cg1", described.ID), ErrImageDescribed)

	other, _ := h.groundTruths.FindByImage(ctx, imgs[1].ID)
	h.clock = time.Now().UTC().Add(DefaultEditWindow + time.Hour)
	_, err = h.groundTruths.Update(ctx, "cg1", other.ID, GroundTruthUpdate{Text: &text})
	wantErr(t, err, ErrEditWindowExpired)
	wantErr(t, h.groundTruths.Delete(ctx, "cg1", other.ID), ErrEditWindowExpired)
}
