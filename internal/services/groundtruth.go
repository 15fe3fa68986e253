package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/repo"
)

// GroundTruthService manages the caregiver's reference description of an
// image. A ground truth can change only within the edit window and only
// until the patient describes the image.
type GroundTruthService struct {
	DB           *gorm.DB
	GroundTruths GroundTruthRepo
	Images       ImageRepo
	Descriptions DescriptionRepo
	Gate         *Gate
	Window       TimeWindow
}

// GroundTruthInput is the payload of Create.
type GroundTruthInput struct {
	ActorID          string
	ImageID          string
	Text             string
	Keywords         []string
	GuidingQuestions []string
}

// GroundTruthUpdate lists the mutable fields. Nil means unchanged.
type GroundTruthUpdate struct {
	Text             *string
	Keywords         []string
	GuidingQuestions []string
}

// Create stores the ground truth of an existing image.
func (s *GroundTruthService) Create(ctx context.Context, in GroundTruthInput) (*domain.GroundTruth, error) {
	ctx, span := otel.Tracer("services/GroundTruthService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("image.id", in.ImageID)),
	)
	defer span.End()

	if _, err := s.Gate.RequireRole(ctx, in.ActorID, domain.RoleCaregiver, domain.RoleAdministrator); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, Validationf("el texto del groundTruth es obligatorio")
	}
	if _, err := s.Images.GetImage(ctx, s.DB, in.ImageID); err != nil {
		return nil, mapNotFound(err, ErrImageNotFound)
	}

	gt, err := s.GroundTruths.CreateGroundTruth(ctx, s.DB, in.ImageID, text, cleanList(in.Keywords), cleanList(in.GuidingQuestions))
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrGroundTruthExists
		}
		return nil, Internal(err)
	}
	return gt, nil
}

// Find returns a ground truth by id.
func (s *GroundTruthService) Find(ctx context.Context, id string) (*domain.GroundTruth, error) {
	gt, err := s.GroundTruths.GetGroundTruth(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrGroundTruthNotFound)
	}
	return gt, nil
}

// FindByImage returns the ground truth of an image.
func (s *GroundTruthService) FindByImage(ctx context.Context, imageID string) (*domain.GroundTruth, error) {
	gt, err := s.GroundTruths.GetGroundTruthByImage(ctx, s.DB, imageID)
	if err != nil {
		return nil, mapNotFound(err, ErrGroundTruthNotFound)
	}
	return gt, nil
}

// Update changes text, keywords or guiding questions.
func (s *GroundTruthService) Update(ctx context.Context, actorID, id string, in GroundTruthUpdate) (*domain.GroundTruth, error) {
	ctx, span := otel.Tracer("services/GroundTruthService").Start(ctx, "Update",
		trace.WithAttributes(attribute.String("groundtruth.id", id)),
	)
	defer span.End()

	if in.Text == nil && in.Keywords == nil && in.GuidingQuestions == nil {
		return nil, Validationf("no se indicó ningún campo a modificar")
	}
	if in.Text != nil && strings.TrimSpace(*in.Text) == "" {
		return nil, Validationf("el texto del groundTruth es obligatorio")
	}
	gt, err := s.mutable(ctx, actorID, id)
	if err != nil {
		return nil, err
	}

	patch := repo.GroundTruthPatch{}
	if in.Text != nil {
		t := strings.TrimSpace(*in.Text)
		patch.Text = &t
	}
	if in.Keywords != nil {
		patch.Keywords = cleanList(in.Keywords)
	}
	if in.GuidingQuestions != nil {
		patch.GuidingQuestions = cleanList(in.GuidingQuestions)
	}
	updated, err := s.GroundTruths.UpdateGroundTruth(ctx, s.DB, gt.ID, patch)
	if err != nil {
		return nil, mapNotFound(err, ErrGroundTruthNotFound)
	}
	return updated, nil
}

// Delete removes a ground truth.
func (s *GroundTruthService) Delete(ctx context.Context, actorID, id string) error {
	gt, err := s.mutable(ctx, actorID, id)
	if err != nil {
		return err
	}
	if err := s.GroundTruths.DeleteGroundTruth(ctx, s.DB, gt.ID); err != nil {
		return mapNotFound(err, ErrGroundTruthNotFound)
	}
	return nil
}

func (s *GroundTruthService) mutable(ctx context.Context, actorID, id string) (*domain.GroundTruth, error) {
	if _, err := s.Gate.RequireRole(ctx, actorID, domain.RoleCaregiver, domain.RoleAdministrator); err != nil {
		return nil, err
	}
	gt, err := s.GroundTruths.GetGroundTruth(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrGroundTruthNotFound)
	}
	if err := s.Window.requireUnlocked(gt.CreatedAt); err != nil {
		return nil, err
	}
	described, err := s.Descriptions.HasDescriptionForImage(ctx, s.DB, gt.ImageID)
	if err != nil {
		return nil, Internal(err)
	}
	if described {
		return nil, ErrImageDescribed
	}
	return gt, nil
}

// cleanList trims entries and drops empty ones, keeping order.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
