// Package services – ImageService
//
// ImageService handles caregiver images: upload through the object store,
// listing, moving an image in or out of a session and deletion inside the
// edit window.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/repo"
)

// ObjectStore stores image bytes and returns where they live.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, contentType, name string) (*domain.StoredObject, error)
	Delete(ctx context.Context, publicID string) error
}

// ImageService manages images.
type ImageService struct {
	DB           *gorm.DB
	Images       ImageRepo
	Descriptions DescriptionRepo
	Sessions     *SessionService
	Gate         *Gate
	Store        ObjectStore
	Effects      EffectSink
	Window       TimeWindow
}

// UploadImageInput is the payload of Upload.
type UploadImageInput struct {
	ActorID     string
	Data        []byte
	ContentType string
	Filename    string
}

// Upload stores the bytes and records the image as unassigned.
func (s *ImageService) Upload(ctx context.Context, in UploadImageInput) (*domain.Image, error) {
	ctx, span := otel.Tracer("services/ImageService").Start(ctx, "Upload",
		trace.WithAttributes(
			attribute.String("user.id", in.ActorID),
			attribute.Int("bytes", len(in.Data)),
		),
	)
	defer span.End()

	actor, err := s.Gate.RequireRole(ctx, in.ActorID, domain.RoleCaregiver, domain.RoleAdministrator)
	if err != nil {
		return nil, err
	}
	if len(in.Data) == 0 {
		return nil, ErrEmptyImage
	}
	ct := in.ContentType
	if ct == "" {
		ct = http.DetectContentType(in.Data)
	}
	if !strings.HasPrefix(ct, "image/") {
		return nil, Validationf("tipo de contenido no admitido: %s", ct)
	}

	obj, err := s.Store.Upload(ctx, in.Data, ct, in.Filename)
	if err != nil {
		return nil, ErrStorageUnavailable.Wrap(err)
	}
	img, err := s.Images.CreateImage(ctx, s.DB, repo.NewImage{
		CaregiverID: actor.ID,
		URL:         obj.SecureURL,
		AssetID:     obj.AssetID,
		PublicID:    obj.PublicID,
		Format:      obj.Format,
		UploadedAt:  obj.CreatedAt,
	})
	if err != nil {
		s.removeObject(obj.PublicID)
		return nil, Internal(err)
	}
	return img, nil
}

// Find returns an image by id.
func (s *ImageService) Find(ctx context.Context, id string) (*domain.Image, error) {
	img, err := s.Images.GetImage(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrImageNotFound)
	}
	return img, nil
}

// ListByCaregiver returns a page of the caregiver's images, newest first.
func (s *ImageService) ListByCaregiver(ctx context.Context, caregiverID string, page, pageSize int) ([]domain.Image, int64, error) {
	_, pageSize, offset := pageBounds(page, pageSize)
	total, err := s.Images.CountImagesByCaregiver(ctx, s.DB, caregiverID)
	if err != nil {
		return nil, 0, Internal(err)
	}
	if total == 0 {
		return []domain.Image{}, 0, nil
	}
	items, err := s.Images.ListImagesByCaregiverPage(ctx, s.DB, caregiverID, offset, pageSize)
	if err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}

// AssignSession attaches the image to sessionID, or detaches it when
// sessionID is nil. Only the owning caregiver or an administrator may do so.
func (s *ImageService) AssignSession(ctx context.Context, actorID, imageID string, sessionID *string) (*domain.Image, error) {
	ctx, span := otel.Tracer("services/ImageService").Start(ctx, "AssignSession",
		trace.WithAttributes(attribute.String("image.id", imageID)),
	)
	defer span.End()

	img, err := s.ownedImage(ctx, actorID, imageID)
	if err != nil {
		return nil, err
	}

	if sessionID != nil && *sessionID != "" {
		if err := s.Sessions.AttachImage(ctx, *sessionID, img.ID); err != nil {
			return nil, err
		}
		return s.Find(ctx, img.ID)
	}

	if img.SessionID == nil {
		return img, nil
	}
	if err := s.detachable(ctx, img); err != nil {
		return nil, err
	}
	if err := s.Images.DetachImage(ctx, s.DB, img.ID); err != nil {
		return nil, mapNotFound(err, ErrImageNotFound)
	}
	return s.Find(ctx, img.ID)
}

// Delete removes an image inside the edit window. The stored object is
// removed afterwards on a best-effort basis.
func (s *ImageService) Delete(ctx context.Context, actorID, imageID string) error {
	ctx, span := otel.Tracer("services/ImageService").Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("image.id", imageID)),
	)
	defer span.End()

	img, err := s.ownedImage(ctx, actorID, imageID)
	if err != nil {
		return err
	}
	if err := s.Window.requireUnlocked(img.UploadedAt); err != nil {
		return err
	}
	if img.SessionID != nil {
		if err := s.detachable(ctx, img); err != nil {
			return err
		}
	} else if err := s.requireUndescribed(ctx, img.ID); err != nil {
		return err
	}

	if err := s.Images.DeleteImage(ctx, s.DB, img.ID); err != nil {
		return mapNotFound(err, ErrImageNotFound)
	}
	s.removeObject(img.PublicID)
	return nil
}

func (s *ImageService) ownedImage(ctx context.Context, actorID, imageID string) (*domain.Image, error) {
	actor, err := s.Gate.RequireRole(ctx, actorID, domain.RoleCaregiver, domain.RoleAdministrator)
	if err != nil {
		return nil, err
	}
	img, err := s.Images.GetImage(ctx, s.DB, imageID)
	if err != nil {
		return nil, mapNotFound(err, ErrImageNotFound)
	}
	if actor.Role == domain.RoleCaregiver && img.CaregiverID != actor.ID {
		return nil, ErrImageNotOwned
	}
	return img, nil
}

// detachable rejects images whose session is completed or that were described.
func (s *ImageService) detachable(ctx context.Context, img *domain.Image) error {
	sess, err := s.Sessions.Find(ctx, *img.SessionID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if sess != nil && sess.State == domain.SessionCompleted {
		return ErrSessionCompleted
	}
	return s.requireUndescribed(ctx, img.ID)
}

func (s *ImageService) requireUndescribed(ctx context.Context, imageID string) error {
	described, err := s.Descriptions.HasDescriptionForImage(ctx, s.DB, imageID)
	if err != nil {
		return Internal(err)
	}
	if described {
		return ErrImageDescribed
	}
	return nil
}

func (s *ImageService) removeObject(publicID string) {
	if publicID == "" || s.Effects == nil {
		return
	}
	s.Effects.Enqueue(SideEffect{
		Event: "image.object_deleted",
		Run: func(ctx context.Context) error {
			return s.Store.Delete(ctx, publicID)
		},
	})
}
