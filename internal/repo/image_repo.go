// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Image model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They hold no business rules: the 24h
// deletion window and session-state checks live in services.ImageService.
//
// Error semantics:
//   - Missing rows return ErrNotFound (gorm.ErrRecordNotFound).
//   - AttachImage returns ErrSessionFull / ErrImageAssigned when the
//     conditional update cannot apply.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

var (
	// ErrSessionFull is returned when a session already holds the maximum
	// number of images.
	ErrSessionFull = errors.New("session has no free image slot")

	// ErrImageAssigned is returned when the image is attached to another session.
	ErrImageAssigned = errors.New("image already assigned to a session")
)

// NewImage carries the object-store metadata of an uploaded image.
type NewImage struct {
	CaregiverID string
	URL         string
	AssetID     string
	PublicID    string
	Format      string
	UploadedAt  time.Time
}

// CreateImage inserts an unassigned image.
func CreateImage(ctx context.Context, db *gorm.DB, in NewImage) (*domain.Image, error) {
	uploaded := in.UploadedAt
	if uploaded.IsZero() {
		uploaded = time.Now().UTC()
	}
	img := &domain.Image{
		ID:          uuid.NewString(),
		URL:         in.URL,
		UploadedAt:  uploaded.UTC(),
		CaregiverID: in.CaregiverID,
		AssetID:     in.AssetID,
		PublicID:    in.PublicID,
		Format:      in.Format,
	}
	if err := db.WithContext(ctx).Create(img).Error; err != nil {
		return nil, err
	}
	return img, nil
}

// GetImage fetches an image by id.
func GetImage(ctx context.Context, db *gorm.DB, id string) (*domain.Image, error) {
	var img domain.Image
	if err := db.WithContext(ctx).Where("id = ?", id).First(&img).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

// GetImagesByIDs returns the images matching ids, in no particular order.
func GetImagesByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Image, error) {
	var out []domain.Image
	if len(ids) == 0 {
		return out, nil
	}
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// CountImagesByCaregiver returns the number of images uploaded by caregiverID.
func CountImagesByCaregiver(ctx context.Context, db *gorm.DB, caregiverID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Image{}).
		Where("caregiver_id = ?", caregiverID).
		Count(&total).Error
	return total, err
}

// ListImagesByCaregiverPage returns a page of a caregiver's images, newest first.
func ListImagesByCaregiverPage(ctx context.Context, db *gorm.DB, caregiverID string, offset, limit int) ([]domain.Image, error) {
	var out []domain.Image
	err := db.WithContext(ctx).
		Where("caregiver_id = ?", caregiverID).
		Order("uploaded_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountImagesBySession returns how many images are attached to sessionID.
func CountImagesBySession(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Image{}).
		Where("session_id = ?", sessionID).
		Count(&n).Error
	return n, err
}

// AttachImage assigns imageID to sessionID if the session has fewer than max
// images and the image is unassigned. Count and update run in one
// transaction with the session row locked on Postgres, so two concurrent
// attaches cannot both take the last slot.
//
// Attaching an image that already belongs to sessionID is a no-op.
func AttachImage(ctx context.Context, db *gorm.DB, sessionID, imageID string, max int) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&domain.Session{}).Select("id").Where("id = ?", sessionID)
		if isPostgres(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var row struct{ ID string }
		if err := q.Take(&row).Error; err != nil {
			return err
		}

		var img domain.Image
		if err := tx.Where("id = ?", imageID).First(&img).Error; err != nil {
			return err
		}
		if img.SessionID != nil {
			if *img.SessionID == sessionID {
				return nil
			}
			return ErrImageAssigned
		}

		n, err := CountImagesBySession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if n >= int64(max) {
			return ErrSessionFull
		}

		res := tx.Model(&domain.Image{}).
			Where("id = ? AND session_id IS NULL", imageID).
			Update("session_id", sessionID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrImageAssigned
		}
		return nil
	})
}

// DetachImage clears the image's session link. Returns ErrNotFound if the
// image does not exist.
func DetachImage(ctx context.Context, db *gorm.DB, imageID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Image{}).
		Where("id = ?", imageID).
		Update("session_id", nil)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteImage removes an image row; its ground truth cascades.
// Returns ErrNotFound when no row was deleted.
func DeleteImage(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Image{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
