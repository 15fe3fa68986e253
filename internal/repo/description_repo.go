package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// CreateDescription inserts a patient's description of imageID. A second
// description for the same image returns ErrDuplicate.
func CreateDescription(ctx context.Context, db *gorm.DB, patientID, imageID, text string) (*domain.Description, error) {
	d := &domain.Description{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
		PatientID: patientID,
		ImageID:   imageID,
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return d, nil
}

// GetDescription fetches a description by id with its score.
func GetDescription(ctx context.Context, db *gorm.DB, id string) (*domain.Description, error) {
	var d domain.Description
	if err := db.WithContext(ctx).Preload("Score").Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// HasDescriptionForImage reports whether imageID already has a description.
func HasDescriptionForImage(ctx context.Context, db *gorm.DB, imageID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Description{}).Where("image_id = ?", imageID).Count(&n).Error
	return n > 0, err
}

// sessionDescriptions scopes a descriptions query to the images attached to sessionID.
func sessionDescriptions(db *gorm.DB, sessionID string) *gorm.DB {
	return db.Model(&domain.Description{}).
		Joins("JOIN images ON images.id = descriptions.image_id").
		Where("images.session_id = ?", sessionID)
}

// CountDescriptionsBySession counts descriptions whose image is attached to sessionID.
func CountDescriptionsBySession(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var n int64
	err := sessionDescriptions(db.WithContext(ctx), sessionID).Count(&n).Error
	return n, err
}

// ListDescriptionsBySessionPage returns a page of a session's descriptions
// with their scores, oldest first.
func ListDescriptionsBySessionPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Description, error) {
	var out []domain.Description
	err := sessionDescriptions(db.WithContext(ctx), sessionID).
		Preload("Score").
		Order("descriptions.created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
