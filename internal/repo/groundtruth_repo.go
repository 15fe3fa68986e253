package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// CreateGroundTruth inserts the reference description for imageID.
// A second ground truth for the same image returns ErrDuplicate.
func CreateGroundTruth(ctx context.Context, db *gorm.DB, imageID, text string, keywords, questions []string) (*domain.GroundTruth, error) {
	gt := &domain.GroundTruth{
		ID:               uuid.NewString(),
		Text:             text,
		Keywords:         datatypes.JSONSlice[string](nonNil(keywords)),
		GuidingQuestions: datatypes.JSONSlice[string](nonNil(questions)),
		CreatedAt:        time.Now().UTC(),
		ImageID:          imageID,
	}
	if err := db.WithContext(ctx).Create(gt).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return gt, nil
}

// GetGroundTruth fetches a ground truth by id.
func GetGroundTruth(ctx context.Context, db *gorm.DB, id string) (*domain.GroundTruth, error) {
	var gt domain.GroundTruth
	if err := db.WithContext(ctx).Where("id = ?", id).First(&gt).Error; err != nil {
		return nil, err
	}
	return &gt, nil
}

// GetGroundTruthByImage fetches the ground truth attached to imageID.
func GetGroundTruthByImage(ctx context.Context, db *gorm.DB, imageID string) (*domain.GroundTruth, error) {
	var gt domain.GroundTruth
	if err := db.WithContext(ctx).Where("image_id = ?", imageID).First(&gt).Error; err != nil {
		return nil, err
	}
	return &gt, nil
}

// GroundTruthPatch lists the mutable ground-truth fields. Nil means unchanged.
type GroundTruthPatch struct {
	Text             *string
	Keywords         []string
	GuidingQuestions []string
}

// UpdateGroundTruth applies patch to the ground truth id and returns the
// stored row.
func UpdateGroundTruth(ctx context.Context, db *gorm.DB, id string, patch GroundTruthPatch) (*domain.GroundTruth, error) {
	updates := map[string]any{}
	if patch.Text != nil {
		updates["text"] = *patch.Text
	}
	if patch.Keywords != nil {
		updates["keywords"] = datatypes.JSONSlice[string](patch.Keywords)
	}
	if patch.GuidingQuestions != nil {
		updates["guiding_questions"] = datatypes.JSONSlice[string](patch.GuidingQuestions)
	}
	if len(updates) > 0 {
		res := db.WithContext(ctx).Model(&domain.GroundTruth{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return GetGroundTruth(ctx, db, id)
}

// DeleteGroundTruth removes the ground truth id. Returns ErrNotFound when no
// row was deleted.
func DeleteGroundTruth(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.GroundTruth{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
