package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// CreateScore stores the evaluation result for descriptionID. A second score
// for the same description returns ErrDuplicate.
func CreateScore(ctx context.Context, db *gorm.DB, descriptionID string, r domain.EvaluationResult) (*domain.Score, error) {
	sc := &domain.Score{
		ID:                 uuid.NewString(),
		DescriptionID:      descriptionID,
		OmissionRate:       r.OmissionRate,
		CommissionRate:     r.CommissionRate,
		AccuracyRate:       r.AccuracyRate,
		CoherenceScore:     r.CoherenceScore,
		FluencyScore:       r.FluencyScore,
		TotalScore:         r.TotalScore,
		OmittedDetails:     datatypes.JSONSlice[string](nonNil(r.OmittedDetails)),
		OmittedKeywords:    datatypes.JSONSlice[string](nonNil(r.OmittedKeywords)),
		CommissionElements: datatypes.JSONSlice[string](nonNil(r.CommissionElements)),
		CorrectElements:    datatypes.JSONSlice[string](nonNil(r.CorrectElements)),
		Conclusion:         r.Conclusion,
		ComputedAt:         time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(sc).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return sc, nil
}

// GetScoreByDescription fetches the score of descriptionID.
func GetScoreByDescription(ctx context.Context, db *gorm.DB, descriptionID string) (*domain.Score, error) {
	var sc domain.Score
	if err := db.WithContext(ctx).Where("description_id = ?", descriptionID).First(&sc).Error; err != nil {
		return nil, err
	}
	return &sc, nil
}

// ListScoreConclusionsBySession returns the non-empty score conclusions of a
// session's descriptions, in description creation order.
func ListScoreConclusionsBySession(ctx context.Context, db *gorm.DB, sessionID string) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.Score{}).
		Joins("JOIN descriptions ON descriptions.id = scores.description_id").
		Joins("JOIN images ON images.id = descriptions.image_id").
		Where("images.session_id = ? AND scores.conclusion <> ''", sessionID).
		Order("descriptions.created_at asc").
		Pluck("scores.conclusion", &out).Error
	return out, err
}
