package repo

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// SessionAverages aggregates the scores of a session's descriptions.
// Recall is the average accuracy rate. Returns ErrNotFound when the session
// has no scored descriptions.
func SessionAverages(ctx context.Context, db *gorm.DB, sessionID string) (*domain.SessionAggregates, error) {
	var row struct {
		N          int64
		Recall     sql.NullFloat64
		Commission sql.NullFloat64
		Omission   sql.NullFloat64
		Coherence  sql.NullFloat64
		Fluency    sql.NullFloat64
		Total      sql.NullFloat64
	}
	err := db.WithContext(ctx).
		Model(&domain.Score{}).
		Select(`COUNT(scores.id) AS n,
			AVG(scores.accuracy_rate)   AS recall,
			AVG(scores.commission_rate) AS commission,
			AVG(scores.omission_rate)   AS omission,
			AVG(scores.coherence_score) AS coherence,
			AVG(scores.fluency_score)   AS fluency,
			AVG(scores.total_score)     AS total`).
		Joins("JOIN descriptions ON descriptions.id = scores.description_id").
		Joins("JOIN images ON images.id = descriptions.image_id").
		Where("images.session_id = ?", sessionID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.N == 0 || !row.Total.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	return &domain.SessionAggregates{
		Recall:     row.Recall.Float64,
		Commission: row.Commission.Float64,
		Omission:   row.Omission.Float64,
		Coherence:  row.Coherence.Float64,
		Fluency:    row.Fluency.Float64,
		Total:      row.Total.Float64,
	}, nil
}
