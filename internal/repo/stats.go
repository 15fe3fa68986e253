// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// CompletedSessionsStats returns the number of completed sessions of
// patientID and the greatest UpdatedAt among them. When there are none,
// maxUpdatedAt is nil.
//
// A completed session only changes through its review fields, which bump
// updated_at, so the pair identifies the content of the completed list.
func CompletedSessionsStats(ctx context.Context, db *gorm.DB, patientID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("patient_id = ? AND state = ?", patientID, domain.SessionCompleted)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
