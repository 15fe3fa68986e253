// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session
// model, including the conditional completion transition and the read-only
// projections (counts, baseline, ordinal, active patients).
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// ErrAlreadyCompleted is returned by CompleteSession when the session was
// completed before the conditional update ran.
var ErrAlreadyCompleted = errors.New("session already completed")

// NewSession carries the fields set when a session is created.
type NewSession struct {
	PatientID       string
	CaregiverID     string
	ProposedStartAt *time.Time
}

// CreateSession inserts a pending, inactive session with placeholder conclusions.
func CreateSession(ctx context.Context, db *gorm.DB, in NewSession) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		ID:                  uuid.NewString(),
		PatientID:           in.PatientID,
		CaregiverID:         in.CaregiverID,
		CreatedAt:           now,
		UpdatedAt:           now,
		ProposedStartAt:     in.ProposedStartAt,
		State:               domain.SessionPending,
		TechnicalConclusion: domain.PendingConclusion,
		PlainConclusion:     domain.PendingConclusion,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by id with its images.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Preload("Images", func(q *gorm.DB) *gorm.DB { return q.Order("uploaded_at asc") }).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionState returns only the state column, for cheap re-checks.
func GetSessionState(ctx context.Context, db *gorm.DB, id string) (domain.SessionState, error) {
	var row struct{ State domain.SessionState }
	err := db.WithContext(ctx).Model(&domain.Session{}).Select("state").Where("id = ?", id).Take(&row).Error
	return row.State, err
}

// CountSessionsByPatient returns the number of sessions assigned to patientID.
func CountSessionsByPatient(ctx context.Context, db *gorm.DB, patientID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Session{}).Where("patient_id = ?", patientID).Count(&n).Error
	return n, err
}

// ListSessionsByPatientPage returns a page of patientID's sessions, newest first.
func ListSessionsByPatientPage(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Preload("Images", func(q *gorm.DB) *gorm.DB { return q.Order("uploaded_at asc") }).
		Where("patient_id = ?", patientID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListSessionsByPatientWithGroundTruth returns patientID's sessions with their
// images and each image's ground truth, newest session first.
func ListSessionsByPatientWithGroundTruth(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Preload("Images", func(q *gorm.DB) *gorm.DB { return q.Order("uploaded_at asc") }).
		Preload("Images.GroundTruth").
		Where("patient_id = ?", patientID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountCompletedSessionsByPatient returns the number of completed sessions of patientID.
func CountCompletedSessionsByPatient(ctx context.Context, db *gorm.DB, patientID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("patient_id = ? AND state = ?", patientID, domain.SessionCompleted).
		Count(&n).Error
	return n, err
}

// FirstCompletedSessionID returns the id of patientID's earliest completed
// session, ties broken by id. ErrNotFound if none is completed.
func FirstCompletedSessionID(ctx context.Context, db *gorm.DB, patientID string) (string, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Select("id").
		Where("patient_id = ? AND state = ?", patientID, domain.SessionCompleted).
		Order("completed_at asc").Order("id asc").
		Take(&s).Error
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// ListCompletedSessionsByPatientPage returns completed sessions, most recently
// completed first.
func ListCompletedSessionsByPatientPage(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("patient_id = ? AND state = ?", patientID, domain.SessionCompleted).
		Order("completed_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// BaselineForPatient returns the earliest-created session of patientID.
func BaselineForPatient(ctx context.Context, db *gorm.DB, patientID string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at asc").
		Order("id asc").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SessionOrdinal returns the 1-based position of sessionID among its
// patient's sessions ordered by creation time.
func SessionOrdinal(ctx context.Context, db *gorm.DB, sessionID string) (int, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Select("id", "patient_id").Where("id = ?", sessionID).First(&s).Error; err != nil {
		return 0, err
	}
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("patient_id = ?", s.PatientID).
		Order("created_at asc").
		Order("id asc").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if id == sessionID {
			return i + 1, nil
		}
	}
	return 0, gorm.ErrRecordNotFound
}

// ListActivePatients returns the distinct patient ids that have at least one
// activated session, sorted ascending.
func ListActivePatients(ctx context.Context, db *gorm.DB) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("activation = ?", true).
		Distinct("patient_id").
		Order("patient_id asc").
		Pluck("patient_id", &out).Error
	return out, err
}

// UpdateSessionFields writes the given column updates to a session that is
// not completed, unless allowCompleted is set. Returns ErrNotFound when the
// session is missing and ErrAlreadyCompleted when it is completed.
func UpdateSessionFields(ctx context.Context, db *gorm.DB, id string, updates map[string]any, allowCompleted bool) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	q := db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", id)
	if !allowCompleted {
		q = q.Where("state <> ?", domain.SessionCompleted)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetSessionState(ctx, db, id); err != nil {
			return err
		}
		return ErrAlreadyCompleted
	}
	return nil
}

// CompleteSession moves the session to completed, storing aggregates and
// conclusions. The update is conditional on the session not being completed
// yet; a lost race returns ErrAlreadyCompleted.
func CompleteSession(ctx context.Context, db *gorm.DB, id string, agg domain.SessionAggregates, c domain.SessionConclusion) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ? AND state <> ?", id, domain.SessionCompleted).
		Updates(map[string]any{
			"state":                domain.SessionCompleted,
			"recall":               agg.Recall,
			"commission":           agg.Commission,
			"omission":             agg.Omission,
			"coherence":            agg.Coherence,
			"fluency":              agg.Fluency,
			"total":                agg.Total,
			"technical_conclusion": c.TechnicalConclusion,
			"plain_conclusion":     c.PlainConclusion,
			"completed_at":         now,
			"updated_at":           now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetSessionState(ctx, db, id); err != nil {
			return err
		}
		return ErrAlreadyCompleted
	}
	return nil
}
