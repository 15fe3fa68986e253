package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/repo"
)

// ImageRepo is the persistence contract for images.
type ImageRepo interface {
	CreateImage(ctx context.Context, db *gorm.DB, in repo.NewImage) (*domain.Image, error)
	GetImage(ctx context.Context, db *gorm.DB, id string) (*domain.Image, error)
	GetImagesByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Image, error)
	CountImagesByCaregiver(ctx context.Context, db *gorm.DB, caregiverID string) (int64, error)
	ListImagesByCaregiverPage(ctx context.Context, db *gorm.DB, caregiverID string, offset, limit int) ([]domain.Image, error)
	AttachImage(ctx context.Context, db *gorm.DB, sessionID, imageID string, max int) error
	DetachImage(ctx context.Context, db *gorm.DB, imageID string) error
	DeleteImage(ctx context.Context, db *gorm.DB, id string) error
}

// GroundTruthRepo is the persistence contract for ground truths.
type GroundTruthRepo interface {
	CreateGroundTruth(ctx context.Context, db *gorm.DB, imageID, text string, keywords, questions []string) (*domain.GroundTruth, error)
	GetGroundTruth(ctx context.Context, db *gorm.DB, id string) (*domain.GroundTruth, error)
	GetGroundTruthByImage(ctx context.Context, db *gorm.DB, imageID string) (*domain.GroundTruth, error)
	UpdateGroundTruth(ctx context.Context, db *gorm.DB, id string, patch repo.GroundTruthPatch) (*domain.GroundTruth, error)
	DeleteGroundTruth(ctx context.Context, db *gorm.DB, id string) error
}

// SessionRepo is the persistence contract for sessions and their projections.
type SessionRepo interface {
	CreateSession(ctx context.Context, db *gorm.DB, in repo.NewSession) (*domain.Session, error)
	GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error)
	CountSessionsByPatient(ctx context.Context, db *gorm.DB, patientID string) (int64, error)
	ListSessionsByPatientPage(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.Session, error)
	ListSessionsByPatientWithGroundTruth(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.Session, error)
	CountCompletedSessionsByPatient(ctx context.Context, db *gorm.DB, patientID string) (int64, error)
	FirstCompletedSessionID(ctx context.Context, db *gorm.DB, patientID string) (string, error)
	ListCompletedSessionsByPatientPage(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.Session, error)
	CompletedSessionsStats(ctx context.Context, db *gorm.DB, patientID string) (int64, *time.Time, error)
	BaselineForPatient(ctx context.Context, db *gorm.DB, patientID string) (*domain.Session, error)
	SessionOrdinal(ctx context.Context, db *gorm.DB, sessionID string) (int, error)
	ListActivePatients(ctx context.Context, db *gorm.DB) ([]string, error)
	UpdateSessionFields(ctx context.Context, db *gorm.DB, id string, updates map[string]any, allowCompleted bool) error
	CompleteSession(ctx context.Context, db *gorm.DB, id string, agg domain.SessionAggregates, c domain.SessionConclusion) error
	SessionAverages(ctx context.Context, db *gorm.DB, sessionID string) (*domain.SessionAggregates, error)
}

// DescriptionRepo is the persistence contract for descriptions and scores.
type DescriptionRepo interface {
	CreateDescription(ctx context.Context, db *gorm.DB, patientID, imageID, text string) (*domain.Description, error)
	GetDescription(ctx context.Context, db *gorm.DB, id string) (*domain.Description, error)
	HasDescriptionForImage(ctx context.Context, db *gorm.DB, imageID string) (bool, error)
	CountDescriptionsBySession(ctx context.Context, db *gorm.DB, sessionID string) (int64, error)
	ListDescriptionsBySessionPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Description, error)
	CreateScore(ctx context.Context, db *gorm.DB, descriptionID string, r domain.EvaluationResult) (*domain.Score, error)
	ListScoreConclusionsBySession(ctx context.Context, db *gorm.DB, sessionID string) ([]string, error)
}

// IdempotencyRepo stores replay records for description submissions.
type IdempotencyRepo interface {
	GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// pageBounds normalises page/pageSize and returns the offset.
func pageBounds(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return page, pageSize, (page - 1) * pageSize
}
