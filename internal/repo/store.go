package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// Store adapts the package-level functions to the repository interfaces the
// services consume. It is stateless; the *gorm.DB is passed per call so the
// same Store works inside and outside transactions.
type Store struct{}

func (Store) CreateImage(ctx context.Context, db *gorm.DB, in NewImage) (*domain.Image, error) {
	return CreateImage(ctx, db, in)
}
func (Store) GetImage(ctx context.Context, db *gorm.DB, id string) (*domain.Image, error) {
	return GetImage(ctx, db, id)
}
func (Store) GetImagesByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Image, error) {
	return GetImagesByIDs(ctx, db, ids)
}
func (Store) CountImagesByCaregiver(ctx context.Context, db *gorm.DB, caregiverID string) (int64, error) {
	return CountImagesByCaregiver(ctx, db, caregiverID)
}
func (Store) ListImagesByCaregiverPage(ctx context.Context, db *gorm.DB, caregiverID string, offset, limit int) ([]domain.Image, error) {
	return ListImagesByCaregiverPage(ctx, db, caregiverID, offset, limit)
}
func (Store) AttachImage(ctx context.Context, db *gorm.DB, sessionID, imageID string, max int) error {
	return AttachImage(ctx, db, sessionID, imageID, max)
}
func (Store) DetachImage(ctx context.Context, db *gorm.DB, imageID string) error {
	return DetachImage(ctx, db, imageID)
}
func (Store) DeleteImage(ctx context.Context, db *gorm.DB, id string) error {
	return DeleteImage(ctx, db, id)
}

func (Store) CreateGroundTruth(ctx context.Context, db *gorm.DB, imageID, text string, keywords, questions []string) (*domain.GroundTruth, error) {
	return CreateGroundTruth(ctx, db, imageID, text, keywords, questions)
}
func (Store) GetGroundTruth(ctx context.Context, db *gorm.DB, id string) (*domain.GroundTruth, error) {
	return GetGroundTruth(ctx, db, id)
}
func (Store) GetGroundTruthByImage(ctx context.Context, db *gorm.DB, imageID string) (*domain.GroundTruth, error) {
	return GetGroundTruthByImage(ctx, db, imageID)
}
func (Store) UpdateGroundTruth(ctx context.Context, db *gorm.DB, id string, patch GroundTruthPatch) (*domain.GroundTruth, error) {
	return UpdateGroundTruth(ctx, db, id, patch)
}
func (Store) DeleteGroundTruth(ctx context.Context, db *gorm.DB, id string) error {
	return DeleteGroundTruth(ctx, db, id)
}

func (Store) CreateSession(ctx context.Context, db *gorm.DB, in NewSession) (*domain.Session, error) {
	return CreateSession(ctx, db, in)
}
func (Store) GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	return GetSession(ctx, db, id)
}
func (Store) CountSessionsByPatient(ctx context.Context, db *gorm.DB, patientID string) (int64, error) {
	return CountSessionsByPatient(ctx, db, patientID)
}
func (Store) ListSessionsByPatientPage(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.Session, error) {
	return ListSessionsByPatientPage(ctx, db, patientID, offset, limit)
}
func (Store) ListSessionsByPatientWithGroundTruth(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.Session, error) {
	return ListSessionsByPatientWithGroundTruth(ctx, db, patientID, offset, limit)
}
func (Store) CountCompletedSessionsByPatient(ctx context.Context, db *gorm.DB, patientID string) (int64, error) {
	return CountCompletedSessionsByPatient(ctx, db, patientID)
}
func (Store) FirstCompletedSessionID(ctx context.Context, db *gorm.DB, patientID string) (string, error) {
	return FirstCompletedSessionID(ctx, db, patientID)
}
func (Store) ListCompletedSessionsByPatientPage(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.Session, error) {
	return ListCompletedSessionsByPatientPage(ctx, db, patientID, offset, limit)
}
func (Store) CompletedSessionsStats(ctx context.Context, db *gorm.DB, patientID string) (int64, *time.Time, error) {
	return CompletedSessionsStats(ctx, db, patientID)
}
func (Store) BaselineForPatient(ctx context.Context, db *gorm.DB, patientID string) (*domain.Session, error) {
	return BaselineForPatient(ctx, db, patientID)
}
func (Store) SessionOrdinal(ctx context.Context, db *gorm.DB, sessionID string) (int, error) {
	return SessionOrdinal(ctx, db, sessionID)
}
func (Store) ListActivePatients(ctx context.Context, db *gorm.DB) ([]string, error) {
	return ListActivePatients(ctx, db)
}
func (Store) UpdateSessionFields(ctx context.Context, db *gorm.DB, id string, updates map[string]any, allowCompleted bool) error {
	return UpdateSessionFields(ctx, db, id, updates, allowCompleted)
}
func (Store) CompleteSession(ctx context.Context, db *gorm.DB, id string, agg domain.SessionAggregates, c domain.SessionConclusion) error {
	return CompleteSession(ctx, db, id, agg, c)
}
func (Store) SessionAverages(ctx context.Context, db *gorm.DB, sessionID string) (*domain.SessionAggregates, error) {
	return SessionAverages(ctx, db, sessionID)
}

func (Store) CreateDescription(ctx context.Context, db *gorm.DB, patientID, imageID, text string) (*domain.Description, error) {
	return CreateDescription(ctx, db, patientID, imageID, text)
}
func (Store) GetDescription(ctx context.Context, db *gorm.DB, id string) (*domain.Description, error) {
	return GetDescription(ctx, db, id)
}
func (Store) HasDescriptionForImage(ctx context.Context, db *gorm.DB, imageID string) (bool, error) {
	return HasDescriptionForImage(ctx, db, imageID)
}
func (Store) CountDescriptionsBySession(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	return CountDescriptionsBySession(ctx, db, sessionID)
}
func (Store) ListDescriptionsBySessionPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Description, error) {
	return ListDescriptionsBySessionPage(ctx, db, sessionID, offset, limit)
}
func (Store) CreateScore(ctx context.Context, db *gorm.DB, descriptionID string, r domain.EvaluationResult) (*domain.Score, error) {
	return CreateScore(ctx, db, descriptionID, r)
}
func (Store) ListScoreConclusionsBySession(ctx context.Context, db *gorm.DB, sessionID string) ([]string, error) {
	return ListScoreConclusionsBySession(ctx, db, sessionID)
}

func (Store) GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, db, userID, scope, key, now)
}
func (Store) CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return CreateIdempotency(ctx, db, userID, scope, key, resourceID, status, ttl)
}
