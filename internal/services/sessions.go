// Package services – SessionService
//
// SessionService owns the session lifecycle: creation with image slot
// assignment, allow-listed updates, the one-way transition to completed and
// the read-only projections (counts, baseline, active patients).
//
// States run pending → in_progress → completed. Activation is a separate
// flag; toggling it notifies the patient with the session ordinal.
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/repo"
)

// DefaultMaxImages is the number of image slots per session.
const DefaultMaxImages = 3

// SessionService implements the session state machine.
type SessionService struct {
	DB       *gorm.DB
	Sessions SessionRepo
	Images   ImageRepo
	Gate     *Gate
	Effects  EffectSink
	Notifier Notifier

	MaxImages int
	Now       func() time.Time
}

// NewSessionService wires a SessionService with default limits.
func NewSessionService(db *gorm.DB, sessions SessionRepo, images ImageRepo, gate *Gate, effects EffectSink, notifier Notifier) *SessionService {
	return &SessionService{
		DB:        db,
		Sessions:  sessions,
		Images:    images,
		Gate:      gate,
		Effects:   effects,
		Notifier:  notifier,
		MaxImages: DefaultMaxImages,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *SessionService) maxImages() int {
	if s.MaxImages <= 0 {
		return DefaultMaxImages
	}
	return s.MaxImages
}

func (s *SessionService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

// CreateSessionInput is the allow-listed payload of Create.
type CreateSessionInput struct {
	ActorID         string
	PatientID       string
	ImageIDs        []string
	ProposedStartAt *time.Time
}

// Create validates the actor, the patient and every candidate image before
// writing anything, then inserts the session and attaches the images one by
// one (each attach re-validated by AttachImage).
func (s *SessionService) Create(ctx context.Context, in CreateSessionInput) (*domain.Session, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", in.ActorID),
			attribute.Int("images", len(in.ImageIDs)),
		),
	)
	defer span.End()

	actor, err := s.Gate.RequireRole(ctx, in.ActorID, domain.RoleCaregiver, domain.RoleAdministrator)
	if err != nil {
		return nil, err
	}
	if len(in.ImageIDs) > s.maxImages() {
		return nil, ErrTooManyImages
	}
	seen := make(map[string]struct{}, len(in.ImageIDs))
	for _, id := range in.ImageIDs {
		if id == "" {
			return nil, Validationf("imageIds contiene un identificador vacío")
		}
		if _, dup := seen[id]; dup {
			return nil, Validationf("imagen repetida: %s", id)
		}
		seen[id] = struct{}{}
	}

	patientID, err := s.targetPatient(actor, in.PatientID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.Gate.Resolve(gctx, patientID)
		if err != nil {
			return err
		}
		if p.Role != domain.RolePatient {
			return Validationf("el usuario %s no es un paciente", patientID)
		}
		return nil
	})
	g.Go(func() error {
		return s.validateCandidates(gctx, actor, in.ImageIDs)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sess, err := s.Sessions.CreateSession(ctx, s.DB, repo.NewSession{
		PatientID:       patientID,
		CaregiverID:     actor.ID,
		ProposedStartAt: in.ProposedStartAt,
	})
	if err != nil {
		return nil, Internal(err)
	}
	for _, id := range in.ImageIDs {
		if err := s.AttachImage(ctx, sess.ID, id); err != nil {
			return nil, err
		}
	}
	return s.Find(ctx, sess.ID)
}

// targetPatient picks the session's patient. Caregivers may only target
// their associated patients and default to the first one; administrators
// must name the patient.
func (s *SessionService) targetPatient(actor *domain.User, requested string) (string, error) {
	if actor.Role == domain.RoleAdministrator {
		if requested == "" {
			return "", Validationf("patientId es obligatorio")
		}
		return requested, nil
	}
	if len(actor.PatientIDs) == 0 {
		return "", ErrNoPatients
	}
	if requested == "" {
		return actor.PatientIDs[0], nil
	}
	if !slices.Contains(actor.PatientIDs, requested) {
		return "", ErrPatientNotAssociated
	}
	return requested, nil
}

func (s *SessionService) validateCandidates(ctx context.Context, actor *domain.User, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	imgs, err := s.Images.GetImagesByIDs(ctx, s.DB, ids)
	if err != nil {
		return Internal(err)
	}
	byID := make(map[string]domain.Image, len(imgs))
	for _, img := range imgs {
		byID[img.ID] = img
	}
	for _, id := range ids {
		img, ok := byID[id]
		if !ok {
			return ErrImageNotFound
		}
		if img.SessionID != nil {
			return ErrImageAssigned
		}
		if actor.Role == domain.RoleCaregiver && img.CaregiverID != actor.ID {
			return ErrImageNotOwned
		}
	}
	return nil
}

// AttachImage puts imageID into one of sessionID's free slots.
func (s *SessionService) AttachImage(ctx context.Context, sessionID, imageID string) error {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "AttachImage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("image.id", imageID),
		),
	)
	defer span.End()

	sess, err := s.Sessions.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		return mapNotFound(err, ErrSessionNotFound)
	}
	if sess.State == domain.SessionCompleted {
		return ErrSessionCompleted
	}

	img, err := s.Images.GetImage(ctx, s.DB, imageID)
	if err != nil {
		return mapNotFound(err, ErrImageNotFound)
	}
	if img.SessionID != nil && *img.SessionID != sessionID {
		current, err := s.Sessions.GetSession(ctx, s.DB, *img.SessionID)
		if err == nil && current.State == domain.SessionCompleted {
			return ErrSessionCompleted
		}
		return ErrImageAssigned
	}

	switch err := s.Images.AttachImage(ctx, s.DB, sessionID, imageID, s.maxImages()); {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrSessionFull):
		return ErrSessionFull
	case errors.Is(err, repo.ErrImageAssigned):
		return ErrImageAssigned
	case errors.Is(err, repo.ErrNotFound):
		return ErrImageNotFound.Wrap(err)
	default:
		return Internal(err)
	}
}

// SessionPatch lists the only fields an update may touch. Nil means unchanged.
type SessionPatch struct {
	Activation       *bool
	State            *domain.SessionState
	ProposedStartAt  *time.Time
	DoctorNotes      *string
	DoctorReviewedAt *time.Time
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return p.Activation == nil && p.State == nil && p.ProposedStartAt == nil &&
		p.DoctorNotes == nil && p.DoctorReviewedAt == nil
}

// doctorOnly reports whether the patch touches only the review fields.
func (p SessionPatch) doctorOnly() bool {
	return (p.DoctorNotes != nil || p.DoctorReviewedAt != nil) &&
		p.Activation == nil && p.State == nil && p.ProposedStartAt == nil
}

// Update applies patch on behalf of actorID. Only the session's caregiver or
// an administrator may change it; clinicians may write review fields only.
// Completed sessions accept only review-field patches.
func (s *SessionService) Update(ctx context.Context, sessionID string, patch SessionPatch, actorID string) (*domain.Session, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("user.id", actorID),
		),
	)
	defer span.End()

	if patch.Empty() {
		return nil, Validationf("no se indicó ningún campo a modificar")
	}
	if patch.State != nil {
		if !patch.State.Valid() {
			return nil, Validationf("estado desconocido: %s", *patch.State)
		}
		if *patch.State == domain.SessionCompleted {
			return nil, ErrCompleteViaUpdate
		}
	}

	actor, err := s.Gate.RequireRole(ctx, actorID,
		domain.RoleCaregiver, domain.RoleAdministrator, domain.RoleClinician)
	if err != nil {
		return nil, err
	}

	sess, err := s.Sessions.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, mapNotFound(err, ErrSessionNotFound)
	}
	owner := actor.ID == sess.CaregiverID
	if !CanManageSession(actor.Role, owner) && !(patch.doctorOnly() && CanReviewSession(actor.Role)) {
		return nil, ErrNotOwner
	}

	doctorOnly := patch.doctorOnly()
	if sess.State == domain.SessionCompleted && !doctorOnly {
		return nil, ErrSessionCompleted
	}

	updates := map[string]any{}
	if patch.Activation != nil {
		updates["activation"] = *patch.Activation
	}
	if patch.State != nil {
		updates["state"] = *patch.State
	}
	if patch.ProposedStartAt != nil {
		updates["proposed_start_at"] = patch.ProposedStartAt.UTC()
	}
	if patch.DoctorNotes != nil {
		updates["doctor_notes"] = *patch.DoctorNotes
		if patch.DoctorReviewedAt == nil {
			updates["doctor_reviewed_at"] = s.now()
		}
	}
	if patch.DoctorReviewedAt != nil {
		updates["doctor_reviewed_at"] = patch.DoctorReviewedAt.UTC()
	}

	if err := s.Sessions.UpdateSessionFields(ctx, s.DB, sessionID, updates, doctorOnly); err != nil {
		switch {
		case errors.Is(err, repo.ErrAlreadyCompleted):
			return nil, ErrSessionCompleted
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrSessionNotFound
		}
		return nil, Internal(err)
	}

	if patch.Activation != nil && *patch.Activation != sess.Activation {
		s.notifyActivation(sess.ID, sess.PatientID, *patch.Activation)
	}
	return s.Find(ctx, sessionID)
}

func (s *SessionService) notifyActivation(sessionID, patientID string, active bool) {
	if s.Effects == nil || s.Notifier == nil {
		return
	}
	s.Effects.Enqueue(SideEffect{
		Event: domain.EventActivationChanged,
		Run: func(ctx context.Context) error {
			ordinal, err := s.Sessions.SessionOrdinal(ctx, s.DB, sessionID)
			if err != nil {
				return fmt.Errorf("session ordinal: %w", err)
			}
			patient, err := s.Gate.Resolve(ctx, patientID)
			if err != nil {
				return err
			}
			subject := fmt.Sprintf("Tu sesión %d ya está disponible", ordinal)
			if !active {
				subject = fmt.Sprintf("Tu sesión %d se ha desactivado", ordinal)
			}
			return s.Notifier.Notify(ctx, domain.Notification{
				Event:       domain.EventActivationChanged,
				RecipientID: patient.ID,
				ToName:      patient.DisplayName,
				ToEmail:     patient.ContactEmail,
				Subject:     subject,
				CreatedAt:   s.now(),
				Payload: map[string]any{
					"sessionId":      sessionID,
					"sessionOrdinal": ordinal,
					"activation":     active,
					"patientName":    patient.DisplayName,
				},
			})
		},
	})
}

// Complete stores the aggregates and conclusions and marks the session
// completed. It fails with ErrSessionCompleted if it already was.
func (s *SessionService) Complete(ctx context.Context, sessionID string, agg domain.SessionAggregates, c domain.SessionConclusion) error {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Complete",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	err := s.Sessions.CompleteSession(ctx, s.DB, sessionID, agg, c)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrAlreadyCompleted):
		return ErrSessionCompleted
	case errors.Is(err, repo.ErrNotFound):
		return ErrSessionNotFound
	}
	return Internal(err)
}

// Find returns a session with its images.
func (s *SessionService) Find(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := s.Sessions.GetSession(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrSessionNotFound)
	}
	return sess, nil
}

// ListByPatient returns a page of the patient's sessions and the total.
func (s *SessionService) ListByPatient(ctx context.Context, patientID string, page, pageSize int) ([]domain.Session, int64, error) {
	_, pageSize, offset := pageBounds(page, pageSize)
	total, err := s.Sessions.CountSessionsByPatient(ctx, s.DB, patientID)
	if err != nil {
		return nil, 0, Internal(err)
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}
	items, err := s.Sessions.ListSessionsByPatientPage(ctx, s.DB, patientID, offset, pageSize)
	if err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}

// ListByPatientWithGroundTruth is ListByPatient with each image's ground truth.
func (s *SessionService) ListByPatientWithGroundTruth(ctx context.Context, patientID string, page, pageSize int) ([]domain.Session, int64, error) {
	_, pageSize, offset := pageBounds(page, pageSize)
	total, err := s.Sessions.CountSessionsByPatient(ctx, s.DB, patientID)
	if err != nil {
		return nil, 0, Internal(err)
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}
	items, err := s.Sessions.ListSessionsByPatientWithGroundTruth(ctx, s.DB, patientID, offset, pageSize)
	if err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}

// ListCompletedByPatient returns a page of completed sessions with aggregates.
func (s *SessionService) ListCompletedByPatient(ctx context.Context, patientID string, page, pageSize int) ([]domain.Session, int64, error) {
	_, pageSize, offset := pageBounds(page, pageSize)
	total, err := s.Sessions.CountCompletedSessionsByPatient(ctx, s.DB, patientID)
	if err != nil {
		return nil, 0, Internal(err)
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}
	items, err := s.Sessions.ListCompletedSessionsByPatientPage(ctx, s.DB, patientID, offset, pageSize)
	if err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}

// CompletedListTag returns a weak ETag for the patient's completed sessions.
func (s *SessionService) CompletedListTag(ctx context.Context, patientID string) (string, error) {
	count, maxTS, err := s.Sessions.CompletedSessionsStats(ctx, s.DB, patientID)
	if err != nil {
		return "", Internal(err)
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	return fmt.Sprintf(`W/"completed:%s:%d:%d"`, patientID, count, ts), nil
}

// CountForPatient returns how many sessions the patient has.
func (s *SessionService) CountForPatient(ctx context.Context, patientID string) (int64, error) {
	n, err := s.Sessions.CountSessionsByPatient(ctx, s.DB, patientID)
	if err != nil {
		return 0, Internal(err)
	}
	return n, nil
}

// BaselineForPatient returns the patient's earliest-created session.
func (s *SessionService) BaselineForPatient(ctx context.Context, patientID string) (*domain.Session, error) {
	sess, err := s.Sessions.BaselineForPatient(ctx, s.DB, patientID)
	if err != nil {
		return nil, mapNotFound(err, ErrBaselineNotFound)
	}
	return sess, nil
}

// ListActivePatients returns the patients with at least one active session.
func (s *SessionService) ListActivePatients(ctx context.Context) ([]string, error) {
	ids, err := s.Sessions.ListActivePatients(ctx, s.DB)
	if err != nil {
		return nil, Internal(err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// AuthorizeRead lets patients read only their own sessions. Other roles may
// read any patient's sessions. An empty actorID skips the check.
func (s *SessionService) AuthorizeRead(ctx context.Context, actorID, patientID string) error {
	if actorID == "" {
		return nil
	}
	actor, err := s.Gate.Resolve(ctx, actorID)
	if err != nil {
		return err
	}
	if !CanListSessions(actor.Role) {
		return ErrInvalidRole
	}
	if actor.Role == domain.RolePatient && actor.ID != patientID {
		return ErrInvalidRole
	}
	return nil
}

// mapNotFound turns repo.ErrNotFound into notFound and anything else into
// an internal error.
func mapNotFound(err error, notFound *Error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return notFound
	}
	return Internal(err)
}
