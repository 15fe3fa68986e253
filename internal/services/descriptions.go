// Package services – DescriptionService
//
// DescriptionService is the orchestrator behind a patient describing an
// image: it checks the caller and the image, scores the text against the
// caregiver's ground truth, stores Description and Score together and, once
// the session's last slot is filled, completes the session with averages
// and a narrative conclusion.
//
// Submissions for one session run one at a time under a SessionLocker.
// Notifications are queued after the write commits and never fail a request.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/observability"
	"github.com/douremember/go-descriptions-backend/internal/repo"
)

// DefaultLowScoreThreshold is the total score under which the clinician is alerted.
const DefaultLowScoreThreshold = 0.45

// DescriptionService submits and reads descriptions.
type DescriptionService struct {
	DB           *gorm.DB
	Descriptions DescriptionRepo
	Images       ImageRepo
	GroundTruths GroundTruthRepo
	Sessions     *SessionService
	Gate         *Gate
	Evaluator    Evaluator
	Conclusions  *ConclusionGenerator
	Locker       SessionLocker
	Effects      EffectSink
	Notifier     Notifier
	Idempotency  IdempotencyRepo

	LowScoreThreshold float64
	IdempotencyTTL    time.Duration
}

// SubmitDescriptionInput is the payload of Submit.
type SubmitDescriptionInput struct {
	PatientID string
	ImageID   string
	// SessionID is optional; when set it must match the image's session.
	SessionID      string
	Text           string
	IdempotencyKey string
}

// SubmitResult is what Submit returns.
type SubmitResult struct {
	Description      *domain.Description
	SessionCompleted bool
	Replayed         bool
}

func (s *DescriptionService) threshold() float64 {
	if s.LowScoreThreshold <= 0 {
		return DefaultLowScoreThreshold
	}
	return s.LowScoreThreshold
}

func (s *DescriptionService) idemTTL() time.Duration {
	if s.IdempotencyTTL <= 0 {
		return 24 * time.Hour
	}
	return s.IdempotencyTTL
}

func idempotencyScope(imageID string) string { return "descriptions:" + imageID }

// Submit records and scores a patient's description of one image.
//
// Order of checks: caller role, non-empty text, image exists and is in a
// session, session belongs to the caller and is not completed, no earlier
// description, ground truth exists. The evaluator runs before anything is
// written; Description and Score are then stored in one transaction.
func (s *DescriptionService) Submit(ctx context.Context, in SubmitDescriptionInput) (*SubmitResult, error) {
	ctx, span := otel.Tracer("services/DescriptionService").Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", in.PatientID),
			attribute.String("image.id", in.ImageID),
		),
	)
	defer span.End()

	res, err := s.submit(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, MessageOf(err))
	}
	return res, err
}

func (s *DescriptionService) submit(ctx context.Context, in SubmitDescriptionInput) (*SubmitResult, error) {
	patient, err := s.Gate.RequireRole(ctx, in.PatientID, domain.RolePatient)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyDescription
	}

	if in.IdempotencyKey != "" && s.Idempotency != nil {
		if res, ok, err := s.replay(ctx, patient.ID, in); ok || err != nil {
			return res, err
		}
	}

	img, err := s.Images.GetImage(ctx, s.DB, in.ImageID)
	if err != nil {
		return nil, mapNotFound(err, ErrImageNotFound)
	}
	if img.SessionID == nil {
		return nil, ErrImageNotInSession
	}
	sessionID := *img.SessionID
	if in.SessionID != "" && in.SessionID != sessionID {
		return nil, ErrSessionMismatch
	}

	unlock, err := s.Locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, Internal(fmt.Errorf("lock session %s: %w", sessionID, err))
	}
	defer unlock()

	// Re-read under the lock: a concurrent submission may have changed both.
	img, err = s.Images.GetImage(ctx, s.DB, in.ImageID)
	if err != nil {
		return nil, mapNotFound(err, ErrImageNotFound)
	}
	if img.SessionID == nil || *img.SessionID != sessionID {
		return nil, ErrImageNotInSession
	}
	sess, err := s.Sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.PatientID != patient.ID {
		return nil, ErrPatientMismatch
	}
	if sess.State == domain.SessionCompleted {
		return nil, ErrSessionCompleted
	}
	exists, err := s.Descriptions.HasDescriptionForImage(ctx, s.DB, img.ID)
	if err != nil {
		return nil, Internal(err)
	}
	if exists {
		return nil, ErrDescriptionExists
	}
	gt, err := s.GroundTruths.GetGroundTruthByImage(ctx, s.DB, img.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrGroundTruthMissing
		}
		return nil, Internal(err)
	}

	result, err := s.Evaluator.EvaluateDescription(ctx, text, gt.Text, gt.Keywords)
	if err != nil {
		return nil, err
	}

	var desc *domain.Description
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.Descriptions.CreateDescription(ctx, tx, patient.ID, img.ID, text)
		if err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDescriptionExists
			}
			return err
		}
		sc, err := s.Descriptions.CreateScore(ctx, tx, d.ID, *result)
		if err != nil {
			return err
		}
		d.Score = sc
		if in.IdempotencyKey != "" && s.Idempotency != nil {
			_, err := s.Idempotency.CreateIdempotency(ctx, tx, patient.ID, idempotencyScope(img.ID),
				in.IdempotencyKey, d.ID, http.StatusCreated, s.idemTTL())
			if err != nil && !errors.Is(err, repo.ErrDuplicate) {
				return err
			}
		}
		desc = d
		return nil
	})
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, Internal(err)
	}

	low := result.TotalScore < s.threshold()
	observability.DescriptionScored(low)
	if low {
		s.alertLowScore(patient, sessionID, desc)
	}

	completed, err := s.completeIfFull(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Description: desc, SessionCompleted: completed}, nil
}

func (s *DescriptionService) replay(ctx context.Context, userID string, in SubmitDescriptionInput) (*SubmitResult, bool, error) {
	rec, err := s.Idempotency.GetIdempotency(ctx, s.DB, userID, idempotencyScope(in.ImageID), in.IdempotencyKey, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, Internal(err)
	}
	desc, err := s.Descriptions.GetDescription(ctx, s.DB, rec.ResourceID)
	if err != nil {
		return nil, false, mapNotFound(err, ErrDescriptionNotFound)
	}
	completed := false
	if img, err := s.Images.GetImage(ctx, s.DB, desc.ImageID); err == nil && img.SessionID != nil {
		if sess, err := s.Sessions.Find(ctx, *img.SessionID); err == nil {
			completed = sess.State == domain.SessionCompleted
		}
	}
	return &SubmitResult{Description: desc, SessionCompleted: completed, Replayed: true}, true, nil
}

// completeIfFull runs the completion pipeline once the session holds one
// description per slot. It reports whether this call completed the session.
// The caller must hold the session lock.
func (s *DescriptionService) completeIfFull(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.Descriptions.CountDescriptionsBySession(ctx, s.DB, sessionID)
	if err != nil {
		return false, Internal(err)
	}
	if n < int64(s.Sessions.maxImages()) {
		return false, nil
	}

	agg, err := s.Sessions.Sessions.SessionAverages(ctx, s.DB, sessionID)
	if err != nil {
		return false, ErrAveragesUnavailable.Wrap(err)
	}
	conclusions, err := s.Descriptions.ListScoreConclusionsBySession(ctx, s.DB, sessionID)
	if err != nil {
		return false, Internal(err)
	}
	summary, err := s.Conclusions.Summarize(ctx, *agg, conclusions)
	if err != nil {
		return false, err
	}

	switch err := s.Sessions.Complete(ctx, sessionID, *agg, *summary); {
	case err == nil:
	case errors.Is(err, ErrSessionCompleted):
		zerolog.Ctx(ctx).Info().Str("session_id", sessionID).Msg("session already completed; summary discarded")
		observability.SessionCompleted(true)
		return false, nil
	default:
		return false, err
	}
	observability.SessionCompleted(false)
	s.recordBaseline(ctx, sessionID, *agg)
	return true, nil
}

// Finalize re-runs the completion pipeline for a session whose last
// submission was stored but whose summary failed upstream.
func (s *DescriptionService) Finalize(ctx context.Context, actorID, sessionID string) (*domain.Session, error) {
	ctx, span := otel.Tracer("services/DescriptionService").Start(ctx, "Finalize",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	actor, err := s.Gate.RequireRole(ctx, actorID, domain.RoleCaregiver, domain.RoleAdministrator)
	if err != nil {
		return nil, err
	}
	unlock, err := s.Locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, Internal(fmt.Errorf("lock session %s: %w", sessionID, err))
	}
	defer unlock()

	sess, err := s.Sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !CanManageSession(actor.Role, actor.ID == sess.CaregiverID) {
		return nil, ErrNotOwner
	}
	if sess.State == domain.SessionCompleted {
		return nil, ErrSessionCompleted
	}
	done, err := s.completeIfFull(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, ErrSessionIncomplete
	}
	return s.Sessions.Find(ctx, sessionID)
}

// Find returns a description with its score.
func (s *DescriptionService) Find(ctx context.Context, id string) (*domain.Description, error) {
	d, err := s.Descriptions.GetDescription(ctx, s.DB, id)
	if err != nil {
		return nil, mapNotFound(err, ErrDescriptionNotFound)
	}
	return d, nil
}

// ListBySession returns a page of a session's descriptions and the total.
func (s *DescriptionService) ListBySession(ctx context.Context, sessionID string, page, pageSize int) ([]domain.Description, int64, error) {
	if _, err := s.Sessions.Find(ctx, sessionID); err != nil {
		return nil, 0, err
	}
	_, pageSize, offset := pageBounds(page, pageSize)
	total, err := s.Descriptions.CountDescriptionsBySession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, Internal(err)
	}
	if total == 0 {
		return []domain.Description{}, 0, nil
	}
	items, err := s.Descriptions.ListDescriptionsBySessionPage(ctx, s.DB, sessionID, offset, pageSize)
	if err != nil {
		return nil, 0, Internal(err)
	}
	return items, total, nil
}

func (s *DescriptionService) alertLowScore(patient *domain.User, sessionID string, d *domain.Description) {
	if s.Effects == nil || s.Notifier == nil || d.Score == nil {
		return
	}
	total := d.Score.TotalScore
	threshold := s.threshold()
	s.Effects.Enqueue(SideEffect{
		Event: domain.EventLowScore,
		Run: func(ctx context.Context) error {
			if patient.ClinicianID == "" {
				return ErrNoClinician
			}
			clinician, err := s.Gate.Resolve(ctx, patient.ClinicianID)
			if err != nil {
				return err
			}
			ordinal, err := s.Sessions.Sessions.SessionOrdinal(ctx, s.DB, sessionID)
			if err != nil {
				return fmt.Errorf("session ordinal: %w", err)
			}
			return s.Notifier.Notify(ctx, domain.Notification{
				Event:       domain.EventLowScore,
				RecipientID: clinician.ID,
				ToName:      clinician.DisplayName,
				ToEmail:     clinician.ContactEmail,
				Subject:     fmt.Sprintf("Puntuación baja de %s en la sesión %d", patient.DisplayName, ordinal),
				CreatedAt:   time.Now().UTC(),
				Payload: map[string]any{
					"patientName":    patient.DisplayName,
					"clinicianName":  clinician.DisplayName,
					"score":          total,
					"threshold":      threshold,
					"sessionId":      sessionID,
					"sessionOrdinal": ordinal,
					"descriptionId":  d.ID,
					"imageId":        d.ImageID,
				},
			})
		},
	})
}

// recordBaseline notifies the clinician when sessionID is the patient's
// earliest completed session.
func (s *DescriptionService) recordBaseline(ctx context.Context, sessionID string, agg domain.SessionAggregates) {
	if s.Effects == nil || s.Notifier == nil {
		return
	}
	sess, err := s.Sessions.Find(ctx, sessionID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("baseline check skipped")
		return
	}
	first, err := s.Sessions.Sessions.FirstCompletedSessionID(ctx, s.DB, sess.PatientID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("baseline check skipped")
		return
	}
	if first != sessionID {
		return
	}
	patientID := sess.PatientID
	s.Effects.Enqueue(SideEffect{
		Event: domain.EventBaselineRecorded,
		Run: func(ctx context.Context) error {
			patient, err := s.Gate.Resolve(ctx, patientID)
			if err != nil {
				return err
			}
			if patient.ClinicianID == "" {
				return ErrNoClinician
			}
			clinician, err := s.Gate.Resolve(ctx, patient.ClinicianID)
			if err != nil {
				return err
			}
			return s.Notifier.Notify(ctx, domain.Notification{
				Event:       domain.EventBaselineRecorded,
				RecipientID: clinician.ID,
				ToName:      clinician.DisplayName,
				ToEmail:     clinician.ContactEmail,
				Subject:     fmt.Sprintf("%s ha completado su sesión de referencia", patient.DisplayName),
				CreatedAt:   time.Now().UTC(),
				Payload: map[string]any{
					"patientName":   patient.DisplayName,
					"clinicianName": clinician.DisplayName,
					"sessionId":     sessionID,
					"recall":        agg.Recall,
					"commission":    agg.Commission,
					"omission":      agg.Omission,
					"coherence":     agg.Coherence,
					"fluency":       agg.Fluency,
					"total":         agg.Total,
				},
			})
		},
	})
}
