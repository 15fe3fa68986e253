package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/http/middleware"
	"github.com/douremember/go-descriptions-backend/internal/services"
	"github.com/douremember/go-descriptions-backend/internal/utils"
)

//
// Service contracts
//

// ImageService is the image surface used by the handlers.
type ImageService interface {
	Upload(ctx context.Context, in services.UploadImageInput) (*domain.Image, error)
	Find(ctx context.Context, id string) (*domain.Image, error)
	ListByCaregiver(ctx context.Context, caregiverID string, page, pageSize int) ([]domain.Image, int64, error)
	AssignSession(ctx context.Context, actorID, imageID string, sessionID *string) (*domain.Image, error)
	Delete(ctx context.Context, actorID, imageID string) error
}

// GroundTruthService is the ground-truth surface used by the handlers.
type GroundTruthService interface {
	Create(ctx context.Context, in services.GroundTruthInput) (*domain.GroundTruth, error)
	Find(ctx context.Context, id string) (*domain.GroundTruth, error)
	FindByImage(ctx context.Context, imageID string) (*domain.GroundTruth, error)
	Update(ctx context.Context, actorID, id string, in services.GroundTruthUpdate) (*domain.GroundTruth, error)
	Delete(ctx context.Context, actorID, id string) error
}

// SessionService is the session surface used by the handlers.
type SessionService interface {
	Create(ctx context.Context, in services.CreateSessionInput) (*domain.Session, error)
	Find(ctx context.Context, id string) (*domain.Session, error)
	Update(ctx context.Context, sessionID string, patch services.SessionPatch, actorID string) (*domain.Session, error)
	ListByPatient(ctx context.Context, patientID string, page, pageSize int) ([]domain.Session, int64, error)
	ListByPatientWithGroundTruth(ctx context.Context, patientID string, page, pageSize int) ([]domain.Session, int64, error)
	ListCompletedByPatient(ctx context.Context, patientID string, page, pageSize int) ([]domain.Session, int64, error)
	CompletedListTag(ctx context.Context, patientID string) (string, error)
	CountForPatient(ctx context.Context, patientID string) (int64, error)
	BaselineForPatient(ctx context.Context, patientID string) (*domain.Session, error)
	ListActivePatients(ctx context.Context) ([]string, error)
	AuthorizeRead(ctx context.Context, actorID, patientID string) error
}

// DescriptionService is the description surface used by the handlers.
type DescriptionService interface {
	Submit(ctx context.Context, in services.SubmitDescriptionInput) (*services.SubmitResult, error)
	Finalize(ctx context.Context, actorID, sessionID string) (*domain.Session, error)
	Find(ctx context.Context, id string) (*domain.Description, error)
	ListBySession(ctx context.Context, sessionID string, page, pageSize int) ([]domain.Description, int64, error)
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	images       ImageService
	groundTruths GroundTruthService
	sessions     SessionService
	descriptions DescriptionService

	// MaxUploadBytes caps decoded image payloads; zero means 10 MiB.
	MaxUploadBytes int64
}

// New binds the handlers to their services.
func New(images ImageService, groundTruths GroundTruthService, sessions SessionService, descriptions DescriptionService) *Handlers {
	return &Handlers{
		images:       images,
		groundTruths: groundTruths,
		sessions:     sessions,
		descriptions: descriptions,
	}
}

// callerID is the directory id of the caller. Services reject an empty id
// as an unknown user.
func callerID(c *gin.Context) string {
	if id := middleware.CallerID(c); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderUserID))
}

func pageParams(c *gin.Context) (int, int) {
	return utils.ParsePage(c.Query("page"), c.Query("pageSize"))
}

