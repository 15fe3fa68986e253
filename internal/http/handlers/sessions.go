// Session HTTP handlers.
//
//   - POST  /sessions
//   - GET   /sessions/{id}
//   - PATCH /sessions/{id}                     (allow-listed fields only)
//   - POST  /sessions/{id}/complete            (retry completion)
//   - GET   /patients/{id}/sessions            (+ /with-groundtruth, /completed, /count)
//   - GET   /patients/{id}/baseline
//   - GET   /active-patients
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/services"
)

// CreateSessionRequest is the allow-listed payload for a new session.
// PatientID may be omitted when the caregiver has a single patient.
type CreateSessionRequest struct {
	PatientID       string     `json:"patientId" example:"p1"`
	ImageIDs        []string   `json:"imageIds"`
	ProposedStartAt *time.Time `json:"proposedStartAt" example:"2025-03-01T10:00:00Z"`
}

// UpdateSessionRequest lists the only fields a session update may touch.
// Unknown fields are rejected.
type UpdateSessionRequest struct {
	Activation       *bool      `json:"activation"`
	State            *string    `json:"state" enums:"pending,in_progress"`
	ProposedStartAt  *time.Time `json:"proposedStartAt"`
	DoctorNotes      *string    `json:"doctorNotes"`
	DoctorReviewedAt *time.Time `json:"doctorReviewedAt"`
}

// CountResponse wraps a session count.
type CountResponse struct {
	Count int64 `json:"count" example:"4"`
}

// ActivePatientsResponse lists patients with an active session.
type ActivePatientsResponse struct {
	PatientIDs []string `json:"patientIds"`
}

// CreateSession godoc
// @ID          createSession
// @Summary     Create a session
// @Description Validates the patient and every image before writing; images are attached in order.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caregiver or administrator id"
// @Param       body       body    handlers.CreateSessionRequest  true  "Session"
// @Success     201  {object}  domain.Session
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := decodeStrict(c, &req); err != nil {
		h.failBody(c, err, "cuerpo JSON inválido")
		return
	}
	sess, err := h.sessions.Create(c.Request.Context(), services.CreateSessionInput{
		ActorID:         callerID(c),
		PatientID:       req.PatientID,
		ImageIDs:        req.ImageIDs,
		ProposedStartAt: req.ProposedStartAt,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, sess)
}

// GetSession godoc
// @ID          getSession
// @Summary     Get a session with its images
// @Tags        Sessions
// @Produce     json
// @Param       X-User-ID  header  string  false  "Caller id"
// @Param       id         path    string  true   "Session id"
// @Success     200  {object}  domain.Session
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	ctx := c.Request.Context()
	sess, err := h.sessions.Find(ctx, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if err := h.sessions.AuthorizeRead(ctx, callerID(c), sess.PatientID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// UpdateSession godoc
// @ID          updateSession
// @Summary     Update a session
// @Description Only activation, state (pending|in_progress), proposedStartAt, doctorNotes and doctorReviewedAt. Completed sessions accept review fields only.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       id         path    string  true  "Session id"
// @Param       body       body    handlers.UpdateSessionRequest  true  "Fields to change"
// @Success     200  {object}  domain.Session
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /sessions/{id} [patch]
func (h *Handlers) UpdateSession(c *gin.Context) {
	var req UpdateSessionRequest
	if err := decodeStrict(c, &req); err != nil {
		h.failBody(c, err, "campo no permitido o JSON inválido")
		return
	}
	patch := services.SessionPatch{
		Activation:       req.Activation,
		ProposedStartAt:  req.ProposedStartAt,
		DoctorNotes:      req.DoctorNotes,
		DoctorReviewedAt: req.DoctorReviewedAt,
	}
	if req.State != nil {
		st := domain.SessionState(*req.State)
		patch.State = &st
	}
	sess, err := h.sessions.Update(c.Request.Context(), c.Param("id"), patch, callerID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// CompleteSession godoc
// @ID          completeSession
// @Summary     Retry session completion
// @Description Recomputes aggregates and the conclusion of a session whose three descriptions are stored.
// @Tags        Sessions
// @Produce     json
// @Param       X-User-ID  header  string  true  "Owning caregiver or administrator id"
// @Param       id         path    string  true  "Session id"
// @Success     200  {object}  domain.Session
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /sessions/{id}/complete [post]
func (h *Handlers) CompleteSession(c *gin.Context) {
	sess, err := h.descriptions.Finalize(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

type sessionLister func(ctx context.Context, patientID string, page, pageSize int) ([]domain.Session, int64, error)

func (h *Handlers) listPatientSessions(c *gin.Context, list sessionLister) {
	ctx := c.Request.Context()
	patientID := c.Param("id")
	if err := h.sessions.AuthorizeRead(ctx, callerID(c), patientID); err != nil {
		failErr(c, err)
		return
	}
	p, size := pageParams(c)
	items, total, err := list(ctx, patientID, p, size)
	if err != nil {
		failErr(c, err)
		return
	}
	page(c, items, total, p, size)
}

// ListPatientSessions godoc
// @ID          listPatientSessions
// @Summary     List a patient's sessions (paginated)
// @Tags        Patients
// @Produce     json
// @Param       X-User-ID  header  string  false  "Caller id"
// @Param       id         path    string  true   "Patient id"
// @Param       page       query   int     false  "Page (1-based)"  default(1)
// @Param       pageSize   query   int     false  "Items per page"  default(20)
// @Success     200  {object}  handlers.ListResponse[domain.Session]
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /patients/{id}/sessions [get]
func (h *Handlers) ListPatientSessions(c *gin.Context) {
	h.listPatientSessions(c, h.sessions.ListByPatient)
}

// ListPatientSessionsWithGroundTruth godoc
// @ID          listPatientSessionsWithGroundTruth
// @Summary     List a patient's sessions with image ground truths (paginated)
// @Tags        Patients
// @Produce     json
// @Param       X-User-ID  header  string  false  "Caller id"
// @Param       id         path    string  true   "Patient id"
// @Param       page       query   int     false  "Page (1-based)"  default(1)
// @Param       pageSize   query   int     false  "Items per page"  default(20)
// @Success     200  {object}  handlers.ListResponse[domain.Session]
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /patients/{id}/sessions/with-groundtruth [get]
func (h *Handlers) ListPatientSessionsWithGroundTruth(c *gin.Context) {
	h.listPatientSessions(c, h.sessions.ListByPatientWithGroundTruth)
}

// ListCompletedSessions godoc
// @ID          listCompletedSessions
// @Summary     List a patient's completed sessions (paginated)
// @Tags        Patients
// @Produce     json
// @Param       X-User-ID      header  string  false  "Caller id"
// @Param       If-None-Match  header  string  false  "ETag from a previous response"
// @Param       id             path    string  true   "Patient id"
// @Param       page           query   int     false  "Page (1-based)"  default(1)
// @Param       pageSize       query   int     false  "Items per page"  default(20)
// @Success     200  {object}  handlers.ListResponse[domain.Session]
// @Header      200  {string}  ETag  "Weak ETag for the completed list"
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /patients/{id}/sessions/completed [get]
func (h *Handlers) ListCompletedSessions(c *gin.Context) {
	ctx := c.Request.Context()
	patientID := c.Param("id")
	if err := h.sessions.AuthorizeRead(ctx, callerID(c), patientID); err != nil {
		failErr(c, err)
		return
	}

	// ETag pre-check (best effort).
	if etag, err := h.sessions.CompletedListTag(ctx, patientID); err == nil {
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	p, size := pageParams(c)
	items, total, err := h.sessions.ListCompletedByPatient(ctx, patientID, p, size)
	if err != nil {
		failErr(c, err)
		return
	}
	page(c, items, total, p, size)
}

// CountPatientSessions godoc
// @ID          countPatientSessions
// @Summary     Count a patient's sessions
// @Tags        Patients
// @Produce     json
// @Param       X-User-ID  header  string  false  "Caller id"
// @Param       id         path    string  true   "Patient id"
// @Success     200  {object}  handlers.CountResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /patients/{id}/sessions/count [get]
func (h *Handlers) CountPatientSessions(c *gin.Context) {
	ctx := c.Request.Context()
	patientID := c.Param("id")
	if err := h.sessions.AuthorizeRead(ctx, callerID(c), patientID); err != nil {
		failErr(c, err)
		return
	}
	n, err := h.sessions.CountForPatient(ctx, patientID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CountResponse{Count: n})
}

// GetBaseline godoc
// @ID          getBaseline
// @Summary     Get a patient's baseline session
// @Description The baseline is the patient's earliest-created session.
// @Tags        Patients
// @Produce     json
// @Param       X-User-ID  header  string  false  "Caller id"
// @Param       id         path    string  true   "Patient id"
// @Success     200  {object}  domain.Session
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /patients/{id}/baseline [get]
func (h *Handlers) GetBaseline(c *gin.Context) {
	ctx := c.Request.Context()
	patientID := c.Param("id")
	if err := h.sessions.AuthorizeRead(ctx, callerID(c), patientID); err != nil {
		failErr(c, err)
		return
	}
	sess, err := h.sessions.BaselineForPatient(ctx, patientID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// ListActivePatients godoc
// @ID          listActivePatients
// @Summary     List patients with an active session
// @Tags        Patients
// @Produce     json
// @Success     200  {object}  handlers.ActivePatientsResponse
// @Router      /active-patients [get]
func (h *Handlers) ListActivePatients(c *gin.Context) {
	ids, err := h.sessions.ListActivePatients(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ActivePatientsResponse{PatientIDs: ids})
}
