// Description HTTP handlers.
//
//   - POST /images/{id}/descriptions     (submit and score; Idempotency-Key aware)
//   - GET  /descriptions/{id}
//   - GET  /sessions/{id}/descriptions   (paginated)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/http/middleware"
	"github.com/douremember/go-descriptions-backend/internal/services"
)

// SubmitDescriptionRequest is a patient's description of one image.
type SubmitDescriptionRequest struct {
	Text      string `json:"text" binding:"required" example:"Veo un perro con una pelota"`
	SessionID string `json:"sessionId"`
}

// SubmitDescriptionResponse is the stored description with its score.
type SubmitDescriptionResponse struct {
	Description      *domain.Description `json:"description"`
	SessionCompleted bool                `json:"sessionCompleted"`
}

// SubmitDescription godoc
// @ID          submitDescription
// @Summary     Describe an image
// @Description Scores the text against the image's ground truth and stores description and score together. The last description of a session completes it. A repeated Idempotency-Key returns the stored result with 200.
// @Tags        Descriptions
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  true   "Patient id"
// @Param       Idempotency-Key  header  string  false  "Retry key"
// @Param       id               path    string  true   "Image id"
// @Param       body             body    handlers.SubmitDescriptionRequest  true  "Description"
// @Success     201  {object}  handlers.SubmitDescriptionResponse
// @Success     200  {object}  handlers.SubmitDescriptionResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /images/{id}/descriptions [post]
func (h *Handlers) SubmitDescription(c *gin.Context) {
	var req SubmitDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failBody(c, err, "el texto de la descripción es obligatorio")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.descriptions.Submit(c.Request.Context(), services.SubmitDescriptionInput{
		PatientID:      callerID(c),
		ImageID:        c.Param("id"),
		SessionID:      req.SessionID,
		Text:           req.Text,
		IdempotencyKey: key,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	ok(c, status, SubmitDescriptionResponse{
		Description:      res.Description,
		SessionCompleted: res.SessionCompleted,
	})
}

// GetDescription godoc
// @ID          getDescription
// @Summary     Get a description with its score
// @Tags        Descriptions
// @Produce     json
// @Param       id   path  string  true  "Description id"
// @Success     200  {object}  domain.Description
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /descriptions/{id} [get]
func (h *Handlers) GetDescription(c *gin.Context) {
	d, err := h.descriptions.Find(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// ListSessionDescriptions godoc
// @ID          listSessionDescriptions
// @Summary     List a session's descriptions (paginated)
// @Tags        Descriptions
// @Produce     json
// @Param       id        path   string  true   "Session id"
// @Param       page      query  int     false  "Page (1-based)"  default(1)
// @Param       pageSize  query  int     false  "Items per page"  default(20)
// @Success     200  {object}  handlers.ListResponse[domain.Description]
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /sessions/{id}/descriptions [get]
func (h *Handlers) ListSessionDescriptions(c *gin.Context) {
	p, size := pageParams(c)
	items, total, err := h.descriptions.ListBySession(c.Request.Context(), c.Param("id"), p, size)
	if err != nil {
		failErr(c, err)
		return
	}
	page(c, items, total, p, size)
}
