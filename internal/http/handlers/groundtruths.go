// Ground truth HTTP handlers.
//
//   - POST   /groundtruths
//   - GET    /groundtruths/{id}
//   - GET    /images/{id}/groundtruth
//   - PATCH  /groundtruths/{id}
//   - DELETE /groundtruths/{id}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/douremember/go-descriptions-backend/internal/services"
)

// CreateGroundTruthRequest is the reference description of an image.
type CreateGroundTruthRequest struct {
	ImageID          string   `json:"imageId" binding:"required" example:"3f6c1d7e-8a4b-4c2e-9f1a-0b5d6e7f8a9b"`
	Text             string   `json:"text" binding:"required" example:"Un perro juega en el parque con una pelota roja"`
	Keywords         []string `json:"keywords" example:"perro,pelota"`
	GuidingQuestions []string `json:"guidingQuestions"`
}

// UpdateGroundTruthRequest lists the mutable fields; omitted means unchanged.
type UpdateGroundTruthRequest struct {
	Text             *string  `json:"text"`
	Keywords         []string `json:"keywords"`
	GuidingQuestions []string `json:"guidingQuestions"`
}

// CreateGroundTruth godoc
// @ID          createGroundTruth
// @Summary     Create the ground truth of an image
// @Tags        GroundTruths
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caregiver or administrator id"
// @Param       body       body    handlers.CreateGroundTruthRequest  true  "Ground truth"
// @Success     201  {object}  domain.GroundTruth
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /groundtruths [post]
func (h *Handlers) CreateGroundTruth(c *gin.Context) {
	var req CreateGroundTruthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failBody(c, err, "imageId y text son obligatorios")
		return
	}
	gt, err := h.groundTruths.Create(c.Request.Context(), services.GroundTruthInput{
		ActorID:          callerID(c),
		ImageID:          req.ImageID,
		Text:             req.Text,
		Keywords:         req.Keywords,
		GuidingQuestions: req.GuidingQuestions,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, gt)
}

// GetGroundTruth godoc
// @ID          getGroundTruth
// @Summary     Get a ground truth
// @Tags        GroundTruths
// @Produce     json
// @Param       id   path  string  true  "Ground truth id"
// @Success     200  {object}  domain.GroundTruth
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /groundtruths/{id} [get]
func (h *Handlers) GetGroundTruth(c *gin.Context) {
	gt, err := h.groundTruths.Find(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gt)
}

// GetImageGroundTruth godoc
// @ID          getImageGroundTruth
// @Summary     Get the ground truth of an image
// @Tags        GroundTruths
// @Produce     json
// @Param       id   path  string  true  "Image id"
// @Success     200  {object}  domain.GroundTruth
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /images/{id}/groundtruth [get]
func (h *Handlers) GetImageGroundTruth(c *gin.Context) {
	gt, err := h.groundTruths.FindByImage(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gt)
}

// UpdateGroundTruth godoc
// @ID          updateGroundTruth
// @Summary     Update a ground truth
// @Description Allowed within 24h of creation and while the image has no description.
// @Tags        GroundTruths
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caregiver or administrator id"
// @Param       id         path    string  true  "Ground truth id"
// @Param       body       body    handlers.UpdateGroundTruthRequest  true  "Fields to change"
// @Success     200  {object}  domain.GroundTruth
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /groundtruths/{id} [patch]
func (h *Handlers) UpdateGroundTruth(c *gin.Context) {
	var req UpdateGroundTruthRequest
	if err := decodeStrict(c, &req); err != nil {
		h.failBody(c, err, "solo se pueden modificar text, keywords y guidingQuestions")
		return
	}
	gt, err := h.groundTruths.Update(c.Request.Context(), callerID(c), c.Param("id"), services.GroundTruthUpdate{
		Text:             req.Text,
		Keywords:         req.Keywords,
		GuidingQuestions: req.GuidingQuestions,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gt)
}

// DeleteGroundTruth godoc
// @ID          deleteGroundTruth
// @Summary     Delete a ground truth
// @Tags        GroundTruths
// @Param       X-User-ID  header  string  true  "Caregiver or administrator id"
// @Param       id         path    string  true  "Ground truth id"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /groundtruths/{id} [delete]
func (h *Handlers) DeleteGroundTruth(c *gin.Context) {
	if err := h.groundTruths.Delete(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
