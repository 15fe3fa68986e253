// Image HTTP handlers.
//
//   - POST   /images                      (upload, multipart or base64 JSON)
//   - GET    /images/{id}
//   - GET    /caregivers/{id}/images      (paginated)
//   - PATCH  /images/{id}                 (attach/detach session)
//   - DELETE /images/{id}
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/douremember/go-descriptions-backend/internal/services"
)

const defaultMaxUpload = 10 << 20

// UploadImageRequest is the JSON form of an upload.
type UploadImageRequest struct {
	BufferBase64 string `json:"bufferBase64" binding:"required"`
	ContentType  string `json:"contentType" example:"image/png"`
	Filename     string `json:"filename" example:"parque.png"`
}

// UpdateImageRequest attaches the image to a session, or detaches it when
// sessionId is null.
type UpdateImageRequest struct {
	SessionID *string `json:"sessionId" example:"7c0e7b1e-3c1b-4a0e-9a53-2d0b8a0f0c11"`
}

func (h *Handlers) maxUpload() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return defaultMaxUpload
}

// CreateImage godoc
// @ID          createImage
// @Summary     Upload an image
// @Description Stores the bytes in the object store and records an unassigned image owned by the caller.
// @Tags        Images
// @Accept      json,mpfd
// @Produce     json
// @Param       X-User-ID  header    string  true   "Caregiver or administrator id"
// @Param       file       formData  file    false  "Image file (multipart)"
// @Param       body       body      handlers.UploadImageRequest  false  "Base64 payload"
// @Success     201  {object}  domain.Image
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     413  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /images [post]
func (h *Handlers) CreateImage(c *gin.Context) {
	in := services.UploadImageInput{ActorID: callerID(c)}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			h.failBody(c, err, "falta el archivo 'file'")
			return
		}
		if fh.Size > h.maxUpload() {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "La imagen supera el tamaño máximo")
			return
		}
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no se pudo leer el archivo")
			return
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, h.maxUpload()+1))
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no se pudo leer el archivo")
			return
		}
		in.Data = data
		in.ContentType = fh.Header.Get("Content-Type")
		in.Filename = fh.Filename
	} else {
		var req UploadImageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.failBody(c, err, "cuerpo JSON inválido")
			return
		}
		data, err := base64.StdEncoding.DecodeString(stripDataURI(req.BufferBase64))
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "bufferBase64 no es base64 válido")
			return
		}
		in.Data = data
		in.ContentType = req.ContentType
		in.Filename = req.Filename
	}
	if int64(len(in.Data)) > h.maxUpload() {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "La imagen supera el tamaño máximo")
		return
	}
	if in.ContentType == "application/octet-stream" {
		in.ContentType = ""
	}

	img, err := h.images.Upload(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, img)
}

// stripDataURI drops a "data:image/png;base64," prefix.
func stripDataURI(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

// failBody reports an unreadable body, distinguishing the size cap.
func (h *Handlers) failBody(c *gin.Context, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "La petición supera el tamaño máximo")
		return
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
}

// GetImage godoc
// @ID          getImage
// @Summary     Get an image
// @Tags        Images
// @Produce     json
// @Param       id   path  string  true  "Image id"
// @Success     200  {object}  domain.Image
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /images/{id} [get]
func (h *Handlers) GetImage(c *gin.Context) {
	img, err := h.images.Find(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, img)
}

// ListCaregiverImages godoc
// @ID          listCaregiverImages
// @Summary     List a caregiver's images (paginated)
// @Tags        Images
// @Produce     json
// @Param       id        path   string  true   "Caregiver id"
// @Param       page      query  int     false  "Page (1-based)"  default(1)
// @Param       pageSize  query  int     false  "Items per page"  default(20)
// @Success     200  {object}  handlers.ListResponse[domain.Image]
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /caregivers/{id}/images [get]
func (h *Handlers) ListCaregiverImages(c *gin.Context) {
	p, size := pageParams(c)
	items, total, err := h.images.ListByCaregiver(c.Request.Context(), c.Param("id"), p, size)
	if err != nil {
		failErr(c, err)
		return
	}
	page(c, items, total, p, size)
}

// UpdateImage godoc
// @ID          updateImage
// @Summary     Attach or detach an image
// @Description Only sessionId may change. null detaches; detaching fails once the session is completed or the image is described.
// @Tags        Images
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Owning caregiver or administrator id"
// @Param       id         path    string  true  "Image id"
// @Param       body       body    handlers.UpdateImageRequest  true  "Session assignment"
// @Success     200  {object}  domain.Image
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /images/{id} [patch]
func (h *Handlers) UpdateImage(c *gin.Context) {
	var req UpdateImageRequest
	if err := decodeStrict(c, &req); err != nil {
		h.failBody(c, err, "solo se puede modificar sessionId")
		return
	}
	img, err := h.images.AssignSession(c.Request.Context(), callerID(c), c.Param("id"), req.SessionID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, img)
}

// DeleteImage godoc
// @ID          deleteImage
// @Summary     Delete an image
// @Description Allowed within 24h of upload while the image has no description and its session is not completed.
// @Tags        Images
// @Param       X-User-ID  header  string  true  "Owning caregiver or administrator id"
// @Param       id         path    string  true  "Image id"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /images/{id} [delete]
func (h *Handlers) DeleteImage(c *gin.Context) {
	if err := h.images.Delete(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// decodeStrict decodes the JSON body rejecting fields outside dst.
func decodeStrict(c *gin.Context, dst any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
