// Package handlers implements the HTTP endpoints of the descriptions API.
//
// Handlers stay thin: they bind input, take the caller id from the
// X-User-ID header, call a service and translate the result. All failures
// use the ErrorResponse envelope; lists use ListResponse.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/douremember/go-descriptions-backend/internal/http/middleware"
	"github.com/douremember/go-descriptions-backend/internal/utils"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code
	Code string `json:"code" example:"not_found"`
	// Human-readable message, in Spanish
	Message string `json:"message" example:"Sesión no encontrada"`
}

// ListResponse is a page of items with pagination metadata.
type ListResponse[T any] struct {
	Data []T            `json:"data"`
	Meta utils.PageMeta `json:"meta"`
}

func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	writeError(c, status, code, msg)
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail, used by router fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func logErr(c *gin.Context, status int, err error) {
	middleware.LoggerFrom(c).Error().Err(err).Int("status", status).Msg("service error")
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func page[T any](c *gin.Context, items []T, total int64, pageNum, pageSize int) {
	if items == nil {
		items = []T{}
	}
	ok(c, http.StatusOK, ListResponse[T]{Data: items, Meta: utils.NewPageMeta(total, pageNum, pageSize)})
}
