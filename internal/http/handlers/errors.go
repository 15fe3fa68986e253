// Package handlers – error codes.
//
// Every error response carries one of these codes next to the HTTP status.
// Service failures are translated by statusFor; the code is the service
// error kind so clients can branch on it.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "La imagen ya tiene una descripción"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/douremember/go-descriptions-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeInternal         = "internal_error"
)

// statusFor maps a service error kind to its HTTP status.
func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict, services.KindInvalidState:
		return http.StatusConflict
	case services.KindInvalidRole:
		return http.StatusForbidden
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case services.KindUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// codeFor is the envelope code of a service error kind.
func codeFor(kind services.Kind) string {
	if kind == services.KindInternal {
		return ErrCodeInternal
	}
	return string(kind)
}

// failErr writes the envelope for a service error. Causes of 5xx errors are
// logged, never returned.
func failErr(c *gin.Context, err error) {
	kind := services.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logErr(c, status, err)
	}
	writeError(c, status, codeFor(kind), services.MessageOf(err))
}
