// Package services defines the business logic for images, ground truths,
// sessions and descriptions. This file centralizes the service-level error
// taxonomy so that every failure crossing the service boundary carries a
// machine-checkable Kind and a human-readable (Spanish) message.
//
// Translation into HTTP status codes happens in the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindInvalidState        Kind = "invalid_state"
	KindInvalidRole         Kind = "invalid_role"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUpstreamError       Kind = "upstream_error"
	KindValidation          Kind = "validation"
	KindInternal            Kind = "internal"
)

// Error is the typed failure returned by services.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind and message so that a sentinel wrapped
// with a cause still compares equal to the bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: cause}
}

func newErr(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Validationf builds a Validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure (usually a database error).
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Error interno", Err: err}
}

// KindOf returns the Kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Error interno"
}

// Not found.
var (
	ErrImageNotFound       = newErr(KindNotFound, "Imagen no encontrada")
	ErrSessionNotFound     = newErr(KindNotFound, "Sesión no encontrada")
	ErrGroundTruthNotFound = newErr(KindNotFound, "GroundTruth no encontrado")
	ErrDescriptionNotFound = newErr(KindNotFound, "Descripción no encontrada")
	ErrUserNotFound        = newErr(KindNotFound, "Usuario no encontrado")
	ErrBaselineNotFound    = newErr(KindNotFound, "El paciente no tiene sesiones")
)

// Conflicts: uniqueness and one-shot constraints.
var (
	// ErrDescriptionExists is returned when the image already has a description.
	ErrDescriptionExists = newErr(KindConflict, "La imagen ya tiene una descripción")

	// ErrGroundTruthExists is returned on a second ground truth for one image.
	ErrGroundTruthExists = newErr(KindConflict, "La imagen ya tiene un groundTruth")

	// ErrGroundTruthMissing is returned when a description targets an image
	// without a reference. It is not retryable.
	ErrGroundTruthMissing = newErr(KindConflict, "No se pudo acceder al groundTruth de la imagen")

	ErrImageAssigned = newErr(KindConflict, "La imagen ya está asignada a otra sesión")
	ErrSessionFull   = newErr(KindConflict, "La sesión ya tiene el máximo de imágenes")
)

// Invalid state.
var (
	ErrSessionCompleted     = newErr(KindInvalidState, "La sesión ya está completada")
	ErrImageNotInSession    = newErr(KindInvalidState, "La imagen no está asignada a ninguna sesión")
	ErrPatientMismatch      = newErr(KindInvalidState, "La sesión no pertenece a este paciente")
	ErrEditWindowExpired    = newErr(KindInvalidState, "Han pasado más de 24 horas; ya no se puede modificar")
	ErrImageDescribed       = newErr(KindInvalidState, "La imagen ya fue descrita por el paciente")
	ErrImageNotOwned        = newErr(KindInvalidState, "La imagen no pertenece a este cuidador")
	ErrNoPatients           = newErr(KindInvalidState, "El cuidador no tiene pacientes asociados")
	ErrPatientNotAssociated = newErr(KindInvalidState, "El paciente no está asociado a este cuidador")
	ErrCompleteViaUpdate    = newErr(KindInvalidState, "El estado completed solo se alcanza al puntuar la última descripción")
	ErrSessionMismatch      = newErr(KindInvalidState, "La imagen no pertenece a la sesión indicada")
	ErrSessionIncomplete    = newErr(KindInvalidState, "La sesión aún no tiene todas sus descripciones")
	ErrNoClinician          = newErr(KindInvalidState, "El paciente no tiene un médico asignado")
)

// Authorization.
var (
	ErrInvalidRole = newErr(KindInvalidRole, "Rol no autorizado para esta operación")
	ErrNotOwner    = newErr(KindInvalidRole, "Solo el cuidador de la sesión o un administrador puede modificarla")
)

// Upstream collaborators.
var (
	ErrDirectoryUnavailable = newErr(KindUpstreamUnavailable, "No se pudo consultar el directorio de usuarios")
	ErrEvaluatorUnavailable = newErr(KindUpstreamUnavailable, "El evaluador no devolvió ninguna respuesta")
	ErrEvaluatorResponse    = newErr(KindUpstreamError, "Respuesta inválida del evaluador")
	ErrAveragesUnavailable  = newErr(KindUpstreamUnavailable, "No se pudieron obtener los promedios de la sesión")
	ErrStorageUnavailable   = newErr(KindUpstreamUnavailable, "No se pudo subir la imagen")
)

// Validation.
var (
	ErrEmptyDescription = newErr(KindValidation, "La descripción está vacía")
	ErrEmptyImage       = newErr(KindValidation, "La imagen está vacía")
	ErrTooManyImages    = newErr(KindValidation, "Se superó el máximo de imágenes por sesión")
	ErrMissingTimestamp = newErr(KindValidation, "Marca de tiempo ausente o inválida")
)
