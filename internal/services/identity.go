package services

import (
	"context"
	"errors"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// UserDirectory resolves user ids against the external user directory.
// Implementations return domain.ErrUserNotFound on a miss.
type UserDirectory interface {
	ResolveUser(ctx context.Context, id string) (*domain.User, error)
}

// Authorization rules over roles.

// CanCreateSession reports whether role may create sessions.
func CanCreateSession(r domain.Role) bool {
	return r == domain.RoleCaregiver || r == domain.RoleAdministrator
}

// CanUploadImage reports whether role may upload images and author ground truths.
func CanUploadImage(r domain.Role) bool {
	return r == domain.RoleCaregiver || r == domain.RoleAdministrator
}

// CanSubmitDescription reports whether role may describe images.
func CanSubmitDescription(r domain.Role) bool {
	return r == domain.RolePatient
}

// CanManageSession reports whether role may modify a session; caregivers only
// their own.
func CanManageSession(r domain.Role, isOwner bool) bool {
	switch r {
	case domain.RoleAdministrator:
		return true
	case domain.RoleCaregiver:
		return isOwner
	}
	return false
}

// CanListSessions reports whether role may read session lists of a patient.
func CanListSessions(r domain.Role) bool {
	return r.Valid()
}

// CanReviewSession reports whether role may write doctor notes.
func CanReviewSession(r domain.Role) bool {
	return r == domain.RoleClinician || r == domain.RoleAdministrator
}

// Gate resolves identities and asserts role membership.
type Gate struct {
	Directory UserDirectory
}

// Resolve looks a user up. A miss yields ErrUserNotFound; any other directory
// failure yields ErrDirectoryUnavailable.
func (g *Gate) Resolve(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	u, err := g.Directory.ResolveUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrUserNotFound.Wrap(err)
		}
		return nil, ErrDirectoryUnavailable.Wrap(err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// RequireRole resolves userID and fails with ErrInvalidRole unless the user
// holds one of allowed.
func (g *Gate) RequireRole(ctx context.Context, userID string, allowed ...domain.Role) (*domain.User, error) {
	ctx, span := otel.Tracer("services/Gate").Start(ctx, "RequireRole",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	u, err := g.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.role", string(u.Role)))
	if !slices.Contains(allowed, u.Role) {
		return nil, ErrInvalidRole
	}
	return u, nil
}
