package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// Static is a fixed in-memory directory, loaded from a JSON file in
// development.
type Static struct {
	users map[string]domain.User
}

// NewStatic indexes users by ID.
func NewStatic(users ...domain.User) *Static {
	m := make(map[string]domain.User, len(users))
	for _, u := range users {
		m[u.ID] = u
	}
	return &Static{users: m}
}

// LoadStatic reads a JSON array of users in the directory's wire format.
func LoadStatic(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read %s: %w", path, err)
	}
	var ws []wireUser
	if err := json.Unmarshal(b, &ws); err != nil {
		return nil, fmt.Errorf("directory: parse %s: %w", path, err)
	}
	users := make([]domain.User, 0, len(ws))
	for _, w := range ws {
		u, err := w.toDomain()
		if err != nil {
			return nil, fmt.Errorf("directory: user %s: %w", w.ID, err)
		}
		users = append(users, *u)
	}
	return NewStatic(users...), nil
}

// ResolveUser returns a copy of the user.
func (s *Static) ResolveUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.PatientIDs = append([]string(nil), u.PatientIDs...)
	return &u, nil
}
