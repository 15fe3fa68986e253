// Package directory resolves user identities from the external user
// directory. Users are never stored locally; lookups may be cached.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// Cache stores encoded users between lookups.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config configures an HTTP directory client.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	// Token, when set, is sent as a Bearer credential.
	Token string
}

// HTTPDirectory looks users up with GET {BaseURL}/users/{id}.
type HTTPDirectory struct {
	baseURL string
	token   string
	client  *http.Client
	cache   Cache
	ttl     time.Duration
	group   singleflight.Group
}

// NewHTTPDirectory builds a client. cache may be nil.
func NewHTTPDirectory(cfg Config, cache Cache) (*HTTPDirectory, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("directory: base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("directory: base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &HTTPDirectory{
		baseURL: base,
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
		ttl:     ttl,
	}, nil
}

// wireUser is the directory's JSON shape.
type wireUser struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	PatientIDs  []string `json:"patientIds"`
	ClinicianID string   `json:"clinicianId"`
}

func (w wireUser) toDomain() (*domain.User, error) {
	role, err := domain.ParseRole(w.Role)
	if err != nil {
		return nil, err
	}
	return &domain.User{
		ID:           w.ID,
		Role:         role,
		DisplayName:  w.DisplayName,
		ContactEmail: w.Email,
		PatientIDs:   w.PatientIDs,
		ClinicianID:  w.ClinicianID,
	}, nil
}

// ResolveUser returns the user with id, or domain.ErrUserNotFound.
// Concurrent lookups of the same id share one request.
func (d *HTTPDirectory) ResolveUser(ctx context.Context, id string) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrUserNotFound
	}
	if u, ok := d.cached(ctx, id); ok {
		return u, nil
	}

	v, err, _ := d.group.Do(id, func() (any, error) {
		w, err := d.fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		d.store(ctx, id, w)
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(wireUser).toDomain()
}

func (d *HTTPDirectory) fetch(ctx context.Context, id string) (wireUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/users/"+url.PathEscape(id), nil)
	if err != nil {
		return wireUser{}, err
	}
	req.Header.Set("Accept", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return wireUser{}, fmt.Errorf("directory: get user %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return wireUser{}, domain.ErrUserNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return wireUser{}, fmt.Errorf("directory: get user %s: status %d: %s", id, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var w wireUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&w); err != nil {
		return wireUser{}, fmt.Errorf("directory: decode user %s: %w", id, err)
	}
	if w.ID == "" {
		w.ID = id
	}
	return w, nil
}

func (d *HTTPDirectory) cached(ctx context.Context, id string) (*domain.User, bool) {
	if d.cache == nil {
		return nil, false
	}
	b, ok, err := d.cache.Get(ctx, "user:"+id)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", id).Msg("directory cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var w wireUser
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, false
	}
	u, err := w.toDomain()
	if err != nil {
		return nil, false
	}
	return u, true
}

func (d *HTTPDirectory) store(ctx context.Context, id string, w wireUser) {
	if d.cache == nil {
		return
	}
	b, err := json.Marshal(w)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, "user:"+id, b, d.ttl); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", id).Msg("directory cache write failed")
	}
}
