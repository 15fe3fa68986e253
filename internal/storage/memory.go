package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// MemoryStore keeps objects in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
	baseURL string
	seq     int
}

type memObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore returns an empty store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://images"
	}
	return &MemoryStore{objects: map[string]memObject{}, baseURL: baseURL}
}

// Upload copies data into the store.
func (s *MemoryStore) Upload(ctx context.Context, data []byte, contentType, _ string) (*domain.StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	format := formatOf(contentType)
	key := objectKey("images", format, now)

	s.mu.Lock()
	s.seq++
	s.objects[key] = memObject{data: append([]byte(nil), data...), contentType: contentType}
	seq := s.seq
	s.mu.Unlock()

	return &domain.StoredObject{
		SecureURL: publicURL(s.baseURL, key),
		AssetID:   fmt.Sprintf("mem-%d", seq),
		PublicID:  key,
		Format:    format,
		CreatedAt: now,
	}, nil
}

// Delete removes an object if present.
func (s *MemoryStore) Delete(_ context.Context, publicID string) error {
	s.mu.Lock()
	delete(s.objects, publicID)
	s.mu.Unlock()
	return nil
}

// Get returns a stored object's bytes and content type.
func (s *MemoryStore) Get(publicID string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[publicID]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), o.data...), o.contentType, true
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
