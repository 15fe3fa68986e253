package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// GCSConfig configures a GCSStore.
type GCSConfig struct {
	Bucket string
	// PublicBaseURL prefixes object keys to build the image URL. Defaults to
	// https://storage.googleapis.com/<bucket>.
	PublicBaseURL   string
	Prefix          string
	CredentialsFile string
	// Endpoint overrides the API endpoint (emulators).
	Endpoint string
}

// GCSStore uploads images to a Cloud Storage bucket.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
	prefix  string
	now     func() time.Time
}

// NewGCSStore creates the storage client. Credentials come from
// CredentialsFile when set, otherwise from Application Default Credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs: bucket required")
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	base := cfg.PublicBaseURL
	if base == "" {
		base = "https://storage.googleapis.com/" + cfg.Bucket
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "images"
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, baseURL: base, prefix: prefix, now: time.Now}, nil
}

// Upload writes data under a fresh key.
func (s *GCSStore) Upload(ctx context.Context, data []byte, contentType, name string) (*domain.StoredObject, error) {
	format := formatOf(contentType)
	key := objectKey(s.prefix, format, s.now())

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000, immutable"
	if name != "" {
		w.Metadata = map[string]string{"original-name": name}
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("gcs: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gcs: close %s: %w", key, err)
	}

	obj := &domain.StoredObject{
		SecureURL: publicURL(s.baseURL, key),
		PublicID:  key,
		Format:    format,
		CreatedAt: s.now().UTC(),
	}
	if attrs := w.Attrs(); attrs != nil {
		obj.AssetID = strconv.FormatInt(attrs.Generation, 10)
		if !attrs.Created.IsZero() {
			obj.CreatedAt = attrs.Created.UTC()
		}
	}
	return obj, nil
}

// Delete removes the object. A missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, publicID string) error {
	err := s.client.Bucket(s.bucket).Object(publicID).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs: delete %s: %w", publicID, err)
	}
	return nil
}

// Close releases the client.
func (s *GCSStore) Close() error { return s.client.Close() }
