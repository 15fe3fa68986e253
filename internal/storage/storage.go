// Package storage keeps uploaded image bytes in an object store and reports
// where they can be fetched. Two backends exist: Google Cloud Storage for
// deployments and an in-memory store for development and tests.
package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// formatOf maps an image content type to its short format name.
func formatOf(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return "jpg"
	case "image/svg+xml":
		return "svg"
	}
	if f, ok := strings.CutPrefix(ct, "image/"); ok && f != "" {
		return f
	}
	return "bin"
}

// objectKey builds a unique key under prefix, e.g. "images/2026/01/02/<uuid>.png".
func objectKey(prefix, format string, now time.Time) string {
	name := fmt.Sprintf("%s.%s", uuid.NewString(), format)
	return path.Join(strings.Trim(prefix, "/"), now.UTC().Format("2006/01/02"), name)
}

func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
