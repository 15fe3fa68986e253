package repo

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/douremember/go-descriptions-backend/internal/domain"
)

// newTestDB opens a private in-memory database. Pass migrate=false to get an
// empty schema for error-path tests.
func newTestDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection keeps the shared-cache database alive and serialises writers.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedImage(t *testing.T, db *gorm.DB, id, caregiverID string, sessionID *string, uploaded time.Time) *domain.Image {
	t.Helper()
	img := &domain.Image{ID: id, URL: "https://img/" + id, UploadedAt: uploaded, CaregiverID: caregiverID, SessionID: sessionID}
	if err := db.Create(img).Error; err != nil {
		t.Fatalf("seed image %s: %v", id, err)
	}
	return img
}

func seedSession(t *testing.T, db *gorm.DB, id, patientID string, created time.Time) *domain.Session {
	t.Helper()
	s := &domain.Session{ID: id, PatientID: patientID, CaregiverID: "cg1", CreatedAt: created, UpdatedAt: created, State: domain.SessionPending}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed session %s: %v", id, err)
	}
	return s
}

func strptr(s string) *string { return &s }
