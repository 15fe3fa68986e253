package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/douremember/go-descriptions-backend/internal/directory"
	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/http/middleware"
	"github.com/douremember/go-descriptions-backend/internal/repo"
	"github.com/douremember/go-descriptions-backend/internal/search"
	"github.com/douremember/go-descriptions-backend/internal/services"
	"github.com/douremember/go-descriptions-backend/internal/storage"
)

// pngBytes sniffs as image/png.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x42}, 64)...)

type inlineEffects struct{}

func (inlineEffects) Enqueue(e services.SideEffect) { _ = e.Run(context.Background()) }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

type testServer struct {
	t     *testing.T
	db    *gorm.DB
	r     *gin.Engine
	store *storage.MemoryStore
	notes *recordingNotifier
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		t:     t,
		db:    newTestDB(t),
		r:     gin.New(),
		store: storage.NewMemoryStore("https://cdn.test"),
		notes: &recordingNotifier{},
	}
	dir := directory.NewStatic(
		domain.User{ID: "admin1", Role: domain.RoleAdministrator, DisplayName: "Admin"},
		domain.User{ID: "cg1", Role: domain.RoleCaregiver, DisplayName: "Carmen", PatientIDs: []string{"p1"}},
		domain.User{ID: "cg2", Role: domain.RoleCaregiver, DisplayName: "Luis", PatientIDs: []string{"p2"}},
		domain.User{ID: "p1", Role: domain.RolePatient, DisplayName: "Pilar", ContactEmail: "pilar@example.com", ClinicianID: "doc1"},
		domain.User{ID: "p2", Role: domain.RolePatient, DisplayName: "Pedro"},
		domain.User{ID: "doc1", Role: domain.RoleClinician, DisplayName: "Dra. Ruiz", ContactEmail: "ruiz@example.com"},
	)
	store := repo.Store{}
	gate := &services.Gate{Directory: dir}
	window := services.TimeWindow{Window: services.DefaultEditWindow}
	evaluator := services.NewEvaluationClient(search.NewLocalModel())

	sessions := services.NewSessionService(ts.db, store, store, gate, inlineEffects{}, ts.notes)
	descriptions := &services.DescriptionService{
		DB: ts.db, Descriptions: store, Images: store, GroundTruths: store,
		Sessions: sessions, Gate: gate, Evaluator: evaluator,
		Conclusions: &services.ConclusionGenerator{Evaluator: evaluator},
		Locker:      services.NewLocalLocker(),
		Effects:     inlineEffects{}, Notifier: ts.notes, Idempotency: store,
	}
	images := &services.ImageService{
		DB: ts.db, Images: store, Descriptions: store, Sessions: sessions,
		Gate: gate, Store: ts.store, Effects: inlineEffects{}, Window: window,
	}
	groundTruths := &services.GroundTruthService{
		DB: ts.db, GroundTruths: store, Images: store, Descriptions: store,
		Gate: gate, Window: window,
	}
	h := New(images, groundTruths, sessions, descriptions)
	h.MaxUploadBytes = 1 << 10

	ts.r.Use(middleware.RequestID(), middleware.Caller())
	ts.r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	ts.r.POST("/images", h.CreateImage)
	ts.r.GET("/images/:id", h.GetImage)
	ts.r.PATCH("/images/:id", h.UpdateImage)
	ts.r.DELETE("/images/:id", h.DeleteImage)
	ts.r.GET("/caregivers/:id/images", h.ListCaregiverImages)
	ts.r.POST("/groundtruths", h.CreateGroundTruth)
	ts.r.GET("/groundtruths/:id", h.GetGroundTruth)
	ts.r.PATCH("/groundtruths/:id", h.UpdateGroundTruth)
	ts.r.DELETE("/groundtruths/:id", h.DeleteGroundTruth)
	ts.r.GET("/images/:id/groundtruth", h.GetImageGroundTruth)
	ts.r.POST("/images/:id/descriptions", h.SubmitDescription)
	ts.r.GET("/descriptions/:id", h.GetDescription)
	ts.r.GET("/sessions/:id/descriptions", h.ListSessionDescriptions)
	ts.r.POST("/sessions", h.CreateSession)
	ts.r.GET("/sessions/:id", h.GetSession)
	ts.r.PATCH("/sessions/:id", h.UpdateSession)
	ts.r.POST("/sessions/:id/complete", h.CompleteSession)
	ts.r.GET("/patients/:id/sessions", h.ListPatientSessions)
	ts.r.GET("/patients/:id/sessions/with-groundtruth", h.ListPatientSessionsWithGroundTruth)
	ts.r.GET("/patients/:id/sessions/completed", h.ListCompletedSessions)
	ts.r.GET("/patients/:id/sessions/count", h.CountPatientSessions)
	ts.r.GET("/patients/:id/baseline", h.GetBaseline)
	ts.r.GET("/active-patients", h.ListActivePatients)
	return ts
}

// do sends body (JSON-encoded unless it is a string) as user.
func (ts *testServer) do(method, path, user string, body any, headers ...string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			ts.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body %s)", v, err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status=%d want %d body=%s", w.Code, want, w.Body.String())
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	expectStatus(t, w, status)
	er := decode[ErrorResponse](t, w)
	if er.Code != code || er.Message == "" || er.RequestID == "" {
		t.Fatalf("unexpected envelope: %+v", er)
	}
	return er
}

// uploadImage uploads a PNG through the JSON form as user.
func (ts *testServer) uploadImage(user string) domain.Image {
	ts.t.Helper()
	w := ts.do(http.MethodPost, "/images", user, UploadImageRequest{
		BufferBase64: base64.StdEncoding.EncodeToString(pngBytes),
		ContentType:  "image/png",
		Filename:     "parque.png",
	})
	expectStatus(ts.t, w, http.StatusCreated)
	return decode[domain.Image](ts.t, w)
}

// describedImage uploads an image and gives it a ground truth.
func (ts *testServer) describedImage(user string) domain.Image {
	ts.t.Helper()
	img := ts.uploadImage(user)
	w := ts.do(http.MethodPost, "/groundtruths", user, CreateGroundTruthRequest{
		ImageID:          img.ID,
		Text:             "Un perro juega en el parque con una pelota roja",
		Keywords:         []string{"perro", "pelota"},
		GuidingQuestions: []string{"¿Qué animal ves?"},
	})
	expectStatus(ts.t, w, http.StatusCreated)
	return img
}

// fullSession creates a session for p1 by cg1 with three described images.
func (ts *testServer) fullSession() (domain.Session, []domain.Image) {
	ts.t.Helper()
	imgs := []domain.Image{ts.describedImage("cg1"), ts.describedImage("cg1"), ts.describedImage("cg1")}
	w := ts.do(http.MethodPost, "/sessions", "cg1", CreateSessionRequest{
		ImageIDs: []string{imgs[0].ID, imgs[1].ID, imgs[2].ID},
	})
	expectStatus(ts.t, w, http.StatusCreated)
	return decode[domain.Session](ts.t, w), imgs
}

