package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/douremember/go-descriptions-backend/internal/config"
	"github.com/douremember/go-descriptions-backend/internal/directory"
	"github.com/douremember/go-descriptions-backend/internal/domain"
	"github.com/douremember/go-descriptions-backend/internal/http/middleware"
	"github.com/douremember/go-descriptions-backend/internal/notify"
	"github.com/douremember/go-descriptions-backend/internal/repo"
	"github.com/douremember/go-descriptions-backend/internal/search"
	"github.com/douremember/go-descriptions-backend/internal/services"
	"github.com/douremember/go-descriptions-backend/internal/storage"
)

type inlineEffects struct{}

func (inlineEffects) Enqueue(e services.SideEffect) { _ = e.Run(context.Background()) }

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
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

func testConfig() config.Config {
	return config.Config{
		APIBasePath:       "/api/v1",
		MaxUploadBytes:    1 << 20,
		EditWindow:        24 * time.Hour,
		LowScoreThreshold: 0.45,
		MaxImages:         3,
		RateRPS:           1000,
		RateBurst:         1000,
		IdempotencyTTL:    time.Hour,
		OTEL:              config.OTELConfig{ServiceName: "test-svc"},
	}
}

func testDeps(t *testing.T) Deps {
	nop := zerolog.Nop()
	return Deps{
		DB: newTestDB(t),
		Directory: directory.NewStatic(
			domain.User{ID: "cg1", Role: domain.RoleCaregiver, PatientIDs: []string{"p1"}},
			domain.User{ID: "p1", Role: domain.RolePatient},
		),
		Store:     storage.NewMemoryStore("https://cdn.test"),
		Evaluator: services.NewEvaluationClient(search.NewLocalModel()),
		Effects:   inlineEffects{},
		Notifier:  notify.Log{Logger: &nop},
	}
}

func newRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, testDeps(t), cfg)
	return r
}

func call(r *gin.Engine, method, path, user string, body any, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Host = "api.local"
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
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newRouter(t, testConfig())

	w := call(r, http.MethodGet, "/health", "", nil, "Origin", "http://web.local")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// Requests without Origin are not CORS requests.
	w = call(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health without Origin = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no ACAO without Origin, got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}

	w = call(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("http_requests_total")) {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	w = call(r, http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound || !bytes.Contains(w.Body.Bytes(), []byte(`"code":"not_found"`)) {
		t.Fatalf("GET /nope: %d %s", w.Code, w.Body.String())
	}

	w = call(r, http.MethodPost, "/health", "", nil)
	if w.Code != http.StatusMethodNotAllowed || !bytes.Contains(w.Body.Bytes(), []byte(`"code":"method_not_allowed"`)) {
		t.Fatalf("POST /health: %d %s", w.Code, w.Body.String())
	}

	// Swagger is off unless enabled.
	if w = call(r, http.MethodGet, "/swagger/doc.json", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_Swagger(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://web.local"}}
	cfg.SwaggerEnabled = true
	r := newRouter(t, cfg)

	w := call(r, http.MethodGet, "/health", "", nil, "Origin", "http://web.local")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://web.local" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	w = call(r, http.MethodGet, "/health", "", nil, "Origin", "http://evil.local")
	if w.Code != http.StatusForbidden || w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin: %d ACAO=%q", w.Code, w.Header().Get("Access-Control-Allow-Origin"))
	}
	w = call(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("no Origin: %d ACAO=%q", w.Code, w.Header().Get("Access-Control-Allow-Origin"))
	}

	w = call(r, http.MethodGet, "/swagger/doc.json", "", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("/images/{id}/descriptions")) {
		t.Fatalf("swagger doc: %d", w.Code)
	}
}

func TestRegisterRoutes_DescriptionFlowWithReplay(t *testing.T) {
	r := newRouter(t, testConfig())
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{1}, 32)...)

	w := call(r, http.MethodPost, "/api/v1/images", "cg1", map[string]string{
		"bufferBase64": base64.StdEncoding.EncodeToString(png),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var img domain.Image
	_ = json.Unmarshal(w.Body.Bytes(), &img)

	w = call(r, http.MethodPost, "/api/v1/groundtruths", "cg1", map[string]any{
		"imageId": img.ID, "text": "Un gato duerme en el sofá", "keywords": []string{"gato", "sofá"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("ground truth: %d %s", w.Code, w.Body.String())
	}

	w = call(r, http.MethodPost, "/api/v1/sessions", "cg1", map[string]any{"imageIds": []string{img.ID}})
	if w.Code != http.StatusCreated {
		t.Fatalf("session: %d %s", w.Code, w.Body.String())
	}

	path := "/api/v1/images/" + img.ID + "/descriptions"
	body := map[string]string{"text": "Un gato dormido en un sofá"}
	w = call(r, http.MethodPost, path, "p1", body, middleware.HeaderIdempotencyKey, "k-1")
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	w = call(r, http.MethodPost, path, "p1", body, middleware.HeaderIdempotencyKey, "k-1")
	if w.Code != http.StatusOK {
		t.Fatalf("replay: %d %s", w.Code, w.Body.String())
	}

	// Not mounted at the root.
	if w = call(r, http.MethodGet, "/images/"+img.ID, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("route outside base path: %d", w.Code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func TestRegisterRoutes_IdempotencyLookupError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deps := testDeps(t)
	RegisterRoutes(r, deps, testConfig())

	sqlDB, err := deps.DB.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	// The lookup fails; the request still reaches the handler, which reports
	// the database error as a 500 envelope.
	w := call(r, http.MethodPost, "/api/v1/images/x/descriptions", "p1",
		map[string]string{"text": "hola"}, middleware.HeaderIdempotencyKey, "force-error")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d %s", w.Code, w.Body.String())
	}
}
