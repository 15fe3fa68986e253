package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	r := newEngine(RequestID())
	var seen string
	r.GET("/x", func(c *gin.Context) { seen = c.GetString(requestIDKey) })

	w := do(t, r, http.MethodGet, "/x", nil)
	if got := w.Header().Get(requestIDHeader); got == "" || got != seen {
		t.Fatalf("generated id = %q, ctx = %q", got, seen)
	}
	w = do(t, r, http.MethodGet, "/x", map[string]string{"X-Request-ID": "abc"})
	if w.Header().Get(requestIDHeader) != "abc" || seen != "abc" {
		t.Fatalf("propagated id = %q", w.Header().Get(requestIDHeader))
	}
}

func TestCaller(t *testing.T) {
	r := newEngine(Caller())
	var id string
	r.GET("/x", func(c *gin.Context) { id = CallerID(c) })

	do(t, r, http.MethodGet, "/x", map[string]string{HeaderUserID: "  cg1 "})
	if id != "cg1" {
		t.Fatalf("caller = %q", id)
	}
	do(t, r, http.MethodGet, "/x", nil)
	if id != "" {
		t.Fatalf("caller without header = %q", id)
	}
}

func TestRecovery_WritesEnvelope(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	r := newEngine(RequestID(), Recovery())
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := do(t, r, http.MethodGet, "/boom", map[string]string{"X-Request-ID": "rid-1"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["request_id"] != "rid-1" || body["code"] != "internal_error" {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestRecovery_AfterWrite(t *testing.T) {
	r := newEngine(Recovery())
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})
	w := do(t, r, http.MethodGet, "/late", nil)
	if w.Body.String() != "partial" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestLoggerFrom_Fallback(t *testing.T) {
	c, _ := gin.CreateTestContext(nil)
	if LoggerFrom(c) == nil {
		t.Fatalf("nil logger")
	}
}
