// Package httpapi wires the HTTP transport (Gin) to the application
// services, middleware and route handlers.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID and Caller: correlation id and X-User-ID
//  3. RedactingLogger: structured access logs without identifiers
//  4. Recovery: panics become the JSON 500 envelope
//  5. Body size limit
//  6. Metrics
//  7. Idempotency validator (before the rate limiter so replays bypass it)
//  8. Rate limiter per caller/IP
//  9. CORS, security headers and gzip
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/douremember/go-descriptions-backend/docs"
	"github.com/douremember/go-descriptions-backend/internal/config"
	"github.com/douremember/go-descriptions-backend/internal/http/handlers"
	"github.com/douremember/go-descriptions-backend/internal/http/middleware"
	"github.com/douremember/go-descriptions-backend/internal/repo"
	"github.com/douremember/go-descriptions-backend/internal/services"
)

// Deps are the collaborators the services are built from.
type Deps struct {
	DB        *gorm.DB
	Directory services.UserDirectory
	Store     services.ObjectStore
	Evaluator services.Evaluator
	Locker    services.SessionLocker
	Effects   services.EffectSink
	Notifier  services.Notifier
	// Now overrides the clock of the edit window; nil means time.Now.
	Now func() time.Time
}

// NewHandlers builds the services over deps and binds them to handlers.
func NewHandlers(deps Deps, cfg config.Config) *handlers.Handlers {
	store := repo.Store{}
	gate := &services.Gate{Directory: deps.Directory}
	window := services.TimeWindow{Window: cfg.EditWindow, Now: deps.Now}
	locker := deps.Locker
	if locker == nil {
		locker = services.NewLocalLocker()
	}

	sessions := services.NewSessionService(deps.DB, store, store, gate, deps.Effects, deps.Notifier)
	if cfg.MaxImages > 0 {
		sessions.MaxImages = cfg.MaxImages
	}
	descriptions := &services.DescriptionService{
		DB:                deps.DB,
		Descriptions:      store,
		Images:            store,
		GroundTruths:      store,
		Sessions:          sessions,
		Gate:              gate,
		Evaluator:         deps.Evaluator,
		Conclusions:       &services.ConclusionGenerator{Evaluator: deps.Evaluator},
		Locker:            locker,
		Effects:           deps.Effects,
		Notifier:          deps.Notifier,
		Idempotency:       store,
		LowScoreThreshold: cfg.LowScoreThreshold,
		IdempotencyTTL:    cfg.IdempotencyTTL,
	}
	images := &services.ImageService{
		DB:           deps.DB,
		Images:       store,
		Descriptions: store,
		Sessions:     sessions,
		Gate:         gate,
		Store:        deps.Store,
		Effects:      deps.Effects,
		Window:       window,
	}
	groundTruths := &services.GroundTruthService{
		DB:           deps.DB,
		GroundTruths: store,
		Images:       store,
		Descriptions: store,
		Gate:         gate,
		Window:       window,
	}

	h := handlers.New(images, groundTruths, sessions, descriptions)
	h.MaxUploadBytes = cfg.MaxUploadBytes
	return h
}

// RegisterRoutes attaches all middleware and endpoints to r and mounts the
// API under cfg.APIBasePath.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath
	if apiBase == "/" {
		apiBase = ""
	}

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Caller())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderUserID, "X-Directory-Token"},
	}))
	r.Use(middleware.Recovery())

	// Base64 uploads are a third larger than the decoded image.
	r.Use(limitBody(cfg.MaxUploadBytes + cfg.MaxUploadBytes/3 + 64<<10))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	submitRoute := apiBase + "/images/:id/descriptions"
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope: func(c *gin.Context) string {
				if c.Request.Method == http.MethodPost && c.FullPath() == submitRoute {
					return "descriptions:" + c.Param("id")
				}
				return ""
			},
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, deps.DB, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, err
			}
			return true, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByCallerOrIP())
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "ruta no encontrada")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "método no permitido")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := NewHandlers(deps, cfg)

	api := r.Group(apiBase)
	{
		// Images
		api.POST("/images", h.CreateImage)
		api.GET("/images/:id", h.GetImage)
		api.PATCH("/images/:id", h.UpdateImage)
		api.DELETE("/images/:id", h.DeleteImage)
		api.GET("/caregivers/:id/images", h.ListCaregiverImages)

		// Ground truths
		api.POST("/groundtruths", h.CreateGroundTruth)
		api.GET("/groundtruths/:id", h.GetGroundTruth)
		api.PATCH("/groundtruths/:id", h.UpdateGroundTruth)
		api.DELETE("/groundtruths/:id", h.DeleteGroundTruth)
		api.GET("/images/:id/groundtruth", h.GetImageGroundTruth)

		// Descriptions
		api.POST("/images/:id/descriptions", h.SubmitDescription)
		api.GET("/descriptions/:id", h.GetDescription)
		api.GET("/sessions/:id/descriptions", h.ListSessionDescriptions)

		// Sessions
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions/:id", h.GetSession)
		api.PATCH("/sessions/:id", h.UpdateSession)
		api.POST("/sessions/:id/complete", h.CompleteSession)

		// Patients
		api.GET("/patients/:id/sessions", h.ListPatientSessions)
		api.GET("/patients/:id/sessions/with-groundtruth", h.ListPatientSessionsWithGroundTruth)
		api.GET("/patients/:id/sessions/completed", h.ListCompletedSessions)
		api.GET("/patients/:id/sessions/count", h.CountPatientSessions)
		api.GET("/patients/:id/baseline", h.GetBaseline)
		api.GET("/active-patients", h.ListActivePatients)
	}
}

// corsMiddleware allows every origin when none are configured; credentials
// stay off either way since callers identify through X-User-ID.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderUserID, middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

// limitBody caps every request body at maxBytes; reads past the cap fail
// with *http.MaxBytesError.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
