// Command server runs the descriptions API.
//
// @title        DoURemember Descriptions API
// @version      1.0
// @description  Image-description sessions: images, ground truths, sessions, descriptions and scores.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/douremember/go-descriptions-backend/internal/config"
	"github.com/douremember/go-descriptions-backend/internal/directory"
	httpapi "github.com/douremember/go-descriptions-backend/internal/http"
	"github.com/douremember/go-descriptions-backend/internal/llm"
	"github.com/douremember/go-descriptions-backend/internal/notify"
	"github.com/douremember/go-descriptions-backend/internal/observability"
	"github.com/douremember/go-descriptions-backend/internal/redisx"
	"github.com/douremember/go-descriptions-backend/internal/repo"
	"github.com/douremember/go-descriptions-backend/internal/search"
	"github.com/douremember/go-descriptions-backend/internal/services"
	"github.com/douremember/go-descriptions-backend/internal/storage"
	"github.com/douremember/go-descriptions-backend/internal/sysutil"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	sysutil.InitLogger(os.Stderr, cfg.LogPretty, cfg.OTEL.ServiceName, sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version))
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	db, err := repo.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redisx.Connect(ctx, redisx.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	dir, err := buildDirectory(cfg, rdb)
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer closeStore()
	model, err := buildModel(cfg)
	if err != nil {
		return fmt.Errorf("evaluator: %w", err)
	}
	evaluator := services.NewEvaluationClient(model)
	evaluator.Timeout = cfg.Evaluator.Timeout

	notifier, err := buildNotifier(cfg, rdb)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	effects := services.NewSideEffectQueue(cfg.Notify.QueueSize, cfg.Notify.Workers, cfg.Notify.Timeout)

	var locker services.SessionLocker = services.NewLocalLocker()
	if rdb != nil {
		locker = redisx.NewLocker(rdb, cfg.Redis.Prefix)
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:        db,
		Directory: dir,
		Store:     store,
		Evaluator: evaluator,
		Locker:    locker,
		Effects:   effects,
		Notifier:  notifier,
	}, cfg)

	go purgeIdempotency(ctx, db, cfg.IdempotencyPurge)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.Database.Driver).
			Str("evaluator", cfg.Evaluator.Provider).Str("storage", cfg.Storage.Provider).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := effects.Close(sctx); err != nil {
		log.Warn().Err(err).Msg("side effects not drained")
	}
	return nil
}

func buildDirectory(cfg config.Config, rdb *redis.Client) (services.UserDirectory, error) {
	if cfg.Directory.BaseURL == "" {
		log.Warn().Str("file", cfg.Directory.File).Msg("using static user directory")
		return directory.LoadStatic(cfg.Directory.File)
	}
	var cache directory.Cache
	if rdb != nil {
		cache = redisx.NewCache(rdb, cfg.Redis.Prefix)
	}
	return directory.NewHTTPDirectory(directory.Config{
		BaseURL:  cfg.Directory.BaseURL,
		Timeout:  cfg.Directory.Timeout,
		CacheTTL: cfg.Directory.CacheTTL,
		Token:    cfg.Directory.Token,
	}, cache)
}

func buildStore(ctx context.Context, cfg config.Config) (services.ObjectStore, func(), error) {
	if cfg.Storage.Provider != "gcs" {
		return storage.NewMemoryStore(cfg.Storage.MemoryPublicURL), func() {}, nil
	}
	gcs, err := storage.NewGCSStore(ctx, storage.GCSConfig{
		Bucket:          cfg.Storage.GCSBucket,
		PublicBaseURL:   cfg.Storage.GCSPublicBase,
		Prefix:          "images",
		CredentialsFile: cfg.Storage.GCSCredentials,
		Endpoint:        cfg.Storage.GCSEndpoint,
	})
	if err != nil {
		return nil, nil, err
	}
	return gcs, func() { _ = gcs.Close() }, nil
}

func buildModel(cfg config.Config) (llm.Model, error) {
	if cfg.Evaluator.Provider != "openai" {
		return search.NewLocalModel(), nil
	}
	return llm.NewOpenAIModel(llm.OpenAIConfig{
		APIKey:  cfg.Evaluator.OpenAIAPIKey,
		Model:   cfg.Evaluator.OpenAIModel,
		BaseURL: cfg.Evaluator.OpenAIBaseURL,
		Timeout: cfg.Evaluator.Timeout,
	})
}

func buildNotifier(cfg config.Config, rdb *redis.Client) (services.Notifier, error) {
	sinks := notify.Multi{notify.Log{}}
	if cfg.Notify.SendGridAPIKey != "" {
		sg, err := notify.NewSendGrid(notify.SendGridConfig{
			APIKey:    cfg.Notify.SendGridAPIKey,
			FromEmail: cfg.Notify.SendGridFrom,
			FromName:  cfg.Notify.SendGridName,
			Timeout:   cfg.Notify.Timeout,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sg)
	}
	if rdb != nil {
		sinks = append(sinks, redisx.NewPublisher(rdb, cfg.Notify.Channel))
	}
	return sinks, nil
}

// purgeIdempotency deletes expired idempotency records every interval.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("idempotency purged")
			}
		}
	}
}
