package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/horlami228/blaze/internal/cache"
	"github.com/horlami228/blaze/internal/config"
	"github.com/horlami228/blaze/internal/dispatch"
	"github.com/horlami228/blaze/internal/fare"
	"github.com/horlami228/blaze/internal/geo"
	"github.com/horlami228/blaze/internal/httpapi"
	"github.com/horlami228/blaze/internal/ingest"
	"github.com/horlami228/blaze/internal/logging"
	"github.com/horlami228/blaze/internal/notify"
	"github.com/horlami228/blaze/internal/path"
	"github.com/horlami228/blaze/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var (
		registry geo.Registry
		locCache cache.LocationCache
		buffer   path.Buffer
	)
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		registry = geo.NewRedisRegistry(rc, cfg.RedisGeoKey)
		locCache = cache.NewRedis(rc, cfg.Tracking.LocationTTL, cfg.Tracking.ThrottleTTL)
		buffer = path.NewRedisBuffer(rc)
		defer rc.Close()
	} else {
		logger.Warn("REDIS_ADDR not set, using in-process registry and cache")
		registry = geo.NewIndex()
		locCache = cache.NewMemory(cfg.Tracking.LocationTTL, cfg.Tracking.ThrottleTTL)
		buffer = path.NewMemoryBuffer()
	}

	var store storage.Store
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		if cfg.RunMigrations {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql")); err == nil {
				if _, err := ps.DB().Exec(string(b)); err != nil {
					logger.Error("migration failed", "error", err)
					os.Exit(1)
				}
				logger.Info("migration applied", "file", "001_init.sql")
			} else {
				logger.Warn("migration file not found", "error", err)
			}
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-process store")
		store = storage.NewMemoryStore()
	}

	recorder := path.NewRecorder(buffer, store,
		cfg.Tracking.PathMaxSamples, cfg.Tracking.PathFlushBatch, cfg.Tracking.PathTTL, logger)
	estimator := fare.NewEstimator(cfg.Fare)
	hub := notify.NewHub(logger)
	engine := dispatch.NewEngine(store, registry, locCache, recorder, estimator, hub, cfg.Dispatch, logger)

	var producer *ingest.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(engine, hub, producer, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("dispatch server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
