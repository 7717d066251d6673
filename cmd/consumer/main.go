// The consumer drains the driver-locations topic and applies each ping
// through the dispatch engine, so the HTTP tier never blocks on Redis or
// Postgres while ingesting telemetry.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/horlami228/blaze/internal/cache"
	"github.com/horlami228/blaze/internal/config"
	"github.com/horlami228/blaze/internal/dispatch"
	"github.com/horlami228/blaze/internal/fare"
	"github.com/horlami228/blaze/internal/geo"
	"github.com/horlami228/blaze/internal/ingest"
	"github.com/horlami228/blaze/internal/logging"
	"github.com/horlami228/blaze/internal/models"
	"github.com/horlami228/blaze/internal/path"
	"github.com/horlami228/blaze/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total driver location messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	pingsApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_pings_applied_total",
		Help: "Total pings applied through the engine",
	})
	pingsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_pings_failed_total",
		Help: "Total pings that failed after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, pingsApplied, pingsFailed)
}

// locationRecorder is the slice of the engine the consumer needs, small
// enough to fake in tests.
type locationRecorder interface {
	RecordLocation(ctx context.Context, userID string, ping models.LocationPing) error
}

// nopNotifier stands in for the websocket hub, which lives in the HTTP
// process, not here.
type nopNotifier struct{}

func (nopNotifier) Notify(string, string, any) error { return nil }

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

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
		rc       *redis.Client
	)
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		registry = geo.NewRedisRegistry(rc, cfg.RedisGeoKey)
		locCache = cache.NewRedis(rc, cfg.Tracking.LocationTTL, cfg.Tracking.ThrottleTTL)
		buffer = path.NewRedisBuffer(rc)
		defer rc.Close()
	} else {
		logger.Warn("REDIS_ADDR not set, consumer state will not be shared")
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
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-process store")
		store = storage.NewMemoryStore()
	}

	recorder := path.NewRecorder(buffer, store,
		cfg.Tracking.PathMaxSamples, cfg.Tracking.PathFlushBatch, cfg.Tracking.PathTTL, logger)
	estimator := fare.NewEstimator(cfg.Fare)
	engine := dispatch.NewEngine(store, registry, locCache, recorder, estimator, nopNotifier{}, cfg.Dispatch, logger)

	// metrics and health endpoints
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if rc != nil {
				if err := rc.Ping(r.Context()).Err(); err != nil {
					http.Error(w, "redis not ready", 503)
					return
				}
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer r.Close()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", brokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Error("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var env ingest.PingEnvelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "error", err)
			continue
		}

		if err := applyPingWithRetry(ctx, engine, env, 3, 200*time.Millisecond); err != nil {
			pingsFailed.Inc()
			logger.Error("ping apply failed", "user_id", env.UserID, "error", err)
			continue
		}
		pingsApplied.Inc()
	}
}

// applyPingWithRetry retries transient dependency failures with an
// exponential backoff. Domain errors (unknown driver, invalid state) are
// permanent and surface immediately.
func applyPingWithRetry(ctx context.Context, rec locationRecorder, env ingest.PingEnvelope, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = rec.RecordLocation(ctx, env.UserID, env.Ping)
		if err == nil {
			return nil
		}
		var dep *dispatch.DependencyError
		if !errors.As(err, &dep) {
			return err
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
