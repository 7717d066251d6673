package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the dispatch processes.
// Values are primarily loaded from environment variables with sane defaults
// so the binaries can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	PGDSN string

	Fare     FareConfig
	Dispatch DispatchConfig
	Tracking TrackingConfig

	LogLevel      string
	RunMigrations bool
}

// FareConfig holds the quote constants. RoadFactor inflates the
// straight-line distance to approximate road distance.
type FareConfig struct {
	BaseFare   float64
	PerKmRate  float64
	RoadFactor float64
}

// DispatchConfig tunes the nearest-driver search.
type DispatchConfig struct {
	// RadiusTiersKm are tried in order; the last tier is the maximum
	// search radius beyond which a request gets no driver.
	RadiusTiersKm []float64
	// FreshnessWindow bounds how stale a driver's last location sample
	// may be for the driver to go online.
	FreshnessWindow time.Duration
}

// TrackingConfig tunes the location cache and path recorder.
type TrackingConfig struct {
	LocationTTL    time.Duration
	ThrottleTTL    time.Duration
	PathTTL        time.Duration
	PathMaxSamples int
	PathFlushBatch int
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "available_drivers",
		KafkaTopic:      "driver-locations",
		KafkaGroup:      "blaze-location-consumer",
		Fare: FareConfig{
			BaseFare:   500,
			PerKmRate:  150,
			RoadFactor: 1.25,
		},
		Dispatch: DispatchConfig{
			RadiusTiersKm:   []float64{3, 5, 10, 15},
			FreshnessWindow: 5 * time.Minute,
		},
		Tracking: TrackingConfig{
			LocationTTL:    1000 * time.Second,
			ThrottleTTL:    30 * time.Second,
			PathTTL:        3600 * time.Second,
			PathMaxSamples: 1000,
			PathFlushBatch: 20,
		},
		LogLevel: "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setFloatFromEnv(&cfg.Fare.BaseFare, "FARE_BASE", &errs)
	setFloatFromEnv(&cfg.Fare.PerKmRate, "FARE_PER_KM", &errs)
	setFloatFromEnv(&cfg.Fare.RoadFactor, "FARE_ROAD_FACTOR", &errs)

	if tiers := os.Getenv("DISPATCH_RADIUS_TIERS_KM"); tiers != "" {
		parsed, err := parseFloats(tiers)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid DISPATCH_RADIUS_TIERS_KM: %w", err))
		} else {
			cfg.Dispatch.RadiusTiersKm = parsed
		}
	}
	setDurationFromEnv(&cfg.Dispatch.FreshnessWindow, "DISPATCH_FRESHNESS_WINDOW", &errs)

	setDurationFromEnv(&cfg.Tracking.LocationTTL, "TRACKING_LOCATION_TTL", &errs)
	setDurationFromEnv(&cfg.Tracking.ThrottleTTL, "TRACKING_THROTTLE_TTL", &errs)
	setDurationFromEnv(&cfg.Tracking.PathTTL, "TRACKING_PATH_TTL", &errs)
	setIntFromEnv(&cfg.Tracking.PathMaxSamples, "TRACKING_PATH_MAX_SAMPLES", &errs)
	setIntFromEnv(&cfg.Tracking.PathFlushBatch, "TRACKING_PATH_FLUSH_BATCH", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if len(cfg.Dispatch.RadiusTiersKm) == 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_RADIUS_TIERS_KM must name at least one tier"))
	}
	for i := 1; i < len(cfg.Dispatch.RadiusTiersKm); i++ {
		if cfg.Dispatch.RadiusTiersKm[i] <= cfg.Dispatch.RadiusTiersKm[i-1] {
			errs = append(errs, fmt.Errorf("DISPATCH_RADIUS_TIERS_KM must be strictly increasing"))
			break
		}
	}
	if cfg.Tracking.PathFlushBatch <= 0 {
		errs = append(errs, fmt.Errorf("TRACKING_PATH_FLUSH_BATCH must be > 0"))
	}
	if cfg.Tracking.PathMaxSamples < cfg.Tracking.PathFlushBatch {
		errs = append(errs, fmt.Errorf("TRACKING_PATH_MAX_SAMPLES must be >= TRACKING_PATH_FLUSH_BATCH"))
	}
	if cfg.Fare.RoadFactor < 1 {
		errs = append(errs, fmt.Errorf("FARE_ROAD_FACTOR must be >= 1"))
	}

	return cfg, errors.Join(errs...)
}

// MaxRadiusKm is the outermost search tier.
func (d DispatchConfig) MaxRadiusKm() float64 {
	return d.RadiusTiersKm[len(d.RadiusTiersKm)-1]
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

func parseFloats(v string) ([]float64, error) {
	parts := splitAndTrim(v)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
