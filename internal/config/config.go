package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Backend (Frost proxy) client.
	BackendBaseURL    string
	BackendTimeout    time.Duration
	BackendMaxRetries int

	// Station summaries.
	SummaryCacheTTL  time.Duration
	SummaryCacheSize int
	SummaryTimeout   time.Duration

	// Simulation history retained per result.
	HistoryWindow time.Duration

	// Simulation job pipeline.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Summary warming.
	WarmStations []string
	WarmInterval time.Duration
}

const maxBatchSize = 1000

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first when present;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := parsePositiveDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	integer := func(key string, def, lo, hi int) int {
		n, err := parseIntRange(key, def, lo, hi)
		if err != nil {
			errs = append(errs, err)
		}
		return n
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", "10s"),

		BackendBaseURL:    strings.TrimRight(envOrDefault("BACKEND_BASE_URL", "https://scandi-backend.onrender.com"), "/"),
		BackendTimeout:    duration("BACKEND_TIMEOUT", "5s"),
		BackendMaxRetries: integer("BACKEND_MAX_RETRIES", 2, 0, 10),

		SummaryCacheTTL:  duration("SUMMARY_CACHE_TTL", "300s"),
		SummaryCacheSize: integer("SUMMARY_CACHE_SIZE", 1000, 1, 1_000_000),
		SummaryTimeout:   duration("SUMMARY_TIMEOUT", "8s"),

		HistoryWindow: duration("HISTORY_WINDOW", "336h"),

		KafkaEnabled:       envBool("KAFKA_ENABLED", false),
		KafkaBrokers:       parseList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   envOrDefault("KAFKA_SOURCE_TOPIC", "glacier-simulation-jobs"),
		KafkaSinkTopic:     envOrDefault("KAFKA_SINK_TOPIC", "glacier-simulation-results"),
		KafkaGroupID:       envOrDefault("KAFKA_GROUP_ID", "glacier-melt"),
		BatchSize:          integer("BATCH_SIZE", 50, 1, maxBatchSize),
		BatchFlushInterval: duration("BATCH_FLUSH_INTERVAL", "500ms"),

		WarmStations: parseList(os.Getenv("WARM_STATIONS")),
		WarmInterval: duration("WARM_INTERVAL", "5m"),
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if u, err := url.Parse(cfg.BackendBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("invalid BACKEND_BASE_URL")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1"
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseIntRange(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be between %d and %d", key, lo, hi)
	}
	return n, nil
}

// parseList splits a comma-separated value, dropping empty items.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
