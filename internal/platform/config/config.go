// Package config builds runtime configuration from environment variables so
// main stays lean. Policy values (recurrence window, thresholds, progress
// checkpoints) live here, never as code constants in the domain packages.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures the full runtime configuration.
type Server struct {
	Addr     string
	LogLevel string

	// DatabaseURL selects the Postgres stores when set; otherwise the
	// service runs on in-memory stores.
	DatabaseURL string

	Redis RedisConfig
	Kafka KafkaConfig

	JWTSigningKey string
	JWTIssuer     string

	Recurrence RecurrenceConfig

	// StageCheckpoints is the stage-to-progress table for findings.
	StageCheckpoints Checkpoints

	// StatsCacheTTL bounds staleness of cached dashboard aggregates.
	// Zero disables caching even when Redis is configured.
	StatsCacheTTL time.Duration
}

// RedisConfig carries cache connection settings.
type RedisConfig struct {
	URL string
}

// KafkaConfig carries the optional audit sink settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RecurrenceConfig is the recurrence detection policy. Policy values live
// in configuration, not in code.
type RecurrenceConfig struct {
	// Lookback bounds how far back the match scan reaches.
	Lookback time.Duration
	// Threshold is the number of prior occurrences that makes a finding
	// recurrent (1 prior = 2 total).
	Threshold int
}

// Checkpoints maps each forward stage transition to the progress value it
// sets on the finding.
type Checkpoints struct {
	Registered        int
	ImmediatePlanned  int
	ImmediateExecuted int
	RootCauseAnalyzed int
	VerifiedClosed    int
}

// DefaultCheckpoints is the dashboard-consistent progress table.
func DefaultCheckpoints() Checkpoints {
	return Checkpoints{
		Registered:        0,
		ImmediatePlanned:  25,
		ImmediateExecuted: 50,
		RootCauseAnalyzed: 75,
		VerifiedClosed:    100,
	}
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("CONFORMA_ADDR", ":8080"),
		LogLevel:      envOr("CONFORMA_LOG_LEVEL", "info"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis:         RedisConfig{URL: os.Getenv("REDIS_URL")},
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envOr("JWT_ISSUER", "conforma"),
		Recurrence: RecurrenceConfig{
			Lookback:  envDuration("RECURRENCE_LOOKBACK", 365*24*time.Hour),
			Threshold: envInt("RECURRENCE_THRESHOLD", 1),
		},
		StageCheckpoints: DefaultCheckpoints(),
		StatsCacheTTL:    envDuration("STATS_CACHE_TTL", 30*time.Second),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka = KafkaConfig{
			Brokers: strings.Split(brokers, ","),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "conforma.lifecycle-events"),
		}
	}

	// Only the intermediate checkpoints are overridable. Registered must be 0
	// and VerifiedClosed must be 100; the progress invariant pins both ends.
	cfg.StageCheckpoints.ImmediatePlanned = envInt("STAGE_PROGRESS_IMMEDIATE_PLANNED", cfg.StageCheckpoints.ImmediatePlanned)
	cfg.StageCheckpoints.ImmediateExecuted = envInt("STAGE_PROGRESS_IMMEDIATE_EXECUTED", cfg.StageCheckpoints.ImmediateExecuted)
	cfg.StageCheckpoints.RootCauseAnalyzed = envInt("STAGE_PROGRESS_ROOT_CAUSE_ANALYZED", cfg.StageCheckpoints.RootCauseAnalyzed)

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
