package internal

import (
	"errors"
	"fmt"
	"github.com/joho/godotenv"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort        = 9999
	DefaultPrimaryURL  = "http://payment-processor-default:8080"
	DefaultFallbackURL = "http://payment-processor-fallback:8080"
	DefaultRedisAddr   = "localhost:6379"
)

type Config struct {
	Port        int
	PrimaryURL  string
	FallbackURL string

	Health   HealthConfig
	Dispatch DispatchConfig
	Queue    QueueConfig
	Flush    FlushConfig
	Dedup    DedupConfig

	StoreDriver        string
	DatabaseURL        string
	RedisAddr          string
	CheckpointInterval time.Duration
	WindowRetention    time.Duration

	HealthPoll         bool
	HealthPollInterval time.Duration

	LogLevel  string
	LogFormat string
}

// LoadConfig reads an optional .env file and then the environment. Values
// that are missing or malformed fall back to their defaults; each fallback
// worth telling an operator about is returned as a warning.
func LoadConfig() (Config, []error) {
	var warnings []error
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		warnings = append(warnings, fmt.Errorf("loading .env: %w", err))
	}

	e := env{lookup: os.LookupEnv}
	cfg := Config{
		Port:        e.num("PORT", DefaultPort),
		PrimaryURL:  e.url("PAYMENT_PROCESSOR_URL_DEFAULT", DefaultPrimaryURL),
		FallbackURL: e.url("PAYMENT_PROCESSOR_URL_FALLBACK", DefaultFallbackURL),
		Health: HealthConfig{
			FailureThreshold: e.num("FAILURE_THRESHOLD", DefaultFailureThreshold),
			RecoveryTimeout:  e.dur("RECOVERY_TIMEOUT", DefaultRecoveryTimeout),
		},
		Dispatch: DispatchConfig{
			MaxRetries:     e.num("MAX_RETRIES", DefaultMaxRetries),
			RequestTimeout: e.dur("REQUEST_TIMEOUT", DefaultRequestTimeout),
		},
		Queue: QueueConfig{
			MainSize:     e.num("MAIN_QUEUE_SIZE", DefaultMainQueueSize),
			PrioritySize: e.num("PRIORITY_QUEUE_SIZE", DefaultPriorityQueueSize),
		},
		Flush: FlushConfig{
			Interval:  e.dur("FLUSH_INTERVAL", DefaultFlushInterval),
			BatchSize: e.num("BATCH_SIZE", DefaultBatchSize),
			Workers:   e.num("WORKERS", DefaultWorkers),
		},
		Dedup: DedupConfig{
			TTL:        e.dur("DEDUP_TTL", DefaultDedupTTL),
			SweepEvery: int64(e.num("DEDUP_SWEEP_EVERY", DefaultSweepEvery)),
		},
		StoreDriver:        strings.ToLower(e.str("STORE_DRIVER", StoreMemory)),
		DatabaseURL:        e.str("DATABASE_URL", ""),
		RedisAddr:          e.str("REDIS_ADDR", DefaultRedisAddr),
		CheckpointInterval: e.dur("CHECKPOINT_INTERVAL", DefaultCheckpointInterval),
		WindowRetention:    e.dur("WINDOW_RETENTION", DefaultWindowRetention),
		HealthPoll:         e.flag("HEALTH_POLL", false),
		HealthPollInterval: e.dur("HEALTH_POLL_INTERVAL", DefaultHealthPollInterval),
		LogLevel:           e.str("LOG_LEVEL", "info"),
		LogFormat:          e.str("LOG_FORMAT", "json"),
	}
	warnings = append(warnings, e.warnings...)

	switch cfg.StoreDriver {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		warnings = append(warnings, fmt.Errorf("%w %q: using %s", ErrUnknownStore, cfg.StoreDriver, StoreMemory))
		cfg.StoreDriver = StoreMemory
	}
	return cfg, warnings
}

func (c Config) Processors() [len(Upstreams)]PaymentProcessor {
	return [len(Upstreams)]PaymentProcessor{
		Primary:   {Id: Primary, Endpoint: c.PrimaryURL},
		Secondary: {Id: Secondary, Endpoint: c.FallbackURL},
	}
}

type env struct {
	lookup   func(string) (string, bool)
	warnings []error
}

func (e *env) str(key, def string) string {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return def
	}
	return v
}

func (e *env) url(key, def string) string {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		e.warnings = append(e.warnings, fmt.Errorf("%s not set: using %s", key, def))
		return def
	}
	return strings.TrimRight(v, "/")
}

func (e *env) num(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		e.warnings = append(e.warnings, fmt.Errorf("%s=%q is not a positive integer: using %d", key, v, def))
		return def
	}
	return n
}

func (e *env) dur(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.warnings = append(e.warnings, fmt.Errorf("%s=%q is not a positive duration: using %s", key, v, def))
		return def
	}
	return d
}

func (e *env) flag(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.warnings = append(e.warnings, fmt.Errorf("%s=%q is not a boolean: using %t", key, v, def))
		return def
	}
	return b
}
