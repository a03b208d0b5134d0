package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Upstream catalog.
	EDXAPIKey  string
	EDXBaseURL string
	CacheDir   string        // on-disk catalog cache; empty disables caching
	CacheTTL   time.Duration // default: 15m

	// Detection budget.
	SampleRows         int
	InitialWindowBytes int64
	MaxWindowBytes     int64
	MaxDoublings       int

	// Dataset scanning.
	ScanConcurrency int64
	ScanTimeout     time.Duration

	// Upstream fetching.
	FetchRetries int
	FetchBackoff time.Duration

	// Optional policy file overlay.
	PolicyFile string

	// Logging.
	LogLevel slog.Level

	// Transport.
	Transport       string // "stdio" (default) or "http"
	HTTPAddr        string // listen address for HTTP transport (default ":8080")
	HTTPBearerToken string // required when transport=http

	// Observability.
	OTelEnabled bool // enable OpenTelemetry tracing and metrics

	// CLI-only fields (not settable via env vars).
	AuditLog string // path to NDJSON audit log file
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	EDXAPIKey  *string
	EDXBaseURL *string
	CacheDir   *string
	LogLevel   *string
	PolicyFile *string

	SampleRows      *int
	ScanConcurrency *int64
	ScanTimeout     *time.Duration

	Transport       *string
	HTTPAddr        *string
	HTTPBearerToken *string

	OTelEnabled bool
	AuditLog    string
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		EDXAPIKey:          os.Getenv("EDX_API_KEY"),
		EDXBaseURL:         "https://edx.netl.doe.gov",
		CacheTTL:           15 * time.Minute,
		SampleRows:         5,
		InitialWindowBytes: 8 << 10,
		MaxWindowBytes:     1 << 20,
		MaxDoublings:       6,
		ScanConcurrency:    5,
		ScanTimeout:        2 * time.Minute,
		FetchRetries:       2,
		FetchBackoff:       250 * time.Millisecond,
		Transport:          "stdio",
		HTTPAddr:           ":8080",
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v := os.Getenv("EDX_BASE_URL"); v != "" {
		cfg.EDXBaseURL = strings.TrimRight(v, "/")
	}
	cfg.CacheDir = os.Getenv("CACHE_DIR")

	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL value %q: %w", v, err)
		}
		cfg.CacheTTL = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	cfg.PolicyFile = os.Getenv("POLICY_FILE")

	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.HTTPBearerToken = os.Getenv("HTTP_BEARER_TOKEN")

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	if err := loadDetectionEnvVars(cfg); err != nil {
		return err
	}

	return nil
}

// loadDetectionEnvVars reads detection and scan budget environment variables.
func loadDetectionEnvVars(cfg *Config) error {
	if v := os.Getenv("SAMPLE_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid SAMPLE_ROWS value %q: must be a positive integer", v)
		}
		cfg.SampleRows = n
	}
	if v := os.Getenv("INITIAL_WINDOW_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid INITIAL_WINDOW_BYTES value %q: must be a positive integer", v)
		}
		cfg.InitialWindowBytes = n
	}
	if v := os.Getenv("MAX_WINDOW_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid MAX_WINDOW_BYTES value %q: must be a positive integer", v)
		}
		cfg.MaxWindowBytes = n
	}
	if v := os.Getenv("MAX_DOUBLINGS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid MAX_DOUBLINGS value %q: must be a non-negative integer", v)
		}
		cfg.MaxDoublings = n
	}
	if v := os.Getenv("SCAN_CONCURRENCY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid SCAN_CONCURRENCY value %q: must be a positive integer", v)
		}
		cfg.ScanConcurrency = n
	}
	if v := os.Getenv("SCAN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SCAN_TIMEOUT value %q: %w", v, err)
		}
		cfg.ScanTimeout = d
	}
	if v := os.Getenv("FETCH_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid FETCH_RETRIES value %q: must be a non-negative integer", v)
		}
		cfg.FetchRetries = n
	}
	if v := os.Getenv("FETCH_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FETCH_BACKOFF value %q: %w", v, err)
		}
		cfg.FetchBackoff = d
	}
	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.EDXAPIKey != nil {
		cfg.EDXAPIKey = *o.EDXAPIKey
	}
	if o.EDXBaseURL != nil {
		cfg.EDXBaseURL = strings.TrimRight(*o.EDXBaseURL, "/")
	}
	if o.CacheDir != nil {
		cfg.CacheDir = *o.CacheDir
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.PolicyFile != nil {
		cfg.PolicyFile = *o.PolicyFile
	}
	if o.SampleRows != nil {
		if *o.SampleRows <= 0 {
			return fmt.Errorf("invalid --sample-rows value: must be a positive integer")
		}
		cfg.SampleRows = *o.SampleRows
	}
	if o.ScanConcurrency != nil {
		if *o.ScanConcurrency <= 0 {
			return fmt.Errorf("invalid --scan-concurrency value: must be a positive integer")
		}
		cfg.ScanConcurrency = *o.ScanConcurrency
	}
	if o.ScanTimeout != nil {
		cfg.ScanTimeout = *o.ScanTimeout
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.HTTPAddr != nil {
		cfg.HTTPAddr = *o.HTTPAddr
	}
	if o.HTTPBearerToken != nil {
		cfg.HTTPBearerToken = *o.HTTPBearerToken
	}

	cfg.AuditLog = o.AuditLog
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.EDXBaseURL == "" {
		return fmt.Errorf("EDX_BASE_URL must not be empty")
	}

	if cfg.InitialWindowBytes > cfg.MaxWindowBytes {
		return fmt.Errorf("INITIAL_WINDOW_BYTES (%d) must not exceed MAX_WINDOW_BYTES (%d)",
			cfg.InitialWindowBytes, cfg.MaxWindowBytes)
	}

	switch cfg.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"stdio\" or \"http\"", cfg.Transport)
	}

	if cfg.Transport == "http" && cfg.HTTPBearerToken == "" {
		return fmt.Errorf("HTTP_BEARER_TOKEN is required when transport is \"http\" (set via env var or --http-bearer-token flag)")
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
