package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	defaultListenAddr      = ":8080"
	defaultDatabaseURL     = "mathprepa.db"
	defaultSessionLifetime = 24 * time.Hour
	defaultViewIdleTimeout = 30 * time.Minute

	envListenAddr      = "MATHPREPA_LISTEN_ADDR"
	envDatabaseURL     = "MATHPREPA_DATABASE_URL"
	envLogLevel        = "MATHPREPA_LOG_LEVEL"
	envJWTSecret       = "MATHPREPA_JWT_SECRET"
	envSessionLifetime = "MATHPREPA_SESSION_LIFETIME"
	envViewIdleTimeout = "MATHPREPA_VIEW_IDLE_TIMEOUT"
	envTraceExporter   = "MATHPREPA_TRACE_EXPORTER"
	envSecureCookies   = "MATHPREPA_SECURE_COOKIES"
	envAllowedOrigins  = "MATHPREPA_ALLOWED_ORIGINS"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	// DatabaseURL is a SQLite path or a postgres:// URL.
	DatabaseURL     string
	LogLevel        slog.Level
	JWTSecret       string
	SessionLifetime time.Duration
	ViewIdleTimeout time.Duration
	TraceExporter   string
	SecureCookies   bool
	// AllowedOrigins are the browser origins allowed to call the API with
	// the session cookie. Empty means same-origin clients only.
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// Unparseable durations fall back to their default.
func Load() Config {
	cfg := Config{
		ListenAddr:      defaultListenAddr,
		DatabaseURL:     defaultDatabaseURL,
		LogLevel:        slog.LevelInfo,
		SessionLifetime: defaultSessionLifetime,
		ViewIdleTimeout: defaultViewIdleTimeout,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDatabaseURL); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.JWTSecret = os.Getenv(envJWTSecret)
	cfg.SessionLifetime = parseDuration(os.Getenv(envSessionLifetime), defaultSessionLifetime)
	cfg.ViewIdleTimeout = parseDuration(os.Getenv(envViewIdleTimeout), defaultViewIdleTimeout)
	cfg.TraceExporter = strings.ToLower(strings.TrimSpace(os.Getenv(envTraceExporter)))
	cfg.SecureCookies = parseBool(os.Getenv(envSecureCookies))
	cfg.AllowedOrigins = parseList(os.Getenv(envAllowedOrigins))

	return cfg
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("%s must be set", envJWTSecret))
	}
	switch c.TraceExporter {
	case "", "stdout":
	default:
		errs = append(errs, fmt.Errorf("%s: unknown exporter %q", envTraceExporter, c.TraceExporter))
	}
	if c.SessionLifetime <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", envSessionLifetime))
	}
	if c.ViewIdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", envViewIdleTimeout))
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			errs = append(errs, fmt.Errorf("%s: wildcard origin cannot carry the session cookie", envAllowedOrigins))
		}
	}
	return errors.Join(errs...)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// parseList splits a comma-separated value, dropping empty entries.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
