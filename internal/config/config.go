// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database connection, the prompt template
// location, identity cookie parameters, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// History store backends.
const (
	BackendDB   = "db"   // relational store via GORM
	BackendFile = "file" // append-only JSON-lines log
)

// DBConfig defines the relational database connection. When Host is empty
// the service falls back to SQLite at SQLitePath (dev mode).
type DBConfig struct {
	Host     string // DB_HOST
	Port     string // DB_PORT
	Name     string // DB_NAME
	User     string // DB_USER
	Password string // DB_PASSWORD

	SQLitePath string // SQLITE_PATH, dev fallback
}

// UseMySQL reports whether a MySQL/MariaDB server is configured.
func (d DBConfig) UseMySQL() bool { return strings.TrimSpace(d.Host) != "" }

// OpenAIConfig defines the outbound completion endpoint settings.
type OpenAIConfig struct {
	APIKey  string // API_KEY; absence surfaces at call time, never at startup
	BaseURL string // OPENAI_BASE_URL, override for tests/proxies
	Model   string // OPENAI_MODEL
}

// CookieConfig defines the identity cookie issued by the HTTP boundary.
type CookieConfig struct {
	Name string        // COOKIE_NAME
	TTL  time.Duration // COOKIE_TTL, on the order of a year
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s; must exceed the upstream call budget
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Routing
	APIBasePath string // base path for API routes, default "/api"

	// History
	HistoryBackend string // db|file
	HistoryFile    string // JSONL log path for the file backend
	HistoryLimit   int    // turns injected into the prompt

	// Prompt
	PromptPath string // template file, re-read on every request

	// Collaborators
	DB     DBConfig
	OpenAI OpenAIConfig
	Cookie CookieConfig

	// Rate limiting (opt-in: 0 rps leaves the limiter out of the chain)
	RateRPS   float64 // tokens per second (>= 0, 0 disables)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Routing
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// History
		HistoryBackend: strings.ToLower(getenv("HISTORY_BACKEND", BackendDB)),
		HistoryFile:    getenv("HISTORY_FILE", "data/turns.jsonl"),
		HistoryLimit:   getint("HISTORY_LIMIT", 10),

		// Prompt
		PromptPath: getenv("PROMPT_PATH", "Prompt.txt"),

		// Database
		DB: DBConfig{
			Host:       getenv("DB_HOST", ""),
			Port:       getenv("DB_PORT", "3306"),
			Name:       getenv("DB_NAME", ""),
			User:       getenv("DB_USER", ""),
			Password:   getenv("DB_PASSWORD", ""),
			SQLitePath: getenv("SQLITE_PATH", "app.db"),
		},

		// Outbound completion API
		OpenAI: OpenAIConfig{
			APIKey:  getenv("API_KEY", ""),
			BaseURL: getenv("OPENAI_BASE_URL", ""),
			Model:   getenv("OPENAI_MODEL", "gpt-4.1-mini"),
		},

		// Identity cookie
		Cookie: CookieConfig{
			Name: getenv("COOKIE_NAME", "UserId"),
			TTL:  getdur("COOKIE_TTL", 365*24*time.Hour),
		},

		// Rate limiting, off unless RATE_RPS is set
		RateRPS:   getfloat("RATE_RPS", 0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-convo-proxy"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.HistoryBackend {
	case BackendDB, BackendFile:
	default:
		return cfg, errors.New("HISTORY_BACKEND must be db or file")
	}
	if cfg.HistoryBackend == BackendFile && strings.TrimSpace(cfg.HistoryFile) == "" {
		return cfg, errors.New("HISTORY_FILE must not be empty for the file backend")
	}
	if cfg.HistoryLimit < 1 {
		return cfg, errors.New("HISTORY_LIMIT must be >= 1")
	}
	if strings.TrimSpace(cfg.PromptPath) == "" {
		return cfg, errors.New("PROMPT_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Cookie.Name) == "" {
		return cfg, errors.New("COOKIE_NAME must not be empty")
	}
	if cfg.Cookie.TTL <= 0 {
		return cfg, errors.New("COOKIE_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	// API_KEY is deliberately not validated here: a missing key must
	// surface as an outbound-call failure, not a startup crash.

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
