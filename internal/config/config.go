// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the HTTP
// server, logging, the database, the OAuth2 provider, the remote farm API,
// the sync engine, raw archival, rate limiting, and observability.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Remote API environments and their default base URLs.
const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"

	SandboxAPIBaseURL    = "https://sandboxapi.deere.com/platform"
	ProductionAPIBaseURL = "https://partnerapi.deere.com/platform"
)

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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "fieldsync")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// OAuthConfig holds the authorization-code flow settings for the provider.
type OAuthConfig struct {
	ClientID        string
	ClientSecret    string
	ClientSecretARN string // resolved through Secrets Manager when ClientSecret is empty
	RedirectURI     string
	AuthURL         string
	TokenURL        string
	Scopes          []string
	StateTTL        time.Duration
}

// RemoteConfig controls the outbound client for the farm-management API.
type RemoteConfig struct {
	Environment string // sandbox|production
	BaseURL     string
	Timeout     time.Duration
	RPS         float64 // outbound requests per second, 0 disables throttling
	Burst       int
}

// SyncConfig tunes the synchronization engine.
type SyncConfig struct {
	LookbackYears    int
	OrgConcurrency   int
	AutoSyncInterval time.Duration // 0 disables the in-process ticker
	AutoSyncFarmerID string
}

// ArchiveConfig configures the S3 sink for raw payload archival.
type ArchiveConfig struct {
	Enabled   bool
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3-compatible stores
	PathStyle bool
	Prefix    string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s, sweeps can be slow
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test
	BaseURL           string        // public URL of this service, used for redirects

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBPath string // SQLite path

	// Upstream
	OAuth   OAuthConfig
	Remote  RemoteConfig
	Sync    SyncConfig
	Archive ArchiveConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
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
		Port:              getenv("PORT", "8000"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		BaseURL:           strings.TrimRight(getenv("BASE_URL", "http://localhost:8000"), "/"),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBPath: getenv("DB_PATH", "fieldsync.db"),

		OAuth: OAuthConfig{
			ClientID:        getenv("CLIENT_ID", ""),
			ClientSecret:    getenv("CLIENT_SECRET", ""),
			ClientSecretARN: getenv("CLIENT_SECRET_ARN", ""),
			RedirectURI:     getenv("REDIRECT_URI", "http://localhost:8000/auth/callback"),
			AuthURL:         getenv("AUTHORIZATION_URL", "https://signin.johndeere.com/oauth2/aus78tnlaysMraFhC1t7/v1/authorize"),
			TokenURL:        getenv("TOKEN_URL", "https://signin.johndeere.com/oauth2/aus78tnlaysMraFhC1t7/v1/token"),
			Scopes:          strings.Fields(getenv("SCOPES", "org1 org2 ag2 eq1 offline_access")),
			StateTTL:        getdur("OAUTH_STATE_TTL", 10*time.Minute),
		},

		Remote: RemoteConfig{
			Environment: strings.ToLower(getenv("ENVIRONMENT", EnvSandbox)),
			BaseURL:     strings.TrimRight(getenv("API_BASE_URL", ""), "/"),
			Timeout:     getdur("REMOTE_TIMEOUT", 30*time.Second),
			RPS:         getfloat("REMOTE_RPS", 5.0),
			Burst:       getint("REMOTE_BURST", 5),
		},

		Sync: SyncConfig{
			LookbackYears:    getint("SYNC_LOOKBACK_YEARS", 5),
			OrgConcurrency:   getint("SYNC_ORG_CONCURRENCY", 1),
			AutoSyncInterval: getdur("AUTO_SYNC_INTERVAL", 0),
			AutoSyncFarmerID: getenv("AUTO_SYNC_FARMER_ID", ""),
		},

		Archive: ArchiveConfig{
			Enabled:   getbool("ARCHIVE_ENABLED", false),
			Bucket:    getenv("AWS_BUCKET_NAME", "deere-connector-data-demo"),
			Region:    getenv("AWS_REGION", "us-east-1"),
			Endpoint:  getenv("AWS_S3_ENDPOINT", ""),
			PathStyle: getbool("AWS_S3_PATH_STYLE", false),
			Prefix:    strings.Trim(getenv("ARCHIVE_PREFIX", "raw"), "/"),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
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
			ServiceName: getenv("OTEL_SERVICE_NAME", "fieldsync"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	cfg.normalize()
	return cfg, cfg.Validate()
}

func (c *Config) normalize() {
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	if c.Remote.Environment == "prod" {
		c.Remote.Environment = EnvProduction
	}
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = SandboxAPIBaseURL
		if c.Remote.Environment == EnvProduction {
			c.Remote.BaseURL = ProductionAPIBaseURL
		}
	}
}

// Validate reports every invalid setting, joined into one error.
func (c Config) Validate() error {
	var errs []error
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}
	oneOf := func(v string, allowed ...string) bool {
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
		return false
	}

	// server
	require(oneOf(c.LogLevel, "debug", "info", "warn", "error", "fatal", "panic"),
		"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	require(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	require(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	require(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	require(isAbsURL(c.BaseURL), "BASE_URL must be an absolute http(s) URL")
	require(strings.TrimSpace(c.DBPath) != "", "DB_PATH must not be empty")

	// oauth
	require(isAbsURL(c.OAuth.RedirectURI), "REDIRECT_URI must be an absolute http(s) URL")
	require(isAbsURL(c.OAuth.AuthURL) && isAbsURL(c.OAuth.TokenURL),
		"AUTHORIZATION_URL and TOKEN_URL must be absolute http(s) URLs")
	require(len(c.OAuth.Scopes) > 0, "SCOPES must not be empty")
	require(c.OAuth.StateTTL > 0, "OAUTH_STATE_TTL must be > 0")

	// remote platform
	require(oneOf(c.Remote.Environment, EnvSandbox, EnvProduction), "ENVIRONMENT must be one of: sandbox, production")
	require(isAbsURL(c.Remote.BaseURL), "API_BASE_URL must be an absolute http(s) URL")
	require(c.Remote.Timeout > 0, "REMOTE_TIMEOUT must be > 0")
	require(c.Remote.RPS >= 0, "REMOTE_RPS must be >= 0")
	require(c.Remote.Burst >= 1, "REMOTE_BURST must be >= 1")

	// sync engine
	require(c.Sync.LookbackYears >= 1, "SYNC_LOOKBACK_YEARS must be >= 1")
	require(c.Sync.OrgConcurrency >= 1, "SYNC_ORG_CONCURRENCY must be >= 1")
	require(c.Sync.AutoSyncInterval >= 0, "AUTO_SYNC_INTERVAL must be >= 0")
	require(c.Sync.AutoSyncInterval <= 0 || strings.TrimSpace(c.Sync.AutoSyncFarmerID) != "",
		"AUTO_SYNC_FARMER_ID is required when AUTO_SYNC_INTERVAL is set")
	require(!c.Archive.Enabled || strings.TrimSpace(c.Archive.Bucket) != "",
		"AWS_BUCKET_NAME must not be empty when ARCHIVE_ENABLED")

	// edge
	require(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	require(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	require(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	require(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

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
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
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
	if trimmed := strings.TrimRight(p, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}

func isAbsURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
