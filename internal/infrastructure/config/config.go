package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // quota.timezone must resolve in minimal images

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (ODYSSEE_DATABASE_PASSWORD, ...)
const EnvPrefix = "ODYSSEE"

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	Security    SecurityConfig
	Quota       QuotaConfig
	HTTP        HTTPConfig
	Stripe      StripeConfig
	Mail        MailConfig
	Gemini      GeminiConfig
	Places      PlacesConfig
	Render      RenderConfig
	Telemetry   TelemetryConfig
	Scheduler   SchedulerConfig
	Idempotency IdempotencyConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
	// BaseDomain is the platform domain; agencies are served on <subdomain>.<BaseDomain>
	BaseDomain string
}

// IsProduction reports whether the app runs in production
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	MigrationsPath  string
	// AutoMigrate applies the embedded migrations at server start
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SecurityConfig holds the secrets the platform itself owns
type SecurityConfig struct {
	// MasterEncryptionKey derives the vault key. Changing it makes every
	// stored agency credential unreadable.
	MasterEncryptionKey string
	JWTSecret           string
	JWTIssuer           string
	// AccessTokenTTL bounds tokens minted by the platform tooling
	AccessTokenTTL time.Duration
}

// QuotaConfig holds generation quota settings
type QuotaConfig struct {
	// Timezone defines the calendar day and month boundaries
	Timezone    string
	LockTimeout time.Duration
}

// Location resolves Timezone, falling back to UTC when empty
func (q QuotaConfig) Location() (*time.Location, error) {
	if q.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(q.Timezone)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	TrustedProxies    []string
}

// StripeConfig holds platform-wide Stripe settings. The API key itself is per agency.
type StripeConfig struct {
	Currency   string
	SuccessURL string
}

// MailConfig is the platform SMTP account used when an agency has none
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	UseSSL   bool
	Timeout  time.Duration
}

// Enabled reports whether a fallback SMTP account is configured
func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.From != ""
}

// GeminiConfig holds settings for the trip generation model
type GeminiConfig struct {
	Endpoint string
	Model    string
	// RPS and Burst bound outbound calls across all agencies
	RPS     float64
	Burst   int
	Timeout time.Duration
}

// PlacesConfig holds settings for the Google Places and YouTube lookups
// that enrich trip sheets. They use the agency's Google key.
type PlacesConfig struct {
	Enabled         bool
	Endpoint        string
	YouTubeEndpoint string
	Language        string
	MaxPhotos       int
	// MaxVideos < 0 turns the YouTube search off
	MaxVideos int
	Timeout   time.Duration
}

// RenderConfig holds headless Chrome settings for PDF export
type RenderConfig struct {
	// ChromeURL is a remote DevTools websocket URL; empty starts a local browser
	ChromeURL string
	Timeout   time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // 0.0-1.0
	ServiceName       string
	Insecure          bool // development only
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	DBTraceEnabled    bool
	ProfilingEnabled  bool
	PyroscopeURL      string
}

// SchedulerConfig holds background job settings
type SchedulerConfig struct {
	Enabled             bool
	UsageReportInterval time.Duration
	// UsageWarnRatio is the monthly usage ratio above which a warning is logged
	UsageWarnRatio float64
}

// IdempotencyConfig holds request de-duplication settings
type IdempotencyConfig struct {
	Enabled bool
	TTL     time.Duration
	Backend string // redis, memory
}

// Load loads configuration from .env, a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with ODYSSEE_ prefix (e.g., ODYSSEE_DATABASE_PASSWORD)
// 2. .env file in the working directory
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Name:       v.GetString("app.name"),
			Env:        v.GetString("app.env"),
			Port:       v.GetString("app.port"),
			BaseDomain: v.GetString("app.base_domain"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			MigrationsPath:  v.GetString("database.migrations_path"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Security: SecurityConfig{
			MasterEncryptionKey: v.GetString("security.master_encryption_key"),
			JWTSecret:           v.GetString("security.jwt_secret"),
			JWTIssuer:           v.GetString("security.jwt_issuer"),
			AccessTokenTTL:      v.GetDuration("security.access_token_ttl"),
		},
		Quota: QuotaConfig{
			Timezone:    v.GetString("quota.timezone"),
			LockTimeout: v.GetDuration("quota.lock_timeout"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:   v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Stripe: StripeConfig{
			Currency:   v.GetString("stripe.currency"),
			SuccessURL: v.GetString("stripe.success_url"),
		},
		Mail: MailConfig{
			Host:     v.GetString("mail.host"),
			Port:     v.GetInt("mail.port"),
			Username: v.GetString("mail.username"),
			Password: v.GetString("mail.password"),
			From:     v.GetString("mail.from"),
			UseTLS:   v.GetBool("mail.use_tls"),
			UseSSL:   v.GetBool("mail.use_ssl"),
			Timeout:  v.GetDuration("mail.timeout"),
		},
		Gemini: GeminiConfig{
			Endpoint: v.GetString("gemini.endpoint"),
			Model:    v.GetString("gemini.model"),
			RPS:      v.GetFloat64("gemini.rps"),
			Burst:    v.GetInt("gemini.burst"),
			Timeout:  v.GetDuration("gemini.timeout"),
		},
		Places: PlacesConfig{
			Enabled:         !v.IsSet("places.enabled") || v.GetBool("places.enabled"),
			Endpoint:        v.GetString("places.endpoint"),
			YouTubeEndpoint: v.GetString("places.youtube_endpoint"),
			Language:        v.GetString("places.language"),
			MaxPhotos:       v.GetInt("places.max_photos"),
			MaxVideos:       v.GetInt("places.max_videos"),
			Timeout:         v.GetDuration("places.timeout"),
		},
		Render: RenderConfig{
			ChromeURL: v.GetString("render.chrome_url"),
			Timeout:   v.GetDuration("render.timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeURL:      v.GetString("telemetry.pyroscope_url"),
		},
		Scheduler: SchedulerConfig{
			Enabled:             v.GetBool("scheduler.enabled"),
			UsageReportInterval: v.GetDuration("scheduler.usage_report_interval"),
			UsageWarnRatio:      v.GetFloat64("scheduler.usage_warn_ratio"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: !v.IsSet("idempotency.enabled") || v.GetBool("idempotency.enabled"),
			TTL:     v.GetDuration("idempotency.ttl"),
			Backend: v.GetString("idempotency.backend"),
		},
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "odyssee-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "odyssee"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.MigrationsPath == "" {
		cfg.Database.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Security.JWTIssuer == "" {
		cfg.Security.JWTIssuer = "odyssee"
	}
	if cfg.Security.AccessTokenTTL == 0 {
		cfg.Security.AccessTokenTTL = time.Hour
	}
	if cfg.Quota.Timezone == "" {
		cfg.Quota.Timezone = "UTC"
	}
	if cfg.Quota.LockTimeout == 0 {
		cfg.Quota.LockTimeout = 5 * time.Second
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// Generation waits on the model; keep room for it.
		cfg.HTTP.WriteTimeout = 90 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.Stripe.Currency == "" {
		cfg.Stripe.Currency = "eur"
	}
	if cfg.Stripe.SuccessURL == "" {
		cfg.Stripe.SuccessURL = "https://odyssee.travel/paiement/merci"
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}
	if cfg.Mail.Timeout == 0 {
		cfg.Mail.Timeout = 15 * time.Second
	}
	if cfg.Gemini.Endpoint == "" {
		cfg.Gemini.Endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-1.5-flash"
	}
	if cfg.Gemini.RPS == 0 {
		cfg.Gemini.RPS = 5
	}
	if cfg.Gemini.Burst == 0 {
		cfg.Gemini.Burst = 10
	}
	if cfg.Gemini.Timeout == 0 {
		cfg.Gemini.Timeout = 60 * time.Second
	}
	if cfg.Places.Endpoint == "" {
		cfg.Places.Endpoint = "https://places.googleapis.com/v1"
	}
	if cfg.Places.YouTubeEndpoint == "" {
		cfg.Places.YouTubeEndpoint = "https://www.googleapis.com/youtube/v3"
	}
	if cfg.Places.Language == "" {
		cfg.Places.Language = "fr"
	}
	if cfg.Places.MaxPhotos <= 0 {
		cfg.Places.MaxPhotos = 6
	}
	if cfg.Places.MaxVideos == 0 {
		cfg.Places.MaxVideos = 2
	}
	if cfg.Places.Timeout == 0 {
		cfg.Places.Timeout = 5 * time.Second
	}
	if cfg.Render.Timeout == 0 {
		cfg.Render.Timeout = 30 * time.Second
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.PyroscopeURL == "" {
		cfg.Telemetry.PyroscopeURL = "http://localhost:4040"
	}
	if cfg.Scheduler.UsageReportInterval == 0 {
		cfg.Scheduler.UsageReportInterval = 15 * time.Minute
	}
	if cfg.Scheduler.UsageWarnRatio == 0 {
		cfg.Scheduler.UsageWarnRatio = 0.9
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}
	if cfg.Idempotency.Backend == "" {
		cfg.Idempotency.Backend = "memory"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if _, err := c.Quota.Location(); err != nil {
		return fmt.Errorf("quota.timezone %q is not a valid IANA zone: %w", c.Quota.Timezone, err)
	}
	if c.Idempotency.Backend != "memory" && c.Idempotency.Backend != "redis" {
		return fmt.Errorf("idempotency.backend must be 'memory' or 'redis', got %q", c.Idempotency.Backend)
	}
	if c.Gemini.RPS < 0 || c.Gemini.Burst < 0 {
		return fmt.Errorf("gemini.rps and gemini.burst cannot be negative")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.App.IsProduction() {
		if len(c.Security.MasterEncryptionKey) < 16 {
			return fmt.Errorf("security.master_encryption_key must be at least 16 characters in production")
		}
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
