package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// EnvPrefix namespaces every environment override, e.g. STUDIOFOLIO_SERVER_PORT.
const EnvPrefix = "STUDIOFOLIO"

// Config represents the runtime configuration for the Studiofolio backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Media       MediaConfig       `mapstructure:"media"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Site        SiteConfig        `mapstructure:"site"`
	Email       EmailConfig       `mapstructure:"email"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	LogLevel        string          `mapstructure:"log_level"`
	LogFormat       string          `mapstructure:"log_format"`
	CORSOrigins     []string        `mapstructure:"cors_origins"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	Cookie          CookieConfig    `mapstructure:"cookie"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// RateLimitConfig bounds requests per client address.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	// Submissions limits the public testimonial form separately.
	Submissions int `mapstructure:"submissions"`
}

// CookieConfig shapes the refresh token cookie.
type CookieConfig struct {
	Domain string `mapstructure:"domain"`
	Secure bool   `mapstructure:"secure"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	LogLevel string       `mapstructure:"log_level"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
	// SnapshotTTL bounds how long a published gallery snapshot is served from cache.
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
	// ResponseTTL applies to cached public responses.
	ResponseTTL time.Duration `mapstructure:"response_ttl"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prefix   string        `mapstructure:"prefix"`
}

// StorageConfig selects the object store holding originals, optimized variants and avatars.
type StorageConfig struct {
	// Driver is "s3" or "memory".
	Driver        string        `mapstructure:"driver"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	CacheControl  string        `mapstructure:"cache_control"`
	S3            S3Settings    `mapstructure:"s3"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

// S3Settings configures an S3 compatible bucket.
type S3Settings struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	PartSize        int64  `mapstructure:"part_size"`
	Concurrency     int    `mapstructure:"concurrency"`
}

// BreakerConfig tunes the storage circuit breaker.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// MediaConfig bounds uploads and shapes the optimized variant.
type MediaConfig struct {
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	MaxEdge        int   `mapstructure:"max_edge"`
	Quality        int   `mapstructure:"quality"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT     JWTSettings     `mapstructure:"jwt"`
	Session SessionSettings `mapstructure:"session"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures refresh tokens for both persistence modes.
type SessionSettings struct {
	PersistentTTL time.Duration `mapstructure:"persistent_ttl"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	RefreshLength int           `mapstructure:"refresh_token_length"`
}

// AdminConfig provisions the single administrator account.
type AdminConfig struct {
	Email       string `mapstructure:"email"`
	Password    string `mapstructure:"password"`
	DisplayName string `mapstructure:"display_name"`
}

// SiteConfig describes the public site the links in e-mails and invites point to.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
	// NotifySubmissions mails the administrator when a testimonial arrives.
	NotifySubmissions bool `mapstructure:"notify_submissions"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig schedules the cleanup jobs using cron expressions.
type MaintenanceConfig struct {
	Sessions    string        `mapstructure:"sessions"`
	Tokens      string        `mapstructure:"tokens"`
	Orphans     string        `mapstructure:"orphans"`
	OrphanGrace time.Duration `mapstructure:"orphan_grace"`
	MaxJobAge   time.Duration `mapstructure:"max_job_age"`
}

// LoadEnvFile loads variables from a dotenv file without overriding the
// process environment. An empty path tries ./.env and ignores its absence.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate reports every setting the server cannot start with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var err error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Auth.JWT.Secret) == "" {
		err = multierr.Append(err, errors.New("auth.jwt.secret must be configured"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "memory":
	case "s3":
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			err = multierr.Append(err, errors.New("storage.s3.bucket is required for the s3 driver"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}

	if c.Media.MaxUploadBytes <= 0 {
		err = multierr.Append(err, errors.New("media.max_upload_bytes must be positive"))
	}

	switch email := strings.TrimSpace(c.Admin.Email); {
	case email == "":
		err = multierr.Append(err, errors.New("admin.email must be configured"))
	case !strings.Contains(email, "@"):
		err = multierr.Append(err, fmt.Errorf("admin.email %q is not an address", email))
	}
	return err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.requests", 300)
	v.SetDefault("server.rate_limit.window", "1m")
	v.SetDefault("server.rate_limit.submissions", 10)
	v.SetDefault("server.cookie.domain", "")
	v.SetDefault("server.cookie.secure", false)
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/studiofolio.sqlite")
	v.SetDefault("database.log_level", "silent")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.prefix", "studiofolio:")
	v.SetDefault("cache.snapshot_ttl", "24h")
	v.SetDefault("cache.response_ttl", "30s")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.cache_control", "public, max-age=31536000, immutable")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("storage.s3.part_size", 8*1024*1024)
	v.SetDefault("storage.s3.concurrency", 4)
	v.SetDefault("storage.breaker.consecutive_failures", 5)
	v.SetDefault("storage.breaker.max_requests", 1)
	v.SetDefault("storage.breaker.interval", "0s")
	v.SetDefault("storage.breaker.timeout", "30s")

	v.SetDefault("media.max_upload_bytes", 25*1024*1024)
	v.SetDefault("media.max_edge", 2400)
	v.SetDefault("media.quality", 90)

	v.SetDefault("auth.jwt.issuer", "studiofolio")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.session.persistent_ttl", "720h") // 30 days
	v.SetDefault("auth.session.session_ttl", "12h")
	v.SetDefault("auth.session.refresh_token_length", 48)

	v.SetDefault("admin.email", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.display_name", "Studio")

	v.SetDefault("site.base_url", "http://localhost:3000")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")
	v.SetDefault("email.notify_submissions", true)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
	v.SetDefault("monitoring.health_check.timeout", "5s")

	v.SetDefault("maintenance.sessions", "@hourly")
	v.SetDefault("maintenance.tokens", "@daily")
	v.SetDefault("maintenance.orphans", "@daily")
	v.SetDefault("maintenance.orphan_grace", "1h")
	v.SetDefault("maintenance.max_job_age", "26h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
