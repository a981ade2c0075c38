package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sundayezeilo/shortlink/sluggen"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Links    LinksConfig
	Cache    CacheConfig
	Auth     AuthConfig
	Events   EventsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" required:"true"`
	Host            string        `envconfig:"SERVER_HOST" required:"true"`
	BaseURL         string        `envconfig:"SERVER_BASE_URL" required:"true"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" required:"true"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" required:"true"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" required:"true"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" required:"true"`
	CORSOrigins     []string      `envconfig:"SERVER_CORS_ORIGINS"` // empty allows all
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base URL must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// DatabaseConfig selects the link store. The connection fields apply to the
// postgres driver only; SQLiteDSN applies to the sqlite driver and accepts
// both local files and libsql:// URLs.
type DatabaseConfig struct {
	Driver      string `envconfig:"DB_DRIVER" default:"postgres"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`

	Host     string `envconfig:"DB_HOST"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	Name     string `envconfig:"DB_NAME"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns int32  `envconfig:"DB_MIN_CONNS" default:"1"`

	SQLiteDSN string `envconfig:"SQLITE_DSN" default:"file:shortlink.db"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		return c.validatePostgres()
	case DriverSQLite:
		if c.SQLiteDSN == "" {
			return fmt.Errorf("sqlite DSN cannot be empty")
		}
		return nil
	case DriverMemory:
		return nil
	default:
		return fmt.Errorf("invalid driver: %s (must be one of: postgres, sqlite, memory)", c.Driver)
	}
}

func (c *DatabaseConfig) validatePostgres() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if c.Password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.MinConns <= 0 {
		return fmt.Errorf("min connections must be positive")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) cannot be greater than max connections (%d)", c.MinConns, c.MaxConns)
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid SSL mode: %s (must be one of: disable, require, verify-ca, verify-full)", c.SSLMode)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the PostgreSQL connection URL, the form golang-migrate and
// database/sql drivers accept.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" required:"true"`   // development, staging, production, test
	LogLevel    string `envconfig:"LOG_LEVEL" required:"true"` // debug, info, warn, error
	Name        string `envconfig:"APP_NAME" default:"shortlink"`
	Version     string `envconfig:"APP_VERSION" default:"dev"`
}

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Environment)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

// LinksConfig controls slug generation and link lifetimes. A zero TTL means
// links never expire; a zero purge interval disables the expired-link sweep.
type LinksConfig struct {
	SlugLength      int           `envconfig:"SLUG_LENGTH" default:"6"`
	SlugMaxAttempts int           `envconfig:"SLUG_MAX_ATTEMPTS" default:"10"`
	DefaultTTL      time.Duration `envconfig:"LINK_DEFAULT_TTL" default:"0s"`
	AnonymousTTL    time.Duration `envconfig:"LINK_ANONYMOUS_TTL" default:"1h"`
	PurgeInterval   time.Duration `envconfig:"LINK_PURGE_INTERVAL" default:"10m"`
}

func (c *LinksConfig) Validate() error {
	if c.SlugLength < sluggen.MinLength || c.SlugLength > sluggen.MaxLength {
		return fmt.Errorf("slug length must be between %d and %d, got %d", sluggen.MinLength, sluggen.MaxLength, c.SlugLength)
	}
	if c.SlugMaxAttempts <= 0 {
		return fmt.Errorf("slug max attempts must be positive")
	}
	if c.DefaultTTL < 0 || c.AnonymousTTL < 0 {
		return fmt.Errorf("link TTLs cannot be negative")
	}
	if c.PurgeInterval < 0 {
		return fmt.Errorf("purge interval cannot be negative")
	}
	return nil
}

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheLRU    = "lru"
	CacheRedis  = "redis"
)

// CacheConfig selects the resolution cache.
type CacheConfig struct {
	Backend   string        `envconfig:"CACHE_BACKEND" default:"memory"`
	TTL       time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	Capacity  int           `envconfig:"CACHE_CAPACITY" default:"10000"`
	RedisURL  string        `envconfig:"REDIS_URL"`
	KeyPrefix string        `envconfig:"CACHE_KEY_PREFIX" default:"link:"`
}

func (c *CacheConfig) Validate() error {
	switch c.Backend {
	case CacheNone, CacheMemory:
	case CacheLRU:
		if c.Capacity <= 0 {
			return fmt.Errorf("cache capacity must be positive for the lru backend")
		}
	case CacheRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be one of: none, memory, lru, redis)", c.Backend)
	}
	if c.Backend != CacheNone && c.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	return nil
}

// AuthConfig holds the bearer token secret. Without one every caller is
// anonymous and the owner endpoints reject all requests.
type AuthConfig struct {
	JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
}

func (c *AuthConfig) Validate(env string) error {
	if env == "production" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 bytes in production")
	}
	return nil
}

// EventsConfig enables click events on NATS when NATSURL is set.
type EventsConfig struct {
	NATSURL string `envconfig:"NATS_URL"`
	Subject string `envconfig:"NATS_SUBJECT" default:"links.clicked"`
}

func (c *EventsConfig) Validate() error {
	if c.NATSURL != "" && strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("subject cannot be empty when NATS is enabled")
	}
	return nil
}

// Load loads configuration from environment variables only.
// (Do .env loading in internal/app for dev, not here.)
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process("", &cfg.Server); err != nil {
		return nil, fmt.Errorf("failed to load Server config: %w", err)
	}
	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Server config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to load Database config: %w", err)
	}
	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Database config: %w", err)
	}

	if err := envconfig.Process("", &cfg.App); err != nil {
		return nil, fmt.Errorf("failed to load App config: %w", err)
	}
	if err := cfg.App.Validate(); err != nil {
		return nil, fmt.Errorf("invalid App config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Links); err != nil {
		return nil, fmt.Errorf("failed to load Links config: %w", err)
	}
	if err := cfg.Links.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Links config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Cache); err != nil {
		return nil, fmt.Errorf("failed to load Cache config: %w", err)
	}
	if err := cfg.Cache.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Cache config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Auth); err != nil {
		return nil, fmt.Errorf("failed to load Auth config: %w", err)
	}
	if err := cfg.Auth.Validate(cfg.App.Environment); err != nil {
		return nil, fmt.Errorf("invalid Auth config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Events); err != nil {
		return nil, fmt.Errorf("failed to load Events config: %w", err)
	}
	if err := cfg.Events.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Events config: %w", err)
	}

	return cfg, nil
}
