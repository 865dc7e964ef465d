package config

import (
	"fmt"
	"time"

	"github.com/gitrueng/user-management-app/internal/auth"
	pkgconfig "github.com/gitrueng/user-management-app/pkg/config"
	"github.com/gitrueng/user-management-app/pkg/database"
	"github.com/gitrueng/user-management-app/pkg/middleware"
	"github.com/gitrueng/user-management-app/pkg/tracing"
)

// ServiceName labels logs, metrics and spans.
const ServiceName = "user-management"

// defaultJWTSecret is only accepted in development.
const defaultJWTSecret = "change-this-to-a-secure-secret"

const minSecretLength = 32

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Mail senders.
const (
	MailSenderLog   = "log"
	MailSenderKafka = "kafka"
	MailSenderRelay = "relay"
)

// Config holds all configuration for the user-management service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Credential store
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"user_management"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns           int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns           int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime    time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime    time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBSlowQueryThreshold time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis backs the failed-login lockout. Disabled means no lockout.
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	LoginMaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockWindow  time.Duration `env:"LOGIN_LOCK_WINDOW" envDefault:"15m"`

	// Per-IP budget on login and signup
	LoginRateRPS   float64       `env:"LOGIN_RATE_RPS" envDefault:"5"`
	LoginRateBurst int           `env:"LOGIN_RATE_BURST" envDefault:"10"`
	LoginRateTTL   time.Duration `env:"LOGIN_RATE_TTL" envDefault:"10m"`

	// Forwarding headers are believed only from these networks.
	TrustedProxyCIDRs []string `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`

	// Kafka carries domain events and, with MAIL_SENDER=kafka, outgoing email.
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Mail
	MailSender        string        `env:"MAIL_SENDER" envDefault:"log"`
	MailFrom          string        `env:"MAIL_FROM" envDefault:"no-reply@user-management.local"`
	MailFromName      string        `env:"MAIL_FROM_NAME" envDefault:"User Management"`
	MailRelayURL      string        `env:"MAIL_RELAY_URL"`
	MailQueueSize     int           `env:"MAIL_QUEUE_SIZE" envDefault:"100"`
	MailWorkers       int           `env:"MAIL_WORKERS" envDefault:"2"`
	MailSendTimeout   time.Duration `env:"MAIL_SEND_TIMEOUT" envDefault:"10s"`
	MailVerifySubject string        `env:"MAIL_VERIFY_SUBJECT" envDefault:"Please verify your email"`
	MailResetSubject  string        `env:"MAIL_RESET_SUBJECT" envDefault:"Reset your password"`

	// Password hashing
	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	// JWT
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"user-management"`
	JWTAudience     string        `env:"JWT_AUDIENCE" envDefault:"user-management-clients"`
	JWTPrefix       string        `env:"JWT_PREFIX" envDefault:"Bearer "`
	JWTExpiration   time.Duration `env:"JWT_EXPIRATION" envDefault:"24h"`
	JWTExcludedURLs []string      `env:"JWT_EXCLUDED_URLS" envDefault:"/user/login,/user/signup,/user/verify/email,/user/reset/{email},/user/reset,/health/*,/metrics" envSeparator:","`

	// Client links embedded in email
	ClientURL              string        `env:"CLIENT_URL" envDefault:"http://localhost:4200/"`
	ClientVerifyParam      string        `env:"CLIENT_VERIFY_PARAM" envDefault:"verify"`
	ClientVerifyExpiration time.Duration `env:"CLIENT_VERIFY_EXPIRATION" envDefault:"24h"`
	ClientResetParam       string        `env:"CLIENT_RESET_PARAM" envDefault:"reset"`
	ClientResetExpiration  time.Duration `env:"CLIENT_RESET_EXPIRATION" envDefault:"15m"`

	// CORS
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	CORSAllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envDefault:"GET,POST,PUT,DELETE,OPTIONS" envSeparator:","`
	CORSAllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envDefault:"Accept,Authorization,Content-Type,X-Correlation-ID" envSeparator:","`
	CORSExposedHeaders   []string `env:"CORS_EXPOSED_HEADERS" envDefault:"Authorization,X-Correlation-ID" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	CORSMaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Profiling is served only to these networks; empty disables it.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load user-management config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads configuration from vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, vars); err != nil {
		return nil, fmt.Errorf("load user-management config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.StoreDriver {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreMemory, c.StoreDriver)
	}

	switch c.MailSender {
	case MailSenderLog:
	case MailSenderKafka:
		if !c.KafkaEnabled {
			return fmt.Errorf("MAIL_SENDER=%s requires KAFKA_ENABLED=true", MailSenderKafka)
		}
	case MailSenderRelay:
		if c.MailRelayURL == "" {
			return fmt.Errorf("MAIL_SENDER=%s requires MAIL_RELAY_URL", MailSenderRelay)
		}
	default:
		return fmt.Errorf("MAIL_SENDER must be one of %s, %s, %s; got %q",
			MailSenderLog, MailSenderKafka, MailSenderRelay, c.MailSender)
	}

	lifetimes := map[string]time.Duration{
		"JWT_EXPIRATION":           c.JWTExpiration,
		"CLIENT_VERIFY_EXPIRATION": c.ClientVerifyExpiration,
		"CLIENT_RESET_EXPIRATION":  c.ClientResetExpiration,
	}
	for key, d := range lifetimes {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	if _, err := c.TrustedProxies(); err != nil {
		return fmt.Errorf("TRUSTED_PROXY_CIDRS: %w", err)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	// In non-development environments, require an explicitly set, strong JWT secret.
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < minSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters long, got %d", minSecretLength, len(c.JWTSecret))
		}
	}

	return nil
}

// PostgresConfig returns the connection settings for the pgx pool.
func (c *Config) PostgresConfig() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLifetime,
		MaxConnIdleTime: c.DBMaxConnIdleTime,
	}
}

func (c *Config) RedisConfig() database.RedisConfig {
	return database.RedisConfig{
		Host:        c.RedisHost,
		Port:        c.RedisPort,
		Password:    c.RedisPassword,
		DB:          c.RedisDB,
		DialTimeout: 5 * time.Second,
	}
}

func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{Secret: c.JWTSecret, Issuer: c.JWTIssuer, Audience: c.JWTAudience}
}

func (c *Config) CORSConfig() middleware.CORSConfig {
	cfg := middleware.DefaultCORSConfig()
	cfg.AllowedOrigins = c.CORSAllowedOrigins
	cfg.AllowedMethods = c.CORSAllowedMethods
	cfg.AllowedHeaders = c.CORSAllowedHeaders
	cfg.ExposedHeaders = c.CORSExposedHeaders
	cfg.MaxAge = c.CORSMaxAge
	cfg.AllowCredentials = c.CORSAllowCredentials
	cfg.Environment = c.Environment
	return cfg
}

// TrustedProxies parses TrustedProxyCIDRs.
func (c *Config) TrustedProxies() (middleware.TrustedProxies, error) {
	return middleware.ParseTrustedProxies(c.TrustedProxyCIDRs)
}

func (c *Config) TracingConfig() tracing.Config {
	cfg := tracing.DefaultConfig(ServiceName)
	cfg.Environment = c.Environment
	cfg.OTLPEndpoint = c.OTELEndpoint
	cfg.SampleRate = c.OTELSampleRate
	cfg.Enabled = c.OTELEnabled
	return cfg
}
