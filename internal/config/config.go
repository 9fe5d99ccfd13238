package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/NightOwlRecon/IntriCase/domain"
)

const minCookieSecretLength = 32

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Mail        MailConfig
	Outbox      OutboxConfig
	Storage     StorageConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig

	problems []error
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxConn      int
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type AuthConfig struct {
	// OTPValidity and SessionValidity are zero when unset or unparseable,
	// which makes every token and session invalid.
	OTPValidity     time.Duration
	SessionValidity time.Duration

	CookieSecret  string
	CookieIssuer  string
	CookieSecure  bool
	LoginRedirect string

	HashMemoryKiB   uint32
	HashIterations  uint32
	HashParallelism uint8
	HashConcurrency int
}

type MailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	From     string
	BaseURL  string
	Timeout  time.Duration
}

type OutboxConfig struct {
	Path           string
	SyncInterval   time.Duration
	MaxRetry       int
	RetentionHours int
}

type StorageConfig struct {
	// Driver selects the user store: "postgres" or "memory".
	Driver string
	// SessionStore selects the session store for the postgres driver:
	// "postgres" or "redis".
	SessionStore string
	// BootstrapEmail, when set, is invited at startup unless it already has an
	// account. It is how the first account of a memory store comes to exist.
	BootstrapEmail string
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	// Path overrides the embedded migrations when set.
	Path string
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults. Validity windows are never defaulted; problems with
// them are reported by Problems instead of failing the load.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "intricase"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:      getInt("SERVER_MAX_CONN", 0),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "intricase"),
			User:            getString("DB_USER", "intricase"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			CookieSecret:    os.Getenv("COOKIE_SECRET"),
			CookieIssuer:    getString("COOKIE_ISSUER", "intricase"),
			CookieSecure:    getBool("COOKIE_SECURE", true),
			LoginRedirect:   os.Getenv("LOGIN_REDIRECT"),
			HashMemoryKiB:   uint32(getInt("HASH_MEMORY_KIB", 2*1024*1024)),
			HashIterations:  uint32(getInt("HASH_ITERATIONS", 1)),
			HashParallelism: uint8(getInt("HASH_PARALLELISM", 1)),
			HashConcurrency: getInt("HASH_CONCURRENCY", 2),
		},
		Mail: MailConfig{
			Enabled:  getBool("MAIL_ENABLED", false),
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getInt("SMTP_PORT", 587),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     os.Getenv("SMTP_FROM"),
			BaseURL:  strings.TrimRight(getString("APP_BASE_URL", "http://localhost:8080"), "/"),
			Timeout:  getDuration("SMTP_TIMEOUT", 10*time.Second),
		},
		Outbox: OutboxConfig{
			Path:           getString("OUTBOX_PATH", "./data/outbox.db"),
			SyncInterval:   getDuration("OUTBOX_SYNC_INTERVAL", 30*time.Second),
			MaxRetry:       getInt("OUTBOX_MAX_RETRY", 5),
			RetentionHours: getInt("OUTBOX_RETENTION_HOURS", 72),
		},
		Storage: StorageConfig{
			Driver:         strings.ToLower(getString("STORE_DRIVER", "postgres")),
			SessionStore:   strings.ToLower(getString("SESSION_STORE", "postgres")),
			BootstrapEmail: strings.TrimSpace(os.Getenv("BOOTSTRAP_EMAIL")),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    os.Getenv("MIGRATIONS_PATH"),
		},
	}

	cfg.Auth.OTPValidity = cfg.strictHours("OTP_VALIDITY_HOURS", 1)
	cfg.Auth.SessionValidity = cfg.strictHours("SESSION_VALIDITY_DAYS", 24)

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Problems lists settings that were missing or unparseable. Each entry is a
// CONFIGURATION domain error.
func (c *Config) Problems() []error {
	return append([]error(nil), c.problems...)
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}

func (c *Config) validate() error {
	var errs []error
	if len(c.Auth.CookieSecret) < minCookieSecretLength {
		errs = append(errs, fmt.Errorf("COOKIE_SECRET must be at least %d bytes", minCookieSecretLength))
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not supported", c.Storage.Driver))
	}
	switch c.Storage.SessionStore {
	case "postgres", "redis":
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE %q is not supported", c.Storage.SessionStore))
	}
	if c.Mail.Enabled && (c.Mail.Host == "" || c.Mail.From == "") {
		errs = append(errs, errors.New("SMTP_HOST and SMTP_FROM are required when MAIL_ENABLED is set"))
	}
	if c.Auth.HashConcurrency < 1 {
		errs = append(errs, errors.New("HASH_CONCURRENCY must be at least 1"))
	}
	return errors.Join(errs...)
}

// maxValidityHours caps validity windows at ten years.
const maxValidityHours = 10 * 365 * 24

// strictHours parses a positive whole number of units no longer than
// maxValidityHours. Anything else yields zero and records a problem.
func (c *Config) strictHours(key string, unitHours int) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		c.problems = append(c.problems, domain.NewError(domain.ErrCodeConfiguration, key+" is not set"))
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.problems = append(c.problems, domain.WrapError(domain.ErrCodeConfiguration, key+" must be a positive integer", err))
		return 0
	}
	if n > maxValidityHours/unitHours {
		c.problems = append(c.problems, domain.NewError(domain.ErrCodeConfiguration,
			fmt.Sprintf("%s must not exceed %d", key, maxValidityHours/unitHours)))
		return 0
	}
	return time.Duration(n*unitHours) * time.Hour
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
