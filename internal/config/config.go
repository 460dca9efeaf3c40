package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the client and the stub API.
type Config struct {
	Client  ClientConfig
	Session SessionConfig
	Logger  LoggerConfig
	Stub    StubConfig
	Redis   RedisConfig
}

// ClientConfig controls the outgoing HTTP gateway.
type ClientConfig struct {
	BaseURL               string
	RequestTimeoutSeconds int
	NoticeWindowMillis    int
	RedirectWindowMillis  int
}

// SessionConfig controls credential storage and refresh scheduling.
type SessionConfig struct {
	StateDir               string
	CredentialsFile        string
	RefreshMarginSeconds   int
	MinRefreshDelaySeconds int
	UseRedis               bool
	RedisNamespace         string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// StubConfig defines the bundled stub backend.
type StubConfig struct {
	Host                  string
	Port                  string
	JWTSecret             string
	AccessTokenTTLMinutes int
	RefreshTokenTTLHours  int
	BcryptCost            int
	PostgresDSN           string
	SeedAccounts          bool
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	home, _ := os.UserHomeDir()
	defaultStateDir := filepath.Join(home, ".adoption-client")

	cfg := &Config{
		Client: ClientConfig{
			BaseURL:               getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			NoticeWindowMillis:    getEnvAsInt("NOTICE_COALESCE_WINDOW_MS", 1200),
			RedirectWindowMillis:  getEnvAsInt("REDIRECT_RATE_LIMIT_MS", 1000),
		},
		Session: SessionConfig{
			StateDir:               getEnv("STATE_DIR", defaultStateDir),
			CredentialsFile:        getEnv("CREDENTIALS_FILE", "credentials.json"),
			RefreshMarginSeconds:   getEnvAsInt("REFRESH_MARGIN_SECONDS", 60),
			MinRefreshDelaySeconds: getEnvAsInt("MIN_REFRESH_DELAY_SECONDS", 5),
			UseRedis:               getEnvAsBool("CREDENTIALS_USE_REDIS", false),
			RedisNamespace:         getEnv("CREDENTIALS_REDIS_NAMESPACE", "adoption-client"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Stub: StubConfig{
			Host:                  getEnv("STUB_HOST", "0.0.0.0"),
			Port:                  getEnv("STUB_PORT", "8080"),
			JWTSecret:             getEnv("STUB_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("STUB_ACCESS_TOKEN_TTL_MINUTES", 30),
			RefreshTokenTTLHours:  getEnvAsInt("STUB_REFRESH_TOKEN_TTL_HOURS", 168),
			BcryptCost:            getEnvAsInt("STUB_BCRYPT_COST", 12),
			PostgresDSN:           os.Getenv("STUB_POSTGRES_DSN"),
			SeedAccounts:          getEnvAsBool("STUB_SEED_ACCOUNTS", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
	}

	return cfg, nil
}

// Addr returns the stub server bind address.
func (s StubConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (c ClientConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// NoticeWindow returns the duplicate-notice coalescing window.
func (c ClientConfig) NoticeWindow() time.Duration {
	return time.Duration(c.NoticeWindowMillis) * time.Millisecond
}

// RedirectWindow returns the redirect rate-limit window.
func (c ClientConfig) RedirectWindow() time.Duration {
	return time.Duration(c.RedirectWindowMillis) * time.Millisecond
}

// CredentialsPath returns the absolute credentials file location.
func (s SessionConfig) CredentialsPath() string {
	return filepath.Join(s.StateDir, s.CredentialsFile)
}

// RefreshMargin returns how long before expiry a refresh is armed.
func (s SessionConfig) RefreshMargin() time.Duration {
	return time.Duration(s.RefreshMarginSeconds) * time.Second
}

// MinRefreshDelay returns the floor for the refresh timer.
func (s SessionConfig) MinRefreshDelay() time.Duration {
	return time.Duration(s.MinRefreshDelaySeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
