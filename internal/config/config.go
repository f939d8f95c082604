package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// BootstrapAPIKey, when set, is seeded as an active API key on startup so
	// a fresh deployment is reachable without manual key provisioning.
	BootstrapAPIKey      string
	BootstrapAPIClientID string

	RateLimit RateLimitConfig
	Webhook   WebhookConfig
}

// RateLimitConfig configures the fixed-window request limiter.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Per-category window sizing. Limits may be overridden per client via
	// Overrides; window sizes are fixed per category.
	ProvisioningWrite CategoryLimit
	ProvisioningRead  CategoryLimit
	UsageSingle       CategoryLimit
	UsageBatch        CategoryLimit

	// Overrides maps "clientID:category" to a limit.
	Overrides map[string]int
}

// CategoryLimit sizes one fixed window: at most Limit requests per
// WindowSeconds.
type CategoryLimit struct {
	Limit         int
	WindowSeconds int
}

// WebhookConfig configures event delivery.
type WebhookConfig struct {
	DeliveryTimeout time.Duration
	MaxAttempts     int
	RetryBase       time.Duration
	PollInterval    time.Duration
	BatchSize       int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "teleora"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "teleora"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		BootstrapAPIKey:      getenv("BOOTSTRAP_API_KEY", ""),
		BootstrapAPIClientID: getenv("BOOTSTRAP_API_CLIENT_ID", "bootstrap"),

		RateLimit: RateLimitConfig{
			Enabled:           getenvBool("RATE_LIMIT_ENABLED", true),
			RedisAddr:         getenv("RATE_LIMIT_REDIS_ADDR", ""),
			RedisPassword:     getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:           getenvInt("RATE_LIMIT_REDIS_DB", 0),
			ProvisioningWrite: getenvCategoryLimit("RATE_LIMIT_PROVISIONING_WRITE", 60),
			ProvisioningRead:  getenvCategoryLimit("RATE_LIMIT_PROVISIONING_READ", 300),
			UsageSingle:       getenvCategoryLimit("RATE_LIMIT_USAGE_SINGLE", 600),
			UsageBatch:        getenvCategoryLimit("RATE_LIMIT_USAGE_BATCH", 30),
			Overrides:         parseOverrides(getenv("RATE_LIMIT_OVERRIDES", "")),
		},

		Webhook: WebhookConfig{
			DeliveryTimeout: getenvDuration("WEBHOOK_DELIVERY_TIMEOUT", 10*time.Second),
			MaxAttempts:     getenvInt("WEBHOOK_MAX_ATTEMPTS", 5),
			RetryBase:       getenvDuration("WEBHOOK_RETRY_BASE", 30*time.Second),
			PollInterval:    getenvDuration("WEBHOOK_POLL_INTERVAL", 15*time.Second),
			BatchSize:       getenvInt("WEBHOOK_BATCH_SIZE", 50),
		},
	}
}

// getenvCategoryLimit reads "<key>" as the limit and "<key>_WINDOW_SECONDS"
// as the window, falling back to the shared RATE_LIMIT_WINDOW_SECONDS.
func getenvCategoryLimit(key string, defaultLimit int) CategoryLimit {
	return CategoryLimit{
		Limit:         getenvInt(key, defaultLimit),
		WindowSeconds: getenvInt(key+"_WINDOW_SECONDS", getenvInt("RATE_LIMIT_WINDOW_SECONDS", 60)),
	}
}

// parseOverrides parses "client:category=limit" pairs separated by commas.
func parseOverrides(raw string) map[string]int {
	overrides := map[string]int{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || limit <= 0 {
			continue
		}
		overrides[strings.TrimSpace(key)] = limit
	}
	return overrides
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// Module provides configuration to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)
