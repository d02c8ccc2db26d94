package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the service.
type Config struct {
	HTTPPort  string
	JWTSecret []byte

	// AdminUsername and AdminPasswordHash guard the admin login endpoint.
	// The hash is bcrypt; generate one with the hashpw tool.
	AdminUsername     string
	AdminPasswordHash string

	// ViewerUsername and ViewerPasswordHash optionally configure a
	// read-only operator account. Leave the hash empty to disable it.
	ViewerUsername     string
	ViewerPasswordHash string

	// APIKeys is a comma-separated "key:tier" list seeding the in-memory
	// key store, e.g. "vis_abc123:pro,vis_def456:free".
	APIKeys string

	Database DatabaseConfig
	Redis    RedisConfig
	Provider ProviderConfig
	Scan     ScanConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis connection settings for the usage queue.
type RedisConfig struct {
	// Enabled switches the usage queue from memory to Redis.
	Enabled      bool
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProviderConfig holds LLM provider settings. Missing keys are allowed:
// the adapter reports the failure on first use instead of blocking
// startup.
type ProviderConfig struct {
	OpenAIKey    string
	GeminiKey    string
	AnthropicKey string

	RequestTimeout time.Duration

	// SkipStartupHealthCheck skips probing every model at boot. Useful in
	// development where most keys are absent.
	SkipStartupHealthCheck bool
}

// ScanConfig holds visibility run settings.
type ScanConfig struct {
	// PersistScans toggles database persistence; without it the service
	// runs stateless and only returns reports.
	PersistScans bool
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		HTTPPort:  getEnvString("HTTP_PORT", "8080"),
		JWTSecret: []byte(jwtSecret),

		AdminUsername:     getEnvString("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),

		ViewerUsername:     getEnvString("ADMIN_VIEWER_USERNAME", "viewer"),
		ViewerPasswordHash: os.Getenv("ADMIN_VIEWER_PASSWORD_HASH"),

		APIKeys: os.Getenv("API_KEYS"),

		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Provider: ProviderConfig{
			OpenAIKey:              os.Getenv("OPENAI_API_KEY"),
			GeminiKey:              os.Getenv("GEMINI_API_KEY"),
			AnthropicKey:           os.Getenv("ANTHROPIC_API_KEY"),
			RequestTimeout:         getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 30*time.Second),
			SkipStartupHealthCheck: getEnvBool("SKIP_STARTUP_HEALTH_CHECK", false),
		},
		Scan: ScanConfig{
			PersistScans: os.Getenv("DATABASE_URL") != "",
		},
	}

	return cfg, nil
}
