package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Cameras  CamerasConfig
	Render   RenderConfig
	Redis    RedisConfig
	LogLevel string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  int
	WriteTimeout int
	RateLimit    float64 // snapshot requests per second per client, 0 disables
	RateBurst    int

	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is honoured
	TrustedProxies []string
}

// CamerasConfig holds camera definition and asset locations
type CamerasConfig struct {
	File     string
	FontsDir string
}

// RenderConfig holds render pipeline configuration
type RenderConfig struct {
	Workers       int
	Timeout       time.Duration
	GraceWindow   time.Duration
	SourceTimeout time.Duration
	FrameTTL      time.Duration
	StatesKey     string
}

// RedisConfig holds Redis-related configuration
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	StateStream   string
	StateConsumer bool // consume StateStream into the state hash
	ConsumerGroup string
	ConsumerName  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			RateLimit:    getEnvAsFloat("SNAPSHOT_RATE_LIMIT", 0),
			RateBurst:    getEnvAsInt("SNAPSHOT_RATE_BURST", 10),

			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES"),
		},
		Cameras: CamerasConfig{
			File:     getEnv("CAMERAS_FILE", "/etc/snapshot-processor/cameras.yaml"),
			FontsDir: getEnv("FONTS_DIR", "/usr/share/snapshot-processor/fonts"),
		},
		Render: RenderConfig{
			Workers:       getEnvAsInt("RENDER_WORKERS", 4),
			Timeout:       getEnvAsDuration("RENDER_TIMEOUT", 30*time.Second),
			GraceWindow:   getEnvAsDuration("RENDER_GRACE_WINDOW", 20*time.Millisecond),
			SourceTimeout: getEnvAsDuration("SOURCE_TIMEOUT", 10*time.Second),
			FrameTTL:      getEnvAsDuration("FRAME_TTL", 10*time.Minute),
			StatesKey:     getEnv("STATES_KEY", "entity_states"),
		},
		Redis: RedisConfig{
			Addr:          getRedisAddr(),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			StateStream:   getEnv("STATE_STREAM", "snapshot:state_changes"),
			StateConsumer: getEnvAsBool("STATE_CONSUMER_ENABLED", true),
			ConsumerGroup: getEnv("REDIS_CONSUMER_GROUP", "snapshot-processor"),
			ConsumerName:  getEnv("REDIS_CONSUMER_NAME", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// getRedisAddr resolves the Redis address from REDIS_URL (with or without
// the redis:// scheme), then REDIS_ADDR
func getRedisAddr() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return strings.TrimPrefix(url, "redis://")
	}
	return getEnv("REDIS_ADDR", "localhost:6379")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as float64 or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsSlice splits a comma-separated environment variable, dropping
// empty entries
func getEnvAsSlice(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// getEnvAsDuration accepts Go durations ("250ms") or plain seconds ("30")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
