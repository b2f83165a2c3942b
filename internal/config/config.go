package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAddr          = ":8080"
	DefaultRedisAddr     = "localhost:6379"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

// Server holds everything the HTTP backend reads from the environment.
type Server struct {
	Addr      string
	DSN       string
	JWTSecret string
	RedisAddr string

	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string
	LLMTimeout    time.Duration
	LLMMaxRetries int
	LLMRetryDelay time.Duration

	SessionTTL   time.Duration
	CookieSecure bool

	ReconcileInterval time.Duration
	TurnStallAfter    time.Duration

	LogLevel string
}

// LoadServer reads a .env file when present, then the process environment.
func LoadServer() (*Server, error) {
	// Missing .env is fine in containers.
	_ = godotenv.Load()

	cfg := &Server{
		Addr:              getEnv("ADDR", DefaultAddr),
		DSN:               os.Getenv("DB_DSN"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		RedisAddr:         getEnv("REDIS_ADDR", DefaultRedisAddr),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", DefaultGeminiBaseURL),
		GeminiModel:       getEnv("GEMINI_MODEL", DefaultGeminiModel),
		LLMTimeout:        getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		LLMMaxRetries:     getEnvInt("LLM_MAX_RETRIES", 2),
		LLMRetryDelay:     getEnvDuration("LLM_RETRY_DELAY", time.Second),
		SessionTTL:        getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		CookieSecure:      getEnvBool("COOKIE_SECURE", false),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Minute),
		TurnStallAfter:    getEnvDuration("TURN_STALL_AFTER", 5*time.Minute),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	return cfg, cfg.Validate()
}

func (c *Server) Validate() error {
	if c.DSN == "" {
		return errors.New("DB_DSN is not set")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if c.LLMMaxRetries < 0 || c.LLMMaxRetries > 10 {
		return fmt.Errorf("LLM_MAX_RETRIES must be 0-10, got %d", c.LLMMaxRetries)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.ReconcileInterval <= 0 || c.TurnStallAfter <= 0 {
		return errors.New("RECONCILE_INTERVAL and TURN_STALL_AFTER must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v == "true" || v == "1"
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
