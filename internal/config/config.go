package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/completion"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/retryhttp"
)

type Config struct {
	Port                  string
	DBUrl                 string
	JWTSecret             string
	AppEnv                string
	CompletionAPIKey      string
	CompletionBaseURL     string
	CompletionModel       string
	CompletionMaxAttempts int
	CompletionTimeout     time.Duration
	EnableMetrics         bool
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	maxAttempts := getEnvInt("COMPLETION_MAX_ATTEMPTS", retryhttp.DefaultMaxAttempts)
	if maxAttempts < 1 {
		return nil, fmt.Errorf("COMPLETION_MAX_ATTEMPTS must be at least 1")
	}

	return &Config{
		Port:                  getEnv("PORT", "8080"),
		DBUrl:                 getEnv("DB_URL", ""),
		JWTSecret:             jwtSecret,
		AppEnv:                normalizeEnv(getEnv("APP_ENV", "production")),
		CompletionAPIKey:      getEnv("COMPLETION_API_KEY", ""),
		CompletionBaseURL:     getEnv("COMPLETION_BASE_URL", completion.DefaultBaseURL),
		CompletionModel:       getEnv("COMPLETION_MODEL", completion.DefaultModel),
		CompletionMaxAttempts: maxAttempts,
		CompletionTimeout:     getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second),
		EnableMetrics:         getEnvBool("ENABLE_METRICS", true),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}

func (c *Config) CompletionConfigured() bool {
	return c != nil && c.CompletionAPIKey != ""
}
