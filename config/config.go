package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	API      APIConfig
	Stripe   StripeConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Checkout CheckoutConfig
	App      AppConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	TrustedProxies []string // empty trusts no proxy headers
}

// APIConfig points at the external marketplace backend.
type APIConfig struct {
	URL       string // REST root, e.g. https://api.akeditz.com/api
	BaseURL   string // asset root used to resolve relative image paths
	RateLimit float64
	Burst     int
	Timeout   time.Duration
}

type StripeConfig struct {
	PublishableKey string
	SecretKey      string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	DSN string
}

type CheckoutConfig struct {
	Currency         string
	IntentRetries    int
	IntentRetryDelay time.Duration
	QRPollInterval   time.Duration
	QRTimeout        time.Duration
	RedirectDelay    time.Duration
	SnapshotTTL      time.Duration
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
		},
		API: APIConfig{
			URL:       getEnv("API_URL", getEnv("VITE_API_URL", "http://localhost:5000/api")),
			BaseURL:   getEnv("API_BASE_URL", getEnv("VITE_API_BASE_URL", "http://localhost:5000")),
			RateLimit: getEnvAsFloat("API_RATE_LIMIT", 20),
			Burst:     getEnvAsInt("API_RATE_BURST", 40),
			Timeout:   getEnvAsDuration("API_TIMEOUT", 30*time.Second),
		},
		Stripe: StripeConfig{
			PublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", getEnv("VITE_STRIPE_PUBLISHABLE_KEY", "")),
			SecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			DSN: getEnv("DB_DSN", ""),
		},
		Checkout: CheckoutConfig{
			Currency:         getEnv("CHECKOUT_CURRENCY", "usd"),
			IntentRetries:    getEnvAsInt("INTENT_RETRIES", 3),
			IntentRetryDelay: getEnvAsDuration("INTENT_RETRY_DELAY", 2*time.Second),
			QRPollInterval:   getEnvAsDuration("QR_POLL_INTERVAL", 3*time.Second),
			QRTimeout:        getEnvAsDuration("QR_TIMEOUT", 15*time.Minute),
			RedirectDelay:    getEnvAsDuration("CHECKOUT_REDIRECT_DELAY", 3*time.Second),
			SnapshotTTL:      getEnvAsDuration("CHECKOUT_SNAPSHOT_TTL", 24*time.Hour),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.API.URL == "" {
		return fmt.Errorf("API_URL is required")
	}
	if _, err := url.ParseRequestURI(c.API.URL); err != nil {
		return fmt.Errorf("API_URL is invalid: %w", err)
	}

	if c.Checkout.IntentRetries < 0 {
		return fmt.Errorf("INTENT_RETRIES must not be negative")
	}

	if c.Checkout.QRPollInterval <= 0 {
		return fmt.Errorf("QR_POLL_INTERVAL must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %g", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
