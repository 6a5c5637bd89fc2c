package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type DedupBackend string

const (
	DedupMemory DedupBackend = "memory"
	DedupRedis  DedupBackend = "redis"
)

type Config struct {
	Port        string
	DatabaseURL string

	// Redis is optional. An empty RedisAddr disables the shared dedup backend
	// and the dispatch event stream.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DedupBackend  DedupBackend
	WebhookSecret string

	JWTSecret string
	JWTIssuer string

	PushTTLSeconds     int
	PushSendTimeout    time.Duration
	PushMaxConcurrency int

	CORSAllowedOrigins []string
	LogLevel           string
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DedupBackend:  DedupBackend(getEnv("DEDUP_BACKEND", string(DedupMemory))),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		JWTIssuer:     os.Getenv("JWT_ISSUER"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.PushTTLSeconds, err = getInt("PUSH_TTL_SECONDS", 300); err != nil {
		return Config{}, err
	}
	if cfg.PushMaxConcurrency, err = getInt("PUSH_MAX_CONCURRENCY", 16); err != nil {
		return Config{}, err
	}
	if cfg.PushSendTimeout, err = getDuration("PUSH_SEND_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}

	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	switch c.DedupBackend {
	case DedupMemory:
	case DedupRedis:
		if c.RedisAddr == "" {
			return errors.New("DEDUP_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown DEDUP_BACKEND %q", c.DedupBackend)
	}
	if c.PushTTLSeconds < 0 {
		return errors.New("PUSH_TTL_SECONDS must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
