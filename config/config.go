package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	IdentityBaseURL  string
	IdentityAPIToken string

	TwitchClientID     string
	TwitchClientSecret string
	TwitchChannels     []string

	ServerPollInterval time.Duration
	StreamPollInterval time.Duration
	SweepInterval      time.Duration

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load() // Отсутствие .env не фатально

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	identityBaseURL := os.Getenv("IDENTITY_BASE_URL")
	if identityBaseURL == "" {
		return nil, fmt.Errorf("IDENTITY_BASE_URL environment variable is not set")
	}

	serverPoll, err := durationEnv("SERVER_POLL_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}
	streamPoll, err := durationEnv("STREAM_POLL_INTERVAL", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	sweep, err := durationEnv("SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	var channels []string
	if raw := os.Getenv("TWITCH_CHANNELS"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				channels = append(channels, c)
			}
		}
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,

		IdentityBaseURL:  identityBaseURL,
		IdentityAPIToken: os.Getenv("IDENTITY_API_TOKEN"),

		TwitchClientID:     os.Getenv("TWITCH_CLIENT_ID"),
		TwitchClientSecret: os.Getenv("TWITCH_CLIENT_SECRET"),
		TwitchChannels:     channels,

		ServerPollInterval: serverPoll,
		StreamPollInterval: streamPoll,
		SweepInterval:      sweep,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

// StreamTrackingEnabled - трекер стримов включается только при полном
// наборе Twitch-кредов.
func (c *Config) StreamTrackingEnabled() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != "" && len(c.TwitchChannels) > 0
}

// R2Enabled - загрузка логотипов включается только при полном наборе
// кредов R2.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return v, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return v, nil
}
