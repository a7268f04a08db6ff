package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderModeChallonge = "challonge"
	ProviderModeMemory    = "memory"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL string
	ServerPort  int
	LogLevel    string

	Provider ProviderConfig
	League   LeagueConfig
	Archive  ArchiveConfig

	ReconcileInterval time.Duration
	CORSOrigins       []string
}

// ProviderConfig is handed to the bracket provider client at construction time.
type ProviderConfig struct {
	Mode          string
	BaseURL       string
	Username      string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	MaxRetries    int
}

type LeagueConfig struct {
	DefaultCapacity int
	DefaultBestOf   int
	GameName        string
}

// ArchiveConfig describes the optional S3-compatible bucket for standings snapshots.
// An empty BucketName disables archiving.
type ArchiveConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
}

func (a ArchiveConfig) Enabled() bool {
	return a.BucketName != ""
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	provider, err := loadProvider()
	if err != nil {
		return nil, err
	}

	league, err := loadLeague()
	if err != nil {
		return nil, err
	}

	reconcileInterval, err := getEnvDuration("RECONCILE_INTERVAL", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	if reconcileInterval <= 0 {
		return nil, fmt.Errorf("RECONCILE_INTERVAL must be positive, got %s", reconcileInterval)
	}

	cfg := &Config{
		DatabaseURL:       dbURL,
		ServerPort:        port,
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		Provider:          provider,
		League:            league,
		ReconcileInterval: reconcileInterval,
		CORSOrigins:       splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		Archive: ArchiveConfig{
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
		},
	}

	return cfg, nil
}

func loadProvider() (ProviderConfig, error) {
	mode := strings.ToLower(getEnvOrDefault("PROVIDER_MODE", ProviderModeChallonge))
	if mode != ProviderModeChallonge && mode != ProviderModeMemory {
		return ProviderConfig{}, fmt.Errorf("PROVIDER_MODE must be %q or %q, got %q", ProviderModeChallonge, ProviderModeMemory, mode)
	}

	timeout, err := getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second)
	if err != nil {
		return ProviderConfig{}, err
	}
	rate, err := getEnvFloat("PROVIDER_RATE_PER_SEC", 4)
	if err != nil {
		return ProviderConfig{}, err
	}
	retries, err := getEnvInt("PROVIDER_MAX_RETRIES", 3)
	if err != nil {
		return ProviderConfig{}, err
	}

	pc := ProviderConfig{
		Mode:          mode,
		BaseURL:       getEnvOrDefault("CHALLONGE_BASE_URL", "https://api.challonge.com/v1"),
		Username:      os.Getenv("CHALLONGE_USER"),
		APIKey:        os.Getenv("CHALLONGE_KEY"),
		Timeout:       timeout,
		RatePerSecond: rate,
		MaxRetries:    retries,
	}
	if mode == ProviderModeChallonge && (pc.Username == "" || pc.APIKey == "") {
		return ProviderConfig{}, fmt.Errorf("CHALLONGE_USER and CHALLONGE_KEY are required when PROVIDER_MODE=%s", ProviderModeChallonge)
	}
	return pc, nil
}

func loadLeague() (LeagueConfig, error) {
	capacity, err := getEnvInt("DEFAULT_CAPACITY", 16)
	if err != nil {
		return LeagueConfig{}, err
	}
	if capacity < 2 {
		return LeagueConfig{}, fmt.Errorf("DEFAULT_CAPACITY must be at least 2, got %d", capacity)
	}
	bestOf, err := getEnvInt("DEFAULT_BEST_OF", 5)
	if err != nil {
		return LeagueConfig{}, err
	}
	if bestOf < 1 || bestOf%2 == 0 {
		return LeagueConfig{}, fmt.Errorf("DEFAULT_BEST_OF must be a positive odd number, got %d", bestOf)
	}
	return LeagueConfig{
		DefaultCapacity: capacity,
		DefaultBestOf:   bestOf,
		GameName:        getEnvOrDefault("GAME_NAME", "Hero Realms Digital"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
