package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Source API
	AuthURL      string
	ServiceURL   string
	Username     string
	Password     string
	ClientID     string
	ClientSecret string

	// Warehouse
	ProjectID       string
	DatasetID       string
	GoldDatasetID   string
	CredentialsFile string

	// Run history store (optional)
	DatabaseURL string

	// Backfill window and scheduling
	HistoricalStart time.Time
	HistoricalEnd   time.Time
	RefreshDays     int // trailing-window recompute; <= 0 disables the refresh phase
	Workers         int
	TokenTTL        time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		AuthURL:         os.Getenv("API_BASE_URL_AUTH"),
		ServiceURL:      os.Getenv("API_BASE_URL_SERVICE"),
		Username:        os.Getenv("API_USERNAME"),
		Password:        os.Getenv("API_PASSWORD"),
		ClientID:        os.Getenv("API_CLIENT_ID"),
		ClientSecret:    os.Getenv("API_CLIENT_SECRET"),
		ProjectID:       os.Getenv("GCP_PROJECT_ID"),
		DatasetID:       os.Getenv("GCP_DATASET_ID"),
		GoldDatasetID:   getEnvDefault("GCP_GOLD_DATASET_ID", "GOLD_JUMA"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RefreshDays:     getEnvInt("ETL_REFRESH_DAYS", 10),
		Workers:         getEnvInt("ETL_WORKERS", runtime.NumCPU()),
		TokenTTL:        10 * time.Minute,
	}

	if cfg.AuthURL == "" || cfg.ServiceURL == "" {
		return nil, fmt.Errorf("API_BASE_URL_AUTH and API_BASE_URL_SERVICE are required")
	}
	if cfg.Username == "" || cfg.Password == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("API credentials (API_USERNAME, API_PASSWORD, API_CLIENT_ID, API_CLIENT_SECRET) are required")
	}
	if cfg.ProjectID == "" || cfg.DatasetID == "" {
		return nil, fmt.Errorf("GCP_PROJECT_ID and GCP_DATASET_ID are required")
	}
	if cfg.DatabaseURL == "" {
		fmt.Println("Warning: DATABASE_URL not set, run history will not be recorded")
	}

	var err error
	cfg.HistoricalStart, err = getEnvDate("ETL_HISTORICAL_START", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, err
	}
	cfg.HistoricalEnd, err = getEnvDate("ETL_HISTORICAL_END", today())
	if err != nil {
		return nil, err
	}

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return cfg, nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Printf("Warning: invalid %s=%q, using default %d\n", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDate(key string, fallback time.Time) (time.Time, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: expected YYYY-MM-DD, got %q", key, v)
	}
	return t, nil
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
