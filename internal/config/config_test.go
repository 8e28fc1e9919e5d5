package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("API_BASE_URL_AUTH", "https://erp.example.com/auth/token")
	t.Setenv("API_BASE_URL_SERVICE", "https://erp.example.com/api/v1")
	t.Setenv("API_USERNAME", "etl-user")
	t.Setenv("API_PASSWORD", "secret")
	t.Setenv("API_CLIENT_ID", "client-id")
	t.Setenv("API_CLIENT_SECRET", "client-secret")
	t.Setenv("GCP_PROJECT_ID", "test-project")
	t.Setenv("GCP_DATASET_ID", "SILVER")
}

func TestLoad_Success(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ETL_HISTORICAL_START", "2024-01-01")
	t.Setenv("ETL_HISTORICAL_END", "2024-06-30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.AuthURL != "https://erp.example.com/auth/token" {
		t.Errorf("expected AuthURL to be set, got %s", cfg.AuthURL)
	}
	if cfg.ProjectID != "test-project" {
		t.Errorf("expected ProjectID to be set, got %s", cfg.ProjectID)
	}

	// Check defaults
	if cfg.GoldDatasetID != "GOLD_JUMA" {
		t.Errorf("expected default gold dataset, got %s", cfg.GoldDatasetID)
	}
	if cfg.RefreshDays != 10 {
		t.Errorf("expected RefreshDays to be 10, got %d", cfg.RefreshDays)
	}
	if cfg.TokenTTL != 10*time.Minute {
		t.Errorf("expected TokenTTL to be 10m, got %v", cfg.TokenTTL)
	}
	if cfg.Workers < 1 {
		t.Errorf("expected at least one worker, got %d", cfg.Workers)
	}

	wantStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.HistoricalStart.Equal(wantStart) {
		t.Errorf("expected historical start %v, got %v", wantStart, cfg.HistoricalStart)
	}
}

func TestLoad_MissingAPIConfig(t *testing.T) {
	os.Unsetenv("API_BASE_URL_AUTH")
	os.Unsetenv("API_BASE_URL_SERVICE")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when API URLs are missing, got nil")
	}
}

func TestLoad_InvalidHistoricalDate(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ETL_HISTORICAL_START", "01/01/2024")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for malformed historical start date, got nil")
	}
}

func TestServiceFor(t *testing.T) {
	svc, ok := ServiceFor("DOCUMENTOS_FISCAIS_SAIDA")
	if !ok {
		t.Fatal("expected service to exist")
	}
	if svc.Table != "DOCUMENTOS_FISCAIS_SAIDA" {
		t.Errorf("expected Table to be filled from key, got %s", svc.Table)
	}
	if !svc.Incremental() {
		t.Error("expected transactional service to be incremental")
	}

	if _, ok := ServiceFor("NOPE"); ok {
		t.Error("expected lookup of unknown table to fail")
	}
}

func TestAllServices_DeterministicOrder(t *testing.T) {
	first := AllServices()
	second := AllServices()

	if len(first) != len(Services) {
		t.Fatalf("expected %d services, got %d", len(Services), len(first))
	}
	for i := range first {
		if first[i].Table != second[i].Table {
			t.Fatalf("ordering not deterministic: %s vs %s", first[i].Table, second[i].Table)
		}
		if first[i].Table == "" {
			t.Error("expected Table to be populated")
		}
	}
}

func TestTriggerMap_PointsAtConfiguredGoldViews(t *testing.T) {
	for table, view := range TriggerMap {
		if _, ok := Services[table]; !ok {
			t.Errorf("trigger table %s is not a configured service", table)
		}
		if _, ok := GoldTables[view]; !ok {
			t.Errorf("trigger view %s has no gold table spec", view)
		}
	}
}
