package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Analysis.HistoryWindowDays != 30 {
		t.Errorf("HistoryWindowDays = %d, want 30", cfg.Analysis.HistoryWindowDays)
	}
	if cfg.Analysis.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want 10m", cfg.Analysis.CacheTTL)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("HISTORY_WINDOW_DAYS", "14")
	t.Setenv("RECOMMENDATION_CACHE_TTL", "30s")

	cfg := LoadConfig()

	if cfg.Server.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Analysis.HistoryWindowDays != 14 {
		t.Errorf("HistoryWindowDays = %d, want 14", cfg.Analysis.HistoryWindowDays)
	}
	if cfg.Analysis.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.Analysis.CacheTTL)
	}
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	t.Setenv("HISTORY_WINDOW_DAYS", "not-a-number")
	t.Setenv("RECOMMENDATION_CACHE_TTL", "soon")

	cfg := LoadConfig()

	if cfg.Analysis.HistoryWindowDays != 30 {
		t.Errorf("HistoryWindowDays = %d, want default 30", cfg.Analysis.HistoryWindowDays)
	}
	if cfg.Analysis.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want default 10m", cfg.Analysis.CacheTTL)
	}
}
