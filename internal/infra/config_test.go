package infra

import (
	"testing"
	"time"
)

func TestLoadConfigPollingDefaults(t *testing.T) {
	t.Setenv("POLL_INTERVAL_MS", "")
	t.Setenv("POLL_MAX_ATTEMPTS", "")
	t.Setenv("CONCEPT_API_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("PollInterval = %s, want 2s", cfg.PollInterval)
	}
	if cfg.PollMaxAttempts != 60 {
		t.Fatalf("PollMaxAttempts = %d, want 60", cfg.PollMaxAttempts)
	}
	if cfg.ConceptAPIBaseURL != "http://localhost:8000" {
		t.Fatalf("ConceptAPIBaseURL = %q", cfg.ConceptAPIBaseURL)
	}
}

func TestLoadConfigTrimsBaseURL(t *testing.T) {
	t.Setenv("CONCEPT_API_BASE_URL", "https://concept.example.com/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ConceptAPIBaseURL != "https://concept.example.com" {
		t.Fatalf("ConceptAPIBaseURL = %q, want trailing slash removed", cfg.ConceptAPIBaseURL)
	}
}

func TestLoadConfigRejectsRelativeBaseURL(t *testing.T) {
	t.Setenv("CONCEPT_API_BASE_URL", "concept-backend")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}

func TestLoadConfigRejectsZeroAttempts(t *testing.T) {
	t.Setenv("POLL_MAX_ATTEMPTS", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for zero attempt budget")
	}
}

func TestLoadConfigCSVOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.CORSAllowedOrigins) != len(want) {
		t.Fatalf("CORSAllowedOrigins = %#v, want %#v", cfg.CORSAllowedOrigins, want)
	}
	for i := range want {
		if cfg.CORSAllowedOrigins[i] != want[i] {
			t.Fatalf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.CORSAllowedOrigins[i], want[i])
		}
	}
}

func TestConfigUsesPostgres(t *testing.T) {
	tests := map[string]bool{
		"postgres://u:p@localhost/db": true,
		"postgresql://localhost/db":   true,
		"":                            false,
		"file:./data/studio.db":       false,
		"POSTGRES://upper.example/db": true,
	}
	for url, want := range tests {
		cfg := &Config{DatabaseURL: url}
		if got := cfg.UsesPostgres(); got != want {
			t.Fatalf("UsesPostgres(%q) = %v, want %v", url, got, want)
		}
	}
}
