package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CRM_TIMEOUT_SECONDS", "")
	t.Setenv("LOCAL_SEARCH_WINDOW_DAYS", "")
	t.Setenv("CRM_SEARCH_WINDOW_DAYS", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.CRMTimeoutSeconds != 20 {
		t.Fatalf("expected default CRM timeout 20s, got %d", cfg.CRMTimeoutSeconds)
	}
	if cfg.LocalSearchWindowDays != 30 {
		t.Fatalf("expected default local window 30 days, got %d", cfg.LocalSearchWindowDays)
	}
	if cfg.CRMSearchWindowDays != 365 {
		t.Fatalf("expected default CRM window 365 days, got %d", cfg.CRMSearchWindowDays)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token TTL 480 minutes, got %d", cfg.AccessTokenTTLMinutes)
	}
}

func TestCRMConfigured(t *testing.T) {
	cfg := Config{}
	if cfg.CRMConfigured() {
		t.Fatalf("empty config should not report CRM configured")
	}
	cfg.CRMBaseURL = "https://crm.example.com"
	if cfg.CRMConfigured() {
		t.Fatalf("base URL alone should not report configured")
	}
	cfg.CRMAPIKey = "key"
	if !cfg.CRMConfigured() {
		t.Fatalf("base URL and key should report configured")
	}
}

func TestInvalidNumericEnvFallsBack(t *testing.T) {
	t.Setenv("CRM_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("LOCAL_SEARCH_WINDOW_DAYS", "-3")

	cfg := Load()
	if cfg.CRMTimeoutSeconds != 20 {
		t.Fatalf("invalid timeout should fall back to 20, got %d", cfg.CRMTimeoutSeconds)
	}
	if cfg.LocalSearchWindowDays != 30 {
		t.Fatalf("negative window should fall back to 30, got %d", cfg.LocalSearchWindowDays)
	}
}

func TestAddress(t *testing.T) {
	cfg := Config{Port: "9000"}
	if cfg.Address() != ":9000" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}
