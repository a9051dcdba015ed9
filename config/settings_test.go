package config

import (
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	settings, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(settings.LLM.Providers) != 4 {
		t.Errorf("providers = %v", settings.LLM.Providers)
	}
	if settings.LLM.Providers[0] != "openai" {
		t.Errorf("preferred = %q, want openai", settings.LLM.Providers[0])
	}
	if settings.LLM.MaxTokens != 4096 {
		t.Errorf("max tokens = %d", settings.LLM.MaxTokens)
	}
	if settings.LLM.Temperature != 0.7 {
		t.Errorf("temperature = %v", settings.LLM.Temperature)
	}
	if settings.Service.ReserveTokens != 1000 {
		t.Errorf("reserve = %d", settings.Service.ReserveTokens)
	}
	if settings.Service.FailureBackoff != 5*time.Minute {
		t.Errorf("backoff = %v", settings.Service.FailureBackoff)
	}
	if settings.Service.RefreshInterval != 24*time.Hour {
		t.Errorf("refresh interval = %v", settings.Service.RefreshInterval)
	}
}

func TestNewPreferredProviderFirst(t *testing.T) {
	settings, err := New("claude")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if settings.LLM.Providers[0] != "anthropic" {
		t.Errorf("preferred = %q, want anthropic", settings.LLM.Providers[0])
	}
	// The rest of the order is preserved without duplicates
	seen := map[string]int{}
	for _, name := range settings.LLM.Providers {
		seen[name]++
	}
	if seen["anthropic"] != 1 || len(settings.LLM.Providers) != 4 {
		t.Errorf("providers = %v", settings.LLM.Providers)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New("cohere"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewProvidersFromEnv(t *testing.T) {
	t.Setenv("ADEPT_PROVIDERS", "gemini, deepseek")
	settings, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(settings.LLM.Providers) != 2 || settings.LLM.Providers[0] != "gemini" {
		t.Errorf("providers = %v", settings.LLM.Providers)
	}
}

func TestNewInvalidEnvValues(t *testing.T) {
	cases := map[string]string{
		"LLM_MAX_TOKENS":       "not-a-number",
		"LLM_TEMPERATURE":      "hot",
		"ADEPT_RESERVE_TOKENS": "many",
		"ADEPT_FAILURE_BACKOFF": "5 parsecs",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := New(""); err == nil {
				t.Errorf("no error for %s=%q", key, val)
			}
		})
	}
}

func TestNewEnvOverrides(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "8192")
	t.Setenv("ADEPT_FAILURE_BACKOFF", "90s")
	t.Setenv("ADEPT_DB_PATH", "/tmp/adept-test.db")

	settings, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if settings.LLM.MaxTokens != 8192 {
		t.Errorf("max tokens = %d", settings.LLM.MaxTokens)
	}
	if settings.Service.FailureBackoff != 90*time.Second {
		t.Errorf("backoff = %v", settings.Service.FailureBackoff)
	}
	if settings.Storage.DatabasePath != "/tmp/adept-test.db" {
		t.Errorf("db path = %q", settings.Storage.DatabasePath)
	}
}

func TestModelFor(t *testing.T) {
	model, err := ModelFor("google")
	if err != nil {
		t.Fatalf("ModelFor: %v", err)
	}
	if model != "gemini-2.5-flash" {
		t.Errorf("model = %q", model)
	}

	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
	model, err = ModelFor("gemini")
	if err != nil {
		t.Fatalf("ModelFor: %v", err)
	}
	if model != "gemini-2.5-pro" {
		t.Errorf("model = %q", model)
	}
}

func TestAPIKeyFor(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	if _, err := APIKeyFor("deepseek"); err == nil {
		t.Error("expected error when key unset")
	}

	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	key, err := APIKeyFor("deepseek")
	if err != nil || key != "sk-test" {
		t.Errorf("APIKeyFor = %q, %v", key, err)
	}
}

func TestSupportedProviders(t *testing.T) {
	names := SupportedProviders()
	if len(names) != 4 {
		t.Errorf("got %d providers", len(names))
	}
}
