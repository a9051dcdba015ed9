// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	LLM     LLMConfig
	Service ServiceConfig
	Storage StorageConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	// Providers lists the providers to configure, in preference order.
	// The first entry is the preferred active provider.
	Providers   []string
	Model       string
	MaxTokens   uint32
	Temperature float64
}

// ServiceConfig holds orchestration tuning.
type ServiceConfig struct {
	ReserveTokens   int
	FailureBackoff  time.Duration
	RefreshInterval time.Duration
	RefreshDelay    time.Duration
}

// StorageConfig holds conversation persistence configuration.
type StorageConfig struct {
	// DatabasePath is the SQLite file location. Empty means in-memory
	// storage only.
	DatabasePath string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// defaultProviderOrder is used when ADEPT_PROVIDERS is unset.
var defaultProviderOrder = []string{"openai", "anthropic", "gemini", "deepseek"}

// New creates settings with the given preferred provider, loading values
// from environment variables. An empty provider defers to ADEPT_PROVIDERS
// or the built-in order. Returns an error if a provider is unknown or an
// environment variable contains an invalid value.
func New(provider string) (Settings, error) {
	order, err := providerOrder(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	reserve, err := getEnvInt("ADEPT_RESERVE_TOKENS", 1000)
	if err != nil {
		return Settings{}, err
	}

	backoff, err := getEnvDuration("ADEPT_FAILURE_BACKOFF", 5*time.Minute)
	if err != nil {
		return Settings{}, err
	}

	refreshInterval, err := getEnvDuration("ADEPT_REFRESH_INTERVAL", 24*time.Hour)
	if err != nil {
		return Settings{}, err
	}

	refreshDelay, err := getEnvDuration("ADEPT_REFRESH_DELAY", 2*time.Minute)
	if err != nil {
		return Settings{}, err
	}

	// Model override applies to the preferred provider only
	model, err := ModelFor(order[0])
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		LLM: LLMConfig{
			Providers:   order,
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Service: ServiceConfig{
			ReserveTokens:   reserve,
			FailureBackoff:  backoff,
			RefreshInterval: refreshInterval,
			RefreshDelay:    refreshDelay,
		},
		Storage: StorageConfig{
			DatabasePath: os.Getenv("ADEPT_DB_PATH"),
		},
	}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// providerOrder resolves the configured provider list, moving the
// preferred provider to the front when one is given.
func providerOrder(preferred string) ([]string, error) {
	order := defaultProviderOrder
	if val := os.Getenv("ADEPT_PROVIDERS"); val != "" {
		order = strings.Split(val, ",")
	}

	normalized := make([]string, 0, len(order))
	for _, name := range order {
		name = normalizeProvider(strings.TrimSpace(name))
		if _, err := getProviderInfo(name); err != nil {
			return nil, err
		}
		normalized = append(normalized, name)
	}

	if preferred == "" {
		return normalized, nil
	}
	preferred = normalizeProvider(preferred)
	if _, err := getProviderInfo(preferred); err != nil {
		return nil, err
	}

	result := []string{preferred}
	for _, name := range normalized {
		if name != preferred {
			result = append(result, name)
		}
	}
	return result, nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
