// Security tests for LLM providers to ensure error messages don't leak API keys.
package llm

import (
	"context"
	"strings"
	"testing"
	"time"
)

// TestOpenAIErrorNoAPIKeyLeak verifies OpenAI errors don't contain API keys
func TestOpenAIErrorNoAPIKeyLeak(t *testing.T) {
	// Use intentionally invalid API key
	testKey := "sk-test-invalid-key-12345xyz"
	provider := NewOpenAIProvider(testKey, "gpt-4o", 100, 0.7)

	// Force error with invalid key
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := provider.Send(ctx, []ChatMessage{
		{Role: "user", Content: "test"},
	})

	// Should return an error
	if err == nil {
		t.Skip("Expected error with invalid API key, but got success - skipping leak test")
	}

	// Verify error doesn't contain the API key
	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("OpenAI error message leaked API key: %v", errStr)
	}

	// Should not contain common auth header patterns
	if strings.Contains(errStr, "Authorization:") {
		t.Errorf("OpenAI error exposed Authorization header: %v", errStr)
	}
}

// TestAnthropicErrorNoAPIKeyLeak verifies Anthropic errors don't contain API keys
func TestAnthropicErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-ant-REDACTED"
	provider := NewAnthropicProvider(testKey, "claude-sonnet-4-20250514", 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := provider.Send(ctx, []ChatMessage{
		{Role: "user", Content: "test"},
	})

	if err == nil {
		t.Skip("Expected error with invalid API key, but got success - skipping leak test")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("Anthropic error message leaked API key: %v", errStr)
	}

	if strings.Contains(errStr, "x-api-key:") || strings.Contains(errStr, "X-API-Key:") {
		t.Errorf("Anthropic error exposed API key header: %v", errStr)
	}
}

// TestDeepSeekErrorNoAPIKeyLeak verifies DeepSeek errors don't contain API keys
func TestDeepSeekErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-test-invalid-key-12345xyz"
	provider := NewDeepSeekProvider(testKey, "deepseek-chat", 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := provider.Send(ctx, []ChatMessage{
		{Role: "user", Content: "test"},
	})

	if err == nil {
		t.Skip("Expected error with invalid API key, but got success - skipping leak test")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("DeepSeek error message leaked API key: %v", errStr)
	}

	if strings.Contains(errStr, "Authorization:") {
		t.Errorf("DeepSeek error exposed Authorization header: %v", errStr)
	}
}

// TestGeminiSendBeforeInitialize verifies Gemini reports a clear error
// when used before Initialize built the client
func TestGeminiSendBeforeInitialize(t *testing.T) {
	provider := NewGeminiProvider("test-key", "gemini-2.5-flash", 100, 0.7)

	_, err := provider.Send(context.Background(), []ChatMessage{
		{Role: "user", Content: "test"},
	})
	if err == nil {
		t.Fatal("Expected error before initialization, got nil")
	}
	if !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("Expected initialization error, got: %v", err)
	}
}

// TestInitializeWithoutKey verifies every provider rejects initialization
// without a credential and reports the missing key
func TestInitializeWithoutKey(t *testing.T) {
	providers := []Provider{
		NewOpenAIProvider("", "gpt-4o", 100, 0.7),
		NewAnthropicProvider("", "claude-sonnet-4-20250514", 100, 0.7),
		NewDeepSeekProvider("", "deepseek-chat", 100, 0.7),
		NewGeminiProvider("", "gemini-2.5-flash", 100, 0.7),
	}
	for _, p := range providers {
		if p.HasValidAPIKey() {
			t.Errorf("%s: HasValidAPIKey = true without a key", p.Name())
		}
		if err := p.Initialize(context.Background()); err == nil {
			t.Errorf("%s: Initialize succeeded without a key", p.Name())
		}
	}
}

// TestStreamErrorNoAPIKeyLeak verifies streaming errors don't leak API keys
func TestStreamErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-test-invalid-key-12345xyz"
	provider := NewOpenAIProvider(testKey, "gpt-4o", 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chunks := make(chan string, 10)
	_, err := provider.SendStreaming(ctx, []ChatMessage{
		{Role: "user", Content: "test"},
	}, chunks)

	if err == nil {
		t.Skip("Expected error with invalid API key, but got success - skipping leak test")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("Stream error message leaked API key: %v", errStr)
	}
}

// TestToolCallErrorNoAPIKeyLeak verifies tool call errors don't leak API keys
func TestToolCallErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-test-invalid-key-12345xyz"
	provider := NewOpenAIProvider(testKey, "gpt-4o", 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tools := []ToolDefinition{
		{
			Name:        "test_tool",
			Description: "A test tool",
			Parameters:  map[string]interface{}{"type": "object"},
		},
	}

	_, err := provider.SendWithTools(ctx, []ChatMessage{
		{Role: "user", Content: "test"},
	}, tools)

	if err == nil {
		t.Skip("Expected error with invalid API key, but got success - skipping leak test")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("Tool call error message leaked API key: %v", errStr)
	}
}

// TestSetModelSwitchesWithinCatalog verifies model switching is bounded
// by the provider's known catalog
func TestSetModelSwitchesWithinCatalog(t *testing.T) {
	provider := NewOpenAIProvider("test-key", "gpt-4o", 100, 0.7)

	if !provider.SetModel("gpt-4o-mini") {
		t.Fatal("SetModel rejected a cataloged model")
	}
	if got := provider.CurrentModel().ID; got != "gpt-4o-mini" {
		t.Errorf("current model = %q, want gpt-4o-mini", got)
	}
	if provider.SetModel("not-a-model") {
		t.Error("SetModel accepted an unknown model")
	}
}
