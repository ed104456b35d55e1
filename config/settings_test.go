package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/richinex/parallax/llm"
)

func TestNewDefaults(t *testing.T) {
	settings, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.RateLimit.PerMinute != 30 {
		t.Errorf("expected default per-minute limit 30, got %d", settings.RateLimit.PerMinute)
	}
	if settings.Breaker.FailureThreshold != 5 {
		t.Errorf("expected default failure threshold 5, got %d", settings.Breaker.FailureThreshold)
	}
	if settings.Orchestrator.CallerScope != "default" {
		t.Errorf("expected default caller scope, got %q", settings.Orchestrator.CallerScope)
	}
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "7")
	t.Setenv("BREAKER_COOLDOWN_SECONDS", "90")

	settings, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.RateLimit.PerMinute != 7 {
		t.Errorf("expected per-minute limit 7, got %d", settings.RateLimit.PerMinute)
	}
	if got := settings.BreakerConfig().Cooldown; got != 90*time.Second {
		t.Errorf("expected cooldown 90s, got %v", got)
	}
}

func TestNewRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")

	if _, err := New(); err == nil {
		t.Error("expected error for non-numeric environment value")
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "7")

	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := []byte(`
rate_limit:
  per_minute: 12
orchestrator:
  max_concurrent: 2
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write settings file: %v", err)
	}

	settings, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.RateLimit.PerMinute != 12 {
		t.Errorf("YAML should override environment: got %d", settings.RateLimit.PerMinute)
	}
	if settings.Orchestrator.MaxConcurrent != 2 {
		t.Errorf("expected max concurrent 2, got %d", settings.Orchestrator.MaxConcurrent)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing settings file")
	}
}

func TestConfigConversions(t *testing.T) {
	settings := MustNew()

	rl := settings.RateLimitConfig()
	if err := rl.Validate(); err != nil {
		t.Errorf("default rate-limit config should validate: %v", err)
	}

	oc := settings.OrchestratorConfig()
	if oc.CallTimeout != 60*time.Second {
		t.Errorf("expected default call timeout 60s, got %v", oc.CallTimeout)
	}
}

func TestAPIKeyFor(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	key, err := APIKeyFor("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	original := os.Getenv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	defer os.Setenv("OPENAI_API_KEY", original)

	if _, err := APIKeyFor("openai"); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestAPIKeyForAlias(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "claude-key")

	key, err := APIKeyFor("claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "claude-key" {
		t.Errorf("expected alias to resolve to anthropic key, got %q", key)
	}
}

func TestModelFor(t *testing.T) {
	original := os.Getenv("GEMINI_MODEL")
	os.Unsetenv("GEMINI_MODEL")
	defer os.Setenv("GEMINI_MODEL", original)

	model, err := ModelFor("gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "gemini-3-flash" {
		t.Errorf("expected default gemini model, got %q", model)
	}

	t.Setenv("GEMINI_MODEL", "gemini-3-pro")
	model, err = ModelFor("gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "gemini-3-pro" {
		t.Errorf("environment should override default model, got %q", model)
	}
}

func TestUnknownProvider(t *testing.T) {
	if _, err := APIKeyFor("mystery"); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := ModelFor("mystery"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestDefaultInputLimits(t *testing.T) {
	limits := DefaultInputLimits()
	for _, provider := range SupportedProviders() {
		if limits[provider] <= 0 {
			t.Errorf("expected positive input limit for %s", provider)
		}
	}
}

func TestSupportedProvidersResolveToAdapters(t *testing.T) {
	for _, provider := range SupportedProviders() {
		if _, err := llm.ParseProviderType(provider); err != nil {
			t.Errorf("provider %s has no adapter: %v", provider, err)
		}
	}
}
