// Package config provides application settings loaded from environment
// variables, optionally overlaid by a YAML file.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup
//
// Load() applies a YAML settings file on top of the environment, so a
// checked-in file can pin limits while secrets stay in the environment.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/richinex/parallax/breaker"
	"github.com/richinex/parallax/orchestration"
	"github.com/richinex/parallax/ratelimit"
)

// Settings holds all application configuration.
type Settings struct {
	RateLimit    RateLimitSettings    `yaml:"rate_limit"`
	Breaker      BreakerSettings      `yaml:"breaker"`
	Orchestrator OrchestratorSettings `yaml:"orchestrator"`
	Service      ServiceSettings      `yaml:"service"`
}

// RateLimitSettings configures per-key admission control.
type RateLimitSettings struct {
	PerMinute       int     `yaml:"per_minute"`
	PerHour         int     `yaml:"per_hour"`
	PerDay          int     `yaml:"per_day"`
	BucketCapacity  float64 `yaml:"bucket_capacity"`
	RefillPerSecond float64 `yaml:"refill_per_second"`
}

// BreakerSettings configures per-provider circuit breaking.
type BreakerSettings struct {
	FailureThreshold int `yaml:"failure_threshold"`
	CooldownSeconds  int `yaml:"cooldown_seconds"`
}

// OrchestratorSettings configures fan-out execution.
type OrchestratorSettings struct {
	MaxConcurrent      int    `yaml:"max_concurrent"`
	CallTimeoutSeconds int    `yaml:"call_timeout_seconds"`
	ChunkTargetSize    int    `yaml:"chunk_target_size"`
	ChunkOverlap       int    `yaml:"chunk_overlap"`
	CallerScope        string `yaml:"caller_scope"`
}

// ServiceSettings configures the request boundary.
type ServiceSettings struct {
	MaxTextLength int `yaml:"max_text_length"`

	// InputLimits maps provider IDs to per-call prompt limits in code
	// points; absent providers are unlimited.
	InputLimits map[string]int `yaml:"input_limits"`

	// LedgerPath is the SQLite usage-ledger location. Empty disables
	// metering.
	LedgerPath string `yaml:"ledger_path"`
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
	inputLimit   int
}

// Supported providers and their configuration. Input limits reflect each
// vendor's practical prompt ceiling in code points.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-5.2", "OPENAI_API_KEY", 120000},
	"anthropic": {"ANTHROPIC_MODEL", "claude-opus-4-5-20251101", "ANTHROPIC_API_KEY", 180000},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-v3.2", "DEEPSEEK_API_KEY", 60000},
	"gemini":    {"GEMINI_MODEL", "gemini-3-flash", "GEMINI_API_KEY", 200000},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// New creates settings from environment variables, applying defaults for
// anything unset. Returns an error if a variable contains an invalid value.
func New() (Settings, error) {
	perMinute, err := getEnvInt("RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		return Settings{}, err
	}
	perHour, err := getEnvInt("RATE_LIMIT_PER_HOUR", 300)
	if err != nil {
		return Settings{}, err
	}
	perDay, err := getEnvInt("RATE_LIMIT_PER_DAY", 2000)
	if err != nil {
		return Settings{}, err
	}
	bucketCapacity, err := getEnvFloat64("RATE_LIMIT_BUCKET_CAPACITY", 10)
	if err != nil {
		return Settings{}, err
	}
	refillPerSecond, err := getEnvFloat64("RATE_LIMIT_REFILL_PER_SECOND", 0.5)
	if err != nil {
		return Settings{}, err
	}

	failureThreshold, err := getEnvInt("BREAKER_FAILURE_THRESHOLD", 5)
	if err != nil {
		return Settings{}, err
	}
	cooldownSeconds, err := getEnvInt("BREAKER_COOLDOWN_SECONDS", 30)
	if err != nil {
		return Settings{}, err
	}

	maxConcurrent, err := getEnvInt("ORCHESTRATOR_MAX_CONCURRENT", 4)
	if err != nil {
		return Settings{}, err
	}
	callTimeoutSeconds, err := getEnvInt("ORCHESTRATOR_CALL_TIMEOUT_SECONDS", 60)
	if err != nil {
		return Settings{}, err
	}
	chunkTargetSize, err := getEnvInt("CHUNK_TARGET_SIZE", 8000)
	if err != nil {
		return Settings{}, err
	}
	chunkOverlap, err := getEnvInt("CHUNK_OVERLAP", 200)
	if err != nil {
		return Settings{}, err
	}

	maxTextLength, err := getEnvInt("SERVICE_MAX_TEXT_LENGTH", 500000)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		RateLimit: RateLimitSettings{
			PerMinute:       perMinute,
			PerHour:         perHour,
			PerDay:          perDay,
			BucketCapacity:  bucketCapacity,
			RefillPerSecond: refillPerSecond,
		},
		Breaker: BreakerSettings{
			FailureThreshold: failureThreshold,
			CooldownSeconds:  cooldownSeconds,
		},
		Orchestrator: OrchestratorSettings{
			MaxConcurrent:      maxConcurrent,
			CallTimeoutSeconds: callTimeoutSeconds,
			ChunkTargetSize:    chunkTargetSize,
			ChunkOverlap:       chunkOverlap,
			CallerScope:        getEnvString("CALLER_SCOPE", "default"),
		},
		Service: ServiceSettings{
			MaxTextLength: maxTextLength,
			InputLimits:   DefaultInputLimits(),
			LedgerPath:    os.Getenv("USAGE_LEDGER_PATH"),
		},
	}, nil
}

// Load creates settings from the environment and overlays the YAML file
// at path on top. YAML values win over environment values.
func Load(path string) (Settings, error) {
	settings, err := New()
	if err != nil {
		return Settings{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings file: %w", err)
	}
	return settings, nil
}

// MustNew creates settings from the environment.
// Panics if environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// RateLimitConfig converts settings to the admission controller's config.
func (s Settings) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{
		PerMinute:       s.RateLimit.PerMinute,
		PerHour:         s.RateLimit.PerHour,
		PerDay:          s.RateLimit.PerDay,
		BucketCapacity:  s.RateLimit.BucketCapacity,
		RefillPerSecond: s.RateLimit.RefillPerSecond,
	}
}

// BreakerConfig converts settings to the circuit-breaker registry's config.
func (s Settings) BreakerConfig() breaker.Config {
	return breaker.Config{
		FailureThreshold: s.Breaker.FailureThreshold,
		Cooldown:         time.Duration(s.Breaker.CooldownSeconds) * time.Second,
	}
}

// OrchestratorConfig converts settings to the orchestrator's config.
func (s Settings) OrchestratorConfig() orchestration.Config {
	return orchestration.Config{
		MaxConcurrent:   s.Orchestrator.MaxConcurrent,
		CallTimeout:     time.Duration(s.Orchestrator.CallTimeoutSeconds) * time.Second,
		ChunkTargetSize: s.Orchestrator.ChunkTargetSize,
		ChunkOverlap:    s.Orchestrator.ChunkOverlap,
		CallerScope:     s.Orchestrator.CallerScope,
	}
}

// DefaultInputLimits returns per-provider prompt limits in code points.
func DefaultInputLimits() map[string]int {
	limits := make(map[string]int, len(providers))
	for name, info := range providers {
		limits[name] = info.inputLimit
	}
	return limits
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

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

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
