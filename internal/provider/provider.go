// Package provider builds LLM clients from configuration, resolving API keys
// from explicit values or the environment.
package provider

import (
	"fmt"
	"strings"

	"github.com/maccam912/smart-todo-sub000/internal/config"
	"github.com/maccam912/smart-todo-sub000/internal/llm"
)

// NewClient builds an LLM client for the named provider. An empty apiKey
// falls back to the provider's environment variables. The base URL is only
// consulted for openai-compatible endpoints.
func NewClient(providerName, apiKey, model, baseURL string) (llm.Client, error) {
	normalized := canonicalProviderName(providerName)
	key := resolveAPIKey(normalized, apiKey)

	// Local openai-compatible servers commonly run without authentication.
	if key == "" && normalized != "openai-compatible" {
		hints := EnvVarHints(normalized)
		if len(hints) > 0 {
			return nil, fmt.Errorf("no API key for provider %s (set %s)", normalized, strings.Join(hints, " or "))
		}
	}

	switch normalized {
	case "anthropic":
		return llm.NewAnthropicClient(key, model)
	case "openai":
		return llm.NewOpenAIClient(key, model)
	case "google":
		return llm.NewGoogleAIClient(key, model)
	case "openai-compatible":
		if strings.TrimSpace(baseURL) == "" {
			return nil, fmt.Errorf("base URL is required for openai-compatible provider")
		}
		return llm.NewOpenAICompatibleClient(key, model, baseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
}

// NewClientFromConfig builds the client selected by cfg.Model, applying the
// per-provider override block for API key and base URL.
func NewClientFromConfig(cfg *config.Config) (llm.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	name := cfg.Model.Provider
	override := cfg.ProviderFor(canonicalProviderName(name))

	baseURL := cfg.Model.BaseURL
	if baseURL == "" {
		baseURL = override.BaseURL
	}

	return NewClient(name, override.APIKey, cfg.Model.Name, baseURL)
}

// SupportedProviders lists the provider names accepted by NewClient.
func SupportedProviders() []string {
	return []string{"anthropic", "openai", "google", "openai-compatible"}
}
