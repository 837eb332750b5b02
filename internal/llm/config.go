// Package llm provides the completion client used for script and announcement generation.
// Model identifiers are selected per task tier so the two stylistic tasks can use different models.
package llm

// ModelTier represents the task a model is used for
type ModelTier string

const (
	// TierScript is used for the spoken video script
	TierScript ModelTier = "script"
	// TierAnnouncement is used for the short companion post text
	TierAnnouncement ModelTier = "announcement"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderOpenAI is any OpenAI-compatible chat completions endpoint (Atoma, OpenAI, vLLM)
	ProviderOpenAI Provider = "openai"
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
)

// DefaultOpenAIURL is the Atoma OpenAI-compatible endpoint.
const DefaultOpenAIURL = "https://api.atoma.network/v1"

// DefaultTemperature is the sampling temperature for both tiers.
const DefaultTemperature = 0.7

// Config holds the model configuration for the application
type Config struct {
	Provider Provider
	APIURL   string
	Models   map[ModelTier]string
}

// DefaultConfig returns the default configuration (OpenAI-compatible Atoma endpoint)
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderOpenAI,
		APIURL:   DefaultOpenAIURL,
		Models: map[ModelTier]string{
			TierScript:       "meta-llama/Llama-3.3-70B-Instruct",
			TierAnnouncement: "meta-llama/Llama-3.3-70B-Instruct",
		},
	}
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierScript:       "gemini-2.5-pro",
			TierAnnouncement: "gemini-2.5-flash",
		},
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok && model != "" {
		return model
	}
	// Fallback: the script model serves every tier
	if model, ok := c.Models[TierScript]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider: c.Provider,
		APIURL:   c.APIURL,
		Models:   make(map[ModelTier]string),
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}
