// Package llm provides the Gemini-backed Generator: model configuration,
// the genai client wrapper and prompt assembly for each workflow.
package llm

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for short, mechanical workflows
	TierLite ModelTier = "lite"
	// TierStandard is for structured planning: outlines, briefs, Q&A notes
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-form writing
	TierAdvanced ModelTier = "advanced"
)

// Config maps tiers to concrete Gemini model names.
type Config struct {
	Models      map[ModelTier]string
	Temperature float32
}

// DefaultConfig returns the default Gemini configuration.
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
		Temperature: 0.4,
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return "" // No model configured
}

// ResolveModel turns a workflow binding into a model name. A binding is
// either a tier name or a literal model name; empty means unbound.
func (c *Config) ResolveModel(binding string) string {
	switch ModelTier(binding) {
	case "":
		return ""
	case TierLite, TierStandard, TierAdvanced:
		return c.GetModel(ModelTier(binding))
	default:
		return binding
	}
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Models:      make(map[ModelTier]string),
		Temperature: c.Temperature,
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}
