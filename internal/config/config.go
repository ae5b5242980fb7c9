// Package config provides configuration loading and validation for the
// content writer server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workflow names. Each pipeline stage is bound to one of them.
const (
	WorkflowKnowledge = "knowledge"
	WorkflowHeaders   = "headers"
	WorkflowRAG       = "rag"
	WorkflowBrief     = "brief"
	WorkflowContent   = "content"
)

// WorkflowNames lists every workflow in stage order.
var WorkflowNames = []string{WorkflowKnowledge, WorkflowHeaders, WorkflowRAG, WorkflowBrief, WorkflowContent}

// Generator providers
const (
	ProviderDify   = "dify"
	ProviderGemini = "gemini"
)

// ModelTiers lists the Gemini tiers a workflow binding may name.
var ModelTiers = []string{"lite", "standard", "advanced"}

// Store backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the application configuration. It is loaded from an optional
// JSON file and then overridden by environment variables.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty"`
	Port        int    `json:"port,omitempty"`
	Store       string `json:"store,omitempty"` // postgres or memory

	Generator    GeneratorConfig `json:"generator"`
	GeminiAPIKey string          `json:"gemini_api_key,omitempty"`
	// GeminiModels overrides the model behind a tier (lite, standard, advanced).
	GeminiModels map[string]string `json:"gemini_models,omitempty"`
	Redis        RedisConfig       `json:"redis"`
	Log          LogConfig         `json:"log"`

	DefaultLanguage   string        `json:"default_language,omitempty"`
	SeedPlaceholder   string        `json:"seed_placeholder,omitempty"`   // sent when a project has no seed document
	MaxHeadingsChars  int           `json:"max_headings_chars,omitempty"` // cap on the headings input of the RAG stage
	MaxBackgroundRuns int           `json:"max_background_runs,omitempty"`
	Context           ContextConfig `json:"context"`
}

// GeneratorConfig binds workflows to the remote generator.
type GeneratorConfig struct {
	Provider string `json:"provider,omitempty"` // dify or gemini
	BaseURL  string `json:"base_url,omitempty"`
	// Workflows maps a workflow name to its binding: the workflow API key for
	// dify, the model name for gemini.
	Workflows      map[string]string `json:"workflows,omitempty"`
	User           string            `json:"user,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	// Stream selects streaming invocations.
	Stream bool `json:"stream,omitempty"`
}

// RedisConfig configures progress event publishing. Empty URL disables it.
type RedisConfig struct {
	URL     string `json:"url,omitempty"`
	Channel string `json:"channel,omitempty"`
	// Encoding is json or msgpack.
	Encoding string `json:"encoding,omitempty"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// ContextConfig bounds the context passed to each content section.
type ContextConfig struct {
	MaxSummaryChars        int `json:"max_summary_chars,omitempty"`
	MaxTopics              int `json:"max_topics,omitempty"`
	MaxPreviousSections    int `json:"max_previous_sections,omitempty"`
	MaxUpcomingSections    int `json:"max_upcoming_sections,omitempty"`
	UpcomingKnowledgeChars int `json:"upcoming_knowledge_chars,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:  8080,
		Store: StorePostgres,
		Generator: GeneratorConfig{
			Provider:       ProviderDify,
			BaseURL:        "https://api.dify.ai/v1",
			Workflows:      map[string]string{},
			User:           "content-writer",
			TimeoutSeconds: 600,
		},
		Redis:             RedisConfig{Channel: "content_writer:progress", Encoding: "json"},
		Log:               LogConfig{Level: "info", Format: "json"},
		DefaultLanguage:   "Polish",
		SeedPlaceholder:   "BRAK",
		MaxHeadingsChars:  50000,
		MaxBackgroundRuns: 4,
		Context: ContextConfig{
			MaxSummaryChars:        400,
			MaxTopics:              5,
			MaxPreviousSections:    30,
			MaxUpcomingSections:    10,
			UpcomingKnowledgeChars: 150,
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by the
// file extension (.yaml and .yml are YAML). YAML keys are the JSON keys.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// yamlToJSON re-encodes a YAML document as JSON so one set of struct tags
// serves both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

// Load builds the effective configuration: defaults, then the optional file,
// then environment variables read through getenv.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg.MergeWithDefaults(cfg)
	}

	cfg.ApplyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields with any environment variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&c.DatabaseURL, "DATABASE_URL")
	setInt(&c.Port, "PORT")
	setString(&c.Store, "STORE")
	setString(&c.Generator.Provider, "GENERATOR_PROVIDER")
	setString(&c.Generator.BaseURL, "DIFY_API_BASE_URL")
	setString(&c.Generator.User, "GENERATOR_USER")
	setInt(&c.Generator.TimeoutSeconds, "GENERATOR_TIMEOUT_SECONDS")
	setString(&c.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Redis.Channel, "REDIS_CHANNEL")
	setString(&c.Redis.Encoding, "REDIS_ENCODING")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.DefaultLanguage, "DEFAULT_LANGUAGE")
	setInt(&c.MaxBackgroundRuns, "MAX_BACKGROUND_RUNS")
	if v, err := strconv.ParseBool(getenv("GENERATOR_STREAM")); err == nil {
		c.Generator.Stream = v
	}

	for _, tier := range ModelTiers {
		if v := getenv("GEMINI_MODEL_" + strings.ToUpper(tier)); v != "" {
			if c.GeminiModels == nil {
				c.GeminiModels = map[string]string{}
			}
			c.GeminiModels[tier] = v
		}
	}

	if c.Generator.Workflows == nil {
		c.Generator.Workflows = map[string]string{}
	}
	for _, name := range WorkflowNames {
		// DIFY_KNOWLEDGE_WORKFLOW_KEY, GEMINI_CONTENT_MODEL, ...
		if v := getenv("DIFY_" + strings.ToUpper(name) + "_WORKFLOW_KEY"); v != "" && c.Generator.Provider == ProviderDify {
			c.Generator.Workflows[name] = v
		}
		if v := getenv("GEMINI_" + strings.ToUpper(name) + "_MODEL"); v != "" && c.Generator.Provider == ProviderGemini {
			c.Generator.Workflows[name] = v
		}
	}
}

// Validate checks that the configuration has valid values. Missing workflow
// bindings are not an error here; the pipeline reports them per stage before
// touching the store.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config error: 'database_url' is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config error: unknown store %q", c.Store)
	}

	switch c.Generator.Provider {
	case ProviderDify:
		if c.Generator.BaseURL == "" {
			return fmt.Errorf("config error: 'generator.base_url' is required for the dify provider")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("config error: 'gemini_api_key' is required for the gemini provider")
		}
	default:
		return fmt.Errorf("config error: unknown generator provider %q", c.Generator.Provider)
	}

	for name := range c.Generator.Workflows {
		if !isWorkflow(name) {
			return fmt.Errorf("config error: unknown workflow %q", name)
		}
	}

	for tier, model := range c.GeminiModels {
		if !contains(ModelTiers, tier) {
			return fmt.Errorf("config error: unknown model tier %q", tier)
		}
		if strings.TrimSpace(model) == "" {
			return fmt.Errorf("config error: model for tier %q is empty", tier)
		}
	}

	switch c.Redis.Encoding {
	case "", "json", "msgpack":
	default:
		return fmt.Errorf("config error: unknown redis encoding %q", c.Redis.Encoding)
	}

	if c.Generator.TimeoutSeconds < 0 {
		return fmt.Errorf("config error: 'generator.timeout_seconds' must be non-negative")
	}
	if c.MaxHeadingsChars < 0 {
		return fmt.Errorf("config error: 'max_headings_chars' must be non-negative")
	}
	if c.MaxBackgroundRuns < 1 {
		return fmt.Errorf("config error: 'max_background_runs' must be at least 1")
	}

	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.Store == "" {
		result.Store = defaults.Store
	}
	if result.Generator.Provider == "" {
		result.Generator.Provider = defaults.Generator.Provider
	}
	if result.Generator.BaseURL == "" {
		result.Generator.BaseURL = defaults.Generator.BaseURL
	}
	if result.Generator.User == "" {
		result.Generator.User = defaults.Generator.User
	}
	if result.GeminiAPIKey == "" {
		result.GeminiAPIKey = defaults.GeminiAPIKey
	}
	if result.Redis.URL == "" {
		result.Redis.URL = defaults.Redis.URL
	}
	if result.Redis.Channel == "" {
		result.Redis.Channel = defaults.Redis.Channel
	}
	if result.Redis.Encoding == "" {
		result.Redis.Encoding = defaults.Redis.Encoding
	}
	if result.Log.Level == "" {
		result.Log.Level = defaults.Log.Level
	}
	if result.Log.Format == "" {
		result.Log.Format = defaults.Log.Format
	}
	if result.DefaultLanguage == "" {
		result.DefaultLanguage = defaults.DefaultLanguage
	}
	if result.SeedPlaceholder == "" {
		result.SeedPlaceholder = defaults.SeedPlaceholder
	}

	// Int fields: use default if zero
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.Generator.TimeoutSeconds == 0 {
		result.Generator.TimeoutSeconds = defaults.Generator.TimeoutSeconds
	}
	if result.MaxHeadingsChars == 0 {
		result.MaxHeadingsChars = defaults.MaxHeadingsChars
	}
	if result.MaxBackgroundRuns == 0 {
		result.MaxBackgroundRuns = defaults.MaxBackgroundRuns
	}
	if result.Context.MaxSummaryChars == 0 {
		result.Context.MaxSummaryChars = defaults.Context.MaxSummaryChars
	}
	if result.Context.MaxTopics == 0 {
		result.Context.MaxTopics = defaults.Context.MaxTopics
	}
	if result.Context.MaxPreviousSections == 0 {
		result.Context.MaxPreviousSections = defaults.Context.MaxPreviousSections
	}
	if result.Context.MaxUpcomingSections == 0 {
		result.Context.MaxUpcomingSections = defaults.Context.MaxUpcomingSections
	}
	if result.Context.UpcomingKnowledgeChars == 0 {
		result.Context.UpcomingKnowledgeChars = defaults.Context.UpcomingKnowledgeChars
	}

	// Map fields: file bindings win, defaults fill the gaps
	workflows := make(map[string]string, len(defaults.Generator.Workflows)+len(result.Generator.Workflows))
	for k, v := range defaults.Generator.Workflows {
		workflows[k] = v
	}
	for k, v := range result.Generator.Workflows {
		workflows[k] = v
	}
	result.Generator.Workflows = workflows

	if result.GeminiModels == nil && defaults.GeminiModels != nil {
		result.GeminiModels = make(map[string]string, len(defaults.GeminiModels))
		for k, v := range defaults.GeminiModels {
			result.GeminiModels[k] = v
		}
	}

	return result
}

func isWorkflow(name string) bool {
	return contains(WorkflowNames, name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
