// Package config loads runtime configuration from a file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	// Listen is the HTTP bind address.
	Listen string `mapstructure:"listen"`

	// DataDir holds the vector store and session records.
	DataDir string `mapstructure:"data_dir"`

	// KnowledgeDir is scanned at startup to seed the knowledge base.
	// Empty disables seeding.
	KnowledgeDir string `mapstructure:"knowledge_dir"`

	// LogLevel is a zerolog level name (trace through panic).
	LogLevel string `mapstructure:"log_level"`

	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Agent     AgentConfig     `mapstructure:"agent"`
}

// AnthropicConfig configures the chat model provider.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "rest" or "mock".
	Provider   string `mapstructure:"provider"`
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`

	// CacheSize is the query embedding cache budget in bytes. Zero uses
	// the default, negative disables the cache.
	CacheSize int64 `mapstructure:"cache_size"`
}

// AgentConfig tunes the reasoning engine.
type AgentConfig struct {
	MaxTokens int `mapstructure:"max_tokens"`
}

// Load reads configuration from the optional file path, environment
// variables prefixed QUILL_, and defaults, in that order of precedence from
// highest to lowest for env over file.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen", ":8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("knowledge_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("embedding.provider", "mock")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.cache_size", 0)
	v.SetDefault("agent.max_tokens", 4096)

	v.SetEnvPrefix("QUILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic.api_key is required (QUILL_ANTHROPIC_API_KEY)")
	}
	switch c.Embedding.Provider {
	case "mock":
	case "rest":
		if c.Embedding.Endpoint == "" {
			return fmt.Errorf("embedding.endpoint is required for the rest provider")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	return nil
}
