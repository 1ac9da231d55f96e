package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Calvin configuration
type Config struct {
	// Providers, in connect order
	Providers []ProviderConfig `json:"providers" mapstructure:"providers"`

	// Generation backend defaults
	Generation GenerationConfig `json:"generation" mapstructure:"generation"`

	// Dispatch limits
	Dispatch DispatchConfig `json:"dispatch" mapstructure:"dispatch"`

	// Gateway server
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ProviderConfig describes one tool provider
type ProviderConfig struct {
	Name      string            `json:"name" mapstructure:"name"`
	Transport string            `json:"transport" mapstructure:"transport"` // stdio, websocket
	Command   string            `json:"command" mapstructure:"command"`
	Args      []string          `json:"args" mapstructure:"args"`
	Env       map[string]string `json:"env" mapstructure:"env"`
	URL       string            `json:"url" mapstructure:"url"`
}

// GenerationConfig holds the default generation configuration
type GenerationConfig struct {
	Backend       string  `json:"backend" mapstructure:"backend"` // ollama, openai, anthropic
	BaseURL       string  `json:"base_url" mapstructure:"base_url"`
	APIKey        string  `json:"api_key" mapstructure:"api_key"`
	Model         string  `json:"model" mapstructure:"model"`
	SystemPrompt  string  `json:"system_prompt" mapstructure:"system_prompt"`
	Temperature   float64 `json:"temperature" mapstructure:"temperature"`
	TopP          float64 `json:"top_p" mapstructure:"top_p"`
	TopK          int     `json:"top_k" mapstructure:"top_k"`
	MaxTokens     int     `json:"max_tokens" mapstructure:"max_tokens"`
	RepeatPenalty float64 `json:"repeat_penalty" mapstructure:"repeat_penalty"`
	Seed          int     `json:"seed" mapstructure:"seed"`
	Stream        bool    `json:"stream" mapstructure:"stream"`
}

// DispatchConfig holds dispatch limits
type DispatchConfig struct {
	MaxInvocations int `json:"max_invocations" mapstructure:"max_invocations"`
	CallTimeout    int `json:"call_timeout" mapstructure:"call_timeout"`       // seconds
	BatchTimeout   int `json:"batch_timeout" mapstructure:"batch_timeout"`     // seconds
	ConnectTimeout int `json:"connect_timeout" mapstructure:"connect_timeout"` // seconds
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Providers: []ProviderConfig{},
		Generation: GenerationConfig{
			Backend:       "ollama",
			Model:         "llama3.1",
			SystemPrompt:  "You are a concise financial research assistant. Use the tool output sections when they are present.",
			Temperature:   0.7,
			TopP:          0.9,
			TopK:          40,
			MaxTokens:     1024,
			RepeatPenalty: 1.1,
		},
		Dispatch: DispatchConfig{
			MaxInvocations: 4,
			CallTimeout:    10,
			BatchTimeout:   15,
			ConnectTimeout: 30,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Port:    8080,
			Host:    "0.0.0.0",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider %s: duplicate name", p.Name)
		}
		seen[p.Name] = true

		switch p.Transport {
		case "stdio":
			if p.Command == "" {
				return fmt.Errorf("provider %s: command is required for stdio transport", p.Name)
			}
		case "websocket":
			if p.URL == "" {
				return fmt.Errorf("provider %s: url is required for websocket transport", p.Name)
			}
		default:
			return fmt.Errorf("provider %s: invalid transport %s (must be: stdio, websocket)", p.Name, p.Transport)
		}
	}

	if c.Generation.Model == "" {
		return fmt.Errorf("generation model is required")
	}
	switch c.Generation.Backend {
	case "", "ollama":
	case "openai", "anthropic":
		if c.Generation.APIKey == "" {
			return fmt.Errorf("generation api_key is required for backend %s", c.Generation.Backend)
		}
	default:
		return fmt.Errorf("invalid generation backend %s (must be: ollama, openai, anthropic)", c.Generation.Backend)
	}

	if c.Dispatch.MaxInvocations < 0 {
		return fmt.Errorf("dispatch max_invocations must not be negative")
	}
	if c.Dispatch.CallTimeout < 0 || c.Dispatch.BatchTimeout < 0 {
		return fmt.Errorf("dispatch timeouts must not be negative")
	}

	if c.Gateway.Enabled {
		if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
			return fmt.Errorf("invalid gateway port %d", c.Gateway.Port)
		}
	}

	return nil
}
