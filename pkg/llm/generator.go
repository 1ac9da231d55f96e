package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrGenerationUnavailable marks a generation backend that is unreachable or
// answered with a non-success status. It is surfaced to the caller, never
// recovered locally.
var ErrGenerationUnavailable = errors.New("generation backend unavailable")

// Options holds the sampling parameters of a generation request. Backends
// that do not support a parameter ignore it.
type Options struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k"`
	MaxTokens     int     `json:"max_tokens"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	Seed          int     `json:"seed"`
}

// Request is one generation request
type Request struct {
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt"`
	Prompt       string  `json:"prompt"`
	Options      Options `json:"options"`
	Stream       bool    `json:"stream"`
}

// Response is the generation backend's answer
type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// Generator is a text generation backend
type Generator interface {
	// Generate issues one request and returns the assistant text. A failure
	// wraps ErrGenerationUnavailable.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Healthy probes the backend
	Healthy(ctx context.Context) bool

	// Backend returns the backend name
	Backend() string
}

// GeneratorConfig selects and parameterizes a backend
type GeneratorConfig struct {
	Backend string // ollama, openai, anthropic
	BaseURL string // ollama only
	APIKey  string // openai and anthropic
}

// NewGenerator creates a generator for the configured backend
func NewGenerator(cfg GeneratorConfig) (Generator, error) {
	switch cfg.Backend {
	case "", "ollama":
		return NewOllamaGenerator(cfg.BaseURL), nil
	case "openai":
		return NewOpenAIGenerator(cfg.APIKey), nil
	case "anthropic":
		return NewAnthropicGenerator(cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported generation backend: %s", cfg.Backend)
	}
}
