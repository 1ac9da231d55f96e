package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaGenerator talks to a local Ollama server over its HTTP API
type OllamaGenerator struct {
	baseURL string
	client  *http.Client
}

// NewOllamaGenerator creates a generator for the given Ollama base URL
func NewOllamaGenerator(baseURL string) *OllamaGenerator {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaGenerator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Backend returns the backend name
func (g *OllamaGenerator) Backend() string {
	return "ollama"
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	System  string                 `json:"system,omitempty"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate issues one completion request
func (g *OllamaGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	options := map[string]interface{}{}
	if req.Options.Temperature > 0 {
		options["temperature"] = req.Options.Temperature
	}
	if req.Options.TopP > 0 {
		options["top_p"] = req.Options.TopP
	}
	if req.Options.TopK > 0 {
		options["top_k"] = req.Options.TopK
	}
	if req.Options.MaxTokens > 0 {
		options["num_predict"] = req.Options.MaxTokens
	}
	if req.Options.RepeatPenalty > 0 {
		options["repeat_penalty"] = req.Options.RepeatPenalty
	}
	if req.Options.Seed != 0 {
		options["seed"] = req.Options.Seed
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   req.Model,
		System:  req.SystemPrompt,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrGenerationUnavailable, resp.StatusCode)
	}

	var decoded ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrGenerationUnavailable, err)
	}

	return &Response{Text: decoded.Response, Model: decoded.Model}, nil
}

// Healthy probes the Ollama tag listing endpoint
func (g *OllamaGenerator) Healthy(ctx context.Context) bool {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		log.Debug().Err(err).Msg("Ollama health probe failed")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
