package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicGenerator drives an Anthropic messages backend
type AnthropicGenerator struct {
	client anthropic.Client
}

// NewAnthropicGenerator creates a generator using the given API key
func NewAnthropicGenerator(apiKey string) *AnthropicGenerator {
	return &AnthropicGenerator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Backend returns the backend name
func (g *AnthropicGenerator) Backend() string {
	return "anthropic"
}

// Generate issues one messages request. Anthropic has no repeat_penalty or
// seed knobs; those options are ignored here.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Options.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Options.Temperature)
	}
	if req.Options.TopP > 0 {
		params.TopP = anthropic.Float(req.Options.TopP)
	}
	if req.Options.TopK > 0 {
		params.TopK = anthropic.Int(int64(req.Options.TopK))
	}

	response, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	text := ""
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}

	return &Response{Text: text, Model: string(response.Model)}, nil
}

// Healthy reports whether the backend is reachable. The Anthropic API has no
// cheap probe endpoint; reachability is assumed until a request fails.
func (g *AnthropicGenerator) Healthy(_ context.Context) bool {
	return true
}
