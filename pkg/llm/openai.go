package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIGenerator drives an OpenAI chat completion backend
type OpenAIGenerator struct {
	client openai.Client
}

// NewOpenAIGenerator creates a generator using the given API key
func NewOpenAIGenerator(apiKey string) *OpenAIGenerator {
	return &OpenAIGenerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Backend returns the backend name
func (g *OpenAIGenerator) Backend() string {
	return "openai"
}

// Generate issues one chat completion request. OpenAI has no top_k or
// repeat_penalty knobs; those options are ignored here.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Options.Temperature > 0 {
		params.Temperature = openai.Float(req.Options.Temperature)
	}
	if req.Options.TopP > 0 {
		params.TopP = openai.Float(req.Options.TopP)
	}
	if req.Options.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.Options.MaxTokens))
	}
	if req.Options.Seed != 0 {
		params.Seed = openai.Int(int64(req.Options.Seed))
	}

	response, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response choices returned", ErrGenerationUnavailable)
	}

	return &Response{
		Text:  response.Choices[0].Message.Content,
		Model: response.Model,
	}, nil
}

// Healthy probes the model listing endpoint
func (g *OpenAIGenerator) Healthy(ctx context.Context) bool {
	_, err := g.client.Models.List(ctx)
	return err == nil
}
