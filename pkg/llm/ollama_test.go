package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerator_Generate(t *testing.T) {
	var captured ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:    captured.Model,
			Response: "ABC sentiment looks positive.",
			Done:     true,
		})
	}))
	defer server.Close()

	g := NewOllamaGenerator(server.URL)
	resp, err := g.Generate(context.Background(), Request{
		Model:        "llama3.1",
		SystemPrompt: "You are a finance assistant.",
		Prompt:       "What's the sentiment for ABC?",
		Options: Options{
			Temperature:   0.7,
			TopP:          0.9,
			TopK:          40,
			MaxTokens:     256,
			RepeatPenalty: 1.1,
			Seed:          42,
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "ABC sentiment looks positive.", resp.Text)
	assert.Equal(t, "llama3.1", resp.Model)

	assert.Equal(t, "llama3.1", captured.Model)
	assert.Equal(t, "You are a finance assistant.", captured.System)
	assert.False(t, captured.Stream)
	assert.Equal(t, 0.7, captured.Options["temperature"])
	assert.Equal(t, 0.9, captured.Options["top_p"])
	assert.Equal(t, float64(40), captured.Options["top_k"])
	assert.Equal(t, float64(256), captured.Options["num_predict"])
	assert.Equal(t, 1.1, captured.Options["repeat_penalty"])
	assert.Equal(t, float64(42), captured.Options["seed"])
}

func TestOllamaGenerator_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	g := NewOllamaGenerator(server.URL)
	_, err := g.Generate(context.Background(), Request{Model: "missing", Prompt: "hi"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGenerationUnavailable))
}

func TestOllamaGenerator_Unreachable(t *testing.T) {
	g := NewOllamaGenerator("http://127.0.0.1:1")

	_, err := g.Generate(context.Background(), Request{Model: "llama3.1", Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGenerationUnavailable))

	assert.False(t, g.Healthy(context.Background()))
}

func TestOllamaGenerator_Healthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	g := NewOllamaGenerator(server.URL)
	assert.True(t, g.Healthy(context.Background()))
}

func TestNewGenerator_BackendSelection(t *testing.T) {
	tests := []struct {
		backend string
		want    string
		wantErr bool
	}{
		{backend: "", want: "ollama"},
		{backend: "ollama", want: "ollama"},
		{backend: "openai", want: "openai"},
		{backend: "anthropic", want: "anthropic"},
		{backend: "gemini", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("backend "+tt.backend, func(t *testing.T) {
			g, err := NewGenerator(GeneratorConfig{Backend: tt.backend, APIKey: "test"})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.Backend())
		})
	}
}
