package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ollama", cfg.Generation.Backend)
	assert.Equal(t, 4, cfg.Dispatch.MaxInvocations)
	assert.Equal(t, 8080, cfg.Gateway.Port)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Providers = []ProviderConfig{
			{Name: "finance-tools", Transport: "stdio", Command: "python", Args: []string{"server.py"}},
			{Name: "graph-tools", Transport: "websocket", URL: "ws://localhost:9100/mcp"},
		}
		return cfg
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectedErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name: "missing provider name",
			mutate: func(c *Config) {
				c.Providers[0].Name = ""
			},
			expectedErr: "name is required",
		},
		{
			name: "duplicate provider name",
			mutate: func(c *Config) {
				c.Providers[1].Name = c.Providers[0].Name
			},
			expectedErr: "duplicate name",
		},
		{
			name: "stdio without command",
			mutate: func(c *Config) {
				c.Providers[0].Command = ""
			},
			expectedErr: "command is required",
		},
		{
			name: "websocket without url",
			mutate: func(c *Config) {
				c.Providers[1].URL = ""
			},
			expectedErr: "url is required",
		},
		{
			name: "unknown transport",
			mutate: func(c *Config) {
				c.Providers[0].Transport = "grpc"
			},
			expectedErr: "invalid transport",
		},
		{
			name: "missing model",
			mutate: func(c *Config) {
				c.Generation.Model = ""
			},
			expectedErr: "model is required",
		},
		{
			name: "openai without api key",
			mutate: func(c *Config) {
				c.Generation.Backend = "openai"
				c.Generation.APIKey = ""
			},
			expectedErr: "api_key is required",
		},
		{
			name: "unknown backend",
			mutate: func(c *Config) {
				c.Generation.Backend = "gemini"
			},
			expectedErr: "invalid generation backend",
		},
		{
			name: "bad gateway port",
			mutate: func(c *Config) {
				c.Gateway.Port = 70000
			},
			expectedErr: "invalid gateway port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectedErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErr)
			}
		})
	}
}

func TestLoader_MissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Generation.Model, cfg.Generation.Model)
}

func TestLoader_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calvin.json")
	contents := `{
		"providers": [
			{"name": "finance-tools", "transport": "stdio", "command": "python", "args": ["server.py"]}
		],
		"generation": {"backend": "ollama", "model": "mistral", "temperature": 0.2},
		"dispatch": {"max_invocations": 2},
		"gateway": {"enabled": true, "port": 9999}
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "finance-tools", cfg.Providers[0].Name)
	assert.Equal(t, "mistral", cfg.Generation.Model)
	assert.Equal(t, 0.2, cfg.Generation.Temperature)
	assert.Equal(t, 2, cfg.Dispatch.MaxInvocations)
	assert.Equal(t, 9999, cfg.Gateway.Port)

	// Unset fields keep defaults
	assert.Equal(t, 15, cfg.Dispatch.BatchTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoader_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calvin.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.Generation.Model = "mistral"
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "mistral", loaded.Generation.Model)
}
