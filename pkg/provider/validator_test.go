package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgumentValidator_Validate(t *testing.T) {
	validator := NewArgumentValidator()

	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string"},
			"days": {"type": "integer"}
		},
		"required": ["symbol"]
	}`)
	tool := ToolDescriptor{Name: "get_fundamentals", InputSchema: schema}

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr bool
	}{
		{
			name: "valid args",
			args: map[string]interface{}{"symbol": "ABC", "days": 30},
		},
		{
			name:    "missing required field",
			args:    map[string]interface{}{"days": 30},
			wantErr: true,
		},
		{
			name:    "wrong type",
			args:    map[string]interface{}{"symbol": 42},
			wantErr: true,
		},
		{
			name:    "nil args with required field",
			args:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(tool, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "get_fundamentals")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestArgumentValidator_NoSchemaAcceptsAnything(t *testing.T) {
	validator := NewArgumentValidator()
	tool := ToolDescriptor{Name: "analyze_sentiment"}

	assert.NoError(t, validator.Validate(tool, nil))
	assert.NoError(t, validator.Validate(tool, map[string]interface{}{"anything": true}))
}

func TestArgumentValidator_MalformedSchemaAccepts(t *testing.T) {
	validator := NewArgumentValidator()
	tool := ToolDescriptor{
		Name:        "analyze_sentiment",
		InputSchema: json.RawMessage(`{"type": ["broken"`),
	}

	// The provider declared garbage; the call goes through and the provider
	// rejects it itself
	assert.NoError(t, validator.Validate(tool, map[string]interface{}{"symbol": "ABC"}))
}
