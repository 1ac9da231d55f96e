package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transport is a connection to a single tool provider. Implementations speak
// MCP JSON-RPC over their respective wire (stdio pipe or websocket).
type Transport interface {
	// Connect establishes the connection and performs the initialize handshake
	Connect(ctx context.Context) error

	// ListTools enumerates the tools the provider advertises
	ListTools(ctx context.Context) ([]ToolDescriptor, error)

	// ListResources enumerates the resources the provider advertises
	ListResources(ctx context.Context) ([]ResourceDescriptor, error)

	// CallTool invokes a tool. A *RemoteError means the provider answered
	// with a failure payload; any other error is a transport failure.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error)

	// ReadResource reads a resource by URI
	ReadResource(ctx context.Context, uri string) (map[string]interface{}, error)

	// Close tears down the connection and fails any pending calls
	Close() error
}

// newTransport creates a transport for the given provider config
func newTransport(cfg Config) (Transport, error) {
	switch cfg.Transport {
	case TransportStdio:
		if cfg.Command == "" {
			return nil, fmt.Errorf("provider %s: command is required for stdio transport", cfg.Name)
		}
		return NewStdioTransport(cfg.Name, cfg.Command, cfg.Args, cfg.Env), nil
	case TransportWebSocket:
		if cfg.URL == "" {
			return nil, fmt.Errorf("provider %s: url is required for websocket transport", cfg.Name)
		}
		return NewWebSocketTransport(cfg.Name, cfg.URL), nil
	default:
		return nil, fmt.Errorf("provider %s: unsupported transport: %s", cfg.Name, cfg.Transport)
	}
}

const protocolVersion = "2024-11-05"

// MCP JSON-RPC messages
type mcpRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcpError       `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

type mcpError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func initializeParams() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "Calvin",
			"version": "0.1.0",
		},
	}
}

func decodeToolList(result json.RawMessage) ([]ToolDescriptor, error) {
	var listResult struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(result, &listResult); err != nil {
		return nil, fmt.Errorf("failed to decode tool list: %w", err)
	}
	return listResult.Tools, nil
}

func decodeResourceList(result json.RawMessage) ([]ResourceDescriptor, error) {
	var listResult struct {
		Resources []ResourceDescriptor `json:"resources"`
	}
	if err := json.Unmarshal(result, &listResult); err != nil {
		return nil, fmt.Errorf("failed to decode resource list: %w", err)
	}
	return listResult.Resources, nil
}

func decodeCallResult(result json.RawMessage) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode tool result: %w", err)
	}
	// Tool-level failures arrive as a successful response with isError set
	if isErr, ok := payload["isError"].(bool); ok && isErr {
		return nil, &RemoteError{Message: summarizeContent(payload)}
	}
	return payload, nil
}

// summarizeContent extracts the first text block from an MCP content payload
func summarizeContent(payload map[string]interface{}) string {
	content, ok := payload["content"].([]interface{})
	if !ok {
		return "tool reported an error"
	}
	for _, block := range content {
		if m, ok := block.(map[string]interface{}); ok {
			if text, ok := m["text"].(string); ok && text != "" {
				return text
			}
		}
	}
	return "tool reported an error"
}
