package provider

import (
	"encoding/json"
	"time"
)

// State represents the connection state of a provider
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// TransportKind identifies how a provider is reached
type TransportKind string

const (
	TransportStdio     TransportKind = "stdio"
	TransportWebSocket TransportKind = "websocket"
)

// Config describes a single configured provider
type Config struct {
	Name      string            `json:"name"`
	Transport TransportKind     `json:"transport"`
	Command   string            `json:"command,omitempty"` // stdio: executable to launch
	Args      []string          `json:"args,omitempty"`    // stdio: launch arguments
	Env       map[string]string `json:"env,omitempty"`     // stdio: extra environment
	URL       string            `json:"url,omitempty"`     // websocket: endpoint to dial
}

// ToolDescriptor describes a callable tool discovered on a provider.
// Immutable once discovered; refreshed only by re-running discovery.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ResourceDescriptor describes a readable resource discovered on a provider
type ResourceDescriptor struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// Capabilities is the discovered capability set of one provider
type Capabilities struct {
	Tools     []ToolDescriptor     `json:"tools"`
	Resources []ResourceDescriptor `json:"resources"`
}

// HasTool reports whether the capability set advertises the named tool
func (c Capabilities) HasTool(name string) bool {
	for _, t := range c.Tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Snapshot is an immutable view of connected providers and their capabilities,
// taken at a point in time. Mutating a snapshot never affects the registry.
type Snapshot map[string]Capabilities

// ToolResult is the outcome of one tool invocation. Failures are first-class
// values carried in Error, never raised.
type ToolResult struct {
	InvocationID string                 `json:"invocationId"`
	Provider     string                 `json:"provider"`
	Tool         string                 `json:"tool"`
	Success      bool                   `json:"success"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	Error        *InvocationError       `json:"error,omitempty"`
	Latency      time.Duration          `json:"latency"`
}

// ProviderStatus summarizes one provider for status reporting
type ProviderStatus struct {
	Name      string        `json:"name"`
	Transport TransportKind `json:"transport"`
	State     State         `json:"state"`
	Tools     int           `json:"tools"`
	Resources int           `json:"resources"`
}

// Event represents a provider lifecycle event
type Event struct {
	Type      string                 `json:"type"`
	Provider  string                 `json:"provider"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler handles provider events
type EventHandler func(Event)
