package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsDialTimeout = 10 * time.Second

// WebSocketTransport talks MCP JSON-RPC to a provider over a websocket.
// Same id-correlated request/response scheme as the stdio transport.
type WebSocketTransport struct {
	name string
	url  string

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	id      int
	pending map[int]chan *mcpResponse
	closed  bool
}

// NewWebSocketTransport creates a transport that dials the given endpoint
func NewWebSocketTransport(name, url string) *WebSocketTransport {
	return &WebSocketTransport{
		name:    name,
		url:     url,
		pending: make(map[int]chan *mcpResponse),
	}
}

// Connect dials the endpoint and performs the initialize handshake
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, wsDialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, t.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", t.url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.listen(conn)

	_, err = t.call(ctx, "initialize", initializeParams())
	return err
}

// listen reads responses from the socket until it closes
func (t *WebSocketTransport) listen(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var resp mcpResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			log.Error().Err(err).Str("provider", t.name).Msg("Failed to unmarshal provider response")
			continue
		}

		if id, ok := resp.ID.(float64); ok {
			t.mu.Lock()
			ch, exists := t.pending[int(id)]
			if exists {
				delete(t.pending, int(id))
				ch <- &resp
			}
			t.mu.Unlock()
		}
	}

	t.failPending()
}

func (t *WebSocketTransport) failPending() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ch := range t.pending {
		delete(t.pending, id)
		close(ch)
	}
}

func (t *WebSocketTransport) call(ctx context.Context, method string, params interface{}) (*mcpResponse, error) {
	t.mu.Lock()
	if t.closed || t.conn == nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("provider %s: transport is closed", t.name)
	}
	t.id++
	id := t.id
	ch := make(chan *mcpResponse, 1)
	t.pending[id] = ch
	conn := t.conn
	t.mu.Unlock()

	req := mcpRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	// gorilla connections allow one concurrent writer
	t.writeMu.Lock()
	err := conn.WriteJSON(req)
	t.writeMu.Unlock()
	if err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to write to provider %s: %w", t.name, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("provider %s: connection lost", t.name)
		}
		if resp.Error != nil {
			return nil, &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// ListTools enumerates the tools the provider advertises
func (t *WebSocketTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	return decodeToolList(resp.Result)
}

// ListResources enumerates the resources the provider advertises
func (t *WebSocketTransport) ListResources(ctx context.Context) ([]ResourceDescriptor, error) {
	resp, err := t.call(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	return decodeResourceList(resp.Result)
}

// CallTool invokes a tool on the provider
func (t *WebSocketTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	resp, err := t.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	return decodeCallResult(resp.Result)
}

// ReadResource reads a resource by URI
func (t *WebSocketTransport) ReadResource(ctx context.Context, uri string) (map[string]interface{}, error) {
	resp, err := t.call(ctx, "resources/read", map[string]interface{}{"uri": uri})
	if err != nil {
		return nil, err
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(resp.Result, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode resource: %w", err)
	}
	return payload, nil
}

// Close closes the socket and fails any pending calls
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	t.failPending()

	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}
