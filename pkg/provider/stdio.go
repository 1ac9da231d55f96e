package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"
)

// StdioTransport talks MCP JSON-RPC to a child process over its stdin/stdout,
// newline-delimited. Responses are correlated to requests by numeric id.
type StdioTransport struct {
	name    string
	command string
	args    []string
	env     map[string]string

	mu      sync.Mutex
	process *exec.Cmd
	stdin   io.WriteCloser
	id      int
	pending map[int]chan *mcpResponse
	closed  bool
}

// NewStdioTransport creates a transport that launches the given command
func NewStdioTransport(name, command string, args []string, env map[string]string) *StdioTransport {
	return &StdioTransport{
		name:    name,
		command: command,
		args:    args,
		env:     env,
		pending: make(map[int]chan *mcpResponse),
	}
}

// Connect launches the child process and performs the initialize handshake
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.process != nil {
		t.mu.Unlock()
		return nil
	}

	cmd := exec.Command(t.command, t.args...)
	if len(t.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range t.env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.mu.Unlock()
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.mu.Unlock()
		return err
	}

	if err := cmd.Start(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to launch %s: %w", t.command, err)
	}

	t.process = cmd
	t.stdin = stdin
	t.mu.Unlock()

	go t.listen(stdout)

	_, err = t.call(ctx, "initialize", initializeParams())
	return err
}

// listen reads responses from the child process until its stdout closes
func (t *StdioTransport) listen(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		var resp mcpResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
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

	// Pipe closed: the process died or was shut down
	t.failPending()
}

// failPending drains and closes every waiting call channel
func (t *StdioTransport) failPending() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ch := range t.pending {
		delete(t.pending, id)
		close(ch)
	}
}

func (t *StdioTransport) call(ctx context.Context, method string, params interface{}) (*mcpResponse, error) {
	t.mu.Lock()
	if t.closed || t.stdin == nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("provider %s: transport is closed", t.name)
	}
	t.id++
	id := t.id
	ch := make(chan *mcpResponse, 1)
	t.pending[id] = ch
	stdin := t.stdin
	t.mu.Unlock()

	req := mcpRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if _, err := io.WriteString(stdin, string(data)+"\n"); err != nil {
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
func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	return decodeToolList(resp.Result)
}

// ListResources enumerates the resources the provider advertises
func (t *StdioTransport) ListResources(ctx context.Context) ([]ResourceDescriptor, error) {
	resp, err := t.call(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	return decodeResourceList(resp.Result)
}

// CallTool invokes a tool on the provider
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
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
func (t *StdioTransport) ReadResource(ctx context.Context, uri string) (map[string]interface{}, error) {
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

// Close kills the child process and fails any pending calls
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	process := t.process
	t.mu.Unlock()

	t.failPending()

	if process != nil && process.Process != nil {
		if err := process.Process.Kill(); err != nil {
			return err
		}
		_ = process.Wait()
	}
	return nil
}
