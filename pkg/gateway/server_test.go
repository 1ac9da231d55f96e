package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinhq/calvin/pkg/chat"
	"github.com/calvinhq/calvin/pkg/dispatch"
	"github.com/calvinhq/calvin/pkg/llm"
	"github.com/calvinhq/calvin/pkg/provider"
)

type fakeGenerator struct {
	reply string
}

func (f *fakeGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: f.reply, Model: req.Model}, nil
}

func (f *fakeGenerator) Healthy(ctx context.Context) bool { return true }
func (f *fakeGenerator) Backend() string                  { return "fake" }

func newTestServer(t *testing.T, sharedSecret string) *Server {
	t.Helper()

	registry, err := provider.NewRegistry(nil)
	require.NoError(t, err)

	generator := &fakeGenerator{reply: "hello from the model"}
	session := chat.NewManager(registry, dispatch.NewPlanner(nil, 0),
		dispatch.NewEngine(registry, 0, 0), generator, chat.GenerationConfig{Model: "llama3.1"})

	server, err := NewServer(Config{
		Host:         "127.0.0.1",
		Port:         8080,
		SharedSecret: sharedSecret,
		Session:      session,
		Registry:     registry,
		Generator:    generator,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return server
}

func dialTestServer(t *testing.T, s *Server, query string) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, wantType string) ServerMessage {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		// Broadcast events may interleave with direct responses
		if msg.Type == MsgEvent && wantType != MsgEvent {
			continue
		}
		require.Equal(t, wantType, msg.Type)
		return msg
	}
}

func TestServer_PingPong(t *testing.T) {
	server := newTestServer(t, "")
	conn := dialTestServer(t, server, "")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgPing}))
	msg := readMessage(t, conn, MsgPong)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestServer_ServerStatus(t *testing.T) {
	server := newTestServer(t, "")
	conn := dialTestServer(t, server, "")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgServerStatus}))
	msg := readMessage(t, conn, MsgServerStatus)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "fake", data["backend"])
	assert.Equal(t, true, data["healthy"])
}

func TestServer_ChatRoundTrip(t *testing.T) {
	server := newTestServer(t, "")
	conn := dialTestServer(t, server, "")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgChat, Text: "Good morning"}))
	msg := readMessage(t, conn, MsgChatResponse)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(chat.RoleAssistant), data["role"])
	assert.Equal(t, "hello from the model", data["text"])
}

func TestServer_ChatRequiresText(t *testing.T) {
	server := newTestServer(t, "")
	conn := dialTestServer(t, server, "")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgChat}))
	msg := readMessage(t, conn, MsgError)
	assert.Contains(t, msg.Message, "requires text")
}

func TestServer_UnknownMessageType(t *testing.T) {
	server := newTestServer(t, "")
	conn := dialTestServer(t, server, "")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "bogus"}))
	msg := readMessage(t, conn, MsgError)
	assert.Contains(t, msg.Message, "unknown message type")
}

func TestServer_ToolCallAgainstUnknownProvider(t *testing.T) {
	server := newTestServer(t, "")
	conn := dialTestServer(t, server, "")

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:     MsgToolCall,
		Provider: "missing",
		Tool:     "analyze_sentiment",
	}))
	msg := readMessage(t, conn, MsgToolResult)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, data["success"])
}

func TestServer_ToolCallRequiresProviderAndTool(t *testing.T) {
	server := newTestServer(t, "")
	conn := dialTestServer(t, server, "")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgToolCall}))
	msg := readMessage(t, conn, MsgError)
	assert.Contains(t, msg.Message, "requires provider and tool")
}

func TestServer_SharedSecret(t *testing.T) {
	server := newTestServer(t, "s3cret")

	ts := httptest.NewServer(http.HandlerFunc(server.handleWebSocket))
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?secret=s3cret", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgPing}))
	readMessage(t, conn, MsgPong)
}

func TestNewServer_Validation(t *testing.T) {
	registry, err := provider.NewRegistry(nil)
	require.NoError(t, err)

	_, err = NewServer(Config{Port: 0})
	require.Error(t, err)

	_, err = NewServer(Config{Port: 8080, Registry: registry})
	require.Error(t, err)
}
