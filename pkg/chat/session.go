package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/calvinhq/calvin/internal/observability"
	"github.com/calvinhq/calvin/pkg/dispatch"
	"github.com/calvinhq/calvin/pkg/llm"
	"github.com/calvinhq/calvin/pkg/provider"
)

// ErrBusy is returned when Send is called while a prior turn is still in
// flight. The caller may retry or queue at a higher layer; the session never
// queues and never touches history for the rejected call.
var ErrBusy = errors.New("session is busy with another turn")

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Message is one entry in the session history. Immutable once appended.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session events consumed by the presentation layer
const (
	EventMessageAppended = "message.appended"
	EventTurnBusy        = "turn.busy"
	EventTurnComplete    = "turn.complete"
)

// Event is a session lifecycle event
type Event struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"sessionId"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler handles session events
type EventHandler func(Event)

// GenerationConfig is the session's active generation configuration. Clear
// wipes history but keeps this.
type GenerationConfig struct {
	Model        string      `json:"model"`
	SystemPrompt string      `json:"system_prompt"`
	Options      llm.Options `json:"options"`
	Stream       bool        `json:"stream"`
}

// CapabilitySource yields the current capability snapshot, normally the
// provider registry
type CapabilitySource interface {
	Snapshot() provider.Snapshot
}

// Executor runs a dispatch plan, normally the invocation engine
type Executor interface {
	Execute(ctx context.Context, plan *dispatch.Plan) ([]provider.ToolResult, error)
}

// Manager owns one conversation: append-only history plus turn execution.
// Send is the single entry point and is turn-serialized; at most one turn
// runs at any instant.
type Manager struct {
	id        string
	source    CapabilitySource
	planner   *dispatch.Planner
	executor  Executor
	generator llm.Generator
	genCfg    GenerationConfig

	mu        sync.Mutex
	history   []Message
	lastStamp time.Time
	busy      bool

	handlerMu sync.RWMutex
	handlers  map[string][]EventHandler
}

// NewManager creates a session manager
func NewManager(source CapabilitySource, planner *dispatch.Planner, executor Executor, generator llm.Generator, genCfg GenerationConfig) *Manager {
	return &Manager{
		id:        uuid.New().String(),
		source:    source,
		planner:   planner,
		executor:  executor,
		generator: generator,
		genCfg:    genCfg,
		handlers:  make(map[string][]EventHandler),
	}
}

// ID returns the session identifier
func (m *Manager) ID() string {
	return m.id
}

// Generation returns the active generation configuration
func (m *Manager) Generation() GenerationConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.genCfg
}

// SetGeneration replaces the active generation configuration
func (m *Manager) SetGeneration(cfg GenerationConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genCfg = cfg
}

// Send runs one complete turn: plan the message against the current
// capability snapshot, execute the plan, augment the prompt with successful
// results, generate, and append the assistant text. A generation failure
// appends an error message instead. Returns ErrBusy without touching history
// if another turn is still in flight.
func (m *Manager) Send(ctx context.Context, text string) (*Message, error) {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		m.emit(Event{Type: EventTurnBusy, SessionID: m.id, Timestamp: time.Now()})
		return nil, ErrBusy
	}
	m.busy = true
	genCfg := m.genCfg
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}()

	start := time.Now()
	m.append(RoleUser, text)

	snap := m.source.Snapshot()
	plan := m.planner.Plan(text, snap)

	var results []provider.ToolResult
	if !plan.Empty() {
		var err error
		results, err = m.executor.Execute(ctx, plan)
		if err != nil {
			// Malformed plan is a programming error; the turn proceeds on
			// the raw message
			log.Error().Err(err).Str("session", m.id).Msg("Dispatch execution failed")
			results = nil
		}
	}

	prompt := Augment(text, results)

	genStart := time.Now()
	resp, err := m.generator.Generate(ctx, llm.Request{
		Model:        genCfg.Model,
		SystemPrompt: genCfg.SystemPrompt,
		Prompt:       prompt,
		Options:      genCfg.Options,
		Stream:       genCfg.Stream,
	})
	if err != nil {
		observability.RecordGeneration("error", time.Since(genStart))
		observability.RecordTurn("error", time.Since(start))

		log.Error().Err(err).Str("session", m.id).Msg("Generation failed")
		msg := m.append(RoleError, "The response could not be generated: "+err.Error())
		m.emit(Event{Type: EventTurnComplete, SessionID: m.id, Timestamp: time.Now(),
			Data: map[string]interface{}{"status": "error"}})
		return &msg, err
	}
	observability.RecordGeneration("ok", time.Since(genStart))

	msg := m.append(RoleAssistant, resp.Text)
	observability.RecordTurn("ok", time.Since(start))

	log.Debug().
		Str("session", m.id).
		Int("invocations", len(plan.Invocations)).
		Dur("elapsed", time.Since(start)).
		Msg("Turn complete")
	m.emit(Event{Type: EventTurnComplete, SessionID: m.id, Timestamp: time.Now(),
		Data: map[string]interface{}{"status": "ok"}})

	return &msg, nil
}

// History returns a snapshot of the session history
func (m *Manager) History() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Message, len(m.history))
	copy(out, m.history)
	return out
}

// Clear empties the history. Generation configuration and provider state are
// untouched.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.history = nil
	m.mu.Unlock()

	log.Info().Str("session", m.id).Msg("Session history cleared")
}

// append stamps and records one message. Timestamps are monotonically
// non-decreasing even if the wall clock steps backwards.
func (m *Manager) append(role Role, text string) Message {
	m.mu.Lock()
	now := time.Now()
	if now.Before(m.lastStamp) {
		now = m.lastStamp
	}
	m.lastStamp = now

	msg := Message{Role: role, Text: text, Timestamp: now}
	m.history = append(m.history, msg)
	m.mu.Unlock()

	m.emit(Event{Type: EventMessageAppended, SessionID: m.id, Timestamp: now,
		Data: map[string]interface{}{"role": string(role)}})
	return msg
}

// On registers a handler for the given event type
func (m *Manager) On(eventType string, handler EventHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

func (m *Manager) emit(event Event) {
	m.handlerMu.RLock()
	handlers := m.handlers[event.Type]
	m.handlerMu.RUnlock()

	for _, h := range handlers {
		go h(event)
	}
}
