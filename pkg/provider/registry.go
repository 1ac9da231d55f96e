package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calvinhq/calvin/internal/observability"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// EventProviderStateChanged is emitted whenever a provider changes state
const EventProviderStateChanged = "provider.state_changed"

type entry struct {
	cfg       Config
	state     State
	transport Transport
	caps      Capabilities
}

// Registry owns provider connection lifecycle and capability snapshots. It is
// the sole mutator of provider state; planners and engines only ever see
// snapshots.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*entry
	order     []string

	validator *ArgumentValidator

	connectTimeout time.Duration
	transportFor   func(Config) (Transport, error)

	handlers map[string][]EventHandler
	eventMu  sync.RWMutex
}

// RegistryOption customizes registry construction
type RegistryOption func(*Registry)

// WithConnectTimeout bounds each provider's connect plus discovery
func WithConnectTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.connectTimeout = d }
}

// NewRegistry creates a registry from an ordered provider config list.
// Provider names must be unique.
func NewRegistry(configs []Config, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		providers:      make(map[string]*entry, len(configs)),
		order:          make([]string, 0, len(configs)),
		validator:      NewArgumentValidator(),
		connectTimeout: 30 * time.Second,
		transportFor:   newTransport,
		handlers:       make(map[string][]EventHandler),
	}

	for _, cfg := range configs {
		if cfg.Name == "" {
			return nil, fmt.Errorf("provider name is required")
		}
		if _, exists := r.providers[cfg.Name]; exists {
			return nil, fmt.Errorf("duplicate provider name: %s", cfg.Name)
		}
		r.providers[cfg.Name] = &entry{cfg: cfg, state: StateDisconnected}
		r.order = append(r.order, cfg.Name)
	}

	for _, opt := range opts {
		opt(r)
	}

	observability.EnsureRegistered()

	return r, nil
}

// Initialize connects every configured provider and runs capability
// discovery. A provider that fails to connect or discover is marked Failed
// and logged; it never aborts initialization of the rest. No retry is
// attempted after initialization.
func (r *Registry) Initialize(ctx context.Context) {
	for _, name := range r.order {
		r.setState(name, StateConnecting)

		if err := r.connectOne(ctx, name); err != nil {
			log.Error().Err(err).Str("provider", name).Msg("Provider initialization failed")
			r.setState(name, StateFailed)
			continue
		}

		r.setState(name, StateConnected)
	}

	connected := 0
	r.mu.RLock()
	for _, e := range r.providers {
		if e.state == StateConnected {
			connected++
		}
	}
	total := len(r.providers)
	r.mu.RUnlock()

	observability.SetProvidersConnected(connected)
	log.Info().
		Int("connected", connected).
		Int("total", total).
		Msg("Provider registry initialized")
}

func (r *Registry) connectOne(ctx context.Context, name string) error {
	r.mu.RLock()
	cfg := r.providers[name].cfg
	r.mu.RUnlock()

	connectCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	transport, err := r.transportFor(cfg)
	if err != nil {
		return err
	}

	if err := transport.Connect(connectCtx); err != nil {
		_ = transport.Close()
		return fmt.Errorf("connect failed: %w", err)
	}

	tools, err := transport.ListTools(connectCtx)
	if err != nil {
		_ = transport.Close()
		return fmt.Errorf("tool discovery failed: %w", err)
	}

	resources, err := transport.ListResources(connectCtx)
	if err != nil {
		// Not every provider serves resources; tools alone are enough
		log.Debug().Err(err).Str("provider", name).Msg("Resource discovery failed")
		resources = nil
	}

	r.mu.Lock()
	e := r.providers[name]
	e.transport = transport
	e.caps = Capabilities{Tools: tools, Resources: resources}
	r.mu.Unlock()

	log.Info().
		Str("provider", name).
		Int("tools", len(tools)).
		Int("resources", len(resources)).
		Msg("Provider connected")

	return nil
}

// Snapshot returns an immutable copy of provider name to capability set,
// including only Connected providers.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(Snapshot)
	for name, e := range r.providers {
		if e.state != StateConnected {
			continue
		}
		caps := Capabilities{
			Tools:     make([]ToolDescriptor, len(e.caps.Tools)),
			Resources: make([]ResourceDescriptor, len(e.caps.Resources)),
		}
		copy(caps.Tools, e.caps.Tools)
		copy(caps.Resources, e.caps.Resources)
		snap[name] = caps
	}
	return snap
}

// Invoke calls a tool on a provider, bounded by timeout. Tool-level failures
// are carried in the returned result, never raised; a non-nil error means a
// programming error (unknown provider would be a planning bug upstream, but
// is still reported as a typed result for the race against disconnection).
func (r *Registry) Invoke(ctx context.Context, providerName, toolName string, args map[string]interface{}, timeout time.Duration) *ToolResult {
	start := time.Now()
	invocationID, _ := gonanoid.New()

	result := &ToolResult{
		InvocationID: invocationID,
		Provider:     providerName,
		Tool:         toolName,
	}

	r.mu.RLock()
	e, exists := r.providers[providerName]
	var transport Transport
	var tool ToolDescriptor
	var toolFound bool
	var state State
	if exists {
		state = e.state
		transport = e.transport
		for _, t := range e.caps.Tools {
			if t.Name == toolName {
				tool = t
				toolFound = true
				break
			}
		}
	}
	r.mu.RUnlock()

	if !exists || state != StateConnected {
		return r.finish(result, start, ErrProviderUnavailable,
			fmt.Sprintf("provider %s is not connected", providerName))
	}
	if !toolFound {
		return r.finish(result, start, ErrToolNotFound,
			fmt.Sprintf("provider %s does not advertise tool %s", providerName, toolName))
	}
	if err := r.validator.Validate(tool, args); err != nil {
		return r.finish(result, start, ErrInvalidArguments, err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := transport.CallTool(callCtx, toolName, args)
	if err != nil {
		var remote *RemoteError
		switch {
		case errors.As(err, &remote):
			return r.finish(result, start, ErrRemoteToolError, remote.Message)
		case errors.Is(err, context.DeadlineExceeded):
			return r.finish(result, start, ErrInvocationTimeout,
				fmt.Sprintf("no response within %s", timeout))
		case errors.Is(err, context.Canceled):
			return r.finish(result, start, ErrInvocationTimeout, "invocation canceled")
		default:
			// Transport-level failure on a connected provider: the connection
			// is no longer trustworthy
			r.markFailed(providerName, err)
			return r.finish(result, start, ErrProviderUnavailable, err.Error())
		}
	}

	result.Success = true
	result.Payload = payload
	result.Latency = time.Since(start)
	observability.RecordToolInvocation(providerName, "success", result.Latency)

	log.Debug().
		Str("invocationId", invocationID).
		Str("provider", providerName).
		Str("tool", toolName).
		Dur("latency", result.Latency).
		Msg("Tool invocation succeeded")

	return result
}

func (r *Registry) finish(result *ToolResult, start time.Time, code ErrorCode, message string) *ToolResult {
	result.Success = false
	result.Error = &InvocationError{Code: code, Message: message}
	result.Latency = time.Since(start)
	observability.RecordToolInvocation(result.Provider, string(code), result.Latency)

	log.Warn().
		Str("invocationId", result.InvocationID).
		Str("provider", result.Provider).
		Str("tool", result.Tool).
		Str("code", string(code)).
		Str("reason", message).
		Msg("Tool invocation failed")

	return result
}

// markFailed transitions a provider to Failed after an invocation-time
// transport error
func (r *Registry) markFailed(name string, cause error) {
	r.mu.Lock()
	e, exists := r.providers[name]
	if !exists || e.state != StateConnected {
		r.mu.Unlock()
		return
	}
	e.state = StateFailed
	transport := e.transport
	connected := 0
	for _, p := range r.providers {
		if p.state == StateConnected {
			connected++
		}
	}
	r.mu.Unlock()

	if transport != nil {
		_ = transport.Close()
	}
	observability.SetProvidersConnected(connected)

	log.Warn().Err(cause).Str("provider", name).Msg("Provider marked failed after transport error")

	r.emit(Event{
		Type:      EventProviderStateChanged,
		Provider:  name,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"state": string(StateFailed)},
	})
}

// ReadResource reads a resource from a Connected provider
func (r *Registry) ReadResource(ctx context.Context, providerName, uri string, timeout time.Duration) (map[string]interface{}, error) {
	r.mu.RLock()
	e, exists := r.providers[providerName]
	var transport Transport
	var state State
	if exists {
		state = e.state
		transport = e.transport
	}
	r.mu.RUnlock()

	if !exists || state != StateConnected {
		return nil, &InvocationError{Code: ErrProviderUnavailable,
			Message: fmt.Sprintf("provider %s is not connected", providerName)}
	}

	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return transport.ReadResource(readCtx, uri)
}

// Status returns a per-provider summary in configuration order
func (r *Registry) Status() []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make([]ProviderStatus, 0, len(r.order))
	for _, name := range r.order {
		e := r.providers[name]
		statuses = append(statuses, ProviderStatus{
			Name:      name,
			Transport: e.cfg.Transport,
			State:     e.state,
			Tools:     len(e.caps.Tools),
			Resources: len(e.caps.Resources),
		})
	}
	return statuses
}

// Shutdown closes every provider connection, best-effort. Per-provider close
// failures are collected and logged, never raised.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	transports := make(map[string]Transport)
	for name, e := range r.providers {
		if e.transport != nil {
			transports[name] = e.transport
			e.transport = nil
		}
		e.state = StateDisconnected
	}
	r.mu.Unlock()

	for name, transport := range transports {
		if err := transport.Close(); err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("Failed to close provider connection")
		}
	}

	observability.SetProvidersConnected(0)
	log.Info().Int("providers", len(transports)).Msg("Provider registry shut down")
}

// setState updates a provider's state and emits a state change event
func (r *Registry) setState(name string, state State) {
	r.mu.Lock()
	r.providers[name].state = state
	r.mu.Unlock()

	r.emit(Event{
		Type:      EventProviderStateChanged,
		Provider:  name,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"state": string(state)},
	})
}

// On registers an event handler
func (r *Registry) On(eventType string, handler EventHandler) {
	r.eventMu.Lock()
	defer r.eventMu.Unlock()
	r.handlers[eventType] = append(r.handlers[eventType], handler)
}

// emit delivers an event to all registered handlers asynchronously
func (r *Registry) emit(event Event) {
	r.eventMu.RLock()
	handlers := r.handlers[event.Type]
	r.eventMu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}
