package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/calvinhq/calvin/pkg/provider"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultCallTimeout bounds a single tool invocation
	DefaultCallTimeout = 10 * time.Second
	// DefaultBatchTimeout bounds the whole dispatch batch
	DefaultBatchTimeout = 15 * time.Second
)

// Invoker is the slice of the provider registry the engine needs
type Invoker interface {
	Invoke(ctx context.Context, providerName, toolName string, args map[string]interface{}, timeout time.Duration) *provider.ToolResult
}

// Engine executes dispatch plans concurrently against a provider registry.
// Partial failure is the normal case: every planned invocation yields a
// result, success or typed failure, and a hung provider never stalls the
// batch past the outer deadline.
type Engine struct {
	invoker      Invoker
	callTimeout  time.Duration
	batchTimeout time.Duration
}

// NewEngine creates an invocation engine
func NewEngine(invoker Invoker, callTimeout, batchTimeout time.Duration) *Engine {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}
	return &Engine{
		invoker:      invoker,
		callTimeout:  callTimeout,
		batchTimeout: batchTimeout,
	}
}

type indexedResult struct {
	index  int
	result *provider.ToolResult
}

// Execute dispatches every invocation in the plan concurrently and returns
// one result per invocation, in plan order. Invocations still outstanding
// when the batch deadline elapses are abandoned and recorded as timeouts.
// The returned error covers malformed plans only, never tool failures.
func (e *Engine) Execute(ctx context.Context, plan *Plan) ([]provider.ToolResult, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	for i, inv := range plan.Invocations {
		if inv.Provider == "" || inv.Tool == "" {
			return nil, fmt.Errorf("malformed invocation at index %d: provider and tool are required", i)
		}
	}
	if len(plan.Invocations) == 0 {
		return []provider.ToolResult{}, nil
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]provider.ToolResult, len(plan.Invocations))
	filled := make([]bool, len(plan.Invocations))
	ch := make(chan indexedResult, len(plan.Invocations))

	start := time.Now()
	for i, inv := range plan.Invocations {
		go func(i int, inv Invocation) {
			ch <- indexedResult{
				index:  i,
				result: e.invoker.Invoke(batchCtx, inv.Provider, inv.Tool, inv.Args, e.callTimeout),
			}
		}(i, inv)
	}

	deadline := time.NewTimer(e.batchTimeout)
	defer deadline.Stop()

	remaining := len(plan.Invocations)
collect:
	for remaining > 0 {
		select {
		case r := <-ch:
			results[r.index] = *r.result
			filled[r.index] = true
			remaining--
		case <-deadline.C:
			break collect
		case <-ctx.Done():
			break collect
		}
	}

	// Abandon whatever is still outstanding
	for i := range results {
		if filled[i] {
			continue
		}
		id, _ := gonanoid.New()
		inv := plan.Invocations[i]
		results[i] = provider.ToolResult{
			InvocationID: id,
			Provider:     inv.Provider,
			Tool:         inv.Tool,
			Success:      false,
			Error: &provider.InvocationError{
				Code:    provider.ErrInvocationTimeout,
				Message: fmt.Sprintf("abandoned after batch deadline %s", e.batchTimeout),
			},
			Latency: time.Since(start),
		}

		log.Warn().
			Str("provider", inv.Provider).
			Str("tool", inv.Tool).
			Dur("batchTimeout", e.batchTimeout).
			Msg("Invocation abandoned at batch deadline")
	}

	log.Debug().
		Int("planned", len(plan.Invocations)).
		Int("completed", len(plan.Invocations)-countUnfilled(filled)).
		Dur("elapsed", time.Since(start)).
		Msg("Dispatch batch finished")

	return results, nil
}

func countUnfilled(filled []bool) int {
	n := 0
	for _, f := range filled {
		if !f {
			n++
		}
	}
	return n
}
