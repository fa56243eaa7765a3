// Package model defines the reasoning collaborator contract: a task label
// plus the caller's context in, an arbitrary result out. Provider adapters
// live in the anthropic and openai subpackages; Breaker adds a circuit
// breaker around any implementation so a flapping provider fails fast
// instead of stalling every request on its timeout.
package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

// Request is the normalized reasoning input.
type Request struct {
	// Task is the label describing what to reason about.
	Task string `json:"task"`
	// Context carries the caller's key-value state, typically a workflow
	// execution's context.
	Context map[string]any `json:"context,omitempty"`
	// Instructions optionally steer the provider (system prompt).
	Instructions string `json:"instructions,omitempty"`
}

// Prompt renders the request as a single prompt string, appending the
// context as JSON when present. Provider adapters use it to build their
// user message.
func (r Request) Prompt() string {
	if len(r.Context) == 0 {
		return r.Task
	}
	data, err := json.Marshal(r.Context)
	if err != nil {
		return r.Task
	}
	return r.Task + "\n\nContext:\n" + string(data)
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Model is the minimal interface reasoning agents drive.
type Model interface {
	// Complete performs one reasoning call and returns the result text.
	Complete(ctx context.Context, req Request) (string, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model for tests and examples.
type MockModel struct {
	// Response is returned verbatim when Fn is nil.
	Response string
	// Err, when set, is returned instead of a response.
	Err error
	// Fn, when set, computes the response.
	Fn func(ctx context.Context, req Request) (string, error)

	// Calls counts Complete invocations.
	Calls int
}

var _ Model = (*MockModel)(nil)

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (string, error) {
	m.Calls++
	if m.Fn != nil {
		return m.Fn(ctx, req)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// Info implements Model.
func (m *MockModel) Info() Info {
	return Info{Name: "mock", Provider: "mock"}
}

// BreakerOptions configures a Breaker.
type BreakerOptions struct {
	// Settings are passed through to gobreaker. The zero value uses
	// gobreaker's defaults (trip after 5 consecutive failures).
	Settings gobreaker.Settings
}

// Breaker wraps a Model with a circuit breaker. While the circuit is open,
// Complete fails immediately with gobreaker.ErrOpenState instead of calling
// the provider.
type Breaker struct {
	model   Model
	breaker *gobreaker.CircuitBreaker[string]
}

var _ Model = (*Breaker)(nil)

// NewBreaker wraps the model.
func NewBreaker(m Model, optFns ...func(o *BreakerOptions)) *Breaker {
	opts := BreakerOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Settings.Name == "" {
		opts.Settings.Name = fmt.Sprintf("model:%s", m.Info().Name)
	}

	return &Breaker{
		model:   m,
		breaker: gobreaker.NewCircuitBreaker[string](opts.Settings),
	}
}

// Complete implements Model.
func (b *Breaker) Complete(ctx context.Context, req Request) (string, error) {
	return b.breaker.Execute(func() (string, error) {
		return b.model.Complete(ctx, req)
	})
}

// Info implements Model.
func (b *Breaker) Info() Info { return b.model.Info() }

// State returns the wrapped breaker's current state.
func (b *Breaker) State() gobreaker.State { return b.breaker.State() }
