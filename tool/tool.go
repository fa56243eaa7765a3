// Package tool implements the capability execution subsystem: a registry of
// named capabilities and an executor agent that services correlated
// {capabilityId, parameters} requests, answering with success/data/error
// plus execution timing. Capability implementations are arbitrary; the
// orchestration core never inspects the work performed.
package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Invocation is the request payload accepted by the executor agent.
type Invocation struct {
	CapabilityID string         `json:"capability_id"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

// Result is the executor's answer: success flag, output data or error
// message, plus wall-clock execution time.
type Result struct {
	Success         bool   `json:"success"`
	Data            any    `json:"data,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// Capability is one invocable named capability.
type Capability interface {
	// Name returns the unique capability identifier (snake_case
	// recommended).
	Name() string

	// Description returns a human-readable description of the capability.
	Description() string

	// Execute performs the work with the supplied parameters.
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// ServerBacked is an optional extension for capabilities that depend on an
// external capability server; the executor ensures the server is running
// before each invocation.
type ServerBacked interface {
	ServerID() string
}

// CapabilityError categorizes capability failures with stable codes.
type CapabilityError struct {
	Capability string `json:"capability"`
	Message    string `json:"message"`
	Code       string `json:"code"`
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("capability error [%s] in %s: %s", e.Code, e.Capability, e.Message)
	}
	return fmt.Sprintf("capability error in %s: %s", e.Capability, e.Message)
}

// NewCapabilityError creates a CapabilityError with the given details.
func NewCapabilityError(capability, message, code string) *CapabilityError {
	return &CapabilityError{Capability: capability, Message: message, Code: code}
}

// FuncCapability adapts a plain Go function to the Capability interface.
// It has no mutable state after construction and is safe for concurrent
// use.
type FuncCapability struct {
	name        string
	description string
	serverID    string
	fn          func(ctx context.Context, params map[string]any) (any, error)
}

// NewFuncCapability constructs a capability from an explicit function.
func NewFuncCapability(name, description string, fn func(ctx context.Context, params map[string]any) (any, error)) *FuncCapability {
	return &FuncCapability{name: name, description: description, fn: fn}
}

// NewServerCapability constructs a capability backed by an external
// capability server; the executor ensures the server runs before calls.
func NewServerCapability(name, description, serverID string, fn func(ctx context.Context, params map[string]any) (any, error)) *FuncCapability {
	return &FuncCapability{name: name, description: description, serverID: serverID, fn: fn}
}

// Name returns the capability identifier.
func (c *FuncCapability) Name() string { return c.name }

// Description returns the capability description.
func (c *FuncCapability) Description() string { return c.description }

// ServerID returns the backing capability server id, or "".
func (c *FuncCapability) ServerID() string { return c.serverID }

// Execute invokes the wrapped function.
func (c *FuncCapability) Execute(ctx context.Context, params map[string]any) (any, error) {
	return c.fn(ctx, params)
}

// Registry is a goroutine-safe catalog of capabilities.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[string]Capability)}
}

// Register adds the capability, replacing any prior entry with the same
// name.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[c.Name()] = c
}

// Get returns the named capability.
func (r *Registry) Get(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.capabilities[name]
	return c, ok
}

// Names returns the sorted capability names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
