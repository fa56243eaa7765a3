package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentdock/agent"
	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
)

// ServerManager ensures a named capability server process is running. It is
// satisfied by procman.Manager; executors without server-backed
// capabilities can leave it nil.
type ServerManager interface {
	Ensure(ctx context.Context, id string) error
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// Servers, when set, is consulted before invoking a server-backed
	// capability.
	Servers ServerManager

	// Logger is the logger for executor events. Defaults to
	// logging.NoOpLogger.
	Logger logging.Logger
}

// Executor services capability invocations over the message channel. A
// request payload carrying an Invocation is answered with a Result: failures
// inside a capability come back as Result{Success: false}, while an unknown
// capability id is a protocol error and produces an error reply instead.
type Executor struct {
	registry *Registry
	opts     ExecutorOptions
}

var _ agent.Hooks = (*Executor)(nil)

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{registry: registry, opts: opts}
}

// Initialize implements agent.Hooks.
func (e *Executor) Initialize(ctx context.Context) error { return nil }

// Shutdown implements agent.Hooks.
func (e *Executor) Shutdown(ctx context.Context) error { return nil }

// ProcessTask decodes the invocation from the task payload, runs the
// capability and returns a Result.
func (e *Executor) ProcessTask(ctx context.Context, task core.Task) (any, error) {
	inv, err := decodeInvocation(task.Payload)
	if err != nil {
		return nil, err
	}

	capability, ok := e.registry.Get(inv.CapabilityID)
	if !ok {
		return nil, NewCapabilityError(inv.CapabilityID, "capability not found", "NOT_FOUND")
	}

	if sb, ok := capability.(ServerBacked); ok && sb.ServerID() != "" && e.opts.Servers != nil {
		if err := e.opts.Servers.Ensure(ctx, sb.ServerID()); err != nil {
			return nil, NewCapabilityError(inv.CapabilityID, fmt.Sprintf("capability server unavailable: %v", err), "SERVER_UNAVAILABLE")
		}
	}

	start := time.Now()
	data, err := capability.Execute(ctx, inv.Parameters)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		e.opts.Logger.Warn("Capability failed", "capability", inv.CapabilityID, "durationMs", elapsed, "error", err)
		return Result{
			Success:         false,
			Error:           err.Error(),
			ExecutionTimeMs: elapsed,
		}, nil
	}

	e.opts.Logger.Debug("Capability executed", "capability", inv.CapabilityID, "durationMs", elapsed)
	return Result{
		Success:         true,
		Data:            data,
		ExecutionTimeMs: elapsed,
	}, nil
}

// decodeInvocation accepts an Invocation value directly or its loosely typed
// map form, as produced when the payload crossed a serialization boundary.
func decodeInvocation(payload any) (Invocation, error) {
	switch v := payload.(type) {
	case Invocation:
		return v, nil
	case *Invocation:
		return *v, nil
	case map[string]any:
		inv := Invocation{}
		if id, ok := v["capability_id"].(string); ok {
			inv.CapabilityID = id
		}
		if params, ok := v["parameters"].(map[string]any); ok {
			inv.Parameters = params
		}
		if inv.CapabilityID == "" {
			return Invocation{}, fmt.Errorf("invocation payload has no capability_id")
		}
		return inv, nil
	default:
		return Invocation{}, fmt.Errorf("unsupported invocation payload type %T", payload)
	}
}
