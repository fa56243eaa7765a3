package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
)

// DefaultRequestTimeout bounds SendRequest when no override is configured.
const DefaultRequestTimeout = 30 * time.Second

// Hooks is the component-specific behavior a Base agent hosts. Initialize
// runs during Start (a failure puts the agent in Error state), Shutdown
// runs during Stop (failures are logged, never propagated), and
// ProcessTask services every incoming Request envelope.
type Hooks interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	ProcessTask(ctx context.Context, task core.Task) (any, error)
}

// EventHandler is an optional extension of Hooks for agents that want to
// observe Event envelopes addressed to them. Events are never answered.
type EventHandler interface {
	OnEvent(ctx context.Context, msg core.Message)
}

// TaskFunc adapts a plain function to Hooks with no-op lifecycle hooks.
type TaskFunc func(ctx context.Context, task core.Task) (any, error)

// Initialize implements Hooks.
func (TaskFunc) Initialize(context.Context) error { return nil }

// Shutdown implements Hooks.
func (TaskFunc) Shutdown(context.Context) error { return nil }

// ProcessTask implements Hooks.
func (f TaskFunc) ProcessTask(ctx context.Context, task core.Task) (any, error) {
	return f(ctx, task)
}

// Options configures a Base agent.
type Options struct {
	// ID overrides the generated agent id. Mainly for tests.
	ID string
	// RequestTimeout bounds SendRequest. Defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Base implements core.Agent. It owns the lifecycle state machine and the
// messaging plumbing; the hosted Hooks supply the component behavior.
// All exported methods are safe for concurrent use.
type Base struct {
	id      string
	name    string
	channel core.Channel
	hooks   Hooks
	logger  logging.Logger
	timeout time.Duration

	mu          sync.Mutex
	status      core.AgentStatus
	startedAt   time.Time
	unsubscribe []func()

	tasksCompleted  atomic.Int64
	tasksInProgress atomic.Int64
	errorCount      atomic.Int64

	activityMu   sync.Mutex
	lastActivity time.Time
}

var _ core.Agent = (*Base)(nil)

// New constructs an idle agent bound to the channel. The agent does not
// receive envelopes until Start subscribes it under its id and name.
func New(name string, ch core.Channel, hooks Hooks, optFns ...func(o *Options)) *Base {
	opts := Options{
		RequestTimeout: DefaultRequestTimeout,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	id := opts.ID
	if id == "" {
		id = core.NewID()
	}

	return &Base{
		id:      id,
		name:    name,
		channel: ch,
		hooks:   hooks,
		logger:  opts.Logger,
		timeout: opts.RequestTimeout,
		status:  core.StatusIdle,
	}
}

// ID returns the opaque unique agent id.
func (b *Base) ID() string { return b.id }

// Name returns the human-readable agent name.
func (b *Base) Name() string { return b.name }

// Status returns the current lifecycle state.
func (b *Base) Status() core.AgentStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Metrics returns a snapshot of the activity counters. Uptime is
// recomputed as now minus the start timestamp while running.
func (b *Base) Metrics() core.AgentMetrics {
	b.mu.Lock()
	status, startedAt := b.status, b.startedAt
	b.mu.Unlock()

	b.activityMu.Lock()
	last := b.lastActivity
	b.activityMu.Unlock()

	m := core.AgentMetrics{
		TasksCompleted:  b.tasksCompleted.Load(),
		TasksInProgress: b.tasksInProgress.Load(),
		ErrorCount:      b.errorCount.Load(),
		LastActivity:    last,
	}
	if status == core.StatusRunning {
		m.Uptime = time.Since(startedAt)
	}
	return m
}

// Start transitions the agent to Running, subscribes it on the channel and
// invokes the initialize hook. Starting a running agent is a warning no-op.
// A hook failure transitions to Error, announces the failure and is
// returned to the caller.
func (b *Base) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.status == core.StatusRunning {
		b.mu.Unlock()
		b.logger.Warn("agent.start.already_running", "agent", b.name)
		return nil
	}

	b.status = core.StatusRunning
	b.startedAt = time.Now()
	b.subscribeLocked()
	b.mu.Unlock()

	if err := b.hooks.Initialize(ctx); err != nil {
		b.mu.Lock()
		b.status = core.StatusError
		b.unsubscribeLocked()
		b.mu.Unlock()

		b.errorCount.Add(1)
		b.announce(ctx, core.StatusError, err.Error())
		return fmt.Errorf("agent %s initialize failed: %w", b.name, err)
	}

	b.announce(ctx, core.StatusRunning, "")
	b.logger.Info("agent.started", "agent", b.name, "id", b.id)
	return nil
}

// Stop transitions to Stopped, unsubscribes the agent and invokes the
// shutdown hook; a hook failure is logged, never propagated. Stopping a
// stopped agent is a warning no-op. The transition happens in the same
// critical section as the check, so concurrent Stop calls invoke the hook
// exactly once.
func (b *Base) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.status == core.StatusStopped {
		b.mu.Unlock()
		b.logger.Warn("agent.stop.already_stopped", "agent", b.name)
		return nil
	}
	b.status = core.StatusStopped
	b.unsubscribeLocked()
	b.mu.Unlock()

	if err := b.hooks.Shutdown(ctx); err != nil {
		b.logger.Warn("agent.shutdown.hook_failed", "agent", b.name, "error", err.Error())
	}

	b.announce(ctx, core.StatusStopped, "")
	b.logger.Info("agent.stopped", "agent", b.name, "id", b.id)
	return nil
}

// SendRequest publishes a correlated Request to the given address and waits
// for the matching Response or Error envelope. Exactly one of three
// outcomes occurs: the response payload is returned, a RemoteError wrapping
// the error payload is returned, or ErrTimeout after the configured window.
// The correlation listener is always deregistered afterwards.
func (b *Base) SendRequest(ctx context.Context, to string, payload any) (any, error) {
	return Request(ctx, b.channel, b.id, to, payload, b.timeout)
}

func (b *Base) subscribeLocked() {
	handler := func(ctx context.Context, msg core.Message) { b.handleMessage(ctx, msg) }
	b.unsubscribe = append(b.unsubscribe, b.channel.Subscribe(b.id, handler))
	if b.name != "" && b.name != b.id {
		b.unsubscribe = append(b.unsubscribe, b.channel.Subscribe(b.name, handler))
	}
}

func (b *Base) unsubscribeLocked() {
	for _, fn := range b.unsubscribe {
		fn()
	}
	b.unsubscribe = nil
}

// handleMessage services envelopes addressed to this agent. Requests run
// through the ProcessTask hook and are answered with a Response or Error
// envelope preserving the caller's correlation id. Events are passed to an
// optional EventHandler and never answered.
func (b *Base) handleMessage(ctx context.Context, msg core.Message) {
	switch msg.Kind {
	case core.KindRequest:
		b.processRequest(ctx, msg)
	case core.KindEvent:
		if h, ok := b.hooks.(EventHandler); ok {
			h.OnEvent(ctx, msg)
		}
	default:
		// Late or uncorrelated responses have no waiting listener left.
		b.logger.Debug("agent.message.ignored", "agent", b.name, "kind", string(msg.Kind), "id", msg.ID)
	}
}

func (b *Base) processRequest(ctx context.Context, msg core.Message) {
	b.tasksInProgress.Add(1)
	defer b.tasksInProgress.Add(-1)
	b.touch()

	task, ok := msg.Payload.(core.Task)
	if !ok {
		task = core.Task{ID: msg.ID, Payload: msg.Payload, SubmittedAt: msg.Timestamp}
	}

	result, err := b.hooks.ProcessTask(ctx, task)
	if err != nil {
		b.errorCount.Add(1)
		b.logger.Warn("agent.task.failed", "agent", b.name, "task", task.ID, "error", err.Error())
		if pubErr := b.channel.Publish(ctx, msg.ReplyError(b.id, err)); pubErr != nil {
			b.logger.Error("agent.reply.failed", "agent", b.name, "error", pubErr.Error())
		}
		return
	}

	b.tasksCompleted.Add(1)
	b.touch()
	if pubErr := b.channel.Publish(ctx, msg.Reply(b.id, result)); pubErr != nil {
		b.logger.Error("agent.reply.failed", "agent", b.name, "error", pubErr.Error())
	}
}

func (b *Base) touch() {
	b.activityMu.Lock()
	b.lastActivity = time.Now()
	b.activityMu.Unlock()
}

// announce publishes a lifecycle event for watchers. Error transitions use
// an Error envelope so recovery loops can filter on kind alone.
func (b *Base) announce(ctx context.Context, status core.AgentStatus, reason string) {
	kind := core.KindEvent
	if status == core.StatusError {
		kind = core.KindError
	}
	msg := core.NewMessage(b.id, "", kind, core.LifecycleEvent{
		AgentID: b.id,
		Name:    b.name,
		Status:  status,
		Reason:  reason,
	})
	b.channel.Announce(ctx, msg)
}
