package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/agentdock/agent"
	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
)

var (
	// ErrNotRegistered is returned when an agent id is unknown.
	ErrNotRegistered = errors.New("agent not registered")
	// ErrAgentUnavailable is returned when an explicitly targeted agent is
	// not registered or not attached.
	ErrAgentUnavailable = errors.New("agent not found or not attached")
	// ErrNoSuitableAgent is returned when routing finds no target.
	ErrNoSuitableAgent = errors.New("no suitable agent found")
	// ErrStopped is returned by Submit after the orchestrator shut down.
	ErrStopped = errors.New("orchestrator is stopped")
)

// registration is the orchestrator's record for one agent. Attached means
// eligible for routing and for start/stop sweeps; detaching does not stop a
// running agent by itself.
type registration struct {
	agent    core.Agent
	priority int
	attached bool
}

// Options configures an Orchestrator.
type Options struct {
	// ID is the orchestrator's channel address. Mainly for tests.
	ID string
	// RoutingTable maps a task category to the name of the agent that
	// owns it. Supplied at construction so the routing logic stays
	// generic over its table.
	RoutingTable map[string]string
	// QueueInterval is the wake-up period of the serial queue drain loop.
	QueueInterval time.Duration
	// RestartDelay is the pause before a failed agent is restarted.
	RestartDelay time.Duration
	// RequestTimeout bounds each forwarded task request.
	RequestTimeout time.Duration
	// Logger defaults to NoOp.
	Logger logging.Logger
}

type queuedTask struct {
	task   core.Task
	future *core.Future
}

// Orchestrator supervises registered agents and serializes task
// processing. All exported methods are safe for concurrent use.
type Orchestrator struct {
	id             string
	channel        core.Channel
	routing        map[string]string
	queueInterval  time.Duration
	restartDelay   time.Duration
	requestTimeout time.Duration
	logger         logging.Logger

	mu       sync.Mutex
	registry map[string]*registration

	queueMu sync.Mutex
	queue   []queuedTask

	recoveryMu sync.Mutex
	recovering map[string]bool

	unwatch  func()
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New constructs an Orchestrator bound to the channel and starts its
// background loops (queue drain, failure recovery watcher). Call Stop to
// shut the orchestrator and all registered agents down.
func New(ch core.Channel, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		QueueInterval:  100 * time.Millisecond,
		RestartDelay:   500 * time.Millisecond,
		RequestTimeout: agent.DefaultRequestTimeout,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	id := opts.ID
	if id == "" {
		id = "orchestrator-" + core.NewID()
	}

	routing := make(map[string]string, len(opts.RoutingTable))
	for k, v := range opts.RoutingTable {
		routing[k] = v
	}

	o := &Orchestrator{
		id:             id,
		channel:        ch,
		routing:        routing,
		queueInterval:  opts.QueueInterval,
		restartDelay:   opts.RestartDelay,
		requestTimeout: opts.RequestTimeout,
		logger:         opts.Logger,
		registry:       make(map[string]*registration),
		recovering:     make(map[string]bool),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}

	o.unwatch = ch.Watch(o.onAnnouncement)
	go o.drainLoop()

	return o
}

// RegisterAgent adds the agent at the given priority, attached. Registering
// an already-registered id replaces the prior record.
func (o *Orchestrator) RegisterAgent(a core.Agent, priority int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registry[a.ID()] = &registration{agent: a, priority: priority, attached: true}
	o.logger.Info("orchestrator.agent.registered", "agent", a.Name(), "id", a.ID(), "priority", priority)
}

// UnregisterAgent removes the registration record. It does not stop the
// agent.
func (o *Orchestrator) UnregisterAgent(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.registry, id)
}

// AttachAgent marks the agent eligible for routing and sweeps.
func (o *Orchestrator) AttachAgent(id string) error {
	return o.setAttached(id, true)
}

// DetachAgent removes routing/sweep eligibility without touching running
// state.
func (o *Orchestrator) DetachAgent(id string) error {
	return o.setAttached(id, false)
}

func (o *Orchestrator) setAttached(id string, attached bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	reg, ok := o.registry[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	reg.attached = attached
	return nil
}

// StartAll starts all attached agents, highest priority first. A failure
// starting one agent is logged and does not block starting the rest.
func (o *Orchestrator) StartAll(ctx context.Context) {
	for _, reg := range o.sweepOrder(true) {
		if !reg.attached {
			continue
		}
		if err := reg.agent.Start(ctx); err != nil {
			o.logger.Error("orchestrator.agent.start_failed", "agent", reg.agent.Name(), "error", err.Error())
		}
	}
}

// Stop shuts the orchestrator down: all registered agents are stopped,
// lowest priority first (reverse of startup order), the registration table
// is cleared and the background loops terminate. Stop is idempotent.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.stopOnce.Do(func() {
		o.unwatch()

		for _, reg := range o.sweepOrder(false) {
			if err := reg.agent.Stop(ctx); err != nil {
				o.logger.Warn("orchestrator.agent.stop_failed", "agent", reg.agent.Name(), "error", err.Error())
			}
		}

		o.mu.Lock()
		o.registry = make(map[string]*registration)
		o.mu.Unlock()

		close(o.stopCh)
		<-o.doneCh

		o.failPending()
	})
}

// sweepOrder snapshots registrations sorted by priority, descending when
// startup is true, ascending otherwise. Equal priorities order by name so
// sweeps are deterministic.
func (o *Orchestrator) sweepOrder(startup bool) []*registration {
	o.mu.Lock()
	regs := make([]*registration, 0, len(o.registry))
	for _, reg := range o.registry {
		regs = append(regs, reg)
	}
	o.mu.Unlock()

	sort.Slice(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			if startup {
				return regs[i].priority > regs[j].priority
			}
			return regs[i].priority < regs[j].priority
		}
		return regs[i].agent.Name() < regs[j].agent.Name()
	})
	return regs
}

// Submit is the single inbound entry point: the task is appended to the
// serial queue and a future for its result is returned. The queue drain
// loop processes exactly one task per wake-up, so orchestrator-level task
// processing is never concurrent.
func (o *Orchestrator) Submit(task core.Task) *core.Future {
	future := core.NewFuture()

	select {
	case <-o.stopCh:
		future.Resolve(core.TaskResult{TaskID: task.ID, Err: ErrStopped})
		return future
	default:
	}

	o.queueMu.Lock()
	o.queue = append(o.queue, queuedTask{task: task, future: future})
	depth := len(o.queue)
	o.queueMu.Unlock()

	o.logger.Debug("orchestrator.task.queued", "task", task.ID, "depth", depth)
	return future
}

// Broadcast publishes an Event envelope to every currently attached agent.
// Delivery is best-effort and unacknowledged.
func (o *Orchestrator) Broadcast(ctx context.Context, payload any) {
	o.mu.Lock()
	targets := make([]string, 0, len(o.registry))
	for id, reg := range o.registry {
		if reg.attached {
			targets = append(targets, id)
		}
	}
	o.mu.Unlock()

	for _, id := range targets {
		msg := core.NewMessage(o.id, id, core.KindEvent, payload)
		if err := o.channel.Publish(ctx, msg); err != nil {
			o.logger.Warn("orchestrator.broadcast.failed", "to", id, "error", err.Error())
		}
	}
}

// drainLoop wakes on a fixed interval and, when a task is pending,
// processes exactly one before the next wake-up. Running in a single
// goroutine guarantees serial processing even though delivery underneath
// is asynchronous.
func (o *Orchestrator) drainLoop() {
	defer close(o.doneCh)

	ticker := time.NewTicker(o.queueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.queueMu.Lock()
			if len(o.queue) == 0 {
				o.queueMu.Unlock()
				continue
			}
			next := o.queue[0]
			o.queue = o.queue[1:]
			o.queueMu.Unlock()

			out, err := o.processTask(context.Background(), next.task)
			next.future.Resolve(core.TaskResult{TaskID: next.task.ID, Output: out, Err: err})
		}
	}
}

// failPending resolves any tasks still queued at shutdown.
func (o *Orchestrator) failPending() {
	o.queueMu.Lock()
	pending := o.queue
	o.queue = nil
	o.queueMu.Unlock()

	for _, q := range pending {
		q.future.Resolve(core.TaskResult{TaskID: q.task.ID, Err: ErrStopped})
	}
}

// processTask routes a task to its target agent and performs the
// correlated request/response exchange on the caller's behalf.
func (o *Orchestrator) processTask(ctx context.Context, task core.Task) (any, error) {
	target, err := o.route(task)
	if err != nil {
		o.logger.Warn("orchestrator.task.unroutable", "task", task.ID, "error", err.Error())
		return nil, err
	}

	o.logger.Debug("orchestrator.task.routed", "task", task.ID, "agent", target.Name())
	return agent.Request(ctx, o.channel, o.id, target.ID(), task, o.requestTimeout)
}

// route resolves the task's target agent: explicit target id first, then
// the category table, then the first attached running agent.
func (o *Orchestrator) route(task core.Task) (core.Agent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if task.TargetAgentID != "" {
		reg, ok := o.registry[task.TargetAgentID]
		if !ok || !reg.attached {
			return nil, fmt.Errorf("%w: %s", ErrAgentUnavailable, task.TargetAgentID)
		}
		return reg.agent, nil
	}

	if task.Category != "" {
		if name, ok := o.routing[task.Category]; ok {
			for _, reg := range o.registry {
				if reg.attached && reg.agent.Name() == name {
					return reg.agent, nil
				}
			}
		}
	}

	// Deterministic fallback scan: highest priority attached running
	// agent, ties broken by name.
	var fallback *registration
	for _, reg := range o.registry {
		if !reg.attached || reg.agent.Status() != core.StatusRunning {
			continue
		}
		if fallback == nil || reg.priority > fallback.priority ||
			(reg.priority == fallback.priority && reg.agent.Name() < fallback.agent.Name()) {
			fallback = reg
		}
	}
	if fallback == nil {
		return nil, ErrNoSuitableAgent
	}
	return fallback.agent, nil
}
