// Package agentdock provides a high-level facade over the message channel,
// the orchestrator and the workflow engine, enabling quick assembly of an
// agent orchestration system. Most applications interact with this package
// by:
//  1. Creating a Dock via New() (optionally overriding routing, timeouts
//     and the logger)
//  2. Registering agents with static priorities and workflow definitions
//  3. Starting the dock, submitting tasks and launching workflow runs
//
// The facade delegates routing and recovery to orchestrator.Orchestrator
// and graph execution to workflow.Engine while keeping setup concise. All
// defaults are safe for local development and testing.
package agentdock

import (
	"context"
	"time"

	"github.com/hupe1980/agentdock/agent"
	"github.com/hupe1980/agentdock/channel"
	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
	"github.com/hupe1980/agentdock/orchestrator"
	"github.com/hupe1980/agentdock/workflow"
)

// WorkflowEnginePriority is the static priority the hosted workflow engine
// registers with, keeping it started before ordinary agents.
const WorkflowEnginePriority = 100

// Options configures a Dock.
type Options struct {
	// RoutingTable maps task categories to agent names for orchestrator
	// routing.
	RoutingTable map[string]string

	// RequestTimeout bounds every correlated request issued by the
	// orchestrator and the workflow engine.
	RequestTimeout time.Duration

	// ToolAddress and FunctionAddress are where workflow tool and
	// function steps send their invocations.
	ToolAddress     string
	FunctionAddress string

	// ReasonerAddress is where workflow agent steps send their tasks.
	ReasonerAddress string

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Dock is the high-level facade aggregating the channel, the orchestrator
// and the workflow engine.
type Dock struct {
	opts         Options
	channel      *channel.InMemory
	orchestrator *orchestrator.Orchestrator
	engine       *workflow.Engine
}

// New creates a Dock with a fresh in-memory channel. The hosted workflow
// engine is registered with the orchestrator but nothing is started until
// Start is called.
func New(optFns ...func(o *Options)) *Dock {
	opts := Options{
		RequestTimeout:  agent.DefaultRequestTimeout,
		ToolAddress:     "tools",
		FunctionAddress: "functions",
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	ch := channel.NewInMemory(func(o *channel.Options) {
		o.Logger = opts.Logger
	})

	orch := orchestrator.New(ch, func(o *orchestrator.Options) {
		o.RoutingTable = opts.RoutingTable
		o.RequestTimeout = opts.RequestTimeout
		o.Logger = opts.Logger
	})

	engine := workflow.New(ch, func(o *workflow.Options) {
		o.ToolAddress = opts.ToolAddress
		o.FunctionAddress = opts.FunctionAddress
		o.ReasonerAddress = opts.ReasonerAddress
		o.RequestTimeout = opts.RequestTimeout
		o.Logger = opts.Logger
	})
	orch.RegisterAgent(engine.Agent(), WorkflowEnginePriority)

	return &Dock{
		opts:         opts,
		channel:      ch,
		orchestrator: orch,
		engine:       engine,
	}
}

// Channel returns the dock's message channel, for wiring custom agents.
func (d *Dock) Channel() core.Channel { return d.channel }

// Orchestrator returns the underlying orchestrator.
func (d *Dock) Orchestrator() *orchestrator.Orchestrator { return d.orchestrator }

// Workflows returns the hosted workflow engine.
func (d *Dock) Workflows() *workflow.Engine { return d.engine }

// RegisterAgent registers an agent with the orchestrator at the given
// static priority.
func (d *Dock) RegisterAgent(a core.Agent, priority int) {
	d.orchestrator.RegisterAgent(a, priority)
}

// NewAgent constructs an agent bound to the dock's channel, registers it
// and returns it. The agent is started by Start like every registered
// agent.
func (d *Dock) NewAgent(name string, hooks agent.Hooks, priority int) *agent.Base {
	a := agent.New(name, d.channel, hooks, func(o *agent.Options) {
		o.RequestTimeout = d.opts.RequestTimeout
		o.Logger = d.opts.Logger
	})
	d.RegisterAgent(a, priority)
	return a
}

// RegisterWorkflow registers a workflow definition with the engine.
func (d *Dock) RegisterWorkflow(def workflow.Definition) error {
	return d.engine.Register(def)
}

// Start starts every attached agent in priority order.
func (d *Dock) Start(ctx context.Context) {
	d.orchestrator.StartAll(ctx)
}

// Stop stops all agents in reverse priority order and closes the channel.
func (d *Dock) Stop(ctx context.Context) {
	d.orchestrator.Stop(ctx)
	d.channel.Close()
}

// Submit queues a task for serial processing and returns its future.
func (d *Dock) Submit(task core.Task) *core.Future {
	return d.orchestrator.Submit(task)
}

// SubmitSync queues a task and blocks until its result or ctx is done.
func (d *Dock) SubmitSync(ctx context.Context, task core.Task) (any, error) {
	future := d.orchestrator.Submit(task)
	select {
	case <-future.Done():
		res := future.Result()
		return res.Output, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExecuteWorkflow launches a workflow run and returns its handle.
func (d *Dock) ExecuteWorkflow(ctx context.Context, workflowID string, seed map[string]any) (*workflow.Execution, error) {
	return d.engine.Execute(ctx, workflowID, seed)
}
