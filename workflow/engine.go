package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentdock/agent"
	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/logging"
	"github.com/hupe1980/agentdock/tool"
)

var (
	// ErrWorkflowNotFound is returned when no definition with the id exists.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrWorkflowDetached is returned when executing a detached workflow.
	ErrWorkflowDetached = errors.New("workflow not attached")
	// ErrWorkflowDisabled is returned when executing a disabled workflow.
	ErrWorkflowDisabled = errors.New("workflow disabled")
	// ErrExecutionNotFound is returned when no execution with the id exists.
	ErrExecutionNotFound = errors.New("execution not found")
)

// Options configures the workflow engine.
type Options struct {
	// ToolAddress is where tool steps send their capability invocations.
	ToolAddress string
	// FunctionAddress is where function steps send their invocations.
	FunctionAddress string
	// ReasonerAddress is where agent steps send their tasks. Empty means
	// agent steps fail at runtime.
	ReasonerAddress string
	// RequestTimeout bounds every correlated step request.
	RequestTimeout time.Duration
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Engine registers workflow definitions and runs executions of them. It is
// hosted as a regular agent on the message channel: tool, function and agent
// steps issue correlated requests to the agents owning those capabilities,
// and the engine itself answers Request envelopes carrying a workflow_id by
// launching an execution.
type Engine struct {
	base *agent.Base
	opts Options

	mu    sync.RWMutex
	defs  map[string]*Definition
	execs map[string]*Execution
}

var _ agent.Hooks = (*Engine)(nil)

// New creates an engine bound to the channel. The engine's agent must be
// started before tool, function or agent steps can receive replies.
func New(ch core.Channel, optFns ...func(o *Options)) *Engine {
	opts := Options{
		ToolAddress:     "tools",
		FunctionAddress: "functions",
		RequestTimeout:  agent.DefaultRequestTimeout,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Engine{
		opts:  opts,
		defs:  make(map[string]*Definition),
		execs: make(map[string]*Execution),
	}
	e.base = agent.New("workflow-engine", ch, e, func(o *agent.Options) {
		o.RequestTimeout = opts.RequestTimeout
		o.Logger = opts.Logger
	})
	return e
}

// Agent returns the hosting agent for lifecycle management and orchestrator
// registration.
func (e *Engine) Agent() *agent.Base { return e.base }

// Initialize implements agent.Hooks.
func (e *Engine) Initialize(ctx context.Context) error { return nil }

// Shutdown implements agent.Hooks.
func (e *Engine) Shutdown(ctx context.Context) error { return nil }

// ProcessTask launches an execution for request payloads of the form
// {"workflow_id": ..., "context": {...}} and answers with the execution id.
func (e *Engine) ProcessTask(ctx context.Context, task core.Task) (any, error) {
	payload, ok := task.Payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unsupported workflow request payload type %T", task.Payload)
	}
	workflowID, _ := payload["workflow_id"].(string)
	if workflowID == "" {
		return nil, errors.New("workflow request has no workflow_id")
	}
	seed, _ := payload["context"].(map[string]any)

	exec, err := e.Execute(ctx, workflowID, seed)
	if err != nil {
		return nil, err
	}
	return map[string]any{"execution_id": exec.ID()}, nil
}

// Register validates the definition eagerly and stores it, replacing any
// prior definition with the same id. Invalid graphs never enter the
// registry.
func (e *Engine) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defs[def.ID] = &def
	e.opts.Logger.Debug("workflow.registered", "workflow", def.ID, "steps", len(def.Steps))
	return nil
}

// Unregister removes the definition. Running executions are unaffected:
// they operate on a snapshot taken at launch.
func (e *Engine) Unregister(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.defs, id)
}

// Get returns a copy of the registered definition.
func (e *Engine) Get(id string) (Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.defs[id]
	if !ok {
		return Definition{}, false
	}
	return *def, true
}

// List returns copies of all registered definitions, sorted by id.
func (e *Engine) List() []Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Definition, 0, len(e.defs))
	for _, def := range e.defs {
		out = append(out, *def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Attach marks the workflow executable.
func (e *Engine) Attach(id string) error {
	return e.setFlag(id, func(d *Definition) { d.Attached = true })
}

// Detach bars new executions of the workflow. Running executions continue.
func (e *Engine) Detach(id string) error {
	return e.setFlag(id, func(d *Definition) { d.Attached = false })
}

// Enable marks the workflow enabled.
func (e *Engine) Enable(id string) error {
	return e.setFlag(id, func(d *Definition) { d.Enabled = true })
}

// Disable bars new executions of the workflow without detaching it.
func (e *Engine) Disable(id string) error {
	return e.setFlag(id, func(d *Definition) { d.Enabled = false })
}

func (e *Engine) setFlag(id string, mutate func(*Definition)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.defs[id]
	if !ok {
		return fmt.Errorf("workflow %s: %w", id, ErrWorkflowNotFound)
	}
	mutate(def)
	return nil
}

// Execute launches a new execution of the workflow and returns its handle
// immediately; the step loop runs in the background and callers observe
// completion through the handle's Done channel. The workflow must exist, be
// attached and be enabled.
func (e *Engine) Execute(ctx context.Context, workflowID string, seed map[string]any) (*Execution, error) {
	e.mu.Lock()
	def, ok := e.defs[workflowID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotFound)
	}
	if !def.Attached {
		e.mu.Unlock()
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowDetached)
	}
	if !def.Enabled {
		e.mu.Unlock()
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowDisabled)
	}

	// Snapshot so later Unregister or flag flips cannot mutate a running
	// graph.
	snapshot := *def
	exec := newExecution(workflowID, snapshot.FirstStep(), seed)
	e.execs[exec.ID()] = exec
	e.mu.Unlock()

	e.opts.Logger.Info("workflow.execution.started", "workflow", workflowID, "execution", exec.ID())
	go e.run(ctx, snapshot, exec)
	return exec, nil
}

// GetExecution returns the execution handle by id.
func (e *Engine) GetExecution(id string) (*Execution, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exec, ok := e.execs[id]
	return exec, ok
}

// CancelExecution aborts a running execution; it fails with a cancellation
// message recorded in its error list.
func (e *Engine) CancelExecution(id string) error {
	exec, ok := e.GetExecution(id)
	if !ok {
		return fmt.Errorf("execution %s: %w", id, ErrExecutionNotFound)
	}
	return exec.cancel()
}

// PauseExecution freezes a running execution at the next step boundary.
func (e *Engine) PauseExecution(id string) error {
	exec, ok := e.GetExecution(id)
	if !ok {
		return fmt.Errorf("execution %s: %w", id, ErrExecutionNotFound)
	}
	return exec.pause()
}

// ResumeExecution unfreezes a paused execution.
func (e *Engine) ResumeExecution(id string) error {
	exec, ok := e.GetExecution(id)
	if !ok {
		return fmt.Errorf("execution %s: %w", id, ErrExecutionNotFound)
	}
	return exec.resumeRun()
}

// run is the step loop: execute the current step, record its result or
// error, then move to the successor chosen by the step's wiring. Each step
// is visited at most once per pass; a failing step only continues when it
// has a single unconditional successor.
func (e *Engine) run(ctx context.Context, def Definition, exec *Execution) {
	stepID := def.FirstStep()
	for stepID != "" {
		if !e.gate(exec) {
			return
		}
		exec.setCurrentStep(stepID)

		step, ok := def.Step(stepID)
		if !ok {
			// Unreachable for validated definitions.
			exec.appendError(fmt.Sprintf("step %s: not found", stepID))
			exec.finish(StatusFailed)
			return
		}

		out, err := e.runStep(ctx, def, step, exec)
		if err != nil {
			exec.appendError(fmt.Sprintf("step %s: %v", step.ID, err))
			e.opts.Logger.Warn("workflow.step.failed", "execution", exec.ID(), "step", step.ID, "error", err.Error())
			if step.Next != "" && step.Branch == nil {
				stepID = step.Next
				continue
			}
			exec.finish(StatusFailed)
			return
		}

		exec.recordResult(step.ID, out)
		e.opts.Logger.Debug("workflow.step.completed", "execution", exec.ID(), "step", step.ID)

		switch {
		case step.Branch != nil:
			if e.branchTaken(step, out, exec) {
				stepID = step.Branch.True
			} else {
				stepID = step.Branch.False
			}
		case step.Next != "":
			stepID = step.Next
		default:
			stepID = ""
		}
	}

	exec.finish(StatusCompleted)
	e.opts.Logger.Info("workflow.execution.finished", "execution", exec.ID(), "status", string(exec.Status()))
}

// gate blocks while the execution is paused and reports whether the loop
// may proceed.
func (e *Engine) gate(exec *Execution) bool {
	for {
		switch exec.Status() {
		case StatusRunning:
			return true
		case StatusPaused:
			<-exec.resume
		default:
			return false
		}
	}
}

// branchTaken decides the successor after a branching step. Condition steps
// branch on their own boolean output; other kinds re-evaluate their
// predicate against the post-step snapshot.
func (e *Engine) branchTaken(step Step, out any, exec *Execution) bool {
	if step.Kind == StepCondition {
		taken, _ := out.(bool)
		return taken
	}
	ctxMap, resMap := exec.snapshotMaps()
	return step.Condition.Evaluate(snapshotJSON(ctxMap, resMap))
}

func (e *Engine) runStep(ctx context.Context, def Definition, step Step, exec *Execution) (any, error) {
	ctxMap, resMap := exec.snapshotMaps()
	snapshot := snapshotJSON(ctxMap, resMap)

	switch step.Kind {
	case StepTool:
		return e.invoke(ctx, e.opts.ToolAddress, step, snapshot)

	case StepFunction:
		return e.invoke(ctx, e.opts.FunctionAddress, step, snapshot)

	case StepAgent:
		if e.opts.ReasonerAddress == "" {
			return nil, errors.New("no reasoner address configured")
		}
		taskText := stringConfig(step.Config, "task")
		if taskText == "" {
			return nil, errors.New("agent step has no task")
		}
		return e.base.SendRequest(ctx, e.opts.ReasonerAddress, resolveValue(taskText, snapshot))

	case StepCondition:
		return step.Condition.Evaluate(snapshot), nil

	case StepLoop:
		return e.runLoop(ctx, def, step, exec)

	default:
		return nil, fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

// invoke sends a capability invocation to the executor address and unwraps
// its result. A result with Success false is a step failure.
func (e *Engine) invoke(ctx context.Context, address string, step Step, snapshot []byte) (any, error) {
	capability := stringConfig(step.Config, "capability")
	if capability == "" {
		return nil, errors.New("step has no capability")
	}
	params, _ := step.Config["params"].(map[string]any)

	out, err := e.base.SendRequest(ctx, address, tool.Invocation{
		CapabilityID: capability,
		Parameters:   resolveParams(params, snapshot),
	})
	if err != nil {
		return nil, err
	}

	result, ok := out.(tool.Result)
	if !ok {
		return out, nil
	}
	if !result.Success {
		return nil, fmt.Errorf("capability %s failed: %s", capability, result.Error)
	}
	return result.Data, nil
}

// runLoop resolves the configured items path to an array and runs the
// nested step once per element, exposing the element as context.item and
// its position as context.item_index. Outputs are collected in order; the
// first failing iteration fails the loop step.
func (e *Engine) runLoop(ctx context.Context, def Definition, step Step, exec *Execution) (any, error) {
	nested, ok := def.Step(stringConfig(step.Config, "step"))
	if !ok {
		return nil, errors.New("loop nested step not found")
	}

	ctxMap, resMap := exec.snapshotMaps()
	res := gjson.GetBytes(snapshotJSON(ctxMap, resMap), stringConfig(step.Config, "items"))
	if !res.Exists() {
		return nil, errors.New("loop items path does not resolve")
	}
	items, ok := res.Value().([]any)
	if !ok {
		return nil, errors.New("loop items path is not an array")
	}

	collected := make([]any, 0, len(items))
	for i, item := range items {
		if !e.gate(exec) {
			return nil, errors.New("loop interrupted")
		}
		exec.setContextValue("item", item)
		exec.setContextValue("item_index", i)

		out, err := e.runStep(ctx, def, nested, exec)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		collected = append(collected, out)
	}
	return collected, nil
}
