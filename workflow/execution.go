package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the state of one workflow execution.
type Status string

const (
	// StatusRunning means the step loop is progressing (or suspended in a
	// request).
	StatusRunning Status = "running"
	// StatusCompleted means the graph reached a terminal step.
	StatusCompleted Status = "completed"
	// StatusFailed means a step failed without a fail-forward successor,
	// or the execution was cancelled.
	StatusFailed Status = "failed"
	// StatusPaused freezes the loop at the next step boundary until
	// resumed.
	StatusPaused Status = "paused"
)

// Execution is one run of a workflow definition. Executions are
// independent: concurrent runs of the same definition share no mutable
// state. All accessors return defensive copies; the record is immutable
// once the status reaches Completed or Failed.
type Execution struct {
	id         string
	workflowID string

	mu          sync.Mutex
	status      Status
	currentStep string
	startTime   time.Time
	endTime     time.Time
	context     map[string]any
	results     map[string]any
	errors      []string

	done   chan struct{}
	resume chan struct{}
}

func newExecution(workflowID, firstStep string, seed map[string]any) *Execution {
	ctx := make(map[string]any, len(seed))
	for k, v := range seed {
		ctx[k] = v
	}
	return &Execution{
		id:          ulid.Make().String(),
		workflowID:  workflowID,
		status:      StatusRunning,
		currentStep: firstStep,
		startTime:   time.Now(),
		context:     ctx,
		results:     make(map[string]any),
		done:        make(chan struct{}),
		resume:      make(chan struct{}, 1),
	}
}

// ID returns the execution id (a ULID, sortable by launch time).
func (e *Execution) ID() string { return e.id }

// WorkflowID returns the id of the definition this execution runs.
func (e *Execution) WorkflowID() string { return e.workflowID }

// Status returns the current execution status.
func (e *Execution) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// CurrentStep returns the id of the step the loop is at, or "" when
// terminal.
func (e *Execution) CurrentStep() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentStep
}

// StartTime returns when the execution was launched.
func (e *Execution) StartTime() time.Time { return e.startTime }

// EndTime returns when the execution reached a terminal status, or zero.
func (e *Execution) EndTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endTime
}

// Context returns a copy of the mutable execution context.
func (e *Execution) Context() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]any, len(e.context))
	for k, v := range e.context {
		out[k] = v
	}
	return out
}

// Results returns a copy of the per-step outputs recorded so far.
func (e *Execution) Results() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]any, len(e.results))
	for k, v := range e.results {
		out[k] = v
	}
	return out
}

// Errors returns a copy of the ordered step failure messages.
func (e *Execution) Errors() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.errors))
	copy(out, e.errors)
	return out
}

// Done is closed when the execution reaches Completed or Failed. Callers
// poll or block on it instead of watching a background task.
func (e *Execution) Done() <-chan struct{} { return e.done }

// finish transitions to a terminal status once; later calls are no-ops so
// a cancelled execution stays Failed even if the loop completes its
// in-flight step.
func (e *Execution) finish(status Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusCompleted || e.status == StatusFailed {
		return
	}
	e.status = status
	e.currentStep = ""
	e.endTime = time.Now()
	close(e.done)
}

// cancel aborts a running execution. The step loop observes the terminal
// status at the next step boundary; an in-flight request still records its
// result but drives no further steps.
func (e *Execution) cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusRunning {
		return fmt.Errorf("execution %s is %s, not running", e.id, e.status)
	}
	e.errors = append(e.errors, "execution cancelled")
	e.status = StatusFailed
	e.currentStep = ""
	e.endTime = time.Now()
	close(e.done)
	return nil
}

// pause freezes the loop at the next step boundary. Only running executions
// can pause.
func (e *Execution) pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusRunning {
		return fmt.Errorf("execution %s is %s, not running", e.id, e.status)
	}
	e.status = StatusPaused
	return nil
}

// resumeRun unfreezes a paused execution and wakes the step loop.
func (e *Execution) resumeRun() error {
	e.mu.Lock()
	if e.status != StatusPaused {
		status := e.status
		e.mu.Unlock()
		return fmt.Errorf("execution %s is %s, not paused", e.id, status)
	}
	e.status = StatusRunning
	e.mu.Unlock()

	select {
	case e.resume <- struct{}{}:
	default:
	}
	return nil
}

func (e *Execution) appendError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, msg)
}

func (e *Execution) recordResult(stepID string, out any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[stepID] = out
}

func (e *Execution) setCurrentStep(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentStep = id
}

// snapshot marshals {context, results} for predicate evaluation and
// parameter resolution.
func (e *Execution) snapshotMaps() (map[string]any, map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx := make(map[string]any, len(e.context))
	for k, v := range e.context {
		ctx[k] = v
	}
	res := make(map[string]any, len(e.results))
	for k, v := range e.results {
		res[k] = v
	}
	return ctx, res
}

func (e *Execution) setContextValue(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.context[key] = value
}
