package core

import "time"

// Task is the unit of work submitted to the orchestrator and carried as the
// payload of Request envelopes. Exactly one of TargetAgentID or Category is
// normally set; with neither, routing falls back to the first attached
// running agent.
type Task struct {
	ID            string    `json:"id"`
	Category      string    `json:"category,omitempty"`
	TargetAgentID string    `json:"target_agent_id,omitempty"`
	Payload       any       `json:"payload,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// NewTask creates a task with a fresh id and submission timestamp.
func NewTask(category string, payload any) Task {
	return Task{
		ID:          NewID(),
		Category:    category,
		Payload:     payload,
		SubmittedAt: time.Now().UTC(),
	}
}

// TaskResult is the terminal outcome of a queued task.
type TaskResult struct {
	TaskID string
	Output any
	Err    error
}

// Future resolves exactly once with the result of a queued task. Callers
// either poll Done or block on Result.
type Future struct {
	done chan struct{}
	res  TaskResult
}

// NewFuture creates an unresolved future.
func NewFuture() *Future { return &Future{done: make(chan struct{})} }

// Resolve sets the result and closes Done. Resolving twice panics; the
// orchestrator's serial queue guarantees a single resolution.
func (f *Future) Resolve(res TaskResult) {
	f.res = res
	close(f.done)
}

// Done is closed once the future has resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until resolution and returns the task result.
func (f *Future) Result() TaskResult {
	<-f.done
	return f.res
}
