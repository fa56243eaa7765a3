// Package scheduler orders planning tasks by their declared dependencies.
// Plan is a pure function over a snapshot of tasks: it never mutates task
// status and does not participate in messaging; the planning agent invokes
// it on demand and applies the returned order itself.
package scheduler

import "sort"

// TaskStatus is the caller-owned state of a planning task.
type TaskStatus string

const (
	// StatusPending means the task still needs to be scheduled.
	StatusPending TaskStatus = "pending"
	// StatusInProgress means the task is being worked on.
	StatusInProgress TaskStatus = "in_progress"
	// StatusCompleted means the task finished and satisfies dependents.
	StatusCompleted TaskStatus = "completed"
	// StatusCancelled means the task will never run.
	StatusCancelled TaskStatus = "cancelled"
)

// Task is one planning task with its dependency edges. Plan treats tasks as
// read-only input.
type Task struct {
	ID           string     `json:"id"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Status       TaskStatus `json:"status"`
	Priority     int        `json:"priority"`
}

// Result is the outcome of a planning pass. Complete reports whether every
// pending task was ordered; when false, Unresolved lists the tasks stuck
// behind a dependency cycle or an unsatisfiable external dependency, and
// Ordered is a usable prefix that respects all dependency edges.
type Result struct {
	Ordered    []string
	Unresolved []string
	Complete   bool
}

// Plan computes an execution order for the pending tasks. A task becomes
// ready once every dependency is completed, already ordered in an earlier
// pass, or outside the pending set entirely. Ready tasks within one pass
// are ordered by descending priority, ties by id. Passes repeat until the
// pending set empties or a pass makes no progress.
func Plan(tasks []Task) Result {
	pending := make(map[string]Task)
	for _, task := range tasks {
		if task.Status == StatusPending {
			pending[task.ID] = task
		}
	}

	ordered := make([]string, 0, len(pending))
	for len(pending) > 0 {
		ready := make([]Task, 0, len(pending))
		for _, task := range pending {
			if isReady(task, pending) {
				ready = append(ready, task)
			}
		}
		if len(ready) == 0 {
			break
		}

		sort.Slice(ready, func(i, j int) bool {
			if ready[i].Priority != ready[j].Priority {
				return ready[i].Priority > ready[j].Priority
			}
			return ready[i].ID < ready[j].ID
		})

		for _, task := range ready {
			ordered = append(ordered, task.ID)
			delete(pending, task.ID)
		}
	}

	unresolved := make([]string, 0, len(pending))
	for id := range pending {
		unresolved = append(unresolved, id)
	}
	sort.Strings(unresolved)

	return Result{
		Ordered:    ordered,
		Unresolved: unresolved,
		Complete:   len(pending) == 0,
	}
}

func isReady(task Task, pending map[string]Task) bool {
	for _, dep := range task.Dependencies {
		if _, stillPending := pending[dep]; stillPending {
			return false
		}
	}
	return true
}
