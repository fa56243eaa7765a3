package core

import (
	"context"
	"time"
)

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	// StatusIdle is the state of a constructed agent before Start.
	StatusIdle AgentStatus = "idle"
	// StatusRunning means the agent is started and eligible for work.
	StatusRunning AgentStatus = "running"
	// StatusError means the agent's initialize hook or task processing
	// failed in a way that took it out of service.
	StatusError AgentStatus = "error"
	// StatusStopped means the agent has shut down.
	StatusStopped AgentStatus = "stopped"
)

// AgentMetrics is a snapshot of an agent's activity counters. Uptime is
// recomputed as now minus the last start time while the agent is running.
type AgentMetrics struct {
	TasksCompleted  int64         `json:"tasks_completed"`
	TasksInProgress int64         `json:"tasks_in_progress"`
	ErrorCount      int64         `json:"error_count"`
	LastActivity    time.Time     `json:"last_activity"`
	Uptime          time.Duration `json:"uptime"`
}

// Agent is the behavioral contract every orchestrated component implements:
// a lifecycle state machine, a metrics accumulator and the ability to
// exchange correlated request/response envelopes over a Channel.
//
// Implementations must:
//   - Transition Idle/Stopped -> Running in Start, invoking their
//     initialize hook; a hook failure transitions to Error and propagates.
//   - Transition to Stopped in Stop regardless of shutdown hook outcome;
//     shutdown failures are logged, never propagated.
//   - Treat repeated Start while running and repeated Stop while stopped
//     as warnings, not errors, with the hooks invoked exactly once.
//   - Announce a lifecycle event on every transition.
type Agent interface {
	ID() string
	Name() string
	Status() AgentStatus
	Metrics() AgentMetrics
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// LifecycleEvent is the payload announced on a Channel whenever an agent
// transitions state. Watchers (the orchestrator's recovery loop, tests) use
// it to observe agents without polling.
type LifecycleEvent struct {
	AgentID string      `json:"agent_id"`
	Name    string      `json:"name"`
	Status  AgentStatus `json:"status"`
	Reason  string      `json:"reason,omitempty"`
}
