// Package agent implements the Agent Runtime contract: a lifecycle state
// machine (Idle/Running/Error/Stopped), a metrics accumulator, and
// correlated request/response messaging over a core.Channel.
//
// Concrete agents embed or wrap Base and supply their behavior through the
// Hooks interface (Initialize, Shutdown, ProcessTask). Base subscribes to
// the channel while running, services incoming Request envelopes through
// the hooks, and announces a lifecycle event on every transition.
package agent
