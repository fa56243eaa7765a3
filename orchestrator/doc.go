// Package orchestrator supervises the agent set: it registers agents with a
// static priority, starts and stops them in priority order, routes
// externally submitted tasks (by explicit target, by category table, or to
// the first attached running agent), drains a serial task queue, recovers
// agents that announce failure with a single restart attempt, and
// broadcasts events to all attached agents.
package orchestrator
