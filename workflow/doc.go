// Package workflow implements the declarative multi-step workflow engine:
// named step-graph definitions (tool, function, agent, condition and loop
// steps), independent execution records with pause/resume/cancel, safe
// structured predicates for branching, dotted-path parameter resolution
// against the execution's context and results, YAML definition loading and
// cron-based recurring launches.
//
// The engine is hosted as a regular agent on the message channel: tool and
// function steps issue correlated requests to the agents owning those
// capabilities and suspend until the matching response or a timeout.
package workflow
