// Package core defines the shared contracts of the AgentDock orchestration
// shell: the message envelope exchanged over a Channel, the Agent lifecycle
// contract, task submission types and the record store interface. Concrete
// implementations live in the sibling packages (channel, agent, orchestrator,
// workflow, store); core itself carries no behavior beyond small helpers so
// that packages can depend on the contracts without import cycles.
package core
