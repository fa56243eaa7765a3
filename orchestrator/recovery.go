package orchestrator

import (
	"context"
	"time"

	"github.com/hupe1980/agentdock/core"
)

// onAnnouncement watches the channel for agent error events and triggers
// recovery for registered, attached agents. At most one recovery runs per
// agent at a time; the error event announced by a failing restart attempt
// is absorbed by that guard instead of retriggering.
func (o *Orchestrator) onAnnouncement(_ context.Context, msg core.Message) {
	if msg.Kind != core.KindError {
		return
	}
	ev, ok := msg.Payload.(core.LifecycleEvent)
	if !ok || ev.Status != core.StatusError {
		return
	}

	o.mu.Lock()
	reg, registered := o.registry[ev.AgentID]
	attached := registered && reg.attached
	o.mu.Unlock()
	if !attached {
		return
	}

	o.recoveryMu.Lock()
	if o.recovering[ev.AgentID] {
		o.recoveryMu.Unlock()
		return
	}
	o.recovering[ev.AgentID] = true
	o.recoveryMu.Unlock()

	go o.recoverAgent(reg.agent)
}

// recoverAgent stops then restarts the failed agent after a short delay.
// If the restart also fails the agent is detached rather than repeatedly
// retried.
func (o *Orchestrator) recoverAgent(a core.Agent) {
	defer func() {
		o.recoveryMu.Lock()
		delete(o.recovering, a.ID())
		o.recoveryMu.Unlock()
	}()

	o.logger.Warn("orchestrator.recovery.scheduled", "agent", a.Name(), "delay", o.restartDelay.String())

	select {
	case <-o.stopCh:
		return
	case <-time.After(o.restartDelay):
	}

	ctx := context.Background()
	if err := a.Stop(ctx); err != nil {
		o.logger.Warn("orchestrator.recovery.stop_failed", "agent", a.Name(), "error", err.Error())
	}

	if err := a.Start(ctx); err != nil {
		o.logger.Error("orchestrator.recovery.restart_failed", "agent", a.Name(), "error", err.Error())
		if derr := o.DetachAgent(a.ID()); derr != nil {
			o.logger.Warn("orchestrator.recovery.detach_failed", "agent", a.Name(), "error", derr.Error())
		}
		return
	}

	o.logger.Info("orchestrator.recovery.restarted", "agent", a.Name())
}
