package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hupe1980/agentdock/logging"
)

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Scheduler launches recurring executions of registered workflows on cron
// schedules. A launch that fails, for example because the workflow was
// disabled in the meantime, is logged and the schedule keeps firing.
type Scheduler struct {
	engine *Engine
	cron   *cron.Cron
	logger logging.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduler creates a stopped scheduler over the engine.
func NewScheduler(engine *Engine, optFns ...func(o *SchedulerOptions)) *Scheduler {
	opts := SchedulerOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Scheduler{
		engine:  engine,
		cron:    cron.New(),
		logger:  opts.Logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Schedule registers a cron spec for the workflow, replacing any existing
// schedule for the same workflow id. The seed map is copied into the
// context of every launched execution.
func (s *Scheduler) Schedule(workflowID, spec string, seed map[string]any) error {
	if _, ok := s.engine.Get(workflowID); !ok {
		return fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowNotFound)
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		if _, err := s.engine.Execute(context.Background(), workflowID, seed); err != nil {
			s.logger.Warn("workflow.schedule.launch_failed", "workflow", workflowID, "error", err.Error())
			return
		}
		s.logger.Debug("workflow.schedule.launched", "workflow", workflowID)
	})
	if err != nil {
		return fmt.Errorf("schedule workflow %s: %w", workflowID, err)
	}

	s.mu.Lock()
	if old, ok := s.entries[workflowID]; ok {
		s.cron.Remove(old)
	}
	s.entries[workflowID] = entryID
	s.mu.Unlock()
	return nil
}

// ScheduleEvery registers a fixed-interval schedule for the workflow.
func (s *Scheduler) ScheduleEvery(workflowID string, interval time.Duration, seed map[string]any) error {
	return s.Schedule(workflowID, "@every "+interval.String(), seed)
}

// Unschedule removes the workflow's schedule, if any.
func (s *Scheduler) Unschedule(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[workflowID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, workflowID)
	}
}

// Start begins firing schedules in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops firing and waits for in-flight launch callbacks to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
