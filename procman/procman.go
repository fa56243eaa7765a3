// Package procman spawns and supervises auxiliary local server processes,
// such as capability servers that workflow tool steps depend on. It is a
// collaborator of the orchestration core, not part of its state machine:
// nothing here participates in messaging.
package procman

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/hupe1980/agentdock/logging"
)

// ServerStatus is the lifecycle state of a managed server process.
type ServerStatus string

const (
	// StatusStopped means the server is not running.
	StatusStopped ServerStatus = "stopped"
	// StatusRunning means the process is alive.
	StatusRunning ServerStatus = "running"
	// StatusFailed means the process exited on its own with an error.
	StatusFailed ServerStatus = "failed"
)

// ErrUnknownServer is returned for ids with no registered spec.
var ErrUnknownServer = errors.New("server not registered")

// ServerSpec describes how to launch one server.
type ServerSpec struct {
	ID      string
	Command string
	Args    []string
	Dir     string
	Env     []string
}

type serverEntry struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}

	stopping bool
	status   ServerStatus
	exitErr  error
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// StopTimeout bounds how long Stop waits for a process to exit after
	// cancellation. Defaults to 5s.
	StopTimeout time.Duration
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Manager launches registered servers on demand and tracks their state.
// Safe for concurrent use.
type Manager struct {
	opts ManagerOptions

	mu      sync.Mutex
	specs   map[string]ServerSpec
	entries map[string]*serverEntry
}

// NewManager creates a manager with no registered servers.
func NewManager(optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		StopTimeout: 5 * time.Second,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Manager{
		opts:    opts,
		specs:   make(map[string]ServerSpec),
		entries: make(map[string]*serverEntry),
	}
}

// Register adds a server spec, replacing any prior spec with the same id.
// Registering does not launch the process.
func (m *Manager) Register(spec ServerSpec) error {
	if spec.ID == "" || spec.Command == "" {
		return errors.New("server spec needs an id and a command")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specs[spec.ID] = spec
	return nil
}

// Start launches the server. Starting a running server is a no-op.
func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(id)
}

func (m *Manager) startLocked(id string) error {
	spec, ok := m.specs[id]
	if !ok {
		return fmt.Errorf("server %s: %w", id, ErrUnknownServer)
	}
	if entry, ok := m.entries[id]; ok && entry.status == StatusRunning {
		return nil
	}

	// Detached context so the process outlives the caller's request.
	cmdCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(cmdCtx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start server %s: %w", id, err)
	}

	entry := &serverEntry{
		cmd:    cmd,
		cancel: cancel,
		done:   make(chan struct{}),
		status: StatusRunning,
	}
	m.entries[id] = entry
	m.opts.Logger.Info("server.started", "server", id, "pid", cmd.Process.Pid)

	go m.wait(id, entry)
	return nil
}

// wait reaps the process and records how it ended.
func (m *Manager) wait(id string, entry *serverEntry) {
	err := entry.cmd.Wait()
	entry.cancel()

	m.mu.Lock()
	if entry.stopping || err == nil {
		entry.status = StatusStopped
	} else {
		entry.status = StatusFailed
		entry.exitErr = err
	}
	status := entry.status
	m.mu.Unlock()

	close(entry.done)
	if status == StatusFailed {
		m.opts.Logger.Warn("server.exited", "server", id, "error", err.Error())
	} else {
		m.opts.Logger.Info("server.exited", "server", id)
	}
}

// Stop terminates the server and waits for it to exit, bounded by the
// configured stop timeout. Stopping a server that is not running is a
// no-op.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.specs[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("server %s: %w", id, ErrUnknownServer)
	}
	entry, ok := m.entries[id]
	if !ok || entry.status != StatusRunning {
		m.mu.Unlock()
		return nil
	}
	entry.stopping = true
	entry.cancel()
	m.mu.Unlock()

	select {
	case <-entry.done:
		return nil
	case <-time.After(m.opts.StopTimeout):
		return fmt.Errorf("stop server %s: did not exit within %s", id, m.opts.StopTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports the server's current state. Unregistered ids and
// registered but never-started servers both report Stopped via the second
// return value distinguishing them.
func (m *Manager) Status(id string) (ServerStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.specs[id]; !ok {
		return StatusStopped, fmt.Errorf("server %s: %w", id, ErrUnknownServer)
	}
	entry, ok := m.entries[id]
	if !ok {
		return StatusStopped, nil
	}
	return entry.status, nil
}

// Ensure starts the server unless it is already running. It satisfies the
// capability executor's server manager contract.
func (m *Manager) Ensure(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[id]; ok && entry.status == StatusRunning {
		return nil
	}
	return m.startLocked(id)
}

// StopAll stops every running server. Failures are logged; the first error
// is returned after all stops were attempted.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.entries))
	for id, entry := range m.entries {
		if entry.status == StatusRunning {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil {
			m.opts.Logger.Warn("server.stop_failed", "server", id, "error", err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
