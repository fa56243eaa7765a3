package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentdock/core"
)

// Command is the request payload accepted by a store agent. Action is one
// of "store", "retrieve", "search" or "delete".
type Command struct {
	Action string       `json:"action"`
	Record *core.Record `json:"record,omitempty"`
	ID     string       `json:"id,omitempty"`
	Query  string       `json:"query,omitempty"`
	Limit  int          `json:"limit,omitempty"`
}

// Hooks exposes a RecordStore over the message channel so remote agents
// and workflow steps can persist and query records by correlated request.
// Host it with agent.New under the address the callers use.
type Hooks struct {
	store core.RecordStore
}

// NewHooks wraps the store for hosting as an agent.
func NewHooks(store core.RecordStore) *Hooks {
	return &Hooks{store: store}
}

// Initialize implements agent.Hooks.
func (h *Hooks) Initialize(ctx context.Context) error { return nil }

// Shutdown implements agent.Hooks.
func (h *Hooks) Shutdown(ctx context.Context) error { return nil }

// ProcessTask decodes a Command from the task payload and runs it against
// the wrapped store.
func (h *Hooks) ProcessTask(ctx context.Context, task core.Task) (any, error) {
	cmd, err := decodeCommand(task.Payload)
	if err != nil {
		return nil, err
	}

	switch cmd.Action {
	case "store":
		if cmd.Record == nil {
			return nil, fmt.Errorf("store command has no record")
		}
		return h.store.Store(*cmd.Record)

	case "retrieve":
		record, ok, err := h.store.Retrieve(cmd.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("record %s not found", cmd.ID)
		}
		return record, nil

	case "search":
		return h.store.Search(cmd.Query, cmd.Limit)

	case "delete":
		return h.store.Delete(cmd.ID)

	default:
		return nil, fmt.Errorf("unknown store action %q", cmd.Action)
	}
}

func decodeCommand(payload any) (Command, error) {
	switch v := payload.(type) {
	case Command:
		return v, nil
	case *Command:
		return *v, nil
	case map[string]any:
		// Round-trip through JSON so loosely typed payloads from remote
		// callers decode into the command shape.
		data, err := json.Marshal(v)
		if err != nil {
			return Command{}, fmt.Errorf("decode store command: %w", err)
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			return Command{}, fmt.Errorf("decode store command: %w", err)
		}
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("unsupported store command payload type %T", payload)
	}
}
