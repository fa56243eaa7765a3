package model

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentdock/core"
)

// ReasonerHooks hosts a Model as an agent. Workflow agent steps and any
// other caller send a task label, optionally with context, and receive the
// model's result as the response payload.
type ReasonerHooks struct {
	model Model
}

// NewReasonerHooks wraps the model for hosting with agent.New.
func NewReasonerHooks(m Model) *ReasonerHooks {
	return &ReasonerHooks{model: m}
}

// Initialize implements agent.Hooks.
func (r *ReasonerHooks) Initialize(ctx context.Context) error { return nil }

// Shutdown implements agent.Hooks.
func (r *ReasonerHooks) Shutdown(ctx context.Context) error { return nil }

// ProcessTask decodes the reasoning request and completes it. Accepted
// payloads: a Request, a bare task string, or a map with "task" and
// optional "context" keys.
func (r *ReasonerHooks) ProcessTask(ctx context.Context, task core.Task) (any, error) {
	req, err := decodeRequest(task.Payload)
	if err != nil {
		return nil, err
	}
	return r.model.Complete(ctx, req)
}

func decodeRequest(payload any) (Request, error) {
	switch v := payload.(type) {
	case Request:
		return v, nil
	case *Request:
		return *v, nil
	case string:
		return Request{Task: v}, nil
	case map[string]any:
		req := Request{}
		if task, ok := v["task"].(string); ok {
			req.Task = task
		}
		if ctx, ok := v["context"].(map[string]any); ok {
			req.Context = ctx
		}
		if req.Task == "" {
			return Request{}, fmt.Errorf("reasoning payload has no task")
		}
		return req, nil
	default:
		return Request{}, fmt.Errorf("unsupported reasoning payload type %T", payload)
	}
}
