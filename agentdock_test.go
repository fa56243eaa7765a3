package agentdock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdock/agent"
	"github.com/hupe1980/agentdock/core"
	"github.com/hupe1980/agentdock/tool"
	"github.com/hupe1980/agentdock/workflow"
)

func TestDockEndToEnd(t *testing.T) {
	ctx := context.Background()

	dock := New(func(o *Options) {
		o.RoutingTable = map[string]string{"greeting": "greeter"}
		o.RequestTimeout = 2 * time.Second
	})

	dock.NewAgent("greeter", agent.TaskFunc(func(ctx context.Context, task core.Task) (any, error) {
		name, _ := task.Payload.(string)
		return fmt.Sprintf("hello, %s", name), nil
	}), 10)

	registry := tool.NewRegistry()
	registry.Register(tool.NewFuncCapability("shout", "uppercases nothing, echoes", func(ctx context.Context, params map[string]any) (any, error) {
		return params["text"], nil
	}))
	dock.NewAgent("tools", tool.NewExecutor(registry), 5)

	dock.Start(ctx)
	defer dock.Stop(ctx)

	t.Run("category routed task", func(t *testing.T) {
		out, err := dock.SubmitSync(ctx, core.NewTask("greeting", "dock"))
		require.NoError(t, err)
		assert.Equal(t, "hello, dock", out)
	})

	t.Run("workflow execution", func(t *testing.T) {
		require.NoError(t, dock.RegisterWorkflow(workflow.Definition{
			ID: "echo", Attached: true, Enabled: true,
			Steps: []workflow.Step{
				{
					ID:   "say",
					Kind: workflow.StepTool,
					Config: map[string]any{
						"capability": "shout",
						"params":     map[string]any{"text": "context.text"},
					},
				},
			},
		}))

		exec, err := dock.ExecuteWorkflow(ctx, "echo", map[string]any{"text": "ping"})
		require.NoError(t, err)

		select {
		case <-exec.Done():
		case <-time.After(3 * time.Second):
			t.Fatal("workflow did not finish")
		}

		assert.Equal(t, workflow.StatusCompleted, exec.Status())
		assert.Equal(t, "ping", exec.Results()["say"])
	})

	t.Run("workflow launch through the hosted engine agent", func(t *testing.T) {
		caller := agent.New("caller", dock.Channel(), agent.TaskFunc(func(ctx context.Context, task core.Task) (any, error) {
			return nil, nil
		}))
		require.NoError(t, caller.Start(ctx))
		defer func() { _ = caller.Stop(ctx) }()

		out, err := caller.SendRequest(ctx, "workflow-engine", map[string]any{
			"workflow_id": "echo",
			"context":     map[string]any{"text": "pong"},
		})
		require.NoError(t, err)

		reply := out.(map[string]any)
		executionID := reply["execution_id"].(string)

		exec, ok := dock.Workflows().GetExecution(executionID)
		require.True(t, ok)

		select {
		case <-exec.Done():
		case <-time.After(3 * time.Second):
			t.Fatal("workflow did not finish")
		}
		assert.Equal(t, "pong", exec.Results()["say"])
	})
}
