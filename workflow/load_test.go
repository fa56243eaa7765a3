package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentdock/channel"
)

const deployYAML = `
id: deploy
name: Deploy pipeline
version: "1.0"
steps:
  - id: build
    kind: tool
    config:
      capability: build
      params:
        target: context.target
    next: verify
  - id: verify
    kind: condition
    condition:
      path: results.build.success
      op: eq
      value: true
    branch:
      "true": ship
      "false": report
  - id: ship
    kind: tool
    config:
      capability: ship
  - id: report
    kind: tool
    config:
      capability: report
`

func TestParse(t *testing.T) {
	t.Run("full definition", func(t *testing.T) {
		def, err := Parse([]byte(deployYAML), "fallback")
		require.NoError(t, err)

		assert.Equal(t, "deploy", def.ID)
		assert.Equal(t, "Deploy pipeline", def.Name)
		assert.True(t, def.Attached)
		assert.True(t, def.Enabled)
		require.Len(t, def.Steps, 4)

		verify, ok := def.Step("verify")
		require.True(t, ok)
		assert.Equal(t, StepCondition, verify.Kind)
		require.NotNil(t, verify.Branch)
		assert.Equal(t, "ship", verify.Branch.True)
		assert.Equal(t, "report", verify.Branch.False)
		require.NotNil(t, verify.Condition)
		assert.Equal(t, OpEquals, verify.Condition.Op)
	})

	t.Run("explicit flags survive", func(t *testing.T) {
		def, err := Parse([]byte(`
id: dormant
enabled: false
steps:
  - id: only
    kind: tool
    config:
      capability: noop
`), "fallback")
		require.NoError(t, err)
		assert.True(t, def.Attached)
		assert.False(t, def.Enabled)
	})

	t.Run("id falls back to file name", func(t *testing.T) {
		def, err := Parse([]byte(`
steps:
  - id: only
    kind: tool
    config:
      capability: noop
`), "from-file")
		require.NoError(t, err)
		assert.Equal(t, "from-file", def.ID)
		assert.Equal(t, "from-file", def.Name)
	})

	t.Run("invalid graph rejected", func(t *testing.T) {
		_, err := Parse([]byte(`
id: broken
steps:
  - id: a
    kind: tool
    config:
      capability: x
    next: ghost
`), "fallback")
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte(`{not yaml`), "fallback")
		assert.Error(t, err)
	})
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy.yaml"), []byte(deployYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte(`
id: broken
steps:
  - id: a
    kind: tool
    config:
      capability: x
    next: ghost
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o600))

	ch := channel.NewInMemory()
	defer ch.Close()
	engine := New(ch)

	loaded, err := LoadDir(dir, engine, nil)
	require.NoError(t, err)

	// The broken file is skipped, the text file ignored.
	assert.Equal(t, 1, loaded)
	_, ok := engine.Get("deploy")
	assert.True(t, ok)
	_, ok = engine.Get("broken")
	assert.False(t, ok)
}

func TestLoadDirMissing(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	_, err := LoadDir(filepath.Join(t.TempDir(), "ghost"), New(ch), nil)
	assert.Error(t, err)
}

func TestScheduler(t *testing.T) {
	ch := channel.NewInMemory()
	defer ch.Close()

	engine := New(ch)
	require.NoError(t, engine.Register(Definition{
		ID: "nightly", Attached: true, Enabled: true,
		Steps: []Step{{ID: "only", Kind: StepCondition, Condition: &Predicate{Path: "context.seed", Op: OpExists}}},
	}))

	scheduler := NewScheduler(engine)

	t.Run("unknown workflow", func(t *testing.T) {
		err := scheduler.Schedule("ghost", "@hourly", nil)
		assert.ErrorIs(t, err, ErrWorkflowNotFound)
	})

	t.Run("bad spec", func(t *testing.T) {
		assert.Error(t, scheduler.Schedule("nightly", "not a cron spec", nil))
	})

	t.Run("valid specs", func(t *testing.T) {
		require.NoError(t, scheduler.Schedule("nightly", "0 3 * * *", nil))
		require.NoError(t, scheduler.ScheduleEvery("nightly", time.Hour, nil))
		scheduler.Unschedule("nightly")
	})

	scheduler.Start()
	scheduler.Stop()
}
