package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition() Definition {
	return Definition{
		ID:       "deploy",
		Name:     "Deploy",
		Attached: true,
		Enabled:  true,
		Steps: []Step{
			{ID: "build", Kind: StepTool, Config: map[string]any{"capability": "build"}, Next: "test"},
			{ID: "test", Kind: StepTool, Config: map[string]any{"capability": "test"}, Next: "ship"},
			{ID: "ship", Kind: StepTool, Config: map[string]any{"capability": "ship"}},
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		def := validDefinition()
		assert.NoError(t, def.Validate())
	})

	t.Run("missing id", func(t *testing.T) {
		def := validDefinition()
		def.ID = ""
		assert.Error(t, def.Validate())
	})

	t.Run("no steps", func(t *testing.T) {
		def := validDefinition()
		def.Steps = nil
		assert.Error(t, def.Validate())
	})

	t.Run("duplicate step ids", func(t *testing.T) {
		def := validDefinition()
		def.Steps[1].ID = "build"
		assert.Error(t, def.Validate())
	})

	t.Run("unknown kind", func(t *testing.T) {
		def := validDefinition()
		def.Steps[0].Kind = "teleport"
		assert.Error(t, def.Validate())
	})

	t.Run("dangling next", func(t *testing.T) {
		def := validDefinition()
		def.Steps[2].Next = "ghost"
		assert.Error(t, def.Validate())
	})

	t.Run("next and branch are exclusive", func(t *testing.T) {
		def := validDefinition()
		def.Steps[0].Branch = &Branch{True: "test", False: "ship"}
		def.Steps[0].Condition = &Predicate{Path: "context.ok", Op: OpExists}
		assert.Error(t, def.Validate())
	})

	t.Run("branch without condition", func(t *testing.T) {
		def := validDefinition()
		def.Steps[0].Next = ""
		def.Steps[0].Branch = &Branch{True: "test", False: "ship"}
		assert.Error(t, def.Validate())
	})

	t.Run("dangling branch target", func(t *testing.T) {
		def := validDefinition()
		def.Steps[0].Next = ""
		def.Steps[0].Condition = &Predicate{Path: "context.ok", Op: OpExists}
		def.Steps[0].Branch = &Branch{True: "ghost", False: "ship"}
		assert.Error(t, def.Validate())
	})

	t.Run("condition step requires condition", func(t *testing.T) {
		def := validDefinition()
		def.Steps[0] = Step{ID: "build", Kind: StepCondition, Next: "test"}
		assert.Error(t, def.Validate())
	})

	t.Run("loop requires items and nested step", func(t *testing.T) {
		def := validDefinition()
		def.Steps[0] = Step{ID: "build", Kind: StepLoop, Config: map[string]any{"step": "test"}, Next: "test"}
		assert.Error(t, def.Validate())

		def.Steps[0].Config = map[string]any{"items": "context.targets"}
		assert.Error(t, def.Validate())

		def.Steps[0].Config = map[string]any{"items": "context.targets", "step": "build"}
		assert.Error(t, def.Validate())

		def.Steps[0].Config = map[string]any{"items": "context.targets", "step": "test"}
		assert.NoError(t, def.Validate())
	})
}

func TestPredicateValidate(t *testing.T) {
	t.Run("leaf", func(t *testing.T) {
		assert.NoError(t, Predicate{Path: "results.x", Op: OpEquals, Value: 1}.Validate())
	})

	t.Run("unknown operator", func(t *testing.T) {
		assert.Error(t, Predicate{Path: "results.x", Op: "matches"}.Validate())
	})

	t.Run("no form", func(t *testing.T) {
		assert.Error(t, Predicate{}.Validate())
	})

	t.Run("two forms", func(t *testing.T) {
		p := Predicate{
			Path: "results.x", Op: OpExists,
			Not: &Predicate{Path: "results.y", Op: OpExists},
		}
		assert.Error(t, p.Validate())
	})

	t.Run("nested invalid", func(t *testing.T) {
		p := Predicate{All: []Predicate{{Path: "a", Op: "bogus"}}}
		assert.Error(t, p.Validate())
	})
}

func TestPredicateEvaluate(t *testing.T) {
	snapshot := []byte(`{
		"context": {"env": "prod", "replicas": 3, "ready": true},
		"results": {"build": {"status": "ok", "warnings": 2}}
	}`)

	cases := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"eq string", Predicate{Path: "context.env", Op: OpEquals, Value: "prod"}, true},
		{"eq int vs json number", Predicate{Path: "context.replicas", Op: OpEquals, Value: 3}, true},
		{"eq bool", Predicate{Path: "context.ready", Op: OpEquals, Value: true}, true},
		{"ne", Predicate{Path: "context.env", Op: OpNotEquals, Value: "dev"}, true},
		{"gt", Predicate{Path: "results.build.warnings", Op: OpGreaterThan, Value: 1}, true},
		{"lt false", Predicate{Path: "results.build.warnings", Op: OpLessThan, Value: 1}, false},
		{"exists", Predicate{Path: "results.build.status", Op: OpExists}, true},
		{"exists missing", Predicate{Path: "results.ghost", Op: OpExists}, false},
		{"contains", Predicate{Path: "context.env", Op: OpContains, Value: "ro"}, true},
		{"missing path comparison fails", Predicate{Path: "results.ghost", Op: OpEquals, Value: 1}, false},
		{"all", Predicate{All: []Predicate{
			{Path: "context.ready", Op: OpEquals, Value: true},
			{Path: "context.replicas", Op: OpGreaterThan, Value: 2},
		}}, true},
		{"any", Predicate{Any: []Predicate{
			{Path: "context.env", Op: OpEquals, Value: "dev"},
			{Path: "context.env", Op: OpEquals, Value: "prod"},
		}}, true},
		{"not", Predicate{Not: &Predicate{Path: "results.ghost", Op: OpExists}}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.p.Evaluate(snapshot))
		})
	}
}

func TestResolveParams(t *testing.T) {
	snapshot := snapshotJSON(
		map[string]any{"env": "prod", "replicas": 3},
		map[string]any{"build": map[string]any{"artifact": "app.tar"}},
	)

	params := map[string]any{
		"literal": "hello",
		"env":     "context.env",
		"file":    "results.build.artifact",
		"count":   "context.replicas",
		"missing": "results.ghost.path",
		"nested": map[string]any{
			"inner": "context.env",
		},
		"list": []any{"context.env", "plain"},
	}

	resolved := resolveParams(params, snapshot)

	assert.Equal(t, "hello", resolved["literal"])
	assert.Equal(t, "prod", resolved["env"])
	assert.Equal(t, "app.tar", resolved["file"])
	assert.Equal(t, float64(3), resolved["count"])
	require.Contains(t, resolved, "missing")
	assert.Nil(t, resolved["missing"])
	assert.Equal(t, map[string]any{"inner": "prod"}, resolved["nested"])
	assert.Equal(t, []any{"prod", "plain"}, resolved["list"])
}
