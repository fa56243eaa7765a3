package workflow

import (
	"errors"
	"fmt"
)

// StepKind types the work a step performs.
type StepKind string

const (
	// StepTool issues a correlated capability request to the tool executor.
	StepTool StepKind = "tool"
	// StepFunction issues a correlated request to the function executor.
	StepFunction StepKind = "function"
	// StepAgent calls into model-backed reasoning.
	StepAgent StepKind = "agent"
	// StepCondition evaluates a predicate without side effects.
	StepCondition StepKind = "condition"
	// StepLoop re-executes a nested step once per element of an iterable.
	StepLoop StepKind = "loop"
)

var stepKinds = map[StepKind]bool{
	StepTool:      true,
	StepFunction:  true,
	StepAgent:     true,
	StepCondition: true,
	StepLoop:      true,
}

// Branch is the pair of successor step ids taken after evaluating the
// step's condition.
type Branch struct {
	True  string `yaml:"true" json:"true"`
	False string `yaml:"false" json:"false"`
}

// Step is one node in a workflow's graph. Exactly one of Next or Branch may
// be set; with neither the step is terminal. Config carries kind-specific
// keys: "capability" and "params" for tool/function steps, "task" for agent
// steps, "items" and "step" for loop steps.
type Step struct {
	ID        string         `yaml:"id" json:"id"`
	Name      string         `yaml:"name,omitempty" json:"name,omitempty"`
	Kind      StepKind       `yaml:"kind" json:"kind"`
	Config    map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
	Condition *Predicate     `yaml:"condition,omitempty" json:"condition,omitempty"`
	Next      string         `yaml:"next,omitempty" json:"next,omitempty"`
	Branch    *Branch        `yaml:"branch,omitempty" json:"branch,omitempty"`
}

// Definition is a named, versioned workflow graph. Immutable once
// registered except for the Attached/Enabled flags, which the engine
// toggles under its own lock.
type Definition struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Version  string `yaml:"version,omitempty" json:"version,omitempty"`
	Attached bool   `yaml:"attached" json:"attached"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Steps    []Step `yaml:"steps" json:"steps"`
}

// FirstStep returns the id of the entry step (the first listed).
func (d *Definition) FirstStep() string {
	if len(d.Steps) == 0 {
		return ""
	}
	return d.Steps[0].ID
}

// Step returns the step with the given id.
func (d *Definition) Step(id string) (Step, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Validate checks the graph eagerly at registration time: step ids must be
// unique and non-empty, kinds known, every next/branch/loop reference must
// resolve to a step in the same workflow, branching steps must carry a
// condition, and loop steps must name their iterable and nested step.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return errors.New("workflow id is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", d.ID)
	}

	ids := make(map[string]bool, len(d.Steps))
	for _, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("workflow %s: step with empty id", d.ID)
		}
		if ids[s.ID] {
			return fmt.Errorf("workflow %s: duplicate step id %q", d.ID, s.ID)
		}
		ids[s.ID] = true
	}

	for _, s := range d.Steps {
		if !stepKinds[s.Kind] {
			return fmt.Errorf("workflow %s: step %s has unknown kind %q", d.ID, s.ID, s.Kind)
		}
		if s.Next != "" && s.Branch != nil {
			return fmt.Errorf("workflow %s: step %s sets both next and branch", d.ID, s.ID)
		}
		if s.Next != "" && !ids[s.Next] {
			return fmt.Errorf("workflow %s: step %s next %q does not resolve", d.ID, s.ID, s.Next)
		}
		if s.Branch != nil {
			if !ids[s.Branch.True] || !ids[s.Branch.False] {
				return fmt.Errorf("workflow %s: step %s branch does not resolve", d.ID, s.ID)
			}
			if s.Condition == nil && s.Kind != StepCondition {
				return fmt.Errorf("workflow %s: step %s branches without a condition", d.ID, s.ID)
			}
		}
		if s.Kind == StepCondition && s.Condition == nil {
			return fmt.Errorf("workflow %s: condition step %s has no condition", d.ID, s.ID)
		}
		if s.Condition != nil {
			if err := s.Condition.Validate(); err != nil {
				return fmt.Errorf("workflow %s: step %s: %w", d.ID, s.ID, err)
			}
		}
		if s.Kind == StepLoop {
			if stringConfig(s.Config, "items") == "" {
				return fmt.Errorf("workflow %s: loop step %s has no items path", d.ID, s.ID)
			}
			nested := stringConfig(s.Config, "step")
			if nested == "" || !ids[nested] {
				return fmt.Errorf("workflow %s: loop step %s nested step does not resolve", d.ID, s.ID)
			}
			if nested == s.ID {
				return fmt.Errorf("workflow %s: loop step %s cannot nest itself", d.ID, s.ID)
			}
		}
	}
	return nil
}

func stringConfig(cfg map[string]any, key string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
