package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentdock/logging"
)

// flags mirrors the attached/enabled keys so omitted values default to true
// instead of Go's zero value.
type flags struct {
	Attached *bool `yaml:"attached"`
	Enabled  *bool `yaml:"enabled"`
}

// Parse decodes a single YAML workflow definition. Attached and Enabled
// default to true when omitted; an empty id falls back to the provided
// fallback id.
func Parse(data []byte, fallbackID string) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse workflow: %w", err)
	}

	var fl flags
	if err := yaml.Unmarshal(data, &fl); err != nil {
		return Definition{}, fmt.Errorf("parse workflow: %w", err)
	}
	def.Attached = fl.Attached == nil || *fl.Attached
	def.Enabled = fl.Enabled == nil || *fl.Enabled

	if def.ID == "" {
		def.ID = fallbackID
	}
	if def.Name == "" {
		def.Name = def.ID
	}

	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDir reads every *.yaml and *.yml file in dir, registers the valid
// definitions with the engine and returns their count. Invalid files are
// logged and skipped so one broken definition cannot block the rest.
func LoadDir(dir string, engine *Engine, logger logging.Logger) (int, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read workflow dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("workflow.load.read_failed", "file", path, "error", err.Error())
			continue
		}

		fallback := strings.TrimSuffix(name, filepath.Ext(name))
		def, err := Parse(data, fallback)
		if err != nil {
			logger.Warn("workflow.load.invalid", "file", path, "error", err.Error())
			continue
		}

		if err := engine.Register(def); err != nil {
			logger.Warn("workflow.load.register_failed", "file", path, "error", err.Error())
			continue
		}
		loaded++
	}
	return loaded, nil
}
