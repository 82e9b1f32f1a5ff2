// Package harness runs end-to-end upgrade scenarios declared in YAML.
//
// A scenario seeds a throwaway database, writes a patch directory from
// inline CUE, runs a sequence of patcher operations, and snapshots the
// outcome. Tests assert on the snapshot, so the exact shape of reports
// and error codes is pinned.
package harness

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one end-to-end migration scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Documents seeds the store before any operation runs.
	Documents []SeedDocument `yaml:"documents,omitempty"`

	// PatchFiles is the patch directory content, one entry per CUE file.
	PatchFiles []PatchFile `yaml:"patch_files,omitempty"`

	// Steps is the operation sequence to run, in order. Supported:
	// init, info, discover, plan, upgrade.
	Steps []string `yaml:"steps"`
}

// SeedDocument is one document written to the store before the run.
type SeedDocument struct {
	Collection string         `yaml:"collection"`
	ID         string         `yaml:"id"`
	Doc        map[string]any `yaml:"doc"`
}

// PatchFile is one CUE file of the scenario's patch directory.
type PatchFile struct {
	Name    string `yaml:"name"`
	Content string `yaml:"content"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s: at least one step is required", path)
	}
	for _, step := range s.Steps {
		switch step {
		case "init", "info", "discover", "plan", "upgrade":
		default:
			return nil, fmt.Errorf("scenario %s: unknown step %q", path, step)
		}
	}
	for _, pf := range s.PatchFiles {
		if filepath.Ext(pf.Name) != ".cue" {
			return nil, fmt.Errorf("scenario %s: patch file %q must end in .cue", path, pf.Name)
		}
	}

	return &s, nil
}

// LoadScenarios reads every scenario file in a directory, sorted by
// file name for deterministic test order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir %s: %w", dir, err)
	}

	var scenarios []*Scenario
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		s, err := LoadScenario(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}
