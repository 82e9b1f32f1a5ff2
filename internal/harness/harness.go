package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/docpatch/internal/docstore"
	"github.com/roach88/docpatch/internal/manifest"
	"github.com/roach88/docpatch/internal/patch"
	"github.com/roach88/docpatch/internal/patcher"
	"github.com/roach88/docpatch/internal/patchfile"
	"github.com/roach88/docpatch/internal/testutil"
)

// Result is the snapshot of one scenario run.
type Result struct {
	Scenario     string                `json:"scenario"`
	Steps        []StepResult          `json:"steps"`
	FinalVersion string                `json:"final_version"`
	History      []HistorySnapshot     `json:"history,omitempty"`
	Documents    map[string][]DocState `json:"documents,omitempty"`
}

// StepResult is the outcome of one operation in the scenario.
type StepResult struct {
	Op        string          `json:"op"`
	Info      *patcher.Info   `json:"info,omitempty"`
	Report    *patcher.Report `json:"report,omitempty"`
	Chain     []patcher.Step  `json:"chain,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// HistorySnapshot is a manifest history entry with its deterministic
// test timestamp.
type HistorySnapshot struct {
	Version   string    `json:"version"`
	AppliedAt time.Time `json:"applied_at"`
	Reason    string    `json:"reason,omitempty"`
}

// DocState is one document's final body.
type DocState struct {
	ID  string         `json:"id"`
	Doc map[string]any `json:"doc"`
}

// Run executes a scenario against a fresh database under workDir.
//
// Step errors are captured in the step's result and the run continues:
// scenarios exercise failure paths (a failed upgrade followed by a
// resuming one) as first-class sequences.
func Run(ctx context.Context, scenario *Scenario, workDir string) (*Result, error) {
	patchesDir := filepath.Join(workDir, "patches")
	if err := os.MkdirAll(patchesDir, 0o755); err != nil {
		return nil, fmt.Errorf("scenario %s: create patch dir: %w", scenario.Name, err)
	}
	for _, pf := range scenario.PatchFiles {
		if err := os.WriteFile(filepath.Join(patchesDir, pf.Name), []byte(pf.Content), 0o644); err != nil {
			return nil, fmt.Errorf("scenario %s: write patch file %s: %w", scenario.Name, pf.Name, err)
		}
	}

	store, err := docstore.Open(filepath.Join(workDir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: open store: %w", scenario.Name, err)
	}
	defer store.Close()

	for _, seed := range scenario.Documents {
		if err := store.Put(ctx, seed.Collection, seed.ID, seed.Doc); err != nil {
			return nil, fmt.Errorf("scenario %s: seed %s/%s: %w", scenario.Name, seed.Collection, seed.ID, err)
		}
	}

	tokens := make([]string, len(scenario.Steps))
	for i := range tokens {
		tokens[i] = fmt.Sprintf("scenario-lock-%04d", i+1)
	}

	p := patcher.New(store, patchfile.NewDir(patchesDir),
		patcher.WithClock(testutil.NewSteppingClock().Now),
		patcher.WithTokenGenerator(patcher.NewFixedGenerator(tokens...)),
	)

	result := &Result{Scenario: scenario.Name, Documents: map[string][]DocState{}}
	for _, op := range scenario.Steps {
		result.Steps = append(result.Steps, runStep(ctx, p, op))
	}

	if m, err := manifest.Load(ctx, store); err == nil {
		result.FinalVersion = m.Version.String()
		for _, entry := range m.History {
			result.History = append(result.History, HistorySnapshot{
				Version:   entry.Version.String(),
				AppliedAt: entry.AppliedAt,
				Reason:    entry.Reason,
			})
		}
	} else if errors.Is(err, manifest.ErrNotInitialized) {
		result.FinalVersion = "uninitialized"
	} else {
		return nil, fmt.Errorf("scenario %s: load manifest: %w", scenario.Name, err)
	}

	for _, collection := range snapshotCollections(scenario) {
		docs, err := store.Find(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: snapshot %s: %w", scenario.Name, collection, err)
		}
		states := make([]DocState, 0, len(docs))
		for _, doc := range docs {
			states = append(states, DocState{ID: doc.ID, Doc: doc.Body})
		}
		result.Documents[collection] = states
	}

	return result, nil
}

// runStep dispatches one operation and captures its outcome.
func runStep(ctx context.Context, p *patcher.Patcher, op string) StepResult {
	step := StepResult{Op: op}

	var err error
	switch op {
	case "init":
		err = p.Init(ctx)
	case "info":
		step.Info, err = p.Info(ctx)
	case "discover":
		var chain *patch.Chain
		chain, err = p.Discover(ctx)
		if err == nil {
			step.Chain = []patcher.Step{}
			for _, pt := range chain.Patches() {
				step.Chain = append(step.Chain, patcher.Step{Base: pt.Base, Target: pt.Target, Note: pt.Note})
			}
		}
	case "plan":
		step.Report, err = p.Plan(ctx)
	case "upgrade":
		step.Report, err = p.Upgrade(ctx)
	}

	if err != nil {
		step.ErrorCode = errorCode(err)
		step.Error = err.Error()
	}
	return step
}

// snapshotCollections returns the seeded collections, deduplicated in
// first-seen order. These are the collections patches mutate, so their
// final state is what scenarios assert on.
func snapshotCollections(s *Scenario) []string {
	seen := map[string]bool{}
	var collections []string
	for _, seed := range s.Documents {
		if !seen[seed.Collection] {
			seen[seed.Collection] = true
			collections = append(collections, seed.Collection)
		}
	}
	return collections
}

// errorCode classifies an engine error the way the CLI does, so golden
// files pin the code a caller would see.
func errorCode(err error) string {
	if errors.Is(err, manifest.ErrNotInitialized) {
		return "NOT_INITIALIZED"
	}
	if errors.Is(err, manifest.ErrAlreadyInitialized) {
		return "ALREADY_INITIALIZED"
	}
	var lockErr *manifest.LockHeldError
	if errors.As(err, &lockErr) {
		return "LOCK_HELD"
	}
	if chainErr, ok := patch.AsChainError(err); ok {
		return string(chainErr.Code)
	}
	var applyErr *patch.ApplyError
	if errors.As(err, &applyErr) {
		return "APPLY_FAILED"
	}
	var loadErr *patchfile.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	return "ERROR"
}
