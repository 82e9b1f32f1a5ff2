package patch

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/docpatch/internal/docstore"
)

// ApplyFunc mutates the document store to carry the data model from a
// patch's base version to its target version. It runs at most once per
// upgrade invocation and must be written to be safely re-runnable: a
// crash mid-apply leaves the store half-migrated at this patch, and the
// next upgrade retries it from the same checkpoint.
type ApplyFunc func(ctx context.Context, db *docstore.Store) error

// Patch is one hand-authored migration unit. Immutable after creation.
type Patch struct {
	// Base is the data model version this patch applies against.
	Base Version

	// Target is the version the data model reaches once applied.
	Target Version

	// Note describes what the patch does. Shown by discover --verbose.
	Note string

	// Notice is an optional post-apply message for the operator, e.g.
	// a manual follow-up step. Notices from all applied patches are
	// collected and reported at the end of an upgrade.
	Notice string

	// Apply performs the migration.
	Apply ApplyFunc
}

// validate checks the per-patch invariants shared by every source.
func (p *Patch) validate() error {
	if p.Base == p.Target {
		return fmt.Errorf("patch %s: base and target versions are equal", p.Base)
	}
	if p.Target.IsInitial() {
		return fmt.Errorf("patch %s -> %s: the initial version cannot be a target", p.Base, p.Target)
	}
	if p.Apply == nil {
		return fmt.Errorf("patch %s -> %s: no apply function", p.Base, p.Target)
	}
	return nil
}

// Source supplies the set of patches to validate and apply. The engine
// does not care how patches are authored: a Source may load declarative
// patch files from a directory (patchfile.Dir) or return patches
// registered in code (Registry).
type Source interface {
	Load(ctx context.Context) ([]*Patch, error)
}

// Registry is an in-code Source: the host application registers its
// patches at startup, keyed by base version.
type Registry struct {
	byBase map[Version]*Patch
}

// NewRegistry creates an empty patch registry.
func NewRegistry() *Registry {
	return &Registry{byBase: make(map[Version]*Patch)}
}

// Add registers a patch. It fails if the patch violates per-patch
// invariants or another patch is already registered for the same base
// version.
func (r *Registry) Add(p *Patch) error {
	if err := p.validate(); err != nil {
		return err
	}
	if existing, ok := r.byBase[p.Base]; ok {
		return fmt.Errorf("patch %s -> %s: a patch for base version %s is already registered (%s -> %s)",
			p.Base, p.Target, p.Base, existing.Base, existing.Target)
	}
	r.byBase[p.Base] = p
	return nil
}

// MustAdd is Add that panics on error, for package-level registration.
func (r *Registry) MustAdd(p *Patch) {
	if err := r.Add(p); err != nil {
		panic(err)
	}
}

// Load returns the registered patches. The returned order is
// deterministic (by base version) but carries no meaning; chain order
// is re-derived by Build.
func (r *Registry) Load(ctx context.Context) ([]*Patch, error) {
	patches := make([]*Patch, 0, len(r.byBase))
	for _, p := range r.byBase {
		patches = append(patches, p)
	}
	sort.Slice(patches, func(i, j int) bool {
		return patches[i].Base.Compare(patches[j].Base) < 0
	})
	return patches, nil
}
