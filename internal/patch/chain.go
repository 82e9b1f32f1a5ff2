package patch

import "fmt"

// Chain is the validated, linear sequence of patches from the initial
// version to the tip. Read-only after Build; rebuilt fresh from the
// patch source on every discover/upgrade invocation.
type Chain struct {
	ordered []*Patch        // application order, walked from Initial
	index   map[Version]int // base version -> position in ordered
	tip     Version
}

// Build validates a patch set and assembles it into a Chain.
//
// Validation order, per the checks' error codes: duplicate base,
// duplicate target, then reachability from the initial version. The
// walk is an explicit adjacency-map lookup loop with a visited count,
// which keeps the orphan/gap distinction deterministic.
func Build(patches []*Patch) (*Chain, error) {
	byBase := make(map[Version]*Patch, len(patches))
	byTarget := make(map[Version]*Patch, len(patches))

	for _, p := range patches {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if other, ok := byBase[p.Base]; ok {
			return nil, &ChainError{
				Code:    ErrCodeDuplicateBase,
				Message: fmt.Sprintf("patches %s -> %s and %s -> %s share base version %s", other.Base, other.Target, p.Base, p.Target, p.Base),
				Version: p.Base,
			}
		}
		byBase[p.Base] = p
	}

	for _, p := range patches {
		if other, ok := byTarget[p.Target]; ok {
			return nil, &ChainError{
				Code:    ErrCodeDuplicateTarget,
				Message: fmt.Sprintf("patches %s -> %s and %s -> %s share target version %s", other.Base, other.Target, p.Base, p.Target, p.Target),
				Version: p.Target,
			}
		}
		byTarget[p.Target] = p
	}

	// Walk from Initial. With unique bases and targets the walk cannot
	// revisit a version except by returning to Initial, which the
	// target validation already rules out.
	chain := &Chain{
		ordered: make([]*Patch, 0, len(patches)),
		index:   make(map[Version]int, len(patches)),
		tip:     Initial,
	}
	at := Initial
	for {
		next, ok := byBase[at]
		if !ok {
			break
		}
		chain.index[at] = len(chain.ordered)
		chain.ordered = append(chain.ordered, next)
		at = next.Target
	}
	chain.tip = at

	if len(chain.ordered) < len(patches) {
		return nil, unreachedError(patches, byTarget, chain)
	}

	return chain, nil
}

// unreachedError classifies the leftover patches after the walk: an
// orphan (a patch whose base hangs off nothing) if one exists, a gap
// (disconnected cycle) otherwise.
func unreachedError(patches []*Patch, byTarget map[Version]*Patch, chain *Chain) *ChainError {
	reached := make(map[Version]bool, len(chain.ordered))
	for _, p := range chain.ordered {
		reached[p.Target] = true
	}

	var unreached []*Patch
	for _, p := range patches {
		if !reached[p.Target] {
			unreached = append(unreached, p)
		}
	}

	for _, p := range unreached {
		if _, ok := byTarget[p.Base]; !ok {
			// Nothing produces this patch's base: it dangles off a
			// version the chain never reaches.
			return &ChainError{
				Code:    ErrCodeOrphan,
				Message: fmt.Sprintf("patch %s -> %s is not reachable from the initial version", p.Base, p.Target),
				Version: p.Base,
			}
		}
	}

	// Every unreached patch's base is produced by another unreached
	// patch: the remainder is a closed cycle.
	return &ChainError{
		Code:    ErrCodeGap,
		Message: fmt.Sprintf("%d patch(es) form a cycle disconnected from the initial version", len(unreached)),
		Version: unreached[0].Base,
	}
}

// Tip returns the chain's final version: the one version that is no
// patch's base. For an empty chain this is the initial version.
func (c *Chain) Tip() Version {
	return c.tip
}

// Len returns the number of patches in the chain.
func (c *Chain) Len() int {
	return len(c.ordered)
}

// Patches returns the full chain in application order. The returned
// slice is shared; callers must not mutate it.
func (c *Chain) Patches() []*Patch {
	return c.ordered
}

// PathFrom returns the patches to apply, in order, to go from start to
// the tip. An empty slice means start is already the tip.
//
// Fails with UNKNOWN_VERSION if start is neither the initial version
// nor any patch's target: the database was migrated by a different or
// newer patch source than the one discovered.
func (c *Chain) PathFrom(start Version) ([]*Patch, error) {
	if start == c.tip {
		return []*Patch{}, nil
	}

	// On a validated chain every base version is either Initial or the
	// previous patch's target, so membership in the base index is
	// exactly the "point on the chain" test.
	pos, ok := c.index[start]
	if !ok {
		return nil, &ChainError{
			Code:    ErrCodeUnknownVersion,
			Message: fmt.Sprintf("version %s is not on the patch chain; the manifest and the patch source disagree", start),
			Version: start,
		}
	}

	return c.ordered[pos:], nil
}
