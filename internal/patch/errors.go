package patch

import (
	"errors"
	"fmt"
)

// ChainErrorCode categorizes structural defects in a patch set.
type ChainErrorCode string

const (
	// ErrCodeDuplicateBase indicates two patches share a base version
	// (the chain would branch).
	ErrCodeDuplicateBase ChainErrorCode = "DUPLICATE_BASE"

	// ErrCodeDuplicateTarget indicates two patches share a target
	// version (two branches would merge).
	ErrCodeDuplicateTarget ChainErrorCode = "DUPLICATE_TARGET"

	// ErrCodeOrphan indicates a patch is not reachable from the initial
	// version: its base is no other patch's target.
	ErrCodeOrphan ChainErrorCode = "ORPHAN"

	// ErrCodeGap indicates the patches reachable from the initial
	// version do not exhaust the set and the remainder forms a cycle.
	ErrCodeGap ChainErrorCode = "GAP"

	// ErrCodeUnknownVersion indicates the database's recorded version
	// is not a point on the discovered chain: the manifest and the
	// patch source disagree.
	ErrCodeUnknownVersion ChainErrorCode = "UNKNOWN_VERSION"
)

// ChainError is a structural defect in the patch set, detected before
// anything is applied. Always fatal to discover/upgrade; never retried.
type ChainError struct {
	Code    ChainErrorCode
	Message string

	// Version is the offending version: the duplicated base/target,
	// the orphan patch's base, or the unknown starting version.
	Version Version
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsChainError extracts a ChainError from a (possibly wrapped) error.
func AsChainError(err error) (*ChainError, bool) {
	var ce *ChainError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ApplyError reports a failed patch application. The engine does not
// classify or retry the underlying error; it records how far the
// upgrade got and surfaces the failure verbatim.
type ApplyError struct {
	Base   Version
	Target Version
	Err    error
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("patch %s -> %s failed: %v", e.Base, e.Target, e.Err)
}

// Unwrap exposes the patch's own error for errors.Is/As.
func (e *ApplyError) Unwrap() error {
	return e.Err
}
