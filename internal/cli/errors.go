package cli

import (
	"errors"

	"github.com/roach88/docpatch/internal/manifest"
	"github.com/roach88/docpatch/internal/patch"
	"github.com/roach88/docpatch/internal/patchfile"
)

// Engine error codes surfaced by the CLI beyond the chain codes.
const (
	codeNotInitialized     = "NOT_INITIALIZED"
	codeAlreadyInitialized = "ALREADY_INITIALIZED"
	codeLockHeld           = "LOCK_HELD"
	codeApplyFailed        = "APPLY_FAILED"
	codePatchSource        = "PATCH_SOURCE"
	codeError              = "ERROR"
)

// fail maps an engine error onto an error code and exit code and emits
// it through the formatter.
//
// Chain defects, failed patches, a held lock and a missing manifest
// are migration failures (exit 1): the command ran, the migration did
// not. Unreadable patch directories and everything unclassified are
// command errors (exit 2).
func fail(f *OutputFormatter, err error) error {
	if errors.Is(err, manifest.ErrNotInitialized) {
		return f.Fail(ExitFailure, codeNotInitialized, "database is not initialized; run `docpatch init` first")
	}
	if errors.Is(err, manifest.ErrAlreadyInitialized) {
		return f.Fail(ExitFailure, codeAlreadyInitialized, "database already has a manifest; refusing to reset it")
	}

	var lockErr *manifest.LockHeldError
	if errors.As(err, &lockErr) {
		return f.Fail(ExitFailure, codeLockHeld, lockErr.Error())
	}

	if chainErr, ok := patch.AsChainError(err); ok {
		return f.Fail(ExitFailure, string(chainErr.Code), chainErr.Message)
	}

	var applyErr *patch.ApplyError
	if errors.As(err, &applyErr) {
		return f.Fail(ExitFailure, codeApplyFailed, applyErr.Error())
	}

	var compileErr *patchfile.CompileError
	if errors.As(err, &compileErr) {
		return f.Fail(ExitFailure, codePatchSource, err.Error())
	}

	var loadErr *patchfile.LoadError
	if errors.As(err, &loadErr) {
		return f.Fail(ExitCommandError, loadErr.Code, loadErr.Message)
	}

	return f.Fail(ExitCommandError, codeError, err.Error())
}
