package patchfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docpatch/internal/patch"
)

// Load error codes.
const (
	ErrCodeNotFound    = "E001" // Path not found or not a directory
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeBuildFailed = "E005" // CUE build failed
	ErrCodeNoPatches   = "E006" // No patches declared
)

// LoadError represents an error that occurred while loading a patch
// directory, before any per-patch compilation.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Dir is a patch.Source reading declarative patches from a directory
// of CUE files. The directory is re-read on every Load, so discover
// and upgrade always see the current patch set.
type Dir struct {
	path string
}

// NewDir creates a Source for the given patch directory.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// Load loads and compiles every patch declared in the directory.
func (d *Dir) Load(ctx context.Context) ([]*patch.Patch, error) {
	info, err := os.Stat(d.path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("patch directory not found: %s", d.path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing patch directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", d.path)}
	}

	cueFiles, err := findCUEFiles(d.path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", d.path)}
	}

	cuectx := cuecontext.New()
	cfg := &load.Config{Dir: d.path}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := cuectx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	patchesVal := value.LookupPath(cue.ParsePath("patches"))
	if !patchesVal.Exists() {
		return nil, &LoadError{Code: ErrCodeNoPatches, Message: fmt.Sprintf("no patches declared in %s", d.path)}
	}

	iter, iterErr := patchesVal.Fields()
	if iterErr != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("iterating patches: %v", iterErr)}
	}

	var patches []*patch.Patch
	for iter.Next() {
		p, compileErr := CompilePatch(iter.Value())
		if compileErr != nil {
			return nil, fmt.Errorf("patches.%s: %w", iter.Label(), compileErr)
		}
		patches = append(patches, p)
	}

	if len(patches) == 0 {
		return nil, &LoadError{Code: ErrCodeNoPatches, Message: fmt.Sprintf("no patches declared in %s", d.path)}
	}

	return patches, nil
}

// findCUEFiles walks the directory and returns all .cue file paths.
func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
