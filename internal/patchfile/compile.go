package patchfile

import (
	"context"
	"fmt"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docpatch/internal/docstore"
	"github.com/roach88/docpatch/internal/patch"
)

// CompilePatch parses a CUE value into a patch whose Apply executes the
// declared ops in order.
//
// The CUE value should be one entry of the patches struct, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`patches: "p": { base: "1.0.0", ... }`)
//	p, err := CompilePatch(v.LookupPath(cue.ParsePath(`patches."p"`)))
func CompilePatch(v cue.Value) (*patch.Patch, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	base, err := compileVersion(v, "base")
	if err != nil {
		return nil, err
	}
	target, err := compileVersion(v, "target")
	if err != nil {
		return nil, err
	}
	if base == target {
		return nil, &CompileError{
			Field:   "target",
			Message: fmt.Sprintf("base and target versions are both %s", base),
			Pos:     v.Pos(),
		}
	}
	if target.IsInitial() {
		return nil, &CompileError{
			Field:   "target",
			Message: "the initial version cannot be a target",
			Pos:     v.Pos(),
		}
	}

	p := &patch.Patch{Base: base, Target: target}

	if noteVal := v.LookupPath(cue.ParsePath("note")); noteVal.Exists() {
		if p.Note, err = noteVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if noticeVal := v.LookupPath(cue.ParsePath("notice")); noticeVal.Exists() {
		if p.Notice, err = noticeVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	ops, err := compileOps(v)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, &CompileError{
			Field:   "ops",
			Message: "at least one op is required",
			Pos:     v.Pos(),
		}
	}

	p.Apply = func(ctx context.Context, db *docstore.Store) error {
		return runOps(ctx, db, ops)
	}
	return p, nil
}

// compileVersion parses a required version field.
func compileVersion(v cue.Value, field string) (patch.Version, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return patch.Version{}, &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fieldVal.String()
	if err != nil {
		return patch.Version{}, formatCUEError(err)
	}
	version, err := patch.ParseVersion(s)
	if err != nil {
		return patch.Version{}, &CompileError{
			Field:   field,
			Message: err.Error(),
			Pos:     fieldVal.Pos(),
		}
	}
	return version, nil
}

// compileOps parses the ops list.
func compileOps(v cue.Value) ([]Op, error) {
	opsVal := v.LookupPath(cue.ParsePath("ops"))
	if !opsVal.Exists() {
		return nil, &CompileError{
			Field:   "ops",
			Message: "ops is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := opsVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "ops",
			Message: "ops must be a list",
			Pos:     opsVal.Pos(),
		}
	}

	var ops []Op
	for iter.Next() {
		op, err := compileOp(iter.Value())
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// compileOp parses one op by its do discriminator.
func compileOp(v cue.Value) (Op, error) {
	do, err := requiredString(v, "do")
	if err != nil {
		return nil, err
	}
	collection, err := requiredString(v, "collection")
	if err != nil {
		return nil, err
	}

	switch do {
	case "set":
		field, err := requiredString(v, "field")
		if err != nil {
			return nil, err
		}
		valueVal := v.LookupPath(cue.ParsePath("value"))
		if !valueVal.Exists() {
			return nil, &CompileError{Field: "value", Message: "value is required for set", Pos: v.Pos()}
		}
		var value any
		if err := valueVal.Decode(&value); err != nil {
			return nil, formatCUEError(err)
		}
		where, err := optionalFilter(v)
		if err != nil {
			return nil, err
		}
		return &setOp{collection: collection, field: field, value: value, where: where}, nil

	case "unset":
		field, err := requiredString(v, "field")
		if err != nil {
			return nil, err
		}
		where, err := optionalFilter(v)
		if err != nil {
			return nil, err
		}
		return &unsetOp{collection: collection, field: field, where: where}, nil

	case "rename":
		from, err := requiredString(v, "from")
		if err != nil {
			return nil, err
		}
		to, err := requiredString(v, "to")
		if err != nil {
			return nil, err
		}
		where, err := optionalFilter(v)
		if err != nil {
			return nil, err
		}
		return &renameOp{collection: collection, from: from, to: to, where: where}, nil

	case "insert":
		id, err := requiredString(v, "id")
		if err != nil {
			return nil, err
		}
		docVal := v.LookupPath(cue.ParsePath("doc"))
		if !docVal.Exists() {
			return nil, &CompileError{Field: "doc", Message: "doc is required for insert", Pos: v.Pos()}
		}
		var doc map[string]any
		if err := docVal.Decode(&doc); err != nil {
			return nil, formatCUEError(err)
		}
		return &insertOp{collection: collection, id: id, doc: doc}, nil

	case "delete":
		idVal := v.LookupPath(cue.ParsePath("id"))
		whereVal := v.LookupPath(cue.ParsePath("where"))
		if !idVal.Exists() && !whereVal.Exists() {
			return nil, &CompileError{Field: "delete", Message: "delete needs an id or a where filter", Pos: v.Pos()}
		}
		op := &deleteOp{collection: collection}
		if idVal.Exists() {
			if op.id, err = idVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if whereVal.Exists() {
			if op.where, err = decodeFilter(whereVal); err != nil {
				return nil, err
			}
		}
		return op, nil

	default:
		return nil, &CompileError{
			Field:   "do",
			Message: fmt.Sprintf("unknown op %q (want set, unset, rename, insert or delete)", do),
			Pos:     v.Pos(),
		}
	}
}

// requiredString parses a required string field of an op.
func requiredString(v cue.Value, field string) (string, error) {
	fieldVal := v.LookupPath(cue.ParsePath(field))
	if !fieldVal.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fieldVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// optionalFilter parses an op's optional where clause.
func optionalFilter(v cue.Value) (docstore.Filter, error) {
	whereVal := v.LookupPath(cue.ParsePath("where"))
	if !whereVal.Exists() {
		return nil, nil
	}
	return decodeFilter(whereVal)
}

func decodeFilter(v cue.Value) (docstore.Filter, error) {
	var filter docstore.Filter
	if err := v.Decode(&filter); err != nil {
		return nil, formatCUEError(err)
	}
	return filter, nil
}

// CompileError represents a patch compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
