package patchfile

import (
	"context"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docpatch/internal/docstore"
	"github.com/roach88/docpatch/internal/patch"
)

// compileOne compiles a single patch declaration for tests.
func compileOne(t *testing.T, src string) (*patch.Patch, error) {
	t.Helper()
	cuectx := cuecontext.New()
	v := cuectx.CompileString(src)
	require.NoError(t, v.Err())
	return CompilePatch(v.LookupPath(cue.ParsePath(`patches."p"`)))
}

func openTestStore(t *testing.T) *docstore.Store {
	t.Helper()
	s, err := docstore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCompilePatch_Minimal(t *testing.T) {
	p, err := compileOne(t, `
patches: "p": {
	base:   "1.0.0"
	target: "1.1.0"
	note:   "add flags"
	ops: [
		{do: "set", collection: "orders", field: "flagged", value: false},
	]
}`)
	require.NoError(t, err)

	assert.Equal(t, patch.MustParseVersion("1.0.0"), p.Base)
	assert.Equal(t, patch.MustParseVersion("1.1.0"), p.Target)
	assert.Equal(t, "add flags", p.Note)
	require.NotNil(t, p.Apply)
}

func TestCompilePatch_MissingBase(t *testing.T) {
	_, err := compileOne(t, `
patches: "p": {
	target: "1.1.0"
	ops: [{do: "set", collection: "c", field: "f", value: 1}]
}`)
	require.Error(t, err)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "base", compileErr.Field)
}

func TestCompilePatch_BadVersion(t *testing.T) {
	_, err := compileOne(t, `
patches: "p": {
	base:   "one.two"
	target: "1.1.0"
	ops: [{do: "set", collection: "c", field: "f", value: 1}]
}`)
	require.Error(t, err)

	var compileErr *CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "base", compileErr.Field)
}

func TestCompilePatch_EqualVersions(t *testing.T) {
	_, err := compileOne(t, `
patches: "p": {
	base:   "1.0.0"
	target: "1.0.0"
	ops: [{do: "set", collection: "c", field: "f", value: 1}]
}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base and target")
}

func TestCompilePatch_InitialTarget(t *testing.T) {
	_, err := compileOne(t, `
patches: "p": {
	base:   "1.0.0"
	target: "0.0.0"
	ops: [{do: "set", collection: "c", field: "f", value: 1}]
}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial version")
}

func TestCompilePatch_NoOps(t *testing.T) {
	_, err := compileOne(t, `
patches: "p": {
	base:   "1.0.0"
	target: "1.1.0"
	ops: []
}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one op")
}

func TestCompilePatch_UnknownOp(t *testing.T) {
	_, err := compileOne(t, `
patches: "p": {
	base:   "1.0.0"
	target: "1.1.0"
	ops: [{do: "explode", collection: "c"}]
}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown op "explode"`)
}

func TestCompilePatch_DeleteNeedsIDOrWhere(t *testing.T) {
	_, err := compileOne(t, `
patches: "p": {
	base:   "1.0.0"
	target: "1.1.0"
	ops: [{do: "delete", collection: "c"}]
}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id or a where filter")
}

func TestCompiledOps_ExecuteInOrder(t *testing.T) {
	p, err := compileOne(t, `
patches: "p": {
	base:   "0.0.0"
	target: "1.0.0"
	ops: [
		{do: "insert", collection: "orders", id: "o-1", doc: {state: "open", legacy: true}},
		{do: "rename", collection: "orders", from: "state", to: "status"},
		{do: "unset", collection: "orders", field: "legacy"},
		{do: "set", collection: "orders", field: "status", value: "new", where: {status: "open"}},
	]
}`)
	require.NoError(t, err)

	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, p.Apply(ctx, store))

	var doc map[string]any
	require.NoError(t, store.Get(ctx, "orders", "o-1", &doc))
	assert.Equal(t, "new", doc["status"])
	assert.NotContains(t, doc, "state")
	assert.NotContains(t, doc, "legacy")
}

func TestCompiledOps_DeleteByIDAndWhere(t *testing.T) {
	p, err := compileOne(t, `
patches: "p": {
	base:   "0.0.0"
	target: "1.0.0"
	ops: [
		{do: "insert", collection: "orders", id: "keep", doc: {state: "open"}},
		{do: "insert", collection: "orders", id: "gone", doc: {state: "void"}},
		{do: "insert", collection: "orders", id: "gone-2", doc: {state: "void"}},
		{do: "delete", collection: "orders", id: "gone"},
		{do: "delete", collection: "orders", where: {state: "void"}},
	]
}`)
	require.NoError(t, err)

	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, p.Apply(ctx, store))

	docs, err := store.Find(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "keep", docs[0].ID)
}
