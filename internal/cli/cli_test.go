package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testChain is a two-patch chain used by most command tests.
const testChain = `
patches: {
	"add-role": {
		base:   "0.0.0"
		target: "1.0.0"
		note:   "add a default role"
		ops: [
			{do: "set", collection: "users", field: "role", value: "member"},
		]
	}
	"drop-legacy": {
		base:   "1.0.0"
		target: "2.0.0"
		notice: "rebuild caches"
		ops: [
			{do: "unset", collection: "users", field: "legacy"},
		]
	}
}
`

// newWorkspace creates a database path and a patch directory holding
// the test chain, returning both.
func newWorkspace(t *testing.T) (dbPath, patchesDir string) {
	t.Helper()
	dir := t.TempDir()
	patchesDir = filepath.Join(dir, "patches")
	require.NoError(t, os.Mkdir(patchesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(patchesDir, "patches.cue"), []byte(testChain), 0o644))
	return filepath.Join(dir, "app.db"), patchesDir
}

// runCLI executes the root command with the given args and returns
// captured stdout and stderr.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRoot_RequiresDB(t *testing.T) {
	_, _, err := runCLI(t, "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db is required")
}

func TestRoot_RejectsUnknownFormat(t *testing.T) {
	db, patches := newWorkspace(t)
	_, _, err := runCLI(t, "--db", db, "-p", patches, "--format", "xml", "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestInit_Text(t *testing.T) {
	db, patches := newWorkspace(t)
	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "init")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "init_text", []byte(stdout))
}

func TestInit_JSON(t *testing.T) {
	db, patches := newWorkspace(t)
	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "--format", "json", "init")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "init_json", []byte(stdout))
}

func TestInit_AlreadyInitialized(t *testing.T) {
	db, patches := newWorkspace(t)
	_, _, err := runCLI(t, "--db", db, "-p", patches, "init")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "init")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	newGoldie(t).Assert(t, "init_already_text", []byte(stdout))
}

func TestDiscover_Text(t *testing.T) {
	db, patches := newWorkspace(t)
	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "discover")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "discover_text", []byte(stdout))
}

func TestDiscover_VerboseShowsNotes(t *testing.T) {
	db, patches := newWorkspace(t)
	stdout, stderr, err := runCLI(t, "--db", db, "-p", patches, "-v", "discover")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Loading patches from "+patches)
	newGoldie(t).Assert(t, "discover_verbose_text", []byte(stdout))
}

func TestDiscover_JSON(t *testing.T) {
	db, patches := newWorkspace(t)
	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "--format", "json", "discover")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "discover_json", []byte(stdout))
}

func TestDiscover_MissingPatchDir(t *testing.T) {
	db, _ := newWorkspace(t)
	stdout, _, err := runCLI(t, "--db", db, "-p", filepath.Join(t.TempDir(), "nope"), "discover")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E001]: patch directory not found")
}

func TestDiscover_BrokenChain(t *testing.T) {
	db, patches := newWorkspace(t)
	stranded := `
patches: "stranded": {
	base:   "5.0.0"
	target: "6.0.0"
	ops: [
		{do: "unset", collection: "users", field: "role"},
	]
}
`
	require.NoError(t, os.WriteFile(filepath.Join(patches, "stranded.cue"), []byte(stranded), 0o644))

	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "discover")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Error [ORPHAN]:")
}

func TestInfo_Text(t *testing.T) {
	db, patches := newWorkspace(t)
	_, _, err := runCLI(t, "--db", db, "-p", patches, "init")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "info")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "info_pending_text", []byte(stdout))
}

func TestInfo_NotInitialized(t *testing.T) {
	db, patches := newWorkspace(t)
	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "info")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	newGoldie(t).Assert(t, "info_not_initialized_text", []byte(stdout))
}

func TestInfo_NotInitializedJSON(t *testing.T) {
	db, patches := newWorkspace(t)
	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "--format", "json", "info")
	require.Error(t, err)
	newGoldie(t).Assert(t, "info_not_initialized_json", []byte(stdout))
}

func TestUpgrade_Text(t *testing.T) {
	db, patches := newWorkspace(t)
	_, _, err := runCLI(t, "--db", db, "-p", patches, "init")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "upgrade")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "upgrade_text", []byte(stdout))

	// The database is now at the tip.
	stdout, _, err = runCLI(t, "--db", db, "-p", patches, "info")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "info_uptodate_text", []byte(stdout))
}

func TestUpgrade_AlreadyUpToDate(t *testing.T) {
	db, patches := newWorkspace(t)
	_, _, err := runCLI(t, "--db", db, "-p", patches, "init")
	require.NoError(t, err)
	_, _, err = runCLI(t, "--db", db, "-p", patches, "upgrade")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "upgrade")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "upgrade_uptodate_text", []byte(stdout))
}

func TestUpgrade_DryRun(t *testing.T) {
	db, patches := newWorkspace(t)
	_, _, err := runCLI(t, "--db", db, "-p", patches, "init")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "upgrade", "--dry-run")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "upgrade_dry_run_text", []byte(stdout))

	// Nothing was applied.
	stdout, _, err = runCLI(t, "--db", db, "-p", patches, "info")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "info_pending_text", []byte(stdout))
}

func TestUpgrade_JSON(t *testing.T) {
	db, patches := newWorkspace(t)
	_, _, err := runCLI(t, "--db", db, "-p", patches, "init")
	require.NoError(t, err)

	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "--format", "json", "upgrade")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "upgrade_json", []byte(stdout))
}

func TestUpgrade_NotInitialized(t *testing.T) {
	db, patches := newWorkspace(t)
	stdout, _, err := runCLI(t, "--db", db, "-p", patches, "upgrade")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Error [NOT_INITIALIZED]:")
}
