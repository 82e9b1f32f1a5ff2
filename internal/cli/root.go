// Package cli wires the patcher's four operations onto a cobra
// command tree: info, init, discover, upgrade.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docpatch/internal/docstore"
	"github.com/roach88/docpatch/internal/patch"
	"github.com/roach88/docpatch/internal/patcher"
	"github.com/roach88/docpatch/internal/patchfile"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath     string
	PatchesDir string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the docpatch CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "docpatch",
		Short: "Incremental schema patches for document databases",
		Long: `docpatch tracks and applies hand-authored data migrations against a
document database. Patches declare a base and a target version; docpatch
validates that the patch set forms a single unbroken chain and applies
the unapplied suffix, checkpointing the database's manifest after every
successful patch.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.DBPath == "" {
				return fmt.Errorf("--db is required")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to the database file")
	cmd.PersistentFlags().StringVarP(&opts.PatchesDir, "patches", "p", "patches", "directory holding the patch files")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewDiscoverCommand(opts))
	cmd.AddCommand(NewUpgradeCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newFormatter builds the output formatter for a command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openPatcher opens the database and constructs a Patcher over the
// patch directory. The returned close func must run before exit.
func openPatcher(opts *RootOptions, extra ...patcher.Option) (*patcher.Patcher, func() error, error) {
	store, err := docstore.Open(opts.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", opts.DBPath, err)
	}

	var source patch.Source = patchfile.NewDir(opts.PatchesDir)
	p := patcher.New(store, source, extra...)
	return p, store.Close, nil
}
