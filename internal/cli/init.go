package cli

import (
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the database's migration manifest",
		Long: `Create the manifest document that tracks the database's data model
version. A fresh manifest starts at version 0.0.0 with no patches
applied. Fails if the database already has a manifest: re-initializing
would silently reset the version, so it is never done in place.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}

	return cmd
}

type initResult struct {
	Initialized bool   `json:"initialized"`
	Version     string `json:"version"`
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	p, closeStore, err := openPatcher(opts)
	if err != nil {
		return fail(formatter, err)
	}
	defer closeStore()

	if err := p.Init(cmd.Context()); err != nil {
		return fail(formatter, err)
	}

	if wrote, err := formatter.JSON(initResult{Initialized: true, Version: "0.0.0"}); wrote || err != nil {
		return err
	}
	formatter.Printf("Manifest initialized at version 0.0.0.\n")
	return nil
}
