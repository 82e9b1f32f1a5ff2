package cli

import (
	"github.com/spf13/cobra"
)

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	var showHistory bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the database's data model version",
		Long: `Show the database's current data model version, the newest version the
patch chain reaches, and whether the database is up to date. Read-only;
does not take the upgrade lock.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(rootOpts, showHistory, cmd)
		},
	}

	cmd.Flags().BoolVar(&showHistory, "history", false, "list the application history")

	return cmd
}

func runInfo(opts *RootOptions, showHistory bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	p, closeStore, err := openPatcher(opts)
	if err != nil {
		return fail(formatter, err)
	}
	defer closeStore()

	info, err := p.Info(cmd.Context())
	if err != nil {
		return fail(formatter, err)
	}

	if !showHistory {
		info.History = nil
	}
	if wrote, err := formatter.JSON(info); wrote || err != nil {
		return err
	}

	formatter.Printf("Data model version: %s\n", info.Current)
	formatter.Printf("Chain tip:          %s\n", info.Tip)
	if info.UpToDate {
		formatter.Printf("Up to date.\n")
	} else {
		formatter.Printf("%d patch(es) pending; run `docpatch upgrade`.\n", info.Pending)
	}

	if showHistory && len(info.History) > 0 {
		formatter.Printf("\nHistory:\n")
		for i := len(info.History) - 1; i >= 0; i-- {
			entry := info.History[i]
			formatter.Printf("  %s  %s  %s\n", entry.AppliedAt.UTC().Format("2006-01-02 15:04:05"), entry.Version, entry.Reason)
		}
	}
	return nil
}
