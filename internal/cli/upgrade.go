package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/docpatch/internal/patcher"
)

// NewUpgradeCommand creates the upgrade command.
func NewUpgradeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dryRun  bool
		lockTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Apply all unapplied patches in chain order",
		Long: `Apply every patch after the database's current version, in chain
order, checkpointing the manifest after each success. A failed patch
stops the run; the database keeps the version of the last patch that
fully applied, and a later upgrade resumes from there. Concurrent
upgrades are serialized by an advisory lock in the manifest.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgrade(rootOpts, dryRun, lockTTL, cmd)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be applied without applying")
	cmd.Flags().DurationVar(&lockTTL, "lock-ttl", patcher.DefaultLockTTL, "advisory lock lease; a crashed upgrader's lock expires after this long")

	return cmd
}

func runUpgrade(opts *RootOptions, dryRun bool, lockTTL time.Duration, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	p, closeStore, err := openPatcher(opts, patcher.WithLockTTL(lockTTL))
	if err != nil {
		return fail(formatter, err)
	}
	defer closeStore()

	var report *patcher.Report
	if dryRun {
		report, err = p.Plan(cmd.Context())
	} else {
		report, err = p.Upgrade(cmd.Context())
	}
	if err != nil {
		// A mid-chain failure still moved the version forward; show how
		// far we got before the error.
		if report != nil && len(report.Applied) > 0 {
			formatter.VerboseLog("applied %d patch(es) before the failure; database is at %s", len(report.Applied), report.To)
		}
		return fail(formatter, err)
	}

	if wrote, err := formatter.JSON(report); wrote || err != nil {
		return err
	}

	if report.UpToDate {
		formatter.Printf("Already up to date at version %s.\n", report.From)
		return nil
	}

	for _, step := range report.Applied {
		if dryRun {
			formatter.Printf("Would apply %s -> %s", step.Base, step.Target)
		} else {
			formatter.Printf("Applied %s -> %s", step.Base, step.Target)
		}
		if step.Note != "" {
			formatter.Printf("  %s", step.Note)
		}
		formatter.Printf("\n")
	}

	if dryRun {
		formatter.Printf("Data model would be at version %s.\n", report.To)
	} else {
		formatter.Printf("Data model is now at version %s.\n", report.To)
	}

	if len(report.Notices) > 0 {
		formatter.Printf("\nNotices:\n")
		for _, notice := range report.Notices {
			formatter.Printf("  %s\n", notice)
		}
	}
	return nil
}
