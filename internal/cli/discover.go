package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/docpatch/internal/patcher"
)

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Validate the patch directory and list the chain",
		Long: `Load every patch from the patch directory and validate that the set
forms a single unbroken chain from the initial version. Lists the chain
in application order. Read-only; use it to sanity-check a patch set
before upgrading.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(rootOpts, cmd)
		},
	}

	return cmd
}

type discoverResult struct {
	Patches []patcher.Step `json:"patches"`
	Tip     string         `json:"tip"`
}

func runDiscover(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	p, closeStore, err := openPatcher(opts)
	if err != nil {
		return fail(formatter, err)
	}
	defer closeStore()

	formatter.VerboseLog("Loading patches from %s", opts.PatchesDir)

	chain, err := p.Discover(cmd.Context())
	if err != nil {
		return fail(formatter, err)
	}

	result := discoverResult{Patches: []patcher.Step{}, Tip: chain.Tip().String()}
	for _, pt := range chain.Patches() {
		result.Patches = append(result.Patches, patcher.Step{Base: pt.Base, Target: pt.Target, Note: pt.Note})
	}

	if wrote, err := formatter.JSON(result); wrote || err != nil {
		return err
	}

	if chain.Len() == 0 {
		formatter.Printf("No patches found.\n")
		return nil
	}

	formatter.Printf("Patch chain (%d patches, tip %s):\n", chain.Len(), chain.Tip())
	for _, pt := range chain.Patches() {
		formatter.Printf("  %s -> %s", pt.Base, pt.Target)
		if opts.Verbose && pt.Note != "" {
			formatter.Printf("  %s", pt.Note)
		}
		formatter.Printf("\n")
	}
	return nil
}
