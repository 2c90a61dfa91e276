package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusExit bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the artifacts must be regenerated",
	Long: `Status compares the output directory with the manifest of the last successful
build: the artifacts must exist, the architecture must match and the public
headers must be unchanged.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusExit, "exit-code", false, "Fail when the artifacts are stale")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := newPipeline()
	if err != nil {
		return err
	}
	stale, reason, err := p.Stale()
	if err != nil {
		return err
	}
	state := "fresh"
	if stale {
		state = "stale"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", state, reason)
	if stale && statusExit {
		return fmt.Errorf("%s is stale", p.Env().OutDir())
	}
	return nil
}
