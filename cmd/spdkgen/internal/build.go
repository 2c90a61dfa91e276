package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run every stage and print the link directives",
	Long: `Build fetches the source tree if needed, configures and builds it, merges the
static archives into the shared library and generates the bindings. The
directives the host build must apply are printed on success.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	p, err := newPipeline()
	if err != nil {
		return err
	}
	art, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}
	if err := art.Link.WriteText(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("failed to write link directives: %w", err)
	}
	return nil
}
