package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var bindgenCmd = &cobra.Command{
	Use:   "bindgen",
	Short: "Generate bindings from the installed headers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		path, err := p.Bindgen(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bindgenCmd)
}
