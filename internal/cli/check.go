package mockbench

import (
	"github.com/spf13/cobra"
)

// checkCmd validates the environment without running anything.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the client binary, server script and speed target exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkEnvironment(*GetConfig(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
