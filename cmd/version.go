package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VoxDroid/tagship/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tagship %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
