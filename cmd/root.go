// Package cmd implements the tagship command line.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// errReported is returned when the failure was already reported.
var errReported = errors.New("release failed")

var rootCmd = &cobra.Command{
	Use:   "tagship",
	Short: "tagship tags, builds and publishes Python releases",
	Long: "tagship cuts a release from the version declared in the project manifest: it tags the version once,\n" +
		"builds the tagged commit and publishes it with a short-lived credential minted from the CI identity.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "tagship: run 'tagship --help' to see available commands")
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output (debug logging and dry-run command echo)")
	rootCmd.PersistentFlags().StringP("dir", "C", ".", "Repository directory")
}
