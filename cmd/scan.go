package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/VoxDroid/tagship/internal/mask"
)

var scanCmd = &cobra.Command{
	Use:   "scan <log-file|->",
	Short: "Check a captured log for leaked credentials",
	Long:  "Scan a captured log for PyPI tokens and JWTs. Exits non-zero when anything is found.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader
		if args[0] == "-" {
			r = cmd.InOrStdin()
		} else {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		m, err := mask.New(nil)
		if err != nil {
			return err
		}
		findings, err := m.Scan(cmd.Context(), r)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(findings) == 0 {
			fmt.Fprintln(out, "no credentials found")
			return nil
		}
		for _, f := range findings {
			fmt.Fprintf(out, "%s\t%s\n", f.Kind, preview(f.Value))
		}
		return fmt.Errorf("%d credential(s) found in %s", len(findings), args[0])
	},
}

// preview shows enough of a secret to find it without repeating it.
func preview(s string) string {
	if len(s) <= 8 {
		return mask.Placeholder
	}
	return s[:6] + mask.Placeholder
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
