package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/VoxDroid/tagship/internal/config"
	"github.com/VoxDroid/tagship/internal/manifest"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest [path]",
	Short: "Print the version declared in the project manifest",
	Long: "Print the version declared in the project manifest (pyproject.toml by default).\n" +
		"With --strict, exit non-zero unless the version is a release version (N.N.N).",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			dir, _ := cmd.Flags().GetString("dir")
			cfg, err := config.Load(dir, getenv)
			if err != nil {
				return err
			}
			path = cfg.Repository.Manifest
			if !filepath.IsAbs(path) {
				path = filepath.Join(cfg.Repository.Dir, path)
			}
		}
		m, err := manifest.Read(path)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), m.Version)
		if strict && !manifest.ValidRelease(m.Version) {
			return fmt.Errorf("version %q is not a release version (N.N.N)", m.Version)
		}
		return nil
	},
}

func init() {
	manifestCmd.Flags().Bool("strict", false, "Fail unless the version is N.N.N")
	rootCmd.AddCommand(manifestCmd)
}
