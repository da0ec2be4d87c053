package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VoxDroid/tagship/internal/user"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Manage stored tagger identity",
	Long:  "Manage a persisted tagger identity used for annotated release tags when the configuration names none.",
}

var whoamiSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set stored tagger identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		if name == "" {
			return fmt.Errorf("--name is required")
		}
		p, err := user.SetProfile(user.Profile{Name: name, Email: email})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored tagger as: %s\n", formatProfile(p))
		return nil
	},
}

var whoamiClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear stored tagger identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := user.ClearProfile(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cleared stored tagger identity")
		return nil
	},
}

var whoamiShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored tagger identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, ok, err := user.GetProfile()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !ok {
			fmt.Fprintln(out, "no stored tagger identity")
			return nil
		}
		fmt.Fprintln(out, formatProfile(p))
		return nil
	},
}

func formatProfile(p user.Profile) string {
	if p.Email == "" {
		return p.Name
	}
	return fmt.Sprintf("%s <%s>", p.Name, p.Email)
}

func init() {
	whoamiSetCmd.Flags().StringP("name", "n", "", "Tagger name (required)")
	whoamiSetCmd.Flags().StringP("email", "e", "", "Tagger email (optional)")
	whoamiCmd.AddCommand(whoamiSetCmd)
	whoamiCmd.AddCommand(whoamiClearCmd)
	whoamiCmd.AddCommand(whoamiShowCmd)
	rootCmd.AddCommand(whoamiCmd)
}
