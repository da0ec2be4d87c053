package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/VoxDroid/tagship/internal/config"
	"github.com/VoxDroid/tagship/internal/db"
	"github.com/VoxDroid/tagship/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded release runs",
	Long:  "Show recorded release runs, newest first, or the details of a single run.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		dir, _ := cmd.Flags().GetString("dir")
		limit, _ := cmd.Flags().GetInt("limit")
		cfg, err := config.Load(dir, getenv)
		if err != nil {
			return err
		}
		path, err := cfg.LedgerFile()
		if err != nil {
			return err
		}
		dbConn, err := db.InitDB(path)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, dbConn.Close()) }()

		r := history.NewRepository(dbConn)
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			run, err := r.Get(args[0])
			if err != nil {
				return err
			}
			printRun(cmd, run)
			return nil
		}
		runs, err := r.List(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "no recorded runs")
			return nil
		}
		for _, run := range runs {
			fmt.Fprintf(out, "%s\t%s\t%s %s\t%s\t%s\n", run.ID, run.StartedAt.Local().Format(time.DateTime),
				run.EventKind, run.EventRef, orDash(run.Version), describeOutcome(run))
		}
		return nil
	},
}

func printRun(cmd *cobra.Command, run history.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run:       %s\n", run.ID)
	fmt.Fprintf(out, "started:   %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "duration:  %s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(out, "event:     %s %s\n", run.EventKind, run.EventRef)
	fmt.Fprintf(out, "version:   %s\n", orDash(run.Version))
	tag := orDash(run.Tag)
	if run.TagCreated {
		tag += " (created)"
	}
	fmt.Fprintf(out, "tag:       %s\n", tag)
	fmt.Fprintf(out, "commit:    %s\n", orDash(run.Commit))
	if len(run.Artifacts) > 0 {
		fmt.Fprintf(out, "artifacts: %s\n", strings.Join(run.Artifacts, ", "))
	}
	fmt.Fprintf(out, "outcome:   %s\n", describeOutcome(run))
	if run.ToolVersion != "" {
		fmt.Fprintf(out, "tagship:   %s\n", run.ToolVersion)
	}
}

func describeOutcome(run history.Run) string {
	s := run.Outcome
	if run.DryRun {
		s += " (dry run)"
	}
	switch {
	case run.FailedStep != "":
		s += fmt.Sprintf(" at %s: %s", run.FailedStep, run.Reason)
	case run.Reason != "":
		s += ": " + run.Reason
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of runs to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
