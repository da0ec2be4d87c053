package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/VoxDroid/tagship/internal/buildtool"
	"github.com/VoxDroid/tagship/internal/config"
	"github.com/VoxDroid/tagship/internal/db"
	"github.com/VoxDroid/tagship/internal/executor"
	"github.com/VoxDroid/tagship/internal/history"
	"github.com/VoxDroid/tagship/internal/log"
	"github.com/VoxDroid/tagship/internal/mask"
	"github.com/VoxDroid/tagship/internal/mint"
	"github.com/VoxDroid/tagship/internal/oidc"
	"github.com/VoxDroid/tagship/internal/release"
	"github.com/VoxDroid/tagship/internal/trigger"
	"github.com/VoxDroid/tagship/internal/user"
	"github.com/VoxDroid/tagship/internal/utils"
	"github.com/VoxDroid/tagship/internal/vcs"
	"github.com/VoxDroid/tagship/internal/version"
)

// getenv is swapped in tests.
var getenv = os.Getenv

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the release procedure",
	Long: "Run the release procedure for the current CI event, or for the event given with --event/--ref.\n" +
		"Exits non-zero only when a step fails; ineligible events and pre-release versions end successfully.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		dir, _ := cmd.Flags().GetString("dir")
		verbose, _ := cmd.Flags().GetBool("verbose")
		dry, _ := cmd.Flags().GetBool("dry-run")
		confirmFlag, _ := cmd.Flags().GetBool("confirm")
		noLedger, _ := cmd.Flags().GetBool("no-ledger")

		cfg, err := config.Load(dir, getenv)
		if err != nil {
			return err
		}
		ev, err := eventFromFlags(cmd)
		if err != nil {
			return err
		}

		// workflow commands must reach the runner unredacted
		var commands io.Writer
		if getenv("GITHUB_ACTIONS") == "true" {
			commands = cmd.OutOrStdout()
		}
		masker, err := mask.New(commands)
		if err != nil {
			return err
		}
		out := masker.Writer(cmd.OutOrStdout())
		errw := masker.Writer(cmd.ErrOrStderr())
		defer func() { err = multierr.Combine(err, out.Flush(), errw.Flush()) }()

		logger := log.New(errw, verbose)
		log.SetLogger(logger)

		pushToken := getenv(cfg.Repository.TokenEnv)
		masker.Mask(pushToken)

		opts, err := releaseOptions(cfg, dry)
		if err != nil {
			return err
		}
		if confirmFlag {
			in := cmd.InOrStdin()
			opts.Confirm = func(p string) bool { return utils.Confirm(in, out, p) }
		}

		httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
		minter := &mint.Minter{
			Endpoint:   cfg.MintEndpoint(),
			Audience:   cfg.Index.Audience,
			IndexURL:   cfg.Index.URL,
			Identity:   identitySource(cfg, httpClient),
			HTTPClient: httpClient,
			Masker:     masker,
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		o := &release.Orchestrator{
			Options: opts,
			Open: func() (release.Repo, error) {
				return vcs.Open(cfg.Repository.Dir, vcs.WithToken(pushToken))
			},
			Builder:     buildtool.New(cfg.Build, cfg.Index.Repository, cfg.Repository.Dir, executor.New(false, verbose), out, errw),
			Credentials: minter.TokenSource(ctx),
			Log:         logger,
			Redact:      masker.Redact,
			ToolVersion: version.Version,
		}
		if cfg.Ledger.Enabled && !noLedger {
			dbConn, lerr := openLedger(cfg)
			if lerr != nil {
				logger.Warnf("run ledger unavailable: %v", lerr)
			} else {
				defer func() { err = multierr.Append(err, dbConn.Close()) }()
				o.Ledger = history.NewRepository(dbConn)
			}
		}

		res, runErr := o.Run(ctx, ev)
		printResult(out, &res)
		if runErr != nil {
			return errReported
		}
		return nil
	},
}

func openLedger(cfg config.Config) (*sql.DB, error) {
	path, err := cfg.LedgerFile()
	if err != nil {
		return nil, err
	}
	return db.InitDB(path)
}

func eventFromFlags(cmd *cobra.Command) (trigger.Event, error) {
	kind, _ := cmd.Flags().GetString("event")
	ref, _ := cmd.Flags().GetString("ref")
	if kind == "" {
		return trigger.FromEnv(getenv)
	}
	ev, err := trigger.Parse(kind, ref)
	if err != nil {
		return trigger.Event{}, err
	}
	ev.Before, _ = cmd.Flags().GetString("before")
	ev.After, _ = cmd.Flags().GetString("after")
	return ev, nil
}

func releaseOptions(cfg config.Config, dry bool) (release.Options, error) {
	paths := cfg.Repository.Paths
	if len(paths) == 0 {
		paths = []string{filepath.ToSlash(cfg.Repository.Manifest)}
	}
	filter, err := trigger.NewFilter(cfg.Repository.MainBranch, cfg.Repository.TagPattern, paths)
	if err != nil {
		return release.Options{}, err
	}
	manifestPath := cfg.Repository.Manifest
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(cfg.Repository.Dir, manifestPath)
	}
	opts := release.Options{
		Remote:        cfg.Repository.Remote,
		MainBranch:    cfg.Repository.MainBranch,
		ManifestPath:  manifestPath,
		VersionSource: cfg.Build.VersionSource,
		Filter:        filter,
		TagMessage:    cfg.Tag.Message,
		Monotonic:     cfg.Guard.Monotonic,
		DryRun:        dry,
	}
	if cfg.Tag.Annotate {
		p, err := user.ResolveTagger(cfg.Tag)
		if err != nil {
			return release.Options{}, err
		}
		opts.Tagger = &vcs.TagOptions{TaggerName: p.Name, TaggerEmail: p.Email}
	}
	return opts, nil
}

// unavailable reports why no identity source could be built. The error
// surfaces at the mint step so that earlier steps still run.
type unavailable struct{ err error }

func (u unavailable) Token(context.Context, string) (string, error) { return "", u.err }

func identitySource(cfg config.Config, c *http.Client) oidc.IdentitySource {
	if cfg.Identity.Provider == config.ProviderSPIFFE {
		return &oidc.SPIFFESource{Addr: cfg.Identity.SPIFFESocket}
	}
	src, err := oidc.NewActionsSourceFromEnv(getenv, c)
	if err != nil {
		return unavailable{err}
	}
	return src
}

func printResult(w io.Writer, res *release.Result) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "run:     %s\n", res.RunID)
	fmt.Fprintf(w, "event:   %s\n", res.Event)
	if res.Version != "" {
		fmt.Fprintf(w, "version: %s\n", res.Version)
	}
	if res.Tag != "" {
		created := ""
		if res.TagCreated {
			created = " (created)"
		}
		fmt.Fprintf(w, "tag:     %s%s\n", res.Tag, created)
	}
	if len(res.Artifacts) > 0 {
		fmt.Fprintf(w, "built:   %s\n", strings.Join(res.Artifacts, ", "))
	}
	for _, s := range res.Steps {
		line := fmt.Sprintf("  %-13s %-8s %s", s.Name, s.Status, s.Duration.Round(time.Millisecond))
		if s.Reason != "" {
			line += "  " + s.Reason
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	switch res.Outcome {
	case release.OutcomeFailed:
		fmt.Fprintf(w, "outcome: failed at %s: %s\n", res.FailedStep, res.Reason)
	case release.OutcomeSkipped:
		fmt.Fprintf(w, "outcome: skipped (%s)\n", res.Reason)
	default:
		fmt.Fprintf(w, "outcome: %s\n", res.Outcome)
	}
}

func init() {
	runCmd.Flags().String("event", "", "Event kind (push, tag, manual); read from the CI environment when empty")
	runCmd.Flags().String("ref", "", "Git ref of the event, e.g. refs/heads/main or refs/tags/1.2.3")
	runCmd.Flags().String("before", "", "Commit before the push (enables changed-path filtering)")
	runCmd.Flags().String("after", "", "Commit after the push")
	runCmd.Flags().Bool("dry-run", false, "Plan the release without tagging, building or publishing")
	runCmd.Flags().Bool("confirm", false, "Ask for confirmation before pushing a tag and before publishing")
	runCmd.Flags().Bool("no-ledger", false, "Do not record the run in the local ledger")
	rootCmd.AddCommand(runCmd)
}
