package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/nodesync/internal/config"
	"github.com/mattjoyce/nodesync/internal/deploy"
	"github.com/mattjoyce/nodesync/internal/doctor"
	"github.com/mattjoyce/nodesync/internal/gitsync"
	"github.com/mattjoyce/nodesync/internal/lock"
	"github.com/mattjoyce/nodesync/internal/log"
	"github.com/mattjoyce/nodesync/internal/node"
	"github.com/mattjoyce/nodesync/internal/nodeapi"
	"github.com/mattjoyce/nodesync/internal/notify"
	"github.com/mattjoyce/nodesync/internal/storage"
	"github.com/mattjoyce/nodesync/internal/transport"
	"github.com/mattjoyce/nodesync/internal/vault"
)

// app carries the global flags and output streams shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer
	lookup config.LookupFunc

	configPath string
	envConfig  bool
	logLevel   string
	logFormat  string
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nodesync",
		Short:         "Synthesize, verify, diff and deploy node configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Path to nodesync.yaml (default: discovered)")
	pf.BoolVar(&a.envConfig, "env-config", false, "Read the configuration from the legacy environment variables")
	pf.StringVar(&a.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	pf.StringVar(&a.logFormat, "log-format", "", "Override log format (json, text)")

	root.AddCommand(
		a.runCmd(),
		a.synthCmd(),
		a.diffCmd(),
		a.verifyCmd(),
		a.doctorCmd(),
		a.historyCmd(),
		a.configCmd(),
		a.versionCmd(),
	)
	return root
}

// load reads the configuration and builds the logger for one command.
func (a *app) load() (*config.Config, *slog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.envConfig {
		cfg, err = config.FromEnv(a.lookup)
	} else {
		path := a.configPath
		if path == "" {
			if path, err = config.Discover(); err != nil {
				return nil, nil, err
			}
		}
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, nil, err
	}

	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	logger := log.New(a.stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func policy(cfg *config.Config) transport.Policy {
	return transport.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Wait:        cfg.Retry.Wait,
		Timeout:     cfg.Retry.Timeout,
	}
}

// deps wires the collaborators the configuration asks for. Interfaces are
// only set when a concrete value exists.
func deps(cfg *config.Config, logger *slog.Logger, history *storage.History) (deploy.Deps, error) {
	d := deploy.Deps{
		Repos:  deploy.GitOpener{WorkDir: cfg.WorkDir, Logger: logger},
		Logger: logger,
	}
	if cfg.Master.URL != "" {
		d.API = nodeapi.New(cfg.Master.URL, cfg.Master.JWT, policy(cfg),
			logger.With(slog.String("component", "nodeapi")))
	}
	if cfg.VerifySecrets {
		secrets, err := vault.New(vault.Options{
			URL:        cfg.Vault.URL,
			GitToken:   cfg.Vault.GitToken,
			MountPoint: cfg.Vault.MountPoint,
			PathPrefix: cfg.Vault.PathPrefix,
			Policy:     policy(cfg),
			Logger:     logger,
		})
		if err != nil {
			return deploy.Deps{}, errors.Mark(err, config.ErrInvalid)
		}
		d.Secrets = secrets
	}
	if cfg.NotifyEnabled() {
		d.Notifier = notify.NewSlack(cfg.Slack.APIURL, cfg.Slack.Token, cfg.Slack.Channel, policy(cfg),
			logger.With(slog.String("component", "slack")))
	}
	if history != nil {
		d.History = history
	}
	return d, nil
}

func (a *app) runCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full deploy: synthesize, push extra nodes, verify, diff and upload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			if dryRun {
				cfg.DryRun = true
			}

			pid, err := lock.AcquirePIDLock(cfg.LockPath())
			if err != nil {
				return err
			}
			defer func() { _ = pid.Release() }()

			history, err := storage.Open(cmd.Context(), cfg.State.Path)
			if err != nil {
				return err
			}
			defer func() { _ = history.Close() }()

			d, err := deps(cfg, logger, history)
			if err != nil {
				return err
			}
			out, err := deploy.New(cfg, d).Run(cmd.Context())
			if out != nil {
				a.printOutcome(out)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Diff and push nothing (overrides the configuration)")
	return cmd
}

func (a *app) printOutcome(out *deploy.Outcome) {
	fmt.Fprintf(a.stdout, "run %s\n", out.RunID)
	for _, x := range out.Extras {
		state := "unchanged"
		if x.Pushed {
			state = "pushed"
		}
		fmt.Fprintf(a.stdout, "  extra node %s: %s\n", x.Name, state)
	}
	if out.Diff != nil {
		fmt.Fprint(a.stdout, renderDiff(out.Diff))
	}
	if out.Fingerprint != "" {
		fmt.Fprintf(a.stdout, "fingerprint %s\n", out.Fingerprint)
	}
	if out.Deployed {
		fmt.Fprintln(a.stdout, "deployed")
	}
}

// prepare loads the master node and bridges every extra node into it.
func prepare(r *deploy.Runner) (*node.Node, []*deploy.Extra, error) {
	master, err := r.LoadMaster()
	if err != nil {
		return nil, nil, err
	}
	extras, err := r.Synthesize(master)
	if err != nil {
		return nil, nil, err
	}
	return master, extras, nil
}

func (a *app) synthCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize every node and write it in the repository layout, offline",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			master, extras, err := prepare(deploy.New(cfg, deploy.Deps{Logger: logger}))
			if err != nil {
				return err
			}

			dir := filepath.Join(outDir, node.Master)
			if err := gitsync.WriteLayout(dir, master.Conf, master.UploadVars, cfg.Environment, logger); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s: %d entities -> %s\n", master.DisplayName(), len(master.Conf), dir)
			for _, x := range extras {
				dir := filepath.Join(outDir, x.Name)
				if err := gitsync.WriteLayout(dir, x.Node.Conf, x.Node.UploadVars, cfg.Environment, logger); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s: %d entities -> %s\n", x.Name, len(x.Node.Conf), dir)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "synth", "Output directory")
	return cmd
}

func (a *app) diffCmd() *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare the synthesized master configuration with the running master node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			d, err := deps(cfg, logger, nil)
			if err != nil {
				return err
			}
			r := deploy.New(cfg, d)
			master, _, err := prepare(r)
			if err != nil {
				return err
			}
			res, err := r.Diff(cmd.Context(), master)
			if err != nil {
				return err
			}
			if plain {
				fmt.Fprint(a.stdout, res.Report())
			} else {
				fmt.Fprint(a.stdout, renderDiff(res))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Print the uncoloured report sent to Slack")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the configuration offline, then verify variables and secrets of every node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			if err := a.report(doctor.New(cfg).Validate(), false); err != nil {
				return err
			}

			d, err := deps(cfg, logger, nil)
			if err != nil {
				return err
			}
			r := deploy.New(cfg, d)
			master, extras, err := prepare(r)
			if err != nil {
				return err
			}
			for _, x := range extras {
				if err := r.Verify(cmd.Context(), x.Node, false); err != nil {
					return errors.Wrapf(err, "extra node %s", x.Name)
				}
				fmt.Fprintf(a.stdout, "%s: ok\n", x.Name)
			}
			if err := r.Verify(cmd.Context(), master, true); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s: ok\n", master.DisplayName())
			return nil
		},
	}
}

func (a *app) doctorCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration against the node folder without touching the network",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, _, err := a.load()
			if err != nil {
				return err
			}
			return a.report(doctor.New(cfg).Validate(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// report prints a doctor result and fails when it holds errors.
func (a *app) report(r *doctor.Result, asJSON bool) error {
	if asJSON {
		out, err := doctor.FormatJSON(r)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, out)
	} else {
		fmt.Fprint(a.stdout, doctor.FormatHuman(r))
	}
	if !r.Valid {
		return errors.Mark(errors.Newf("configuration check found %d error(s)", len(r.Errors)), config.ErrInvalid)
	}
	return nil
}

func (a *app) historyCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := a.load()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.State.Path); err != nil {
				fmt.Fprintln(a.stdout, "no runs recorded")
				return nil
			}
			history, err := storage.Open(cmd.Context(), cfg.State.Path)
			if err != nil {
				return err
			}
			defer func() { _ = history.Close() }()

			runs, err := history.Latest(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			fmt.Fprintln(a.stdout, renderRuns(runs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Print a configuration value by dotted path, credentials masked",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, _, err := a.load()
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			v, err := cfg.Redacted().GetPath(path)
			if err != nil {
				return errors.Mark(err, config.ErrInvalid)
			}
			return printValue(a.stdout, v)
		},
	})
	return cmd
}

func printValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode value")
		}
		return enc.Close()
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}

func (a *app) versionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return printVersion(a.stdout, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
