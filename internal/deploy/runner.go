// Package deploy runs a full synchronization: load the master node, bridge
// every extra node into it, verify, diff against the live master, notify, and
// upload.
package deploy

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/mattjoyce/nodesync/internal/bridge"
	"github.com/mattjoyce/nodesync/internal/config"
	"github.com/mattjoyce/nodesync/internal/diff"
	"github.com/mattjoyce/nodesync/internal/entity"
	"github.com/mattjoyce/nodesync/internal/node"
	"github.com/mattjoyce/nodesync/internal/storage"
	"github.com/mattjoyce/nodesync/internal/templates"
)

// ErrNoMasterAPI is returned when a step needs the master node but none is configured.
var ErrNoMasterAPI = errors.New("master node is not configured")

// Deps are the runner's collaborators. Any of them may be nil when the
// configuration never needs it.
type Deps struct {
	API      NodeAPI
	Secrets  SecretResolver
	Repos    RepoOpener
	Notifier Notifier
	History  History
	Logger   *slog.Logger
	// NewID returns the run id; uuid.NewString when nil.
	NewID func() string
}

// Runner executes deploy runs for one configuration.
type Runner struct {
	cfg  *config.Config
	deps Deps
	log  *slog.Logger
}

// Extra is one synthesized extra node.
type Extra struct {
	Name    string
	Node    *node.Node
	Summary *bridge.Summary
	// Pushed reports that the repository had changes (in a dry run: would have).
	Pushed bool
}

// Outcome describes a finished run.
type Outcome struct {
	RunID       string
	Master      *node.Node
	Extras      []*Extra
	Fingerprint string
	// Diff is nil when the environment has no diff.
	Diff     *diff.Result
	Deployed bool
}

// New creates a runner.
func New(cfg *config.Config, deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Runner{cfg: cfg, deps: deps, log: deps.Logger}
}

// Run performs a complete run and records it in the history store.
func (r *Runner) Run(ctx context.Context) (*Outcome, error) {
	out := &Outcome{RunID: r.deps.NewID()}
	logger := r.log.With(slog.String("run_id", out.RunID))
	run := storage.Run{
		ID:          out.RunID,
		Environment: r.cfg.Environment,
		StartedAt:   time.Now(),
		DryRun:      r.cfg.DryRun,
	}
	if r.deps.History != nil {
		if err := r.deps.History.Start(ctx, run); err != nil {
			logger.Warn("Could not record run start", "error", err)
		}
	}

	logger.Info("Starting run",
		"environment", r.cfg.Environment,
		"verify_variables", r.cfg.VerifyVariables,
		"verify_secrets", r.cfg.VerifySecrets,
		"dry_run", r.cfg.DryRun,
	)
	err := r.withLogger(logger).run(ctx, out)

	run.Status = storage.StatusSucceeded
	if err != nil {
		run.Status = storage.StatusFailed
		run.Error = err.Error()
	}
	run.Fingerprint = out.Fingerprint
	if out.Diff != nil {
		run.Added, run.Removed, run.Changed = len(out.Diff.Added), len(out.Diff.Removed), len(out.Diff.Changed)
	}
	if r.deps.History != nil {
		// The run's own context may already be cancelled.
		if herr := r.deps.History.Finish(context.WithoutCancel(ctx), run); herr != nil {
			logger.Warn("Could not record run outcome", "error", herr)
		}
	}
	if err != nil {
		logger.Error("Run failed", "error", err)
		return out, err
	}
	logger.Info("Run finished", "deployed", out.Deployed, "fingerprint", out.Fingerprint)
	return out, nil
}

func (r *Runner) withLogger(l *slog.Logger) *Runner {
	c := *r
	c.log = l
	return &c
}

func (r *Runner) run(ctx context.Context, out *Outcome) error {
	master, err := r.LoadMaster()
	if err != nil {
		return err
	}
	out.Master = master

	for _, name := range r.extraNames() {
		x, err := r.syncExtra(ctx, master, name)
		if err != nil {
			return errors.Wrapf(err, "extra node %s", name)
		}
		out.Extras = append(out.Extras, x)
	}

	if err := r.Verify(ctx, master, true); err != nil {
		return err
	}
	if out.Fingerprint, err = master.Fingerprint(); err != nil {
		return errors.Wrap(err, "fingerprint master configuration")
	}

	if r.cfg.DiffEnabled() {
		if out.Diff, err = r.Diff(ctx, master); err != nil {
			return err
		}
		if r.cfg.NotifyEnabled() && r.deps.Notifier != nil {
			r.deps.Notifier.Release(ctx, r.cfg.Environment, r.cfg.Slack.ReleaseURL, out.Diff.Report())
		}
	}

	if r.cfg.DryRun {
		r.log.Info("Successfully completed dry run")
		return nil
	}
	if err := r.Deploy(ctx, master); err != nil {
		return err
	}
	out.Deployed = true
	return nil
}

func (r *Runner) extraNames() []string {
	if !r.cfg.ExtraNodesEnabled() {
		return nil
	}
	names := make([]string, 0, len(r.cfg.ExtraNodes))
	for name := range r.cfg.ExtraNodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadMaster loads the master node and its upload variables.
func (r *Runner) LoadMaster() (*node.Node, error) {
	master := node.New(node.Options{
		Name:      r.cfg.Master.Name,
		Root:      r.cfg.NodeFolder,
		Whitelist: r.cfg.Whitelist,
		Logger:    r.log.With(slog.String("node", displayName(r.cfg.Master.Name))),
	})
	if err := master.Load(); err != nil {
		return nil, err
	}
	if f := r.cfg.UploadVariablesFrom; f != "" {
		if err := master.LoadUploadVariables(filepath.Join(r.cfg.NodeFolder, f)); err != nil {
			return nil, err
		}
	}
	return master, nil
}

func displayName(name string) string {
	if name == "" {
		return "anonymous"
	}
	return name
}

// Synthesize loads every extra node and bridges it into master, without
// verification or git. Extra nodes are processed in name order.
func (r *Runner) Synthesize(master *node.Node) ([]*Extra, error) {
	var out []*Extra
	for _, name := range r.extraNames() {
		x, err := r.prepareExtra(master, name)
		if err != nil {
			return nil, errors.Wrapf(err, "extra node %s", name)
		}
		out = append(out, x)
	}
	return out, nil
}

func (r *Runner) prepareExtra(master *node.Node, name string) (*Extra, error) {
	xc := r.cfg.ExtraNodes[name]
	logger := r.log.With(slog.String("node", name))
	if xc.Proxy {
		logger.Debug("Extra node is a proxy node")
	}

	extra := node.New(node.Options{
		Name:      name,
		Root:      r.cfg.NodeFolder,
		Whitelist: r.cfg.Whitelist,
		Proxy:     xc.Proxy,
		Logger:    logger,
	})
	if err := extra.Load(); err != nil {
		return nil, err
	}
	store, err := templates.Load(r.cfg.TemplateDir(xc), logger)
	if err != nil {
		return nil, err
	}
	summary, err := bridge.New(master, extra, store, logger).Run()
	if err != nil {
		return nil, err
	}
	if err := bridge.VariablesFromMaster(master, extra); err != nil {
		return nil, err
	}
	return &Extra{Name: name, Node: extra, Summary: summary}, nil
}

func (r *Runner) syncExtra(ctx context.Context, master *node.Node, name string) (*Extra, error) {
	x, err := r.prepareExtra(master, name)
	if err != nil {
		return nil, err
	}
	// VariablesFromMaster already scanned the extra node.
	if err := r.Verify(ctx, x.Node, false); err != nil {
		return nil, err
	}
	if r.deps.Repos == nil {
		return nil, errors.New("no repository opener configured")
	}
	repo, err := r.deps.Repos.Open(ctx, name, r.cfg.ExtraNodes[name])
	if err != nil {
		return nil, err
	}
	if err := repo.WriteNode(x.Node, r.cfg.Environment); err != nil {
		return nil, err
	}
	if x.Pushed, err = repo.PushIfChanged(ctx, r.cfg.DryRun); err != nil {
		return nil, err
	}
	return x, nil
}

// Verify checks a node's secrets and then its variables, as enabled by the
// configuration. scan rescans the configuration for references first.
func (r *Runner) Verify(ctx context.Context, n *node.Node, scan bool) error {
	if scan {
		if err := n.FindVariablesAndSecrets(); err != nil {
			return err
		}
	}
	if r.cfg.VerifySecrets {
		if r.deps.Secrets == nil {
			return errors.New("secret verification is enabled but no secret store is configured")
		}
		if err := n.VerifySecrets(ctx, r.deps.Secrets); err != nil {
			return err
		}
	}
	if r.cfg.VerifyVariables {
		files := make([]string, len(r.cfg.VerifyVariablesFrom))
		for i, f := range r.cfg.VerifyVariablesFrom {
			files[i] = filepath.Join(r.cfg.NodeFolder, f)
		}
		if err := n.VerifyVariables(files); err != nil {
			return err
		}
	}
	return nil
}

// Diff compares master against the live master node. Variables are compared
// only when no config group is set.
func (r *Runner) Diff(ctx context.Context, master *node.Node) (*diff.Result, error) {
	if r.deps.API == nil {
		return nil, ErrNoMasterAPI
	}
	group := r.cfg.Master.ConfigGroup
	remote, err := r.deps.API.GetConfig(ctx, group)
	if err != nil {
		return nil, err
	}
	res, err := diff.Compute(ctx, master.Conf, remote, r.deps.API)
	if err != nil {
		return nil, err
	}
	if group == "" {
		remoteVars, err := r.deps.API.GetVariables(ctx)
		if err != nil {
			return nil, err
		}
		if err := res.CompareVariables(remoteVars, master.UploadVars); err != nil {
			return nil, err
		}
	}
	r.log.Info("Computed configuration diff",
		"added", res.Added,
		"removed", res.Removed,
		"changed", len(res.Changed),
	)
	return res, nil
}

// Deploy uploads secrets, variables, and finally the configuration. With a
// config group the metadata entity is left out.
func (r *Runner) Deploy(ctx context.Context, master *node.Node) error {
	if r.deps.API == nil {
		return ErrNoMasterAPI
	}
	group := r.cfg.Master.ConfigGroup
	conf := master.Conf
	if group != "" {
		conf = withoutMetadata(conf)
		if len(conf) != len(master.Conf) {
			r.log.Warn("Removing node metadata from upload config because a config group is set", "group", group)
		}
	}

	if r.cfg.Master.UploadSecrets {
		if err := r.deps.API.PutSecrets(ctx, master.UploadSecrets); err != nil {
			return err
		}
	}
	if r.cfg.Master.UploadVariables {
		if err := r.deps.API.PutVariables(ctx, master.UploadVars); err != nil {
			return err
		}
	}
	if err := r.deps.API.PutConfig(ctx, conf, group); err != nil {
		return err
	}
	r.log.Info("Successfully deployed", "entities", len(conf), "group", group)
	return nil
}

func withoutMetadata(conf []entity.Entity) []entity.Entity {
	out := make([]entity.Entity, 0, len(conf))
	for _, e := range conf {
		if e.Type() == "metadata" {
			continue
		}
		out = append(out, e)
	}
	return out
}
