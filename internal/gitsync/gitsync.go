// Package gitsync keeps an extra node's git repository in step with the
// configuration synthesized for it.
package gitsync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/mattjoyce/nodesync/internal/node"
)

// ReposDir is the directory under the work dir that holds the checkouts.
const ReposDir = "GIT_REPOS"

// CommitMessage is used for every synchronization commit.
const CommitMessage = "Update based on master node config"

// Options describes one extra node repository.
type Options struct {
	// URL is "host/path" for HTTPS; URLs with a scheme and local paths are used as-is.
	URL      string
	Username string
	Token    string
	Branch   string
	// Dir is the checkout directory. Any previous checkout there is deleted.
	Dir    string
	Logger *slog.Logger
}

// Repo is a fresh checkout of an extra node repository.
type Repo struct {
	dir    string
	repo   *git.Repository
	auth   transport.AuthMethod
	logger *slog.Logger
}

// CheckoutDir returns <workDir>/GIT_REPOS/<nodeName>.
func CheckoutDir(workDir, nodeName string) string {
	return filepath.Join(workDir, ReposDir, nodeName)
}

// RemoteURL returns the clone URL, defaulting to https.
func RemoteURL(u string) string {
	if strings.Contains(u, "://") || filepath.IsAbs(u) {
		return u
	}
	return "https://" + u
}

// Clone deletes opts.Dir and clones the branch into it.
func Clone(ctx context.Context, opts Options) (*Repo, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "gitsync"))

	logger.Debug("Deleting previous checkout", "dir", opts.Dir)
	if err := os.RemoveAll(opts.Dir); err != nil {
		return nil, errors.Wrapf(err, "remove %s", opts.Dir)
	}

	remote := RemoteURL(opts.URL)
	var auth transport.AuthMethod
	if strings.HasPrefix(remote, "http://") || strings.HasPrefix(remote, "https://") {
		auth = &githttp.BasicAuth{Username: opts.Username, Password: opts.Token}
	}

	repo, err := git.PlainCloneContext(ctx, opts.Dir, false, &git.CloneOptions{
		URL:           remote,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(opts.Branch),
		SingleBranch:  true,
	})
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "clone %s (branch %s)", opts.URL, opts.Branch),
			"check the extra node's git url, branch and token")
	}
	logger.Info("Cloned extra node repository", "url", opts.URL, "branch", opts.Branch, "dir", opts.Dir)
	return &Repo{dir: opts.Dir, repo: repo, auth: auth, logger: logger}, nil
}

// Dir returns the checkout directory.
func (r *Repo) Dir() string { return r.dir }

// WriteNode rebuilds the node/ directory from the node's configuration and
// upload variables.
func (r *Repo) WriteNode(n *node.Node, env string) error {
	return WriteLayout(filepath.Join(r.dir, NodeDir), n.Conf, n.UploadVars, env, r.logger)
}

// Dirty reports whether the worktree differs from HEAD.
func (r *Repo) Dirty() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, errors.Wrap(err, "open worktree")
	}
	st, err := wt.Status()
	if err != nil {
		return false, errors.Wrap(err, "worktree status")
	}
	if !st.IsClean() {
		r.logger.Info("Git status", "changes", st.String())
	}
	return !st.IsClean(), nil
}

// PushIfChanged commits and pushes every change in the worktree. It reports
// whether there was anything to push; a dry run only reports.
func (r *Repo) PushIfChanged(ctx context.Context, dryRun bool) (bool, error) {
	dirty, err := r.Dirty()
	if err != nil {
		return false, err
	}
	if !dirty {
		r.logger.Info("No current diff, skipping push to repo")
		return false, nil
	}
	if dryRun {
		r.logger.Info("Dry run, skipping push to repo")
		return true, nil
	}
	if err := r.commit(); err != nil {
		return true, err
	}
	if err := r.repo.PushContext(ctx, &git.PushOptions{RemoteName: "origin", Auth: r.auth}); err != nil {
		return true, errors.Wrap(err, "push")
	}
	r.logger.Info("Pushed to git repo")
	return true, nil
}

func (r *Repo) commit() error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return errors.Wrap(err, "open worktree")
	}
	st, err := wt.Status()
	if err != nil {
		return errors.Wrap(err, "worktree status")
	}
	for path, fs := range st {
		if fs.Worktree == git.Deleted {
			_, err = wt.Remove(path)
		} else {
			_, err = wt.Add(path)
		}
		if err != nil {
			return errors.Wrapf(err, "stage %s", path)
		}
	}
	_, err = wt.Commit(CommitMessage, &git.CommitOptions{
		Author: &object.Signature{Name: "nodesync", Email: "nodesync@localhost", When: time.Now()},
	})
	return errors.Wrap(err, "commit")
}
