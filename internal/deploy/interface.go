package deploy

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/nodesync/internal/config"
	"github.com/mattjoyce/nodesync/internal/entity"
	"github.com/mattjoyce/nodesync/internal/gitsync"
	"github.com/mattjoyce/nodesync/internal/node"
	"github.com/mattjoyce/nodesync/internal/storage"
)

//go:generate go tool mockgen -destination=mocks/mock_deploy.go -package=mocks github.com/mattjoyce/nodesync/internal/deploy NodeAPI,SecretResolver,Repo,RepoOpener,Notifier,History

// NodeAPI is the master node's management API.
type NodeAPI interface {
	GetConfig(ctx context.Context, group string) ([]entity.Entity, error)
	GetVariables(ctx context.Context) (map[string]any, error)
	Reformat(ctx context.Context, e entity.Entity) (string, error)
	PutConfig(ctx context.Context, conf []entity.Entity, group string) error
	PutSecrets(ctx context.Context, secrets map[string]string) error
	PutVariables(ctx context.Context, vars map[string]any) error
}

// SecretResolver resolves $SECRET names.
type SecretResolver interface {
	node.SecretResolver
}

// Repo is a checkout of an extra node's repository.
type Repo interface {
	WriteNode(n *node.Node, env string) error
	PushIfChanged(ctx context.Context, dryRun bool) (bool, error)
}

// RepoOpener produces a fresh checkout for an extra node.
type RepoOpener interface {
	Open(ctx context.Context, name string, x config.ExtraNodeConfig) (Repo, error)
}

// Notifier announces a release with its diff report. It never fails the run.
type Notifier interface {
	Release(ctx context.Context, environment, releaseURL, report string)
}

// History records runs.
type History interface {
	Start(ctx context.Context, r storage.Run) error
	Finish(ctx context.Context, r storage.Run) error
}

// GitOpener clones extra node repositories under WorkDir/GIT_REPOS.
type GitOpener struct {
	WorkDir string
	Logger  *slog.Logger
}

// Open clones the extra node's branch, replacing any previous checkout.
func (g GitOpener) Open(ctx context.Context, name string, x config.ExtraNodeConfig) (Repo, error) {
	repo, err := gitsync.Clone(ctx, gitsync.Options{
		URL:      x.Git.URL,
		Username: x.Git.Username,
		Token:    x.Git.Token,
		Branch:   x.Git.Branch,
		Dir:      gitsync.CheckoutDir(g.WorkDir, name),
		Logger:   g.Logger,
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}
