// Package vault resolves $SECRET(name) references against a HashiCorp Vault
// KV version 2 mount, logging in with a GitHub token.
package vault

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/vault/api"

	"github.com/mattjoyce/nodesync/internal/transport"
)

// ErrLogin marks a failed Vault login.
var ErrLogin = errors.New("vault login failed")

// Options configures a Resolver.
type Options struct {
	URL        string
	GitToken   string
	MountPoint string
	// PathPrefix is prepended to every secret name.
	PathPrefix string
	Policy     transport.Policy
	Logger     *slog.Logger
}

// Resolver reads secrets from Vault. It logs in lazily on the first Resolve.
type Resolver struct {
	opts     Options
	client   *api.Client
	loggedIn bool
	logger   *slog.Logger
}

// New creates a resolver. Requests follow the retry policy, except that a
// missing secret is never retried.
func New(opts Options) (*Resolver, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := opts.Policy
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	cfg := api.DefaultConfig()
	cfg.Address = opts.URL
	cfg.MaxRetries = p.MaxAttempts - 1
	cfg.MinRetryWait = p.Wait
	cfg.MaxRetryWait = p.Wait
	cfg.Backoff = func(wait, _ time.Duration, _ int, _ *http.Response) time.Duration { return wait }
	cfg.CheckRetry = retryPolicy
	cfg.Logger = logger
	if p.Timeout > 0 {
		cfg.Timeout = p.Timeout
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create vault client")
	}
	client.ClearToken()
	return &Resolver{
		opts:   opts,
		client: client,
		logger: logger.With(slog.String("component", "vault")),
	}, nil
}

func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return transport.RetryNon2xx(ctx, resp, err)
}

// githubLogin is the auth/github login method.
type githubLogin struct {
	token string
}

func (g githubLogin) Login(ctx context.Context, c *api.Client) (*api.Secret, error) {
	return c.Logical().WriteWithContext(ctx, "auth/github/login", map[string]any{"token": g.token})
}

func (r *Resolver) login(ctx context.Context) error {
	if r.loggedIn {
		return nil
	}
	if _, err := r.client.Auth().Login(ctx, githubLogin{token: r.opts.GitToken}); err != nil {
		return errors.Mark(errors.Wrap(err, "github login"), ErrLogin)
	}
	r.loggedIn = true
	r.logger.Debug("Logged in to vault")
	return nil
}

// Resolve looks up each name and returns the values found and the sorted
// names that could not be resolved. Only login and transport failures are
// errors.
func (r *Resolver) Resolve(ctx context.Context, names []string) (map[string]string, []string, error) {
	found := make(map[string]string, len(names))
	var missing []string
	if len(names) == 0 {
		return found, nil, nil
	}
	if err := r.login(ctx); err != nil {
		return nil, nil, err
	}

	kv := r.client.KVv2(r.opts.MountPoint)
	for _, name := range names {
		v, ok, err := read(ctx, kv, r.opts.PathPrefix+name)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "read secret %q", name)
		}
		if !ok {
			missing = append(missing, name)
			continue
		}
		found[name] = v
	}
	sort.Strings(missing)
	r.logger.Info("Resolved secrets", "found", len(found), "missing", len(missing))
	return found, missing, nil
}

func read(ctx context.Context, kv *api.KVv2, path string) (string, bool, error) {
	secret, err := kv.Get(ctx, path)
	if errors.Is(err, api.ErrSecretNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	v, ok := secretValue(secret.Data)
	return v, ok, nil
}

// secretValue takes the "value" field, or the only field of a single-field secret.
func secretValue(data map[string]any) (string, bool) {
	if v, ok := data["value"]; ok {
		s, isStr := v.(string)
		return s, isStr
	}
	if len(data) == 1 {
		for _, v := range data {
			s, isStr := v.(string)
			return s, isStr
		}
	}
	return "", false
}
