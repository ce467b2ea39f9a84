// Package nodeapi talks to a node's management API.
package nodeapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/mattjoyce/nodesync/internal/entity"
	"github.com/mattjoyce/nodesync/internal/transport"
)

var (
	// ErrDiffSourceUnavailable marks a failed read of the running configuration.
	ErrDiffSourceUnavailable = errors.New("diff source unavailable")
	// ErrDeploy marks a failed upload.
	ErrDeploy = errors.New("deploy failed")
)

// Client is a bearer-authenticated node API client.
type Client struct {
	base   string
	jwt    string
	http   *retryablehttp.Client
	logger *slog.Logger
}

// New creates a client for the node at nodeURL. A bare host ("node.example.com")
// becomes https://node.example.com/api; a URL with a scheme is used as the
// base of /api unchanged.
func New(nodeURL, jwt string, p transport.Policy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   BaseURL(nodeURL),
		jwt:    jwt,
		http:   transport.NewClient(p, logger),
		logger: logger,
	}
}

// BaseURL returns the API root for a node URL.
func BaseURL(nodeURL string) string {
	u := strings.TrimRight(nodeURL, "/")
	if !strings.Contains(u, "://") {
		u = "https://" + u
	}
	return u + "/api"
}

func (c *Client) endpoint(parts ...string) string {
	esc := make([]string, len(parts))
	for i, p := range parts {
		esc[i] = url.PathEscape(p)
	}
	return c.base + "/" + strings.Join(esc, "/")
}

func (c *Client) call(ctx context.Context, method, u string, body, out any) error {
	return transport.Do(ctx, c.http, transport.Request{
		Method: method,
		URL:    u,
		Header: http.Header{"Authorization": []string{"Bearer " + c.jwt}},
		Body:   body,
	}, out)
}

func configEndpoint(c *Client, group string) string {
	if group == "" {
		return c.endpoint("config")
	}
	return c.endpoint("config", group)
}

// GetConfig returns the running configuration, or a config group's part of it.
func (c *Client) GetConfig(ctx context.Context, group string) ([]entity.Entity, error) {
	var raw []any
	if err := c.call(ctx, http.MethodGet, configEndpoint(c, group), nil, &raw); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "get running configuration"), ErrDiffSourceUnavailable)
	}
	conf, err := entity.AsList(raw)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "running configuration"), ErrDiffSourceUnavailable)
	}
	c.logger.Info("Fetched running configuration", "entities", len(conf), "group", group)
	return conf, nil
}

// GetVariables returns the node's environment variables.
func (c *Client) GetVariables(ctx context.Context) (map[string]any, error) {
	var vars map[string]any
	if err := c.call(ctx, http.MethodGet, c.endpoint("env"), nil, &vars); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "get running variables"), ErrDiffSourceUnavailable)
	}
	if vars == nil {
		vars = map[string]any{}
	}
	return vars, nil
}

// Reformat returns the node's canonical text rendering of an entity.
func (c *Client) Reformat(ctx context.Context, e entity.Entity) (string, error) {
	var text string
	if err := c.call(ctx, http.MethodPost, c.endpoint("utils", "reformat-config"), e, &text); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "reformat %q", e.ID()), ErrDiffSourceUnavailable)
	}
	return text, nil
}

// PutConfig replaces the node configuration (or a config group) with force=true.
func (c *Client) PutConfig(ctx context.Context, conf []entity.Entity, group string) error {
	if conf == nil {
		conf = []entity.Entity{}
	}
	u := configEndpoint(c, group) + "?force=true"
	if err := c.call(ctx, http.MethodPut, u, conf, nil); err != nil {
		return errors.Mark(errors.Wrap(err, "put configuration"), ErrDeploy)
	}
	c.logger.Info("Uploaded configuration", "entities", len(conf), "group", group)
	return nil
}

// PutSecrets replaces the node secrets.
func (c *Client) PutSecrets(ctx context.Context, secrets map[string]string) error {
	if secrets == nil {
		secrets = map[string]string{}
	}
	if err := c.call(ctx, http.MethodPut, c.endpoint("secrets"), secrets, nil); err != nil {
		return errors.Mark(errors.Wrap(err, "put secrets"), ErrDeploy)
	}
	c.logger.Info("Uploaded secrets", "count", len(secrets))
	return nil
}

// PutVariables replaces the node environment variables.
func (c *Client) PutVariables(ctx context.Context, vars map[string]any) error {
	if vars == nil {
		vars = map[string]any{}
	}
	if err := c.call(ctx, http.MethodPut, c.endpoint("env"), vars, nil); err != nil {
		return errors.Mark(errors.Wrap(err, "put variables"), ErrDeploy)
	}
	c.logger.Info("Uploaded variables", "count", len(vars))
	return nil
}
