package config

import (
	"path/filepath"
	"time"
)

// Environments the deployer knows how to target.
const (
	EnvProd = "prod"
	EnvTest = "test"
	EnvCI   = "ci"
)

// Config represents the complete nodesync configuration.
type Config struct {
	Environment string    `yaml:"environment"`
	NodeFolder  string    `yaml:"node_folder"`
	DryRun      bool      `yaml:"dry_run"`
	Log         LogConfig `yaml:"log"`

	// Whitelist is relative to NodeFolder. Empty selects the environment default.
	Whitelist           string   `yaml:"whitelist,omitempty"`
	UploadVariablesFrom string   `yaml:"upload_variables_from,omitempty"`
	VerifyVariables     bool     `yaml:"verify_variables"`
	VerifyVariablesFrom []string `yaml:"verify_variables_from,omitempty"`
	VerifySecrets       bool     `yaml:"verify_secrets"`

	Vault      VaultConfig                `yaml:"vault,omitempty"`
	Master     MasterConfig               `yaml:"master"`
	ExtraNodes map[string]ExtraNodeConfig `yaml:"extra_nodes,omitempty"`
	Slack      SlackConfig                `yaml:"slack,omitempty"`
	Retry      RetryConfig                `yaml:"retry"`
	State      StateConfig                `yaml:"state"`

	// TemplateRoot is the base of extra node template paths; NodeFolder when empty.
	TemplateRoot string `yaml:"template_root,omitempty"`

	// WorkDir holds the extra node git checkouts.
	WorkDir string `yaml:"work_dir"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// VaultConfig locates the secret store used for secret verification.
type VaultConfig struct {
	URL        string `yaml:"url"`
	GitToken   string `yaml:"git_token"`
	MountPoint string `yaml:"mount_point"`
	PathPrefix string `yaml:"path_prefix,omitempty"`
}

// MasterConfig defines how to reach the master node.
type MasterConfig struct {
	// Name is filled from the environment: "master", or "" for the anonymous
	// ci master.
	Name            string `yaml:"-"`
	URL             string `yaml:"url"`
	JWT             string `yaml:"jwt"`
	UploadVariables bool   `yaml:"upload_variables"`
	UploadSecrets   bool   `yaml:"upload_secrets"`
	ConfigGroup     string `yaml:"config_group,omitempty"`
}

// ExtraNodeConfig defines one extra node and the repository its configuration is pushed to.
type ExtraNodeConfig struct {
	// TemplatePath is relative to TemplateRoot.
	TemplatePath string    `yaml:"template_path"`
	Proxy        bool      `yaml:"proxy"`
	Git          GitConfig `yaml:"git"`
}

// GitConfig defines a remote repository and its credentials.
type GitConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Token    string `yaml:"token"`
	Branch   string `yaml:"branch"`
}

// SlackConfig enables diff notifications when Token is set.
type SlackConfig struct {
	Token      string `yaml:"token,omitempty"`
	Channel    string `yaml:"channel,omitempty"`
	ReleaseURL string `yaml:"release_url,omitempty"`
	APIURL     string `yaml:"api_url,omitempty"`
}

// RetryConfig defines retry behavior for outbound HTTP calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Wait        time.Duration `yaml:"wait"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StateConfig defines run history storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Defaults returns a Config with the deployer's historical defaults.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			Wait:        30 * time.Second,
			Timeout:     60 * time.Second,
		},
		State: StateConfig{
			Path: "./data/nodesync.db",
		},
		Slack: SlackConfig{
			APIURL: "https://slack.com/api",
		},
		WorkDir: ".",
	}
}

// DiffEnabled reports whether the run compares against the live master.
func (c *Config) DiffEnabled() bool { return c.Environment != EnvCI }

// ExtraNodesEnabled reports whether extra nodes are synthesized and pushed.
func (c *Config) ExtraNodesEnabled() bool {
	return c.Environment != EnvCI && len(c.ExtraNodes) > 0
}

// TemplateDir returns the template directory of an extra node.
func (c *Config) TemplateDir(x ExtraNodeConfig) string {
	root := c.TemplateRoot
	if root == "" {
		root = c.NodeFolder
	}
	return filepath.Join(root, x.TemplatePath)
}

// NotifyEnabled reports whether a diff report is sent to Slack.
func (c *Config) NotifyEnabled() bool { return c.Slack.Token != "" }

// LockPath is the single-run lock file, kept next to the history database.
func (c *Config) LockPath() string {
	return c.State.Path + ".lock"
}

const redacted = "********"

// Redacted returns a copy with credentials masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	out.Vault.GitToken = mask(c.Vault.GitToken)
	out.Master.JWT = mask(c.Master.JWT)
	out.Slack.Token = mask(c.Slack.Token)
	if c.ExtraNodes != nil {
		out.ExtraNodes = make(map[string]ExtraNodeConfig, len(c.ExtraNodes))
		for name, x := range c.ExtraNodes {
			x.Git.Token = mask(x.Git.Token)
			out.ExtraNodes[name] = x
		}
	}
	out.VerifyVariablesFrom = append([]string(nil), c.VerifyVariablesFrom...)
	return &out
}
