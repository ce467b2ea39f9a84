package config

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML configuration file, interpolates ${VAR} references,
// applies defaults and the environment's file layout, and validates the result.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "resolve config path %q", configPath), ErrInvalid)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, errors.Mark(
			errors.WithHint(errors.Newf("config file not found: %s", absPath),
				"check the path or run with --config"),
			ErrInvalid)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "nodesync.yaml")
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "read config"), ErrInvalid)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML text.
func Parse(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse YAML"), ErrInvalid)
	}
	return Finalize(&cfg)
}

// Finalize applies defaults and environment layout, then validates.
func Finalize(cfg *Config) (*Config, error) {
	cfg.Environment = strings.ToLower(cfg.Environment)
	cfg = applyConfigDefaults(cfg)
	if err := applyEnvironment(cfg); err != nil {
		return nil, errors.Mark(err, ErrInvalid)
	}
	if err := validate(cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid configuration"), ErrInvalid)
	}
	return cfg, nil
}

// Discover finds a configuration file. Priority order: $NODESYNC_CONFIG,
// ./nodesync.yaml, ~/.config/nodesync/nodesync.yaml.
func Discover() (string, error) {
	if p := os.Getenv("NODESYNC_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if _, err := os.Stat("nodesync.yaml"); err == nil {
		return "nodesync.yaml", nil
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "nodesync", "nodesync.yaml")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.Mark(
		errors.WithHint(errors.New("no config found (checked: $NODESYNC_CONFIG, ./nodesync.yaml, ~/.config/nodesync/nodesync.yaml)"),
			"pass --config, or --env-config to read the legacy environment variables"),
		ErrInvalid)
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if cfg.Retry.Wait == 0 {
		cfg.Retry.Wait = defaults.Retry.Wait
	}
	if cfg.Retry.Timeout == 0 {
		cfg.Retry.Timeout = defaults.Retry.Timeout
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.Slack.APIURL == "" {
		cfg.Slack.APIURL = defaults.Slack.APIURL
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = defaults.WorkDir
	}
	return cfg
}

// applyEnvironment fills the file layout each environment expects. Explicit
// settings win over the layout defaults.
func applyEnvironment(cfg *Config) error {
	switch cfg.Environment {
	case EnvProd, EnvTest:
		if cfg.UploadVariablesFrom == "" {
			cfg.UploadVariablesFrom = "variables/variables-" + cfg.Environment + ".json"
		}
		if len(cfg.VerifyVariablesFrom) == 0 {
			cfg.VerifyVariablesFrom = []string{cfg.UploadVariablesFrom}
		}
		if cfg.Whitelist == "" {
			cfg.Whitelist = "deployment/whitelist-" + cfg.Environment + ".txt"
		}
		cfg.Master.Name = "master"
	case EnvCI:
		if cfg.UploadVariablesFrom == "" {
			cfg.UploadVariablesFrom = "test-env.json"
		}
		if len(cfg.VerifyVariablesFrom) == 0 {
			cfg.VerifyVariablesFrom = []string{"variables/variables-test.json", "variables/variables-prod.json"}
		}
		if cfg.Whitelist == "" {
			cfg.Whitelist = "deployment/whitelist-master.txt"
		}
		cfg.Master.Name = ""
	default:
		return errors.WithHint(
			errors.Newf("environment %q is not prod, test or ci", cfg.Environment),
			"set environment (or ENVIRONMENT) to prod, test or ci")
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	if cfg.NodeFolder == "" {
		return errors.New("node_folder is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return errors.Newf("log.level must be one of: debug, info, warn, error (got %q)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return errors.Newf("log.format must be json or text (got %q)", cfg.Log.Format)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if cfg.Retry.Wait < 0 {
		return errors.New("retry.wait must not be negative")
	}

	if cfg.VerifySecrets {
		if err := requireSet(map[string]string{
			"vault.url":         cfg.Vault.URL,
			"vault.git_token":   cfg.Vault.GitToken,
			"vault.mount_point": cfg.Vault.MountPoint,
		}); err != nil {
			return errors.Wrap(err, "verify_secrets is enabled")
		}
	}

	// Only a ci dry run may skip the master node: it never talks to a node.
	if !(cfg.Environment == EnvCI && cfg.DryRun) {
		if err := requireSet(map[string]string{
			"master.url": cfg.Master.URL,
			"master.jwt": cfg.Master.JWT,
		}); err != nil {
			return err
		}
	}

	for name, x := range cfg.ExtraNodes {
		if name == "" || name == "master" {
			return errors.Newf("extra_nodes: invalid node name %q", name)
		}
		if err := requireSet(map[string]string{
			"template_path": x.TemplatePath,
			"git.url":       x.Git.URL,
			"git.username":  x.Git.Username,
			"git.token":     x.Git.Token,
			"git.branch":    x.Git.Branch,
		}); err != nil {
			return errors.Wrapf(err, "extra node %q", name)
		}
	}

	if cfg.Slack.Token != "" && cfg.Slack.Channel == "" {
		return errors.New("slack.channel is required when slack.token is set")
	}

	if err := checkUnresolvedEnvVars(cfg); err != nil {
		return err
	}
	return nil
}

// requireSet reports every empty field at once, in name order.
func requireSet(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return errors.Newf("missing %s", strings.Join(missing, ", "))
}

// checkUnresolvedEnvVars rejects credentials still holding a ${VAR} placeholder.
func checkUnresolvedEnvVars(cfg *Config) error {
	check := func(field, v string) error {
		if m := envVarPattern.FindStringSubmatch(v); m != nil {
			return errors.Newf("%s: environment variable ${%s} is not set", field, m[1])
		}
		return nil
	}
	if err := check("master.jwt", cfg.Master.JWT); err != nil {
		return err
	}
	if err := check("vault.git_token", cfg.Vault.GitToken); err != nil {
		return err
	}
	if err := check("slack.token", cfg.Slack.Token); err != nil {
		return err
	}
	for name, x := range cfg.ExtraNodes {
		if err := check("extra_nodes."+name+".git.token", x.Git.Token); err != nil {
			return err
		}
	}
	return nil
}
