package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// FromEnv builds a configuration from the deployer's legacy environment
// variables (NODE_FOLDER, ENVIRONMENT, MASTER_NODE, EXTRA_NODES, ...). All
// missing required variables are reported together.
func FromEnv(lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	r := &envReader{lookup: lookup}
	cfg := &Config{}

	// NODE_FOLDER is the config repository: node files live in its node/
	// directory, templates are addressed from the repository root.
	if repo := r.str("NODE_FOLDER", true); repo != "" {
		cfg.NodeFolder = filepath.Join(repo, "node")
		cfg.TemplateRoot = repo
	}
	cfg.Environment = strings.ToLower(r.str("ENVIRONMENT", true))
	cfg.DryRun = r.boolean("DRY_RUN", true)
	cfg.VerifyVariables = r.boolean("VERIFY_VARIABLES", true)

	cfg.VerifySecrets = r.boolean("VERIFY_SECRETS", true)
	if cfg.VerifySecrets {
		cfg.Vault.GitToken = r.str("VAULT_GIT_TOKEN", true)
		cfg.Vault.MountPoint = r.str("VAULT_MOUNTING_POINT", true)
		cfg.Vault.URL = r.str("VAULT_URL", true)
	}
	cfg.Vault.PathPrefix = r.str("VAULT_PATH_PREFIX", false)

	cfg.Slack.Token = r.str("SLACK_API_TOKEN", false)
	cfg.Slack.Channel = r.str("SLACK_CHANNEL", false)
	cfg.Slack.ReleaseURL = r.str("RELEASE_URL", false)

	cfg.UploadVariablesFrom = r.str("UPLOAD_VARIABLES_FROM_FILE", false)
	cfg.Whitelist = r.str("WHITELIST_FILE_PATH", false)
	if v := r.str("VERIFY_VARIABLES_FROM_FILES", false); v != "" {
		cfg.VerifyVariablesFrom = strings.Split(v, ";")
	}

	masterMissing := false
	if raw, ok := r.json("MASTER_NODE"); ok {
		cfg.Master = r.master(raw)
	} else {
		masterMissing = true
	}

	if raw, ok := r.json("EXTRA_NODES"); ok {
		cfg.ExtraNodes = r.extraNodes(raw)
	} else {
		r.dropMissing("EXTRA_NODES")
	}

	// A ci dry run only verifies configuration and never talks to a node.
	if masterMissing && cfg.Environment == EnvCI && cfg.DryRun {
		r.dropMissing("MASTER_NODE")
	}

	if r.err != nil {
		return nil, errors.Mark(r.err, ErrInvalid)
	}
	if len(r.missing) > 0 {
		return nil, errors.Mark(
			errors.WithHint(errors.Newf("missing variables: %s", strings.Join(r.missing, ", ")),
				"set the variables in the job environment or use --config with a YAML file"),
			ErrInvalid)
	}
	return Finalize(cfg)
}

type envReader struct {
	lookup  LookupFunc
	missing []string
	err     error
}

func (r *envReader) get(key string, required bool) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		if required {
			r.missing = append(r.missing, key)
		}
		return "", false
	}
	return v, true
}

func (r *envReader) dropMissing(key string) {
	out := r.missing[:0]
	for _, m := range r.missing {
		if m != key {
			out = append(out, m)
		}
	}
	r.missing = out
}

func (r *envReader) str(key string, required bool) string {
	v, _ := r.get(key, required)
	return v
}

func (r *envReader) boolean(key string, required bool) bool {
	v, _ := r.get(key, required)
	return parseBool(v)
}

// json decodes a JSON object variable. Backticks around the value are
// stripped; CI systems often need them for quoting. MASTER_NODE counts as
// required here; callers drop it from the missing list when it is optional.
func (r *envReader) json(key string) (map[string]any, bool) {
	v, ok := r.get(key, true)
	if !ok {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(strings.ReplaceAll(v, "`", "")), &out); err != nil {
		if r.err == nil {
			r.err = errors.WithHintf(errors.Wrapf(err, "%s is not a JSON object", key),
				"%s must be a JSON object, optionally wrapped in backticks", key)
		}
		return nil, false
	}
	return out, true
}

func (r *envReader) master(raw map[string]any) MasterConfig {
	var m MasterConfig
	for _, key := range []string{"URL", "JWT", "UPLOAD_VARIABLES", "UPLOAD_SECRETS"} {
		if _, ok := raw[key]; !ok {
			r.missing = append(r.missing, "MASTER_NODE->"+key)
		}
	}
	m.URL = asString(raw["URL"])
	m.JWT = asString(raw["JWT"])
	m.UploadVariables = asBool(raw["UPLOAD_VARIABLES"])
	m.UploadSecrets = asBool(raw["UPLOAD_SECRETS"])
	m.ConfigGroup = asString(raw["CONFIG_GROUP"])
	return m
}

func (r *envReader) extraNodes(raw map[string]any) map[string]ExtraNodeConfig {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]ExtraNodeConfig, len(raw))
	for _, name := range names {
		fields, ok := raw[name].(map[string]any)
		if !ok {
			if r.err == nil {
				r.err = errors.Newf("EXTRA_NODES->%s is not a JSON object", name)
			}
			continue
		}
		out[name] = ExtraNodeConfig{
			TemplatePath: asString(fields["EXTRA_NODE_TEMPLATE_PATH"]),
			Proxy:        asBool(fields["PROXY_NODE"]),
			Git: GitConfig{
				URL:      asString(fields["EXTRA_NODE_GIT_URL"]),
				Username: asString(fields["EXTRA_NODE_GIT_USERNAME"]),
				Token:    asString(fields["EXTRA_NODE_GIT_TOKEN"]),
				Branch:   asString(fields["EXTRA_NODE_GIT_BRANCH"]),
			},
		}
	}
	return out
}

func parseBool(s string) bool { return strings.EqualFold(s, "true") }

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asBool accepts a JSON boolean or a "true" string.
func asBool(v any) bool {
	switch tv := v.(type) {
	case bool:
		return tv
	case string:
		return parseBool(tv)
	default:
		return false
	}
}
