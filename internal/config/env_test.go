package config

import (
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func legacyEnv() map[string]string {
	return map[string]string{
		"NODE_FOLDER":      "node",
		"ENVIRONMENT":      "Test",
		"DRY_RUN":          "False",
		"VERIFY_VARIABLES": "true",
		"VERIFY_SECRETS":   "TRUE",
		"VAULT_GIT_TOKEN":  "gh-token",
		"VAULT_MOUNTING_POINT": "kv",
		"VAULT_URL":            "https://vault.example.com",
		"MASTER_NODE":          "`{\"URL\": \"m.example.com\", \"JWT\": \"jwt\", \"UPLOAD_VARIABLES\": \"true\", \"UPLOAD_SECRETS\": false, \"CONFIG_GROUP\": \"grp\"}`",
		"EXTRA_NODES": `{"edge": {"EXTRA_NODE_TEMPLATE_PATH": "templates/edge", "EXTRA_NODE_GIT_URL": "git.example.com/edge.git",
			"EXTRA_NODE_GIT_USERNAME": "u", "EXTRA_NODE_GIT_TOKEN": "t", "EXTRA_NODE_GIT_BRANCH": "main", "PROXY_NODE": "True"}}`,
		"VERIFY_VARIABLES_FROM_FILES": "a.json;b.json",
	}
}

func TestFromEnv(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(legacyEnv()))
	require.NoError(t, err)

	assert.Equal(t, EnvTest, cfg.Environment)
	assert.Equal(t, filepath.Join("node", "node"), cfg.NodeFolder)
	assert.Equal(t, "node", cfg.TemplateRoot)
	assert.False(t, cfg.DryRun)
	assert.True(t, cfg.VerifyVariables)
	assert.True(t, cfg.VerifySecrets)
	assert.Equal(t, "kv", cfg.Vault.MountPoint)
	assert.Equal(t, "m.example.com", cfg.Master.URL)
	assert.True(t, cfg.Master.UploadVariables)
	assert.False(t, cfg.Master.UploadSecrets)
	assert.Equal(t, "grp", cfg.Master.ConfigGroup)
	assert.Equal(t, []string{"a.json", "b.json"}, cfg.VerifyVariablesFrom)
	assert.Equal(t, "variables/variables-test.json", cfg.UploadVariablesFrom)

	require.Contains(t, cfg.ExtraNodes, "edge")
	edge := cfg.ExtraNodes["edge"]
	assert.True(t, edge.Proxy)
	assert.Equal(t, "main", edge.Git.Branch)
	assert.Equal(t, filepath.Join("node", "templates", "edge"), cfg.TemplateDir(edge))
}

func TestFromEnv_MissingReportedTogether(t *testing.T) {
	env := legacyEnv()
	delete(env, "NODE_FOLDER")
	delete(env, "VAULT_URL")
	env["MASTER_NODE"] = `{"URL": "m"}`

	_, err := FromEnv(lookupFrom(env))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "NODE_FOLDER")
	assert.Contains(t, err.Error(), "VAULT_URL")
	assert.Contains(t, err.Error(), "MASTER_NODE->JWT")
	assert.NotContains(t, err.Error(), "EXTRA_NODES")
}

func TestFromEnv_VaultOnlyWhenVerifyingSecrets(t *testing.T) {
	env := legacyEnv()
	env["VERIFY_SECRETS"] = "false"
	delete(env, "VAULT_URL")
	delete(env, "VAULT_GIT_TOKEN")

	cfg, err := FromEnv(lookupFrom(env))
	require.NoError(t, err)
	assert.False(t, cfg.VerifySecrets)
}

func TestFromEnv_CIDryRunWithoutMaster(t *testing.T) {
	env := map[string]string{
		"NODE_FOLDER":      "node",
		"ENVIRONMENT":      "ci",
		"DRY_RUN":          "true",
		"VERIFY_VARIABLES": "true",
		"VERIFY_SECRETS":   "false",
	}
	cfg, err := FromEnv(lookupFrom(env))
	require.NoError(t, err)
	assert.Empty(t, cfg.Master.URL)

	env["ENVIRONMENT"] = "prod"
	_, err = FromEnv(lookupFrom(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MASTER_NODE")
}

func TestFromEnv_BadJSON(t *testing.T) {
	env := legacyEnv()
	env["MASTER_NODE"] = "{not json"
	_, err := FromEnv(lookupFrom(env))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "MASTER_NODE is not a JSON object")
}
