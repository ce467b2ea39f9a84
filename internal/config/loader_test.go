package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
environment: prod
node_folder: ./node
master:
  url: master.example.com
  jwt: ${MASTER_JWT}
  upload_variables: true
`

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "prod defaults",
			yaml: baseYAML,
			env:  map[string]string{"MASTER_JWT": "token"},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "token", cfg.Master.JWT)
				assert.Equal(t, "master", cfg.Master.Name)
				assert.Equal(t, "variables/variables-prod.json", cfg.UploadVariablesFrom)
				assert.Equal(t, []string{"variables/variables-prod.json"}, cfg.VerifyVariablesFrom)
				assert.Equal(t, "deployment/whitelist-prod.txt", cfg.Whitelist)
				assert.Equal(t, 5, cfg.Retry.MaxAttempts)
				assert.Equal(t, 30*time.Second, cfg.Retry.Wait)
				assert.Equal(t, "info", cfg.Log.Level)
				assert.True(t, cfg.DiffEnabled())
				assert.False(t, cfg.NotifyEnabled())
			},
		},
		{
			name: "ci dry run without master",
			yaml: `
environment: CI
node_folder: ./node
dry_run: true
verify_variables: true
`,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, EnvCI, cfg.Environment)
				assert.Empty(t, cfg.Master.Name)
				assert.Equal(t, "test-env.json", cfg.UploadVariablesFrom)
				assert.Equal(t, "deployment/whitelist-master.txt", cfg.Whitelist)
				assert.Equal(t, []string{"variables/variables-test.json", "variables/variables-prod.json"}, cfg.VerifyVariablesFrom)
				assert.False(t, cfg.DiffEnabled())
			},
		},
		{
			name: "extra nodes and overrides",
			yaml: baseYAML + `
whitelist: custom/whitelist.txt
retry:
  max_attempts: 2
  wait: 1s
extra_nodes:
  edge:
    template_path: templates/edge
    proxy: true
    git:
      url: git.example.com/edge.git
      username: deployer
      token: secret
      branch: main
`,
			env: map[string]string{"MASTER_JWT": "token"},
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "custom/whitelist.txt", cfg.Whitelist)
				assert.Equal(t, 2, cfg.Retry.MaxAttempts)
				assert.Equal(t, time.Second, cfg.Retry.Wait)
				require.Contains(t, cfg.ExtraNodes, "edge")
				assert.True(t, cfg.ExtraNodes["edge"].Proxy)
				assert.True(t, cfg.ExtraNodesEnabled())
			},
		},
		{
			name:    "unknown environment",
			yaml:    "environment: staging\nnode_folder: x\n",
			wantErr: `environment "staging" is not prod, test or ci`,
		},
		{
			name:    "unresolved credential",
			yaml:    baseYAML,
			wantErr: "master.jwt: environment variable ${MASTER_JWT} is not set",
		},
		{
			name:    "master required outside ci dry run",
			yaml:    "environment: test\nnode_folder: x\n",
			wantErr: "missing master.jwt, master.url",
		},
		{
			name:    "vault required for secret verification",
			yaml:    baseYAML + "verify_secrets: true\nvault:\n  url: https://vault\n",
			env:     map[string]string{"MASTER_JWT": "token"},
			wantErr: "missing vault.git_token, vault.mount_point",
		},
		{
			name: "incomplete extra node",
			yaml: baseYAML + `
extra_nodes:
  edge:
    template_path: templates/edge
`,
			env:     map[string]string{"MASTER_JWT": "token"},
			wantErr: `extra node "edge": missing git.branch, git.token, git.url, git.username`,
		},
		{
			name:    "bad log level",
			yaml:    baseYAML + "log:\n  level: loud\n",
			env:     map[string]string{"MASTER_JWT": "token"},
			wantErr: "log.level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "nodesync.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			cfg, err := Load(path)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.True(t, errors.Is(err, ErrInvalid))
				return
			}
			require.NoError(t, err)
			tt.checkFn(t, cfg)
		})
	}
}

func TestLoad_Directory(t *testing.T) {
	t.Setenv("MASTER_JWT", "token")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodesync.yaml"), []byte(baseYAML), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "master.example.com", cfg.Master.URL)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, errors.FlattenHints(err), "--config")
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("NS_SET", "value")
	assert.Equal(t, "a value b ${NS_UNSET_FOR_TEST}", interpolateEnv("a ${NS_SET} b ${NS_UNSET_FOR_TEST}"))
}

func TestRedacted(t *testing.T) {
	cfg := &Config{
		Master:     MasterConfig{JWT: "jwt"},
		Vault:      VaultConfig{GitToken: ""},
		ExtraNodes: map[string]ExtraNodeConfig{"edge": {Git: GitConfig{Token: "tok", URL: "u"}}},
	}
	r := cfg.Redacted()
	assert.Equal(t, redacted, r.Master.JWT)
	assert.Empty(t, r.Vault.GitToken)
	assert.Equal(t, redacted, r.ExtraNodes["edge"].Git.Token)
	assert.Equal(t, "u", r.ExtraNodes["edge"].Git.URL)
	assert.Equal(t, "tok", cfg.ExtraNodes["edge"].Git.Token, "original untouched")
	assert.Equal(t, "jwt", cfg.Master.JWT)
}
