package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPath(t *testing.T) {
	cfg := &Config{
		Environment: EnvProd,
		Master:      MasterConfig{URL: "m.example.com", UploadSecrets: true},
		Retry:       RetryConfig{MaxAttempts: 5, Wait: 30 * time.Second},
		ExtraNodes: map[string]ExtraNodeConfig{
			"edge": {TemplatePath: "t/edge", Git: GitConfig{Branch: "main"}},
		},
	}

	tests := []struct {
		name    string
		path    string
		want    any
		wantErr bool
	}{
		{name: "root field", path: "environment", want: "prod"},
		{name: "nested field", path: "master.url", want: "m.example.com"},
		{name: "bool field", path: "master.upload_secrets", want: true},
		{name: "duration", path: "retry.wait", want: "30s"},
		{name: "extra node", path: "extra_nodes.edge.git.branch", want: "main"},
		{name: "missing key", path: "master.missing", wantErr: true},
		{name: "through a scalar", path: "environment.x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.GetPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetPath_Root(t *testing.T) {
	got, err := (&Config{Environment: EnvCI}).GetPath("")
	require.NoError(t, err)
	m, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ci", m["environment"])
}
