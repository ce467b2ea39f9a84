package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value from the configuration using a dot-notation path,
// addressed by YAML keys (for example "master.url" or "extra_nodes.edge.git.branch").
// An empty path returns the whole configuration.
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "marshal config")
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, errors.Newf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, errors.Newf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}
