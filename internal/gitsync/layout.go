package gitsync

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mattjoyce/nodesync/internal/entity"
)

// NodeDir is the directory inside a checkout that holds the node configuration.
const NodeDir = "node"

// WriteLayout replaces dir with one file per entity: pipes/<id>.conf.json,
// systems/<id>.conf.json for any type containing "system", and
// node-metadata.conf.json for the metadata entity. vars, when non-empty, is
// written to variables/variables-<env>.json. Other entity types are skipped.
func WriteLayout(dir string, conf []entity.Entity, vars map[string]any, env string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, e := range conf {
		if t := e.Type(); t == "pipe" || strings.Contains(t, "system") {
			if err := checkFileName(e.ID()); err != nil {
				return err
			}
		}
	}
	if len(vars) > 0 {
		if err := checkFileName(env); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "remove %s", dir)
	}
	for _, sub := range []string{"pipes", "systems", "variables"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return errors.Wrapf(err, "create %s", sub)
		}
	}

	for _, e := range conf {
		var path string
		switch t := e.Type(); {
		case t == "pipe":
			path = filepath.Join(dir, "pipes", e.ID()+".conf.json")
		case strings.Contains(t, "system"):
			path = filepath.Join(dir, "systems", e.ID()+".conf.json")
		case t == "metadata":
			path = filepath.Join(dir, "node-metadata.conf.json")
		default:
			logger.Warn("Skipping entity with unknown type", "id", e.ID(), "type", t)
			continue
		}
		if err := writeJSON(path, e); err != nil {
			return err
		}
	}

	if len(vars) > 0 {
		if err := writeJSON(filepath.Join(dir, "variables", "variables-"+env+".json"), vars); err != nil {
			return err
		}
	}
	return nil
}

// checkFileName rejects names that would not stay a single file inside the
// layout directory.
func checkFileName(name string) error {
	if name == "" || name == "." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return errors.Newf("unsafe file name %q", name)
	}
	return nil
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrapf(err, "encode %s", filepath.Base(path))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
