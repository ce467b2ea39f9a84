// Package doctor checks a nodesync configuration against the node folder it
// points at, without touching the network.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattjoyce/nodesync/internal/config"
	"github.com/mattjoyce/nodesync/internal/node"
	"github.com/mattjoyce/nodesync/internal/templates"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	if d.validateNodeFolder(r) {
		d.validateWhitelist(r)
		d.validateVariableFiles(r)
		d.validateExtraNodes(r)
	}
	d.warnUploads(r)
	d.warnNotifications(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) path(rel string) string {
	return filepath.Join(d.cfg.NodeFolder, rel)
}

func (d *Doctor) validateNodeFolder(r *Result) bool {
	info, err := os.Stat(d.cfg.NodeFolder)
	switch {
	case err != nil:
		d.addError(r, "node_folder", "node_folder", fmt.Sprintf("node folder %q not found", d.cfg.NodeFolder))
		return false
	case !info.IsDir():
		d.addError(r, "node_folder", "node_folder", fmt.Sprintf("node folder %q is not a directory", d.cfg.NodeFolder))
		return false
	}
	return true
}

// validateWhitelist checks that the whitelist exists, names no file twice, and
// that every listed file is present.
func (d *Doctor) validateWhitelist(r *Result) {
	files, err := node.ReadWhitelist(d.path(d.cfg.Whitelist))
	if err != nil {
		d.addError(r, "whitelist", "whitelist", fmt.Sprintf("whitelist %q cannot be read", d.cfg.Whitelist))
		return
	}
	if len(files) == 0 {
		d.addWarning(r, "whitelist", "whitelist", fmt.Sprintf("whitelist %q lists no files", d.cfg.Whitelist))
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f] {
			d.addWarning(r, "whitelist", "whitelist", fmt.Sprintf("%q is listed more than once", f))
			continue
		}
		seen[f] = true
		if _, err := os.Stat(d.path(f)); err != nil {
			d.addError(r, "whitelist", "whitelist", fmt.Sprintf("listed file %q not found", f))
		}
	}
}

func (d *Doctor) validateVariableFiles(r *Result) {
	if f := d.cfg.UploadVariablesFrom; f != "" {
		if _, err := node.ReadVariablesFile(d.path(f)); err != nil {
			msg := fmt.Sprintf("variables file %q cannot be loaded", f)
			if d.cfg.Master.UploadVariables {
				d.addError(r, "variables", "upload_variables_from", msg)
			} else {
				d.addWarning(r, "variables", "upload_variables_from", msg)
			}
		}
	}
	if !d.cfg.VerifyVariables {
		return
	}
	if len(d.cfg.VerifyVariablesFrom) == 0 {
		d.addError(r, "variables", "verify_variables_from", "verify_variables is set but no files are listed")
	}
	for i, f := range d.cfg.VerifyVariablesFrom {
		if _, err := node.ReadVariablesFile(d.path(f)); err != nil {
			d.addError(r, "variables", fmt.Sprintf("verify_variables_from[%d]", i),
				fmt.Sprintf("variables file %q cannot be loaded", f))
		}
	}
}

// validateExtraNodes checks each extra node's template directory. Absent
// templates only warn: synthesis skips their role.
func (d *Doctor) validateExtraNodes(r *Result) {
	if !d.cfg.ExtraNodesEnabled() {
		return
	}
	names := make([]string, 0, len(d.cfg.ExtraNodes))
	for name := range d.cfg.ExtraNodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		x := d.cfg.ExtraNodes[name]
		field := fmt.Sprintf("extra_nodes.%s.template_path", name)
		store, err := templates.Load(d.cfg.TemplateDir(x), nil)
		if err != nil {
			d.addError(r, "templates", field, fmt.Sprintf("templates for %q cannot be loaded: %v", name, err))
			continue
		}
		if missing := store.Missing(); len(missing) > 0 {
			files := make([]string, len(missing))
			for i, role := range missing {
				files[i] = role.Filename()
			}
			d.addWarning(r, "templates", field,
				fmt.Sprintf("no template for %s", strings.Join(files, ", ")))
		}
	}
}

func (d *Doctor) warnUploads(r *Result) {
	if d.cfg.Master.UploadSecrets && !d.cfg.VerifySecrets {
		d.addWarning(r, "uploads", "master.upload_secrets",
			"upload_secrets without verify_secrets uploads an empty secret set")
	}
	if d.cfg.Master.UploadVariables && d.cfg.UploadVariablesFrom == "" {
		d.addWarning(r, "uploads", "master.upload_variables",
			"upload_variables is set but no variables file is configured")
	}
	if d.cfg.Environment == config.EnvProd && !d.cfg.VerifySecrets {
		d.addWarning(r, "uploads", "verify_secrets", "secrets are not verified for prod")
	}
}

func (d *Doctor) warnNotifications(r *Result) {
	if d.cfg.NotifyEnabled() && !d.cfg.DiffEnabled() {
		d.addWarning(r, "slack", "slack.token",
			fmt.Sprintf("no diff is computed for %s, so nothing is posted to slack", d.cfg.Environment))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
