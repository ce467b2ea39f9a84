package doctor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/nodesync/internal/config"
	"github.com/mattjoyce/nodesync/internal/templates"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// fixture lays out a node folder with one pipe, prod variables, and a full
// template set for extra node "extra".
func fixture(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "deployment", "whitelist-prod.txt"), "pipes/a.conf.json\n\n")
	writeFile(t, filepath.Join(root, "pipes", "a.conf.json"), `{"_id":"a","type":"pipe"}`)
	writeFile(t, filepath.Join(root, "variables", "variables-prod.json"), `{"host":"db"}`)
	for _, role := range templates.Roles {
		writeFile(t, filepath.Join(root, "templates", "extra", role.Filename()), `{"_id":"{{@ id @}}"}`)
	}

	return &config.Config{
		Environment:         config.EnvProd,
		NodeFolder:          root,
		Whitelist:           "deployment/whitelist-prod.txt",
		UploadVariablesFrom: "variables/variables-prod.json",
		VerifyVariables:     true,
		VerifyVariablesFrom: []string{"variables/variables-prod.json"},
		VerifySecrets:       true,
		Master:              config.MasterConfig{Name: "master", UploadVariables: true},
		ExtraNodes: map[string]config.ExtraNodeConfig{
			"extra": {TemplatePath: "templates/extra"},
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(fixture(t)).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_MissingNodeFolder(t *testing.T) {
	t.Parallel()
	cfg := fixture(t)
	cfg.NodeFolder = filepath.Join(cfg.NodeFolder, "nope")
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "node_folder", "not found")
	if len(r.Errors) != 1 {
		t.Fatalf("expected folder checks to stop early, got: %v", r.Errors)
	}
}

func TestValidate_WhitelistedFileMissing(t *testing.T) {
	t.Parallel()
	cfg := fixture(t)
	writeFile(t, filepath.Join(cfg.NodeFolder, cfg.Whitelist), "pipes/a.conf.json\npipes/b.conf.json\npipes/a.conf.json\n")
	r := New(cfg).Validate()
	assertHasError(t, r, "whitelist", "pipes/b.conf.json")
	assertHasWarning(t, r, "whitelist", "more than once")
}

func TestValidate_MissingWhitelist(t *testing.T) {
	t.Parallel()
	cfg := fixture(t)
	cfg.Whitelist = "deployment/whitelist-test.txt"
	assertHasError(t, New(cfg).Validate(), "whitelist", "cannot be read")
}

func TestValidate_UploadVariablesFile(t *testing.T) {
	t.Parallel()
	cfg := fixture(t)
	cfg.UploadVariablesFrom = "variables/missing.json"
	cfg.VerifyVariables = false
	assertHasError(t, New(cfg).Validate(), "variables", "missing.json")

	cfg.Master.UploadVariables = false
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected a warning only, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "variables", "missing.json")
}

func TestValidate_VerifyVariablesWithoutFiles(t *testing.T) {
	t.Parallel()
	cfg := fixture(t)
	cfg.VerifyVariablesFrom = nil
	assertHasError(t, New(cfg).Validate(), "variables", "no files")
}

func TestValidate_TemplateDirMissing(t *testing.T) {
	t.Parallel()
	cfg := fixture(t)
	cfg.ExtraNodes["other"] = config.ExtraNodeConfig{TemplatePath: "templates/other"}
	assertHasError(t, New(cfg).Validate(), "templates", `"other"`)
}

func TestValidate_TemplatesMissingWarn(t *testing.T) {
	t.Parallel()
	cfg := fixture(t)
	if err := os.Remove(filepath.Join(cfg.NodeFolder, "templates", "extra", templates.NodeMetadataFile)); err != nil {
		t.Fatal(err)
	}
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "templates", templates.NodeMetadataFile)
}

func TestValidate_CISkipsExtraNodes(t *testing.T) {
	t.Parallel()
	cfg := fixture(t)
	cfg.Environment = config.EnvCI
	cfg.ExtraNodes["other"] = config.ExtraNodeConfig{TemplatePath: "templates/other"}
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
}

func TestValidate_WarnUploads(t *testing.T) {
	t.Parallel()
	cfg := fixture(t)
	cfg.VerifySecrets = false
	cfg.Master.UploadSecrets = true
	r := New(cfg).Validate()
	assertHasWarning(t, r, "uploads", "empty secret set")
	assertHasWarning(t, r, "uploads", "prod")
}

func TestValidate_WarnSlackWithoutDiff(t *testing.T) {
	t.Parallel()
	cfg := fixture(t)
	cfg.Environment = config.EnvCI
	cfg.Slack.Token = "xoxb"
	assertHasWarning(t, New(cfg).Validate(), "slack", "ci")
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{Valid: false, Errors: []Issue{{Category: "whitelist", Message: "broken"}}}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	var back Result
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if back.Valid || len(back.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", back)
	}
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	if out := FormatHuman(&Result{Valid: true}); !strings.Contains(out, "valid") {
		t.Fatalf("expected 'valid' in output, got: %s", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "broken") {
		t.Fatalf("expected error in output, got: %s", out)
	}
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
