package node

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mattjoyce/nodesync/internal/entity"
)

var (
	envRefPattern    = regexp.MustCompile(`\$ENV\((\S*?)\)`)
	secretRefPattern = regexp.MustCompile(`\$SECRET\((\S*?)\)`)
)

var (
	// ErrVariablesMissing marks a failed variable verification.
	ErrVariablesMissing = errors.New("variables verification failed")
	// ErrSecretsMissing marks a failed secret verification.
	ErrSecretsMissing = errors.New("secrets verification failed")
)

// SecretResolver looks secrets up by name. It returns the values it found and
// the names it could not resolve.
type SecretResolver interface {
	Resolve(ctx context.Context, names []string) (map[string]string, []string, error)
}

// FindVariablesAndSecrets scans the serialized configuration for $ENV(name)
// and $SECRET(name) references. The scan is textual, so references anywhere
// in any string value are found.
func (n *Node) FindVariablesAndSecrets() error {
	text, err := serialize(n.Conf)
	if err != nil {
		return errors.Wrap(err, "serialize node configuration")
	}
	n.ConfigVars = findRefs(envRefPattern, text)
	n.ConfigSecrets = findRefs(secretRefPattern, text)
	n.logger.Debug("Scanned configuration references",
		"variables", len(n.ConfigVars),
		"secrets", len(n.ConfigSecrets),
	)
	return nil
}

func serialize(conf []entity.Entity) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if conf == nil {
		conf = []entity.Entity{}
	}
	if err := enc.Encode(conf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func findRefs(re *regexp.Regexp, text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}

// LoadUploadVariables reads the variables this node uploads from a JSON object file.
func (n *Node) LoadUploadVariables(path string) error {
	vars, err := ReadVariablesFile(path)
	if err != nil {
		return err
	}
	n.UploadVars = vars
	return nil
}

// ReadVariablesFile reads a flat JSON object of variables.
func ReadVariablesFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read variables file %s", path), ErrLoad)
	}
	v, err := entity.Parse(data)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse variables file %s", path), ErrLoad)
	}
	return map[string]any(v), nil
}

// VerifyVariables checks that every referenced $ENV name is defined in the
// union of the given variable files. All missing names are reported at once.
func (n *Node) VerifyVariables(files []string) error {
	if len(files) == 0 {
		return errors.WithHint(
			errors.New("variable verification is enabled but no variable files are configured"),
			"set verify_variables_from or disable verify_variables")
	}
	all := make(map[string]any)
	for _, f := range files {
		vars, err := ReadVariablesFile(f)
		if err != nil {
			return err
		}
		for k, v := range vars {
			all[k] = v
		}
	}

	missing := MissingVariables(n.ConfigVars, all)
	if len(missing) > 0 {
		n.logger.Error("Variables verification failed", "missing", missing)
		return errors.Mark(
			errors.Newf("missing variables: %s", strings.Join(missing, ", ")),
			ErrVariablesMissing)
	}
	n.logger.Info("Variables verification succeeded")
	return nil
}

// MissingVariables returns the referenced names absent from available, in reference order.
func MissingVariables(referenced []string, available map[string]any) []string {
	var missing []string
	for _, name := range referenced {
		if _, ok := available[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// VerifySecrets resolves every referenced secret through r and keeps the
// values for upload. Unresolvable names are reported at once.
func (n *Node) VerifySecrets(ctx context.Context, r SecretResolver) error {
	resolved, missing, err := r.Resolve(ctx, n.ConfigSecrets)
	if err != nil {
		return errors.Wrap(err, "resolve secrets")
	}
	if resolved == nil {
		resolved = make(map[string]string)
	}
	n.UploadSecrets = resolved
	if len(missing) > 0 {
		sort.Strings(missing)
		n.logger.Error("Secrets verification failed", "missing", missing)
		return errors.Mark(
			errors.Newf("missing secrets: %s", strings.Join(missing, ", ")),
			ErrSecretsMissing)
	}
	n.logger.Info("Secrets verification succeeded")
	return nil
}
