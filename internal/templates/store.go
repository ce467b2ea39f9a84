// Package templates loads bridge templates and fills their placeholders.
package templates

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/mattjoyce/nodesync/internal/entity"
	"github.com/mattjoyce/nodesync/internal/node"
)

// Role identifies one bridge template.
type Role string

// Template roles. The string value is the template's filename without ".json".
const (
	PipeOnExtraFromExtraToMaster   Role = "pipe_on_extra_from_extra_to_master"
	PipeOnExtraFromMasterToExtra   Role = "pipe_on_extra_from_master_to_extra"
	SystemOnExtraFromExtraToMaster Role = "system_on_extra_from_extra_to_master"
	SystemOnExtraFromMasterToExtra Role = "system_on_extra_from_master_to_extra"

	PipeOnMasterFromExtraToMaster   Role = "pipe_on_master_from_extra_to_master"
	PipeOnMasterFromMasterToExtra   Role = "pipe_on_master_from_master_to_extra"
	SystemOnMasterFromExtraToMaster Role = "system_on_master_from_extra_to_master"
	SystemOnMasterFromMasterToExtra Role = "system_on_master_from_master_to_extra"

	NodeMetadata Role = "node-metadata"
)

// NodeMetadataFile is the filename of the node metadata template.
const NodeMetadataFile = "node-metadata.conf.json"

// Roles lists every role in a fixed order.
var Roles = []Role{
	PipeOnExtraFromExtraToMaster,
	PipeOnExtraFromMasterToExtra,
	SystemOnExtraFromExtraToMaster,
	SystemOnExtraFromMasterToExtra,
	PipeOnMasterFromExtraToMaster,
	PipeOnMasterFromMasterToExtra,
	SystemOnMasterFromExtraToMaster,
	SystemOnMasterFromMasterToExtra,
	NodeMetadata,
}

// Filename returns the file a role is loaded from.
func (r Role) Filename() string {
	if r == NodeMetadata {
		return NodeMetadataFile
	}
	return string(r) + ".json"
}

func roleForFile(name string) (Role, bool) {
	for _, r := range Roles {
		if r.Filename() == name {
			return r, true
		}
	}
	return "", false
}

// Template is one or more entity shapes with unfilled placeholders.
type Template struct {
	Role     Role
	Entities []entity.Entity
	// List records whether the file held an array rather than a single object.
	List bool
}

// Store holds the templates found in a directory. Absent roles are allowed.
type Store struct {
	Dir       string
	templates map[Role]*Template
	logger    *slog.Logger
}

// NewStore creates an empty store; Add fills it. Useful in tests.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{templates: make(map[Role]*Template), logger: logger}
}

// Load scans dir and loads every file whose name matches a role. Other files
// are ignored. A file that is not a JSON object or array of objects is a load
// error.
func Load(dir string, logger *slog.Logger) (*Store, error) {
	s := NewStore(logger)
	s.Dir = dir

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Mark(
			errors.WithHint(errors.Wrapf(err, "read template directory %s", dir),
				"check the template path configured for the extra node"),
			node.ErrLoad)
	}

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		role, ok := roleForFile(de.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "read template %s", path), node.ErrLoad)
		}
		tpl, err := Parse(role, data)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "parse template %s", path), node.ErrLoad)
		}
		s.templates[role] = tpl
	}

	s.logger.Debug("Loaded templates", "dir", dir, "count", len(s.templates))
	return s, nil
}

// Parse decodes a template file: a single object or an array of objects.
func Parse(role Role, data []byte) (*Template, error) {
	v, err := entity.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	switch tv := v.(type) {
	case map[string]any:
		return &Template{Role: role, Entities: []entity.Entity{entity.Entity(tv)}}, nil
	case []any:
		list, err := entity.AsList(tv)
		if err != nil {
			return nil, err
		}
		return &Template{Role: role, Entities: list, List: true}, nil
	default:
		return nil, errors.Newf("template must be an object or an array of objects, got %s", entity.KindOf(v))
	}
}

// Add registers a template, replacing any previous one for the role.
func (s *Store) Add(t *Template) {
	s.templates[t.Role] = t
}

// Get returns the template for role, or false when the file was not present.
func (s *Store) Get(role Role) (*Template, bool) {
	t, ok := s.templates[role]
	return t, ok
}

// Missing lists the roles without a template.
func (s *Store) Missing() []Role {
	var out []Role
	for _, r := range Roles {
		if _, ok := s.templates[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}
