// Package node loads a node's configuration entities and extracts its pipe graph.
package node

import (
	"bufio"
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mattjoyce/nodesync/internal/entity"
	"github.com/mattjoyce/nodesync/internal/log"
)

// Master is the name of the node that owns untagged documents.
const Master = "master"

// ErrLoad marks failures to read or parse a node's configuration.
var ErrLoad = errors.New("node configuration load failed")

// PipeFlow is the data flow of one pipe: the datasets it reads and the one it writes.
type PipeFlow struct {
	// Sources holds unique dataset ids in first-seen order. Empty when the
	// pipe's source type is neither dataset nor merge.
	Sources []string
	Sink    string
}

// Consumes reports whether dataset is one of the flow's sources.
func (f PipeFlow) Consumes(dataset string) bool {
	for _, s := range f.Sources {
		if s == dataset {
			return true
		}
	}
	return false
}

// Options configures a Node.
type Options struct {
	// Name is "master", an extra node name, or "" for an anonymous node that
	// owns every document.
	Name string
	// Root is the node config directory; whitelist entries are relative to it.
	Root string
	// Whitelist is the whitelist path relative to Root.
	Whitelist string
	Proxy     bool
	Logger    *slog.Logger
}

// Node is one deployment target and the configuration it owns.
type Node struct {
	Name      string
	Root      string
	Whitelist string
	Proxy     bool

	Conf  []entity.Entity
	Pipes map[string]PipeFlow

	// ConfigVars and ConfigSecrets are filled by FindVariablesAndSecrets.
	ConfigVars    []string
	ConfigSecrets []string

	UploadVars    map[string]any
	UploadSecrets map[string]string

	logger *slog.Logger
}

// New creates an empty node.
func New(opts Options) *Node {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithNode(opts.Name)
	}
	return &Node{
		Name:          opts.Name,
		Root:          opts.Root,
		Whitelist:     opts.Whitelist,
		Proxy:         opts.Proxy,
		Pipes:         make(map[string]PipeFlow),
		UploadVars:    make(map[string]any),
		UploadSecrets: make(map[string]string),
		logger:        logger,
	}
}

// Anonymous reports whether the node skips ownership checks.
func (n *Node) Anonymous() bool { return n.Name == "" }

// DisplayName is the node name, or "anonymous".
func (n *Node) DisplayName() string {
	if n.Anonymous() {
		return "anonymous"
	}
	return n.Name
}

// Logger returns the node's logger.
func (n *Node) Logger() *slog.Logger { return n.logger }

// Load reads every file in the whitelist, keeps the documents this node owns,
// and extracts their pipe flows. Any missing or unparsable file aborts the load.
func (n *Node) Load() error {
	wlPath := filepath.Join(n.Root, n.Whitelist)
	files, err := ReadWhitelist(wlPath)
	if err != nil {
		return err
	}

	for _, name := range files {
		path := filepath.Join(n.Root, name)
		data, err := os.ReadFile(path)
		if err != nil {
			n.logger.Error("Could not find file in config", "file", path)
			return errors.Mark(
				errors.WithHintf(errors.Wrapf(err, "read %s", path),
					"check that %s listed in %s exists", name, wlPath),
				ErrLoad)
		}
		doc, err := entity.Parse(data)
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "parse %s", path), ErrLoad)
		}
		if !n.Owns(doc) {
			continue
		}
		if err := n.Add(doc); err != nil {
			return errors.Mark(errors.Wrapf(err, "%s", path), ErrLoad)
		}
	}

	n.logger.Info("Loaded node configuration",
		"files", len(files),
		"entities", len(n.Conf),
		"pipes", len(n.Pipes),
	)
	return nil
}

// ReadWhitelist returns the file names listed in a whitelist, skipping blank lines.
func ReadWhitelist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(
			errors.WithHint(errors.Wrapf(err, "read whitelist %s", path),
				"set the whitelist path in the deploy configuration"),
			ErrLoad)
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "scan whitelist %s", path), ErrLoad)
	}
	return out, nil
}

// Owns decides whether a document belongs to this node. A document tagged
// with metadata.node belongs to the node with exactly that name; an untagged
// document belongs to master. Anonymous nodes own everything.
func (n *Node) Owns(doc entity.Entity) bool {
	if n.Anonymous() {
		return true
	}
	if tag, ok := doc.LookupString("metadata.node"); ok {
		return tag == n.Name
	}
	return n.Name == Master
}

// Add appends an owned document and, for pipes, records its flow. A null
// source.type counts as absent.
func (n *Node) Add(doc entity.Entity) error {
	n.Conf = append(n.Conf, doc)
	if v, ok := doc.Lookup("source.type"); !ok || v == nil {
		return nil
	}
	return n.addPipeFlow(doc)
}

// Append adds a synthesized entity. Pipe flows are not recomputed.
func (n *Node) Append(docs ...entity.Entity) {
	n.Conf = append(n.Conf, docs...)
}

// Entity returns the owned entity with the given id.
func (n *Node) Entity(id string) (entity.Entity, bool) {
	for _, e := range n.Conf {
		if e.ID() == id {
			return e, true
		}
	}
	return nil, false
}

func (n *Node) addPipeFlow(doc entity.Entity) error {
	id := doc.ID()
	if id == "" {
		return errors.New("pipe with source.type has no string _id")
	}

	flow, err := ExtractFlow(doc)
	if err != nil {
		return errors.Wrapf(err, "pipe %q", id)
	}
	n.Pipes[id] = flow
	n.logger.Debug("Pipe flow", "pipe", id, "sources", flow.Sources, "sink", flow.Sink)
	return nil
}

// ExtractFlow computes the flow of a pipe entity. dataset sources contribute
// source.dataset; merge sources contribute every source.datasets member up to
// its first space. The sink is sink.dataset for dataset sinks, otherwise the
// pipe's own id.
func ExtractFlow(doc entity.Entity) (PipeFlow, error) {
	var flow PipeFlow

	srcType, _ := doc.LookupString("source.type")
	var raw any
	var ok bool
	switch srcType {
	case "dataset":
		raw, ok = doc.Lookup("source.dataset")
	case "merge":
		raw, ok = doc.Lookup("source.datasets")
	}
	if ok && raw != nil {
		switch v := raw.(type) {
		case string:
			flow.Sources = addUnique(flow.Sources, datasetID(v))
		case []any:
			for i, item := range v {
				s, isStr := item.(string)
				if !isStr {
					return PipeFlow{}, errors.Newf("source.datasets[%d] is %s, not a string", i, entity.KindOf(item))
				}
				flow.Sources = addUnique(flow.Sources, datasetID(s))
			}
		default:
			return PipeFlow{}, errors.Newf("unsupported %s source value of kind %s", srcType, entity.KindOf(raw))
		}
	}

	if sinkType, _ := doc.LookupString("sink.type"); sinkType == "dataset" {
		flow.Sink, _ = doc.LookupString("sink.dataset")
	}
	if flow.Sink == "" {
		flow.Sink = doc.ID()
	}
	return flow, nil
}

// datasetID strips the inline annotation of a merge source ("ds filter").
func datasetID(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

func addUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
