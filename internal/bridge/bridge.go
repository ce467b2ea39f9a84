// Package bridge derives the pipes and systems that carry data between a master
// node and an extra node.
package bridge

import (
	"log/slog"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/mattjoyce/nodesync/internal/entity"
	"github.com/mattjoyce/nodesync/internal/node"
	"github.com/mattjoyce/nodesync/internal/templates"
)

// Direction of a data flow between the two nodes.
type Direction string

const (
	ExtraToMaster Direction = "extra_to_master"
	MasterToExtra Direction = "master_to_extra"
)

// Summary reports what a synthesis run produced.
type Summary struct {
	// Bridged holds the bridge pipe ids per direction, in processing order.
	Bridged map[Direction][]string
	// Appended counts synthesized entities per node name.
	Appended map[string]int
	// MissingTemplates lists the roles that were needed but absent.
	MissingTemplates []templates.Role
}

// Synthesizer appends bridge entities to a master node and one extra node.
type Synthesizer struct {
	master *node.Node
	extra  *node.Node
	tpl    *templates.Store
	logger *slog.Logger

	summary *Summary
	warned  map[templates.Role]bool
}

// New creates a synthesizer for one master/extra pair.
func New(master, extra *node.Node, tpl *templates.Store, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		master: master,
		extra:  extra,
		tpl:    tpl,
		logger: logger.With(slog.String("extra_node", extra.Name), slog.Bool("proxy", extra.Proxy)),
	}
}

// Run synthesizes both directions and the extra node's metadata entity.
// A placeholder failure aborts the run; the nodes may then hold a partial
// set of bridges and must not be deployed.
func (s *Synthesizer) Run() (*Summary, error) {
	s.summary = &Summary{
		Bridged:  make(map[Direction][]string),
		Appended: make(map[string]int),
	}
	s.warned = make(map[templates.Role]bool)

	if err := s.extraToMaster(); err != nil {
		return nil, errors.Wrap(err, "extra to master")
	}
	if err := s.masterToExtra(); err != nil {
		return nil, errors.Wrap(err, "master to extra")
	}
	if err := s.instantiate(templates.NodeMetadata, s.extra, templates.Bindings{ID: s.extra.Name}); err != nil {
		return nil, errors.Wrap(err, "node metadata")
	}

	s.logger.Info("Synthesized bridge configuration",
		"extra_to_master", len(s.summary.Bridged[ExtraToMaster]),
		"master_to_extra", len(s.summary.Bridged[MasterToExtra]),
		"appended_master", s.summary.Appended[s.master.Name],
		"appended_extra", s.summary.Appended[s.extra.Name],
	)
	return s.summary, nil
}

func (s *Synthesizer) extraToMaster() error {
	var pipes []string
	if s.extra.Proxy {
		pipes = ProxyRelays(s.master, s.extra)
	} else {
		pipes = WritesTo(s.extra, s.master)
	}
	s.summary.Bridged[ExtraToMaster] = pipes

	for _, p := range pipes {
		b, err := bindings(p, s.extra, s.master)
		if err != nil {
			return err
		}
		if err := s.instantiate(templates.PipeOnMasterFromExtraToMaster, s.master, b); err != nil {
			return err
		}
		if err := s.instantiate(templates.PipeOnExtraFromExtraToMaster, s.extra, b); err != nil {
			return err
		}
	}

	if err := s.instantiate(templates.SystemOnExtraFromExtraToMaster, s.extra, templates.Bindings{ID: s.master.Name}); err != nil {
		return err
	}
	if !s.extra.Proxy {
		if err := s.instantiate(templates.SystemOnMasterFromExtraToMaster, s.master, templates.Bindings{ID: s.extra.Name}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synthesizer) masterToExtra() error {
	pipes := WritesTo(s.master, s.extra)
	s.summary.Bridged[MasterToExtra] = pipes

	for _, p := range pipes {
		b, err := bindings(p, s.master, s.extra)
		if err != nil {
			return err
		}
		// A proxy relays directly, so master gets no outgoing bridge pipe.
		if !s.extra.Proxy {
			if err := s.instantiate(templates.PipeOnMasterFromMasterToExtra, s.master, b); err != nil {
				return err
			}
		}
		if err := s.instantiate(templates.PipeOnExtraFromMasterToExtra, s.extra, b); err != nil {
			return err
		}
	}

	if err := s.instantiate(templates.SystemOnExtraFromMasterToExtra, s.extra, templates.Bindings{ID: s.master.Name}); err != nil {
		return err
	}
	if !s.extra.Proxy {
		if err := s.instantiate(templates.SystemOnMasterFromMasterToExtra, s.master, templates.Bindings{ID: s.extra.Name}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synthesizer) instantiate(role templates.Role, target *node.Node, b templates.Bindings) error {
	tpl, ok := s.tpl.Get(role)
	if !ok {
		if !s.warned[role] {
			s.warned[role] = true
			s.summary.MissingTemplates = append(s.summary.MissingTemplates, role)
			s.logger.Warn("Missing template", "template", role.Filename())
		}
		return nil
	}
	filled, err := templates.Fill(tpl, b)
	if err != nil {
		return err
	}
	target.Append(filled...)
	s.summary.Appended[target.Name] += len(filled)
	return nil
}

// bindings resolves the inbound parent (pipe p on the producer) and the
// outbound parent (the first consumer of p's sink on the consumer node).
func bindings(p string, producer, consumer *node.Node) (templates.Bindings, error) {
	inbound, ok := producer.Entity(p)
	if !ok {
		return templates.Bindings{}, errors.AssertionFailedf("pipe %q has a flow but no entity on node %s", p, producer.DisplayName())
	}
	b := templates.Bindings{ID: p, Inbound: inbound}
	if id, ok := FirstConsumer(consumer, producer.Pipes[p].Sink); ok {
		b.Outbound, _ = consumer.Entity(id)
	}
	return b, nil
}

// WritesTo returns the ids of pipes on a whose sink is a source of some pipe
// on b, in id order. A pipe with several consumers is listed once.
func WritesTo(a, b *node.Node) []string {
	var out []string
	bIDs := sortedPipeIDs(b)
	for _, aID := range sortedPipeIDs(a) {
		sink := a.Pipes[aID].Sink
		for _, bID := range bIDs {
			if b.Pipes[bID].Consumes(sink) {
				out = append(out, aID)
				break
			}
		}
	}
	return out
}

// FirstConsumer returns the first pipe on n, by id, reading dataset.
func FirstConsumer(n *node.Node, dataset string) (string, bool) {
	for _, id := range sortedPipeIDs(n) {
		if n.Pipes[id].Consumes(dataset) {
			return id, true
		}
	}
	return "", false
}

// InboundEndpoints returns the extra pipes that consume data bridged from
// master, in id order. A consumer is matched on the master pipe's sink
// dataset, not on the master pipe id.
func InboundEndpoints(master, extra *node.Node) []string {
	consumed := make(map[string]bool)
	for _, m := range WritesTo(master, extra) {
		consumed[master.Pipes[m].Sink] = true
	}
	var out []string
	for _, id := range sortedPipeIDs(extra) {
		for _, src := range extra.Pipes[id].Sources {
			if consumed[src] {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// ProxyRelays returns every extra pipe that is not an inbound endpoint of a
// master to extra flow. A proxy relays everything it does not already
// receive from master.
func ProxyRelays(master, extra *node.Node) []string {
	skip := make(map[string]bool)
	for _, id := range InboundEndpoints(master, extra) {
		skip[id] = true
	}
	var out []string
	for _, id := range sortedPipeIDs(extra) {
		if !skip[id] {
			out = append(out, id)
		}
	}
	return out
}

// VariablesFromMaster gives the extra node every master upload variable its
// configuration references.
func VariablesFromMaster(master, extra *node.Node) error {
	if err := extra.FindVariablesAndSecrets(); err != nil {
		return err
	}
	for _, name := range extra.ConfigVars {
		if v, ok := master.UploadVars[name]; ok {
			extra.UploadVars[name] = entity.CloneValue(v)
		}
	}
	return nil
}

func sortedPipeIDs(n *node.Node) []string {
	ids := make([]string, 0, len(n.Pipes))
	for id := range n.Pipes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
