package templates

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mattjoyce/nodesync/internal/entity"
)

// ErrPlaceholder marks a placeholder that could not be resolved. It is a
// template authoring error and aborts the run.
var ErrPlaceholder = errors.New("placeholder resolution failed")

// Placeholder syntax.
const (
	ReplaceID      = "##REPLACE_ID##"
	inboundPrefix  = "INBOUND_PARENT_PIPE."
	outboundPrefix = "OUTBOUND_PARENT_PIPE."
)

var placeholderPattern = regexp.MustCompile(`##(REPLACE_ID|INBOUND_PARENT_PIPE\.[^#]+|OUTBOUND_PARENT_PIPE\.[^#]+)##`)

type kind int

const (
	kindReplaceID kind = iota
	kindInbound
	kindOutbound
)

// Bindings are the values placeholders resolve against.
type Bindings struct {
	// ID replaces ##REPLACE_ID##: the inbound pipe id for pipe templates, the
	// remote node name for system templates.
	ID string
	// Inbound is the pipe on the producing node. Nil fails every
	// ##INBOUND_PARENT_PIPE.*## lookup.
	Inbound entity.Entity
	// Outbound is the consuming pipe, nil when there is none.
	Outbound entity.Entity
}

// Fill instantiates every entity of t. Either all entities are returned or
// none: the first unresolved placeholder aborts the fill.
func Fill(t *Template, b Bindings) ([]entity.Entity, error) {
	out := make([]entity.Entity, 0, len(t.Entities))
	for i, shape := range t.Entities {
		e, err := FillEntity(shape, b)
		if err != nil {
			return nil, errors.Wrapf(err, "template %s entity %d", t.Role, i)
		}
		out = append(out, e)
	}
	return out, nil
}

// FillEntity substitutes placeholders in every string value and key of shape
// and returns a new entity; shape is not modified.
func FillEntity(shape entity.Entity, b Bindings) (entity.Entity, error) {
	v, err := fillValue(map[string]any(shape), b)
	if err != nil {
		return nil, err
	}
	return entity.Entity(v.(map[string]any)), nil
}

func fillValue(v any, b Bindings) (any, error) {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			nk, err := fillKey(k, b)
			if err != nil {
				return nil, err
			}
			if _, dup := out[nk]; dup {
				return nil, errors.Mark(errors.Newf("key %q collides with another key after substitution", nk), ErrPlaceholder)
			}
			nv, err := fillValue(val, b)
			if err != nil {
				return nil, err
			}
			out[nk] = nv
		}
		return out, nil
	case entity.Entity:
		return fillValue(map[string]any(tv), b)
	case []any:
		out := make([]any, len(tv))
		for i, val := range tv {
			nv, err := fillValue(val, b)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case string:
		return fillString(tv, b)
	default:
		return v, nil
	}
}

func fillKey(k string, b Bindings) (string, error) {
	v, err := fillString(k, b)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	s, err := scalarText(v)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "object key %q", k), ErrPlaceholder)
	}
	return s, nil
}

type match struct {
	start, end int
	kind       kind
	path       string
	value      any
}

// fillString resolves placeholders in one string. A string that is exactly
// one placeholder takes the resolved value's JSON type; otherwise resolved
// values are spliced in as text. Resolved text is never scanned again.
func fillString(s string, b Bindings) (any, error) {
	locs := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(locs) == 0 {
		return s, nil
	}

	matches := make([]*match, 0, len(locs))
	for _, loc := range locs {
		body := s[loc[2]:loc[3]]
		m := &match{start: loc[0], end: loc[1]}
		switch {
		case body == "REPLACE_ID":
			m.kind = kindReplaceID
		case strings.HasPrefix(body, inboundPrefix):
			m.kind = kindInbound
			m.path = strings.TrimPrefix(body, inboundPrefix)
		default:
			m.kind = kindOutbound
			m.path = strings.TrimPrefix(body, outboundPrefix)
		}
		matches = append(matches, m)
	}

	// Resolve in the fixed order: REPLACE_ID, INBOUND, OUTBOUND.
	for _, k := range []kind{kindReplaceID, kindInbound, kindOutbound} {
		for _, m := range matches {
			if m.kind != k {
				continue
			}
			val, err := resolve(m, b)
			if err != nil {
				return nil, err
			}
			m.value = val
		}
	}

	if len(matches) == 1 && matches[0].start == 0 && matches[0].end == len(s) {
		return entity.CloneValue(matches[0].value), nil
	}

	var sb strings.Builder
	prev := 0
	for _, m := range matches {
		sb.WriteString(s[prev:m.start])
		text, err := scalarText(m.value)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "placeholder %q", s[m.start:m.end]), ErrPlaceholder)
		}
		sb.WriteString(text)
		prev = m.end
	}
	sb.WriteString(s[prev:])
	return sb.String(), nil
}

func resolve(m *match, b Bindings) (any, error) {
	switch m.kind {
	case kindReplaceID:
		return b.ID, nil
	case kindInbound:
		return lookupStrict("##INBOUND_PARENT_PIPE."+m.path+"##", b.Inbound, m.path, "inbound")
	default:
		return lookupStrict("##OUTBOUND_PARENT_PIPE."+m.path+"##", b.Outbound, m.path, "outbound")
	}
}

func lookupStrict(placeholder string, ctx entity.Entity, path, side string) (any, error) {
	if ctx == nil {
		return nil, errors.Mark(
			errors.WithHintf(errors.Newf("%s: no %s parent pipe to resolve against", placeholder, side),
				"only use %s placeholders in templates whose pipes always have a %s parent", strings.ToUpper(side), side),
			ErrPlaceholder)
	}
	v, err := ctx.Resolve(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "%s in %s parent pipe %q", placeholder, side, ctx.ID()), ErrPlaceholder)
	}
	return v, nil
}

// scalarText renders a scalar for splicing into a larger string.
func scalarText(v any) (string, error) {
	switch tv := v.(type) {
	case string:
		return tv, nil
	case json.Number:
		return tv.String(), nil
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(tv), nil
	case bool:
		return strconv.FormatBool(tv), nil
	case nil:
		return "null", nil
	default:
		return "", errors.Newf("cannot splice a JSON %s into a string", entity.KindOf(v))
	}
}
