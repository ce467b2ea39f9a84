// Package entity models node configuration entities as generic JSON documents.
//
// An entity is a nested key-value document identified by "_id" and "type".
// Values are the usual JSON tree: map[string]any, []any, string, json.Number,
// bool and nil. Two lookups exist on purpose: Lookup is lenient and reports
// absence, Resolve is strict and fails with ErrKeyNotFound.
package entity

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ohler55/ojg/jp"
)

// MaxPathSegments bounds dotted key paths.
const MaxPathSegments = 32

var (
	// ErrKeyNotFound is returned by Resolve when a path does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrPathTooLong is returned for paths with more than MaxPathSegments segments.
	ErrPathTooLong = errors.New("key path too long")
)

// Entity is one configuration document.
type Entity map[string]any

// ID returns the "_id" field, or "" when missing or not a string.
func (e Entity) ID() string {
	s, _ := e["_id"].(string)
	return s
}

// Type returns the "type" field, or "" when missing or not a string.
func (e Entity) Type() string {
	s, _ := e["type"].(string)
	return s
}

// Lookup walks a dotted key path. It never fails: a missing segment, a
// non-object intermediate value, or an over-long path all report ok=false.
func (e Entity) Lookup(path string) (any, bool) {
	x, err := compile(path)
	if err != nil {
		return nil, false
	}
	res := x.Get(map[string]any(e))
	if len(res) == 0 {
		return nil, false
	}
	return res[0], true
}

// LookupString is Lookup restricted to string values; null and non-string
// values count as absent.
func (e Entity) LookupString(path string) (string, bool) {
	v, ok := e.Lookup(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Resolve walks a dotted key path and fails when any segment is missing.
func (e Entity) Resolve(path string) (any, error) {
	segs, err := split(path)
	if err != nil {
		return nil, err
	}
	var cur any = map[string]any(e)
	for i, seg := range segs {
		if ent, isEnt := cur.(Entity); isEnt {
			cur = map[string]any(ent)
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, errors.Mark(
				errors.Newf("path %q breaks at %q (not an object)", path, strings.Join(segs[:i+1], ".")),
				ErrKeyNotFound)
		}
		v, ok := m[seg]
		if !ok {
			return nil, errors.Mark(
				errors.Newf("path %q: key %q not found", path, strings.Join(segs[:i+1], ".")),
				ErrKeyNotFound)
		}
		cur = v
	}
	return cur, nil
}

// Clone returns a deep copy.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	return Entity(CloneValue(map[string]any(e)).(map[string]any))
}

// CloneValue deep-copies a JSON value tree.
func CloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, val := range tv {
			out[k] = CloneValue(val)
		}
		return out
	case Entity:
		return CloneValue(map[string]any(tv))
	case []any:
		out := make([]any, len(tv))
		for i, val := range tv {
			out[i] = CloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Decode parses a single JSON value, keeping numbers as json.Number so that
// integers survive a round trip unchanged.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

// DecodeBytes is Decode over a byte slice.
func DecodeBytes(data []byte) (any, error) {
	return Decode(bytes.NewReader(data))
}

// Parse decodes one entity. The top-level value must be an object.
func Parse(data []byte) (Entity, error) {
	v, err := DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.Newf("expected a JSON object, got %s", KindOf(v))
	}
	return Entity(m), nil
}

// ParseList decodes a JSON array of entities.
func ParseList(data []byte) ([]Entity, error) {
	v, err := DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	return AsList(v)
}

// AsList converts a decoded array into entities.
func AsList(v any) ([]Entity, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, errors.Newf("expected a JSON array, got %s", KindOf(v))
	}
	out := make([]Entity, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errors.Newf("item %d: expected a JSON object, got %s", i, KindOf(item))
		}
		out = append(out, Entity(m))
	}
	return out, nil
}

// KindOf names the JSON kind of a decoded value.
func KindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any, Entity:
		return "object"
	default:
		return "unknown"
	}
}

func split(path string) ([]string, error) {
	segs := strings.Split(path, ".")
	if len(segs) > MaxPathSegments {
		return nil, errors.Wrapf(ErrPathTooLong, "%d segments in %q", len(segs), path)
	}
	for _, s := range segs {
		if s == "" {
			return nil, errors.Mark(errors.Newf("empty segment in key path %q", path), ErrKeyNotFound)
		}
	}
	return segs, nil
}

func compile(path string) (jp.Expr, error) {
	segs, err := split(path)
	if err != nil {
		return nil, err
	}
	x := jp.R()
	for _, s := range segs {
		x = x.C(s)
	}
	return x, nil
}
