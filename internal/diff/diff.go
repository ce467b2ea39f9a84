// Package diff compares a locally synthesized configuration with the one
// running on a node.
package diff

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/mattjoyce/nodesync/internal/entity"
)

// Reformatter normalizes an entity to the node's canonical text form so that
// changed entities diff line by line the way the node would show them.
type Reformatter interface {
	Reformat(ctx context.Context, e entity.Entity) (string, error)
}

// Change is one entity present on both sides with different content.
type Change struct {
	ID string
	// Text is a context diff from the remote (Original) to the local (New) form.
	Text string
}

// Result is the outcome of comparing two configuration sets.
type Result struct {
	Added   []string
	Removed []string
	Changed []Change

	// Variables is the context diff of the variable mappings, empty when
	// they are equal or were not compared.
	Variables         string
	VariablesCompared bool
}

// Empty reports whether nothing differs.
func (r *Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Changed) == 0 && r.Variables == ""
}

// numbers compares JSON numbers by value regardless of their Go representation.
var numbers = cmp.FilterValues(
	func(x, y any) bool {
		_, xok := numberValue(x)
		_, yok := numberValue(y)
		return xok && yok
	},
	cmp.Comparer(func(x, y any) bool {
		a, _ := numberValue(x)
		b, _ := numberValue(y)
		return a.Cmp(b) == 0
	}),
)

func numberValue(v any) (*big.Rat, bool) {
	var s string
	switch tv := v.(type) {
	case json.Number:
		s = tv.String()
	case float64:
		return new(big.Rat).SetFloat64(tv), true
	case int:
		return new(big.Rat).SetInt64(int64(tv)), true
	case int64:
		return new(big.Rat).SetInt64(tv), true
	default:
		return nil, false
	}
	r, ok := new(big.Rat).SetString(s)
	return r, ok
}

// Equal reports deep structural equality of two JSON values.
func Equal(a, b any) bool {
	return cmp.Equal(normalize(a), normalize(b), numbers)
}

// normalize strips the named Entity type so that an Entity equals the same
// plain map.
func normalize(v any) any {
	if e, ok := v.(entity.Entity); ok {
		return map[string]any(e)
	}
	return v
}

// Entities classifies ids by side. Added are local only, removed remote only,
// changed are present on both sides with unequal content. All three are
// sorted. The first entity with a given id wins.
func Entities(local, remote []entity.Entity) (added, removed, changed []string) {
	l := index(local)
	r := index(remote)
	for id, le := range l {
		re, ok := r[id]
		switch {
		case !ok:
			added = append(added, id)
		case !Equal(le, re):
			changed = append(changed, id)
		}
	}
	for id := range r {
		if _, ok := l[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(changed)
	return added, removed, changed
}

func index(conf []entity.Entity) map[string]entity.Entity {
	out := make(map[string]entity.Entity, len(conf))
	for _, e := range conf {
		id := e.ID()
		if _, dup := out[id]; dup {
			continue
		}
		out[id] = e
	}
	return out
}

// Compute diffs local against remote. Changed entities are rendered through
// rf when it is non-nil, otherwise as indented JSON with sorted keys. Neither
// input is modified.
func Compute(ctx context.Context, local, remote []entity.Entity, rf Reformatter) (*Result, error) {
	added, removed, changed := Entities(local, remote)
	res := &Result{Added: added, Removed: removed}

	l := index(local)
	r := index(remote)
	for _, id := range changed {
		original, err := render(ctx, rf, r[id])
		if err != nil {
			return nil, errors.Wrapf(err, "reformat remote %q", id)
		}
		updated, err := render(ctx, rf, l[id])
		if err != nil {
			return nil, errors.Wrapf(err, "reformat local %q", id)
		}
		text, err := ContextDiff(original, updated)
		if err != nil {
			return nil, errors.Wrapf(err, "diff %q", id)
		}
		res.Changed = append(res.Changed, Change{ID: id, Text: text})
	}
	return res, nil
}

// CompareVariables records the diff between the remote and local variable
// mappings. Values are not reformatted.
func (r *Result) CompareVariables(remote, local map[string]any) error {
	r.VariablesCompared = true
	if Equal(remote, local) {
		r.Variables = ""
		return nil
	}
	original, err := Pretty(remote)
	if err != nil {
		return errors.Wrap(err, "render remote variables")
	}
	updated, err := Pretty(local)
	if err != nil {
		return errors.Wrap(err, "render local variables")
	}
	text, err := ContextDiff(original, updated)
	if err != nil {
		return err
	}
	r.Variables = text
	return nil
}

func render(ctx context.Context, rf Reformatter, e entity.Entity) (string, error) {
	if rf == nil {
		return Pretty(e)
	}
	return rf.Reformat(ctx, e)
}

// Pretty renders v as JSON indented by two spaces. Object keys are sorted.
func Pretty(v any) (string, error) {
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

// ContextDiff returns a context diff of two texts with "Original" and "New"
// headers, or "" when they are identical.
func ContextDiff(original, updated string) (string, error) {
	if original == updated {
		return "", nil
	}
	return difflib.GetContextDiffString(difflib.ContextDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(updated),
		FromFile: "Original",
		ToFile:   "New",
		Context:  3,
		Eol:      "\n",
	})
}
