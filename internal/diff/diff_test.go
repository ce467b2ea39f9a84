package diff

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/nodesync/internal/entity"
)

func conf(t *testing.T, s string) []entity.Entity {
	t.Helper()
	v, err := entity.DecodeBytes([]byte(s))
	require.NoError(t, err)
	list, err := entity.AsList(v.([]any))
	require.NoError(t, err)
	return list
}

func TestEntities(t *testing.T) {
	local := conf(t, `[
		{"_id": "b", "type": "pipe", "batch": 10},
		{"_id": "a", "type": "pipe"},
		{"_id": "new", "type": "system"}
	]`)
	remote := conf(t, `[
		{"_id": "a", "type": "pipe"},
		{"_id": "b", "type": "pipe", "batch": 11},
		{"_id": "gone-2", "type": "pipe"},
		{"_id": "gone-1", "type": "pipe"}
	]`)

	added, removed, changed := Entities(local, remote)
	assert.Equal(t, []string{"new"}, added)
	assert.Equal(t, []string{"gone-1", "gone-2"}, removed)
	assert.Equal(t, []string{"b"}, changed)
}

func TestEntities_Symmetry(t *testing.T) {
	l := conf(t, `[{"_id": "x"}, {"_id": "y", "v": 1}, {"_id": "z"}]`)
	r := conf(t, `[{"_id": "y", "v": 2}, {"_id": "w"}]`)

	addedLR, removedLR, changedLR := Entities(l, r)
	addedRL, removedRL, changedRL := Entities(r, l)
	assert.Equal(t, addedLR, removedRL)
	assert.Equal(t, removedLR, addedRL)
	assert.Equal(t, changedLR, changedRL)
}

func TestCompute_SelfIsEmpty(t *testing.T) {
	l := conf(t, `[{"_id": "x", "n": 1.50, "list": [1, {"k": null}]}, {"_id": "y"}]`)

	res, err := Compute(context.Background(), l, l, nil)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestEqual_NumbersByValue(t *testing.T) {
	a := conf(t, `[{"_id": "x", "n": 1.0, "m": [100]}]`)[0]
	b := conf(t, `[{"_id": "x", "n": 1, "m": [1e2]}]`)[0]
	assert.True(t, Equal(a, b))
	assert.True(t, Equal(json.Number("2"), float64(2)))
	assert.False(t, Equal(json.Number("2"), "2"))
	assert.True(t, Equal(a, map[string]any(a)))
}

func TestCompute_InputsUntouched(t *testing.T) {
	l := conf(t, `[{"_id": "x", "v": 1}]`)
	r := conf(t, `[{"_id": "x", "v": 2}]`)
	before, _ := json.Marshal([]any{l, r})

	res, err := Compute(context.Background(), l, r, nil)
	require.NoError(t, err)
	require.Len(t, res.Changed, 1)

	after, _ := json.Marshal([]any{l, r})
	assert.JSONEq(t, string(before), string(after))
}

func TestCompute_PrettyFallback(t *testing.T) {
	l := conf(t, `[{"_id": "x", "z": 1, "a": "new"}]`)
	r := conf(t, `[{"_id": "x", "z": 1, "a": "old"}]`)

	res, err := Compute(context.Background(), l, r, nil)
	require.NoError(t, err)
	require.Len(t, res.Changed, 1)

	text := res.Changed[0].Text
	assert.True(t, strings.HasPrefix(text, "*** Original\n--- New\n"), text)
	assert.Contains(t, text, `!   "a": "old",`)
	assert.Contains(t, text, `!   "a": "new",`)
}

type upperReformatter struct {
	calls []string
	err   error
}

func (u *upperReformatter) Reformat(_ context.Context, e entity.Entity) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.calls = append(u.calls, e.ID())
	v, _ := e.LookupString("value")
	return strings.ToUpper("_id: " + e.ID() + "\nvalue: " + v + "\n"), nil
}

func TestCompute_Reformatter(t *testing.T) {
	l := conf(t, `[{"_id": "x", "value": "b"}, {"_id": "same"}]`)
	r := conf(t, `[{"_id": "x", "value": "a"}, {"_id": "same"}]`)

	rf := &upperReformatter{}
	res, err := Compute(context.Background(), l, r, rf)
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "x"}, rf.calls, "only changed entities are reformatted")
	require.Len(t, res.Changed, 1)
	assert.Contains(t, res.Changed[0].Text, "! VALUE: A")
	assert.Contains(t, res.Changed[0].Text, "! VALUE: B")
}

func TestCompute_ReformatterError(t *testing.T) {
	l := conf(t, `[{"_id": "x", "value": "b"}]`)
	r := conf(t, `[{"_id": "x", "value": "a"}]`)
	boom := errors.New("boom")

	_, err := Compute(context.Background(), l, r, &upperReformatter{err: boom})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}

func TestCompareVariables(t *testing.T) {
	res := &Result{}
	require.NoError(t, res.CompareVariables(
		map[string]any{"host": "a", "port": json.Number("1")},
		map[string]any{"host": "a", "port": float64(1)}))
	assert.True(t, res.VariablesCompared)
	assert.Empty(t, res.Variables)

	require.NoError(t, res.CompareVariables(
		map[string]any{"host": "a"},
		map[string]any{"host": "b"}))
	assert.Contains(t, res.Variables, `"host": "a"`)
	assert.Contains(t, res.Variables, `"host": "b"`)
	assert.False(t, res.Empty())
}

func TestContextDiff_Identical(t *testing.T) {
	out, err := ContextDiff("a\nb\n", "a\nb\n")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReport(t *testing.T) {
	res := &Result{
		Added:             []string{"n1"},
		Changed:           []Change{{ID: "c1", Text: "*** Original\n--- New\n"}},
		VariablesCompared: true,
	}
	out := res.Report()
	assert.Contains(t, out, "Added       : 1")
	assert.Contains(t, out, "c1\n*** Original")
	assert.Contains(t, out, "New entities: [n1]")
	assert.Contains(t, out, "Removed entities: <none>")
	assert.Contains(t, out, "Variables: unchanged")
}
