package entity

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) Entity {
	t.Helper()
	e, err := Parse([]byte(s))
	require.NoError(t, err)
	return e
}

func TestLookup(t *testing.T) {
	e := mustParse(t, `{
		"_id": "p1",
		"type": "pipe",
		"source": {"type": "dataset", "dataset": "in", "count": 3},
		"metadata": {"node": null},
		"tags": ["a", "b"]
	}`)

	tests := []struct {
		name   string
		path   string
		want   any
		wantOK bool
	}{
		{name: "top level", path: "_id", want: "p1", wantOK: true},
		{name: "nested", path: "source.type", want: "dataset", wantOK: true},
		{name: "number stays json.Number", path: "source.count", want: json.Number("3"), wantOK: true},
		{name: "missing leaf", path: "source.datasets", wantOK: false},
		{name: "missing intermediate", path: "sink.type", wantOK: false},
		{name: "through a string", path: "_id.x", wantOK: false},
		{name: "through an array", path: "tags.a", wantOK: false},
		{name: "empty segment", path: "source..type", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.Lookup(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestLookupString_NullIsAbsent(t *testing.T) {
	e := mustParse(t, `{"metadata": {"node": null, "n": 1, "s": "x"}}`)

	_, ok := e.LookupString("metadata.node")
	assert.False(t, ok)
	_, ok = e.LookupString("metadata.n")
	assert.False(t, ok)
	s, ok := e.LookupString("metadata.s")
	assert.True(t, ok)
	assert.Equal(t, "x", s)
}

func TestLookup_PathTooLong(t *testing.T) {
	e := Entity{"a": "b"}
	long := strings.Repeat("a.", MaxPathSegments) + "a"
	_, ok := e.Lookup(long)
	assert.False(t, ok)

	_, err := e.Resolve(long)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPathTooLong))
}

func TestResolve(t *testing.T) {
	e := mustParse(t, `{"_id": "p1", "sink": {"dataset": "out"}, "list": [1]}`)

	v, err := e.Resolve("sink.dataset")
	require.NoError(t, err)
	assert.Equal(t, "out", v)

	_, err = e.Resolve("sink.missing.key")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyNotFound))
	assert.Contains(t, err.Error(), `"sink.missing"`)

	_, err = e.Resolve("list.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestResolve_NestedEntity(t *testing.T) {
	e := Entity{"inner": Entity{"k": "v"}}
	v, err := e.Resolve("inner.k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestClone_IsDeep(t *testing.T) {
	e := mustParse(t, `{"a": {"b": [1, {"c": "d"}]}}`)
	c := e.Clone()

	c["a"].(map[string]any)["b"].([]any)[1].(map[string]any)["c"] = "changed"
	v, _ := e.Lookup("a.b")
	assert.Equal(t, "d", v.([]any)[1].(map[string]any)["c"])
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`[1,2]`))
	assert.ErrorContains(t, err, "expected a JSON object, got array")

	_, err = Parse([]byte(`{"a": 1} {"b": 2}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"a": `))
	assert.Error(t, err)
}

func TestParseList(t *testing.T) {
	list, err := ParseList([]byte(`[{"_id": "a"}, {"_id": "b", "type": "pipe"}]`))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID())
	assert.Equal(t, "pipe", list[1].Type())

	_, err = ParseList([]byte(`[{"_id": "a"}, 3]`))
	assert.ErrorContains(t, err, "item 1")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "null", KindOf(nil))
	assert.Equal(t, "number", KindOf(json.Number("1")))
	assert.Equal(t, "object", KindOf(map[string]any{}))
	assert.Equal(t, "array", KindOf([]any{}))
}
