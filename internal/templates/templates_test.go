package templates

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/nodesync/internal/entity"
	"github.com/mattjoyce/nodesync/internal/node"
)

func parse(t *testing.T, s string) entity.Entity {
	t.Helper()
	e, err := entity.Parse([]byte(s))
	require.NoError(t, err)
	return e
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"pipe_on_extra_from_master_to_extra.json": `{"_id": "##REPLACE_ID##", "type": "pipe"}`,
		"pipe_on_master_from_master_to_extra.json": `[{"_id": "##REPLACE_ID##", "type": "pipe"},
			{"_id": "##REPLACE_ID##-endpoint", "type": "pipe"}]`,
		"node-metadata.conf.json": `{"_id": "node", "type": "metadata"}`,
		"README.md":               "not a template",
		"pipe_on_nowhere.json":    `{"ignored": true}`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "system_on_extra_from_extra_to_master.json"), 0o755))

	s, err := Load(dir, nil)
	require.NoError(t, err)

	single, ok := s.Get(PipeOnExtraFromMasterToExtra)
	require.True(t, ok)
	assert.False(t, single.List)
	assert.Len(t, single.Entities, 1)

	list, ok := s.Get(PipeOnMasterFromMasterToExtra)
	require.True(t, ok)
	assert.True(t, list.List)
	assert.Len(t, list.Entities, 2)

	_, ok = s.Get(NodeMetadata)
	assert.True(t, ok)

	_, ok = s.Get(SystemOnExtraFromExtraToMaster)
	assert.False(t, ok, "directories are not templates")

	assert.Len(t, s.Missing(), len(Roles)-3)
}

func TestLoad_BadTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipe_on_extra_from_extra_to_master.json"), []byte(`"just a string"`), 0o644))

	_, err := Load(dir, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, node.ErrLoad))
}

func TestLoad_MissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, node.ErrLoad))
}

func TestRoleFilename(t *testing.T) {
	assert.Equal(t, "pipe_on_master_from_extra_to_master.json", PipeOnMasterFromExtraToMaster.Filename())
	assert.Equal(t, "node-metadata.conf.json", NodeMetadata.Filename())
}

func TestFillEntity(t *testing.T) {
	inbound := parse(t, `{
		"_id": "m1", "type": "pipe",
		"sink": {"type": "dataset", "dataset": "out"},
		"batch": 100,
		"tags": ["a", "b"]
	}`)
	outbound := parse(t, `{"_id": "e1", "source": {"type": "dataset", "dataset": "out"}}`)
	b := Bindings{ID: "m1", Inbound: inbound, Outbound: outbound}

	tests := []struct {
		name string
		tpl  string
		want string
	}{
		{
			name: "replace id everywhere",
			tpl:  `{"_id": "##REPLACE_ID##", "name": "from ##REPLACE_ID## to ##REPLACE_ID##"}`,
			want: `{"_id": "m1", "name": "from m1 to m1"}`,
		},
		{
			name: "nested inbound key",
			tpl:  `{"_id": "##REPLACE_ID##", "source": {"dataset": "##INBOUND_PARENT_PIPE.sink.dataset##"}}`,
			want: `{"_id": "m1", "source": {"dataset": "out"}}`,
		},
		{
			name: "whole-string placeholder keeps JSON type",
			tpl:  `{"n": "##INBOUND_PARENT_PIPE.batch##", "t": "##INBOUND_PARENT_PIPE.tags##", "s": "##INBOUND_PARENT_PIPE.sink##"}`,
			want: `{"n": 100, "t": ["a", "b"], "s": {"type": "dataset", "dataset": "out"}}`,
		},
		{
			name: "embedded number is spliced as text",
			tpl:  `{"d": "batch-##INBOUND_PARENT_PIPE.batch##"}`,
			want: `{"d": "batch-100"}`,
		},
		{
			name: "outbound placeholder",
			tpl:  `{"target": "##OUTBOUND_PARENT_PIPE._id##", "in": ["##OUTBOUND_PARENT_PIPE.source.dataset##"]}`,
			want: `{"target": "e1", "in": ["out"]}`,
		},
		{
			name: "placeholders in keys",
			tpl:  `{"##REPLACE_ID##-key": true}`,
			want: `{"m1-key": true}`,
		},
		{
			name: "non-placeholder hashes untouched",
			tpl:  `{"x": "##NOT_A_PLACEHOLDER##", "y": "# single #"}`,
			want: `{"x": "##NOT_A_PLACEHOLDER##", "y": "# single #"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FillEntity(parse(t, tt.tpl), b)
			require.NoError(t, err)
			assert.Equal(t, parse(t, tt.want), got)
		})
	}
}

func TestFillEntity_Failures(t *testing.T) {
	inbound := parse(t, `{"_id": "m1", "sink": {"dataset": "out"}, "tags": ["a"]}`)

	tests := []struct {
		name string
		tpl  string
		b    Bindings
	}{
		{
			name: "missing inbound key",
			tpl:  `{"_id": "##REPLACE_ID##", "x": "##INBOUND_PARENT_PIPE.missing.key##"}`,
			b:    Bindings{ID: "m1", Inbound: inbound},
		},
		{
			name: "outbound absent",
			tpl:  `{"x": "##OUTBOUND_PARENT_PIPE._id##"}`,
			b:    Bindings{ID: "m1", Inbound: inbound},
		},
		{
			name: "inbound absent",
			tpl:  `{"x": "##INBOUND_PARENT_PIPE._id##"}`,
			b:    Bindings{ID: "master"},
		},
		{
			name: "array spliced into string",
			tpl:  `{"x": "tags: ##INBOUND_PARENT_PIPE.tags##"}`,
			b:    Bindings{ID: "m1", Inbound: inbound},
		},
		{
			name: "keys collide",
			tpl:  `{"##REPLACE_ID##": 1, "m1": 2}`,
			b:    Bindings{ID: "m1", Inbound: inbound},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FillEntity(parse(t, tt.tpl), tt.b)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrPlaceholder), "error %v should be a placeholder error", err)
			assert.Nil(t, got)
		})
	}
}

func TestFill_AllOrNothing(t *testing.T) {
	tpl := &Template{
		Role: PipeOnExtraFromMasterToExtra,
		Entities: []entity.Entity{
			parse(t, `{"_id": "##REPLACE_ID##"}`),
			parse(t, `{"_id": "##INBOUND_PARENT_PIPE.nope##"}`),
		},
		List: true,
	}
	got, err := Fill(tpl, Bindings{ID: "m1", Inbound: entity.Entity{"_id": "m1"}})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "pipe_on_extra_from_master_to_extra entity 1")
}

func TestFill_IdempotentAndPure(t *testing.T) {
	shape := parse(t, `{"_id": "##REPLACE_ID##", "type": "pipe",
		"source": {"type": "http_endpoint", "dataset": "##INBOUND_PARENT_PIPE.sink.dataset##"},
		"list": ["##REPLACE_ID##", {"k": "##OUTBOUND_PARENT_PIPE._id##"}]}`)
	before, err := json.Marshal(shape)
	require.NoError(t, err)

	tpl := &Template{Role: PipeOnMasterFromMasterToExtra, Entities: []entity.Entity{shape}}
	b := Bindings{
		ID:       "m1",
		Inbound:  parse(t, `{"_id": "m1", "sink": {"dataset": "out"}}`),
		Outbound: parse(t, `{"_id": "e1"}`),
	}

	first, err := Fill(tpl, b)
	require.NoError(t, err)
	second, err := Fill(tpl, b)
	require.NoError(t, err)

	j1, err := json.Marshal(first)
	require.NoError(t, err)
	j2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(j1), string(j2))
	assert.Equal(t, "m1", first[0].ID())

	after, err := json.Marshal(shape)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after), "template must not be mutated")
}

func TestFill_ValuesAreNotRescanned(t *testing.T) {
	inbound := parse(t, `{"_id": "##OUTBOUND_PARENT_PIPE._id##", "desc": "##REPLACE_ID##"}`)
	got, err := FillEntity(parse(t, `{"_id": "##INBOUND_PARENT_PIPE._id##", "d": "x ##INBOUND_PARENT_PIPE.desc##"}`),
		Bindings{ID: "id", Inbound: inbound})
	require.NoError(t, err)
	assert.Equal(t, "##OUTBOUND_PARENT_PIPE._id##", got["_id"])
	assert.Equal(t, "x ##REPLACE_ID##", got["d"])
}

func TestFill_ResolvedValuesAreCopies(t *testing.T) {
	inbound := parse(t, `{"_id": "m1", "sink": {"dataset": "out"}}`)
	got, err := FillEntity(parse(t, `{"s": "##INBOUND_PARENT_PIPE.sink##"}`), Bindings{ID: "m1", Inbound: inbound})
	require.NoError(t, err)

	got["s"].(map[string]any)["dataset"] = "changed"
	v, _ := inbound.Lookup("sink.dataset")
	assert.Equal(t, "out", v)
}
