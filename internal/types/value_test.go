package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, raw string) Value {
	t.Helper()
	var v Value
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestValue_Lookup(t *testing.T) {
	root := mustDecode(t, `{
		"userInfo": {"email": "a@b.org", "tags": ["x", "y"]},
		"evaluation": {"metadata": {"title": {"rating": 4, "comments": "fine"}}},
		"flag": true,
		"label": "plain"
	}`)

	tests := []struct {
		name   string
		path   []string
		wantOK bool
		want   interface{}
	}{
		{name: "nested record", path: []string{"userInfo", "email"}, wantOK: true, want: "a@b.org"},
		{name: "list index", path: []string{"userInfo", "tags", "1"}, wantOK: true, want: "y"},
		{name: "list index out of range", path: []string{"userInfo", "tags", "5"}, wantOK: false},
		{name: "list non-numeric index", path: []string{"userInfo", "tags", "first"}, wantOK: false},
		{name: "missing key", path: []string{"userInfo", "phone"}, wantOK: false},
		{name: "walk through string", path: []string{"label", "inner"}, wantOK: false},
		{name: "walk through bool", path: []string{"flag", "inner"}, wantOK: false},
		{name: "deep number", path: []string{"evaluation", "metadata", "title", "rating"}, wantOK: true, want: 4.0},
		{name: "empty path returns root", path: nil, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := root.Lookup(tt.path...)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.True(t, got.IsNull())
				return
			}
			if tt.want != nil {
				assert.Equal(t, tt.want, got.Interface())
			}
		})
	}
}

func TestValue_Lookup_OnNull(t *testing.T) {
	var v Value
	got, ok := v.Lookup("anything")
	assert.False(t, ok)
	assert.Equal(t, KindNull, got.Kind())
}

func TestValue_Float(t *testing.T) {
	tests := []struct {
		name   string
		value  Value
		want   float64
		wantOK bool
	}{
		{name: "number", value: Number(3.5), want: 3.5, wantOK: true},
		{name: "numeric string", value: String(" 4 "), want: 4, wantOK: true},
		{name: "text string", value: String("four"), wantOK: false},
		{name: "bool", value: Bool(true), wantOK: false},
		{name: "null", value: Null(), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.value.Float()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValue_ImmutableConstruction(t *testing.T) {
	fields := map[string]Value{"a": String("1")}
	rec := Record(fields)
	fields["a"] = String("changed")
	fields["b"] = String("added")

	got, ok := rec.Lookup("a")
	require.True(t, ok)
	text, _ := got.Text()
	assert.Equal(t, "1", text)
	assert.Equal(t, 1, rec.Len())

	items := []Value{String("x")}
	list := List(items...)
	items[0] = String("y")
	first, _ := list.Lookup("0")
	text, _ = first.Text()
	assert.Equal(t, "x", text)
}

func TestFromAny_RejectsUnsupportedTypes(t *testing.T) {
	_, err := FromAny(map[string]interface{}{"bad": struct{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestValue_MarshalJSON_Canonical(t *testing.T) {
	v := mustDecode(t, `{"b": 1, "a": [true, null, "s"]}`)
	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null,"s"],"b":1}`, string(out))
}

func TestDecodeEvaluations(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		count   int
		wantErr bool
	}{
		{name: "bare array", payload: `[{"a": 1}, {"a": 2}]`, count: 2},
		{name: "wrapped object", payload: `{"evaluations": [{"a": 1}]}`, count: 1},
		{name: "empty array", payload: `[]`, count: 0},
		{name: "object without evaluations", payload: `{"items": []}`, wantErr: true},
		{name: "non-object item", payload: `[1, 2]`, wantErr: true},
		{name: "invalid json", payload: `[{"a": }]`, wantErr: true},
		{name: "empty payload", payload: `   `, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evals, err := DecodeEvaluations([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, evals, tt.count)
		})
	}
}
