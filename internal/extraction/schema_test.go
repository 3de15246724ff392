package extraction

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchema_Valid(t *testing.T) {
	s := DefaultSchema()
	require.NoError(t, s.Validate())
	assert.Equal(t, []string{"metadata", "research_field", "research_problem", "template", "content", "general"}, s.ComponentNames())
}

func TestParseSchema(t *testing.T) {
	raw := `
components:
  - name: summary
    fields:
      - path: review.summary.text
        subfield: text
        rating_path: [review, summary, score]
  - name: notes
    dynamic:
      path: review.notes
      comment_keys: [body]
paper:
  title:
    - meta.paper_title
`
	s, err := ParseSchema([]byte(raw))
	require.NoError(t, err)

	require.Len(t, s.Components, 2)
	assert.Equal(t, Path{"review", "summary", "text"}, s.Components[0].Fields[0].Path)
	assert.Equal(t, Path{"review", "summary", "score"}, s.Components[0].Fields[0].RatingPath)
	require.NotNil(t, s.Components[1].Dynamic)
	assert.Equal(t, Path{"review", "notes"}, s.Components[1].Dynamic.Path)
	assert.Equal(t, []Path{{"meta", "paper_title"}}, s.Paper.Title)

	// omitted sections fall back to the defaults
	def := DefaultSchema()
	assert.Equal(t, def.Token, s.Token)
	assert.Equal(t, def.Paper.DOI, s.Paper.DOI)
	assert.Equal(t, def.Evaluator.Email, s.Evaluator.Email)
}

func TestParseSchema_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no components", raw: `paper: {title: [title]}`},
		{name: "unnamed component", raw: "components:\n  - fields: [{path: a, subfield: b}]"},
		{name: "duplicate component", raw: "components:\n  - {name: a, fields: [{path: x, subfield: y}]}\n  - {name: a, fields: [{path: x, subfield: y}]}"},
		{name: "empty component", raw: "components:\n  - name: a"},
		{name: "missing subfield", raw: "components:\n  - {name: a, fields: [{path: x}]}"},
		{name: "dynamic without keys", raw: "components:\n  - {name: a, dynamic: {path: x}}"},
		{name: "path of wrong shape", raw: "components:\n  - {name: a, fields: [{path: {x: 1}, subfield: y}]}"},
		{name: "not yaml", raw: "components: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchema([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSchema)
		})
	}
}

func TestLoadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("components:\n  - {name: a, fields: [{path: x, subfield: y}]}\n"), 0o644))

	s, err := LoadSchema(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, s.ComponentNames())

	_, err = LoadSchema(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewExtractor_RejectsInvalidSchema(t *testing.T) {
	_, err := NewExtractor(&Schema{})
	assert.ErrorIs(t, err, ErrInvalidSchema)
}
