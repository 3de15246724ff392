package extraction

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/eval-consensus/internal/expertise"
	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

const sampleEvaluation = `{
  "token": "tok-1",
  "timestamp": "2024-03-01T10:00:00Z",
  "paper": {"title": "  Graph Neural Networks ", "doi": "10.1000/gnn"},
  "userInfo": {
    "firstName": "Ada",
    "lastName": "Lovelace",
    "email": " Ada@Example.org ",
    "role": "Professor",
    "domainExpertise": "Expert"
  },
  "evaluation": {
    "metadata": {
      "title": {"rating": 5, "comments": "excellent extraction"},
      "authors": {"rating": "2", "comments": "missing one author"},
      "doi": {"rating": 4, "comments": "   "},
      "venue": {"comments": 42}
    },
    "researchField": {"primaryField": "not a record"},
    "content": {
      "method": {"score": 3, "feedback": "clear description"},
      "dataset": "dataset name is wrong",
      "results": {"comments": ""},
      "ignored": 7
    },
    "general": {"comments": "Good overall", "rating": 4}
  }
}`

func decode(t *testing.T, raw string) types.Evaluation {
	t.Helper()
	var v types.Value
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return types.Evaluation{Data: v}
}

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	ex, err := NewExtractor(nil)
	require.NoError(t, err)
	return ex
}

func TestExtractor_Describe(t *testing.T) {
	h := newExtractor(t).Describe(decode(t, sampleEvaluation))

	assert.Equal(t, "tok-1", h.Token)
	assert.Equal(t, "Graph Neural Networks", h.PaperTitle)
	assert.Equal(t, "10.1000/gnn", h.PaperDOI)
	assert.Equal(t, "ada@example.org", h.Evaluator)
	assert.Equal(t, "Ada Lovelace", h.EvaluatorName)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), h.Timestamp)
	require.NotNil(t, h.Profile)
	assert.Equal(t, expertise.TierExpert, h.Expertise.Tier)
}

func TestExtractor_Extract(t *testing.T) {
	comments := newExtractor(t).Extract(decode(t, sampleEvaluation))

	type triple struct{ component, subfield, text string }
	got := make([]triple, len(comments))
	for i, c := range comments {
		got[i] = triple{c.Component, c.Subfield, c.Text}
	}

	assert.Equal(t, []triple{
		{"metadata", "title", "excellent extraction"},
		{"metadata", "authors", "missing one author"},
		{"content", "dataset", "dataset name is wrong"},
		{"content", "method", "clear description"},
		{"general", "overall", "Good overall"},
	}, got)

	require.NotNil(t, comments[0].Rating)
	assert.Equal(t, 5.0, *comments[0].Rating)
	require.NotNil(t, comments[1].Rating, "numeric strings are ratings")
	assert.Equal(t, 2.0, *comments[1].Rating)
	assert.Nil(t, comments[2].Rating)
	require.NotNil(t, comments[3].Rating)
	assert.Equal(t, 3.0, *comments[3].Rating)

	for i, c := range comments {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, "tok-1", c.EvaluationToken)
		assert.Equal(t, "ada@example.org", c.Evaluator)
		assert.Equal(t, "Graph Neural Networks", c.PaperTitle)
		assert.Equal(t, expertise.TierExpert, c.Expertise.Tier)
		assert.Len(t, c.ID, 16)
	}
}

func TestExtractor_Idempotent(t *testing.T) {
	ex := newExtractor(t)
	ev := decode(t, sampleEvaluation)

	first := ex.Extract(ev)
	second := ex.Extract(ev)
	assert.Equal(t, first, second)

	// records without a token still get stable ids
	ev = decode(t, `{"paper": {"title": "X"}, "evaluation": {"general": {"comments": "fine"}}}`)
	a, b := ex.Extract(ev), ex.Extract(ev)
	require.Len(t, a, 1)
	assert.Equal(t, a[0].ID, b[0].ID)
	assert.Equal(t, a[0].EvaluationToken, DerivedToken(ev.Data))
}

func TestExtractor_Dedup(t *testing.T) {
	long := "this summary of the research problem is accurate and very well written overall"
	schema := &Schema{
		Components: []Component{{
			Name: "problem",
			Fields: []Field{
				{Path: Path{"a"}, Subfield: "text"},
				{Path: Path{"b"}, Subfield: "text"},
				{Path: Path{"c"}, Subfield: "other"},
			},
		}},
		Paper: PaperPaths{Title: []Path{{"title"}}},
	}
	ex, err := NewExtractor(schema)
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]string{
		"title": "X",
		"a":     long,
		"b":     long[:60] + " but differs at the end",
		"c":     long,
	})
	require.NoError(t, err)

	comments := ex.Extract(decode(t, string(raw)))
	require.Len(t, comments, 2)
	assert.Equal(t, "text", comments[0].Subfield)
	assert.Equal(t, "other", comments[1].Subfield)
}

func TestExtractor_MalformedPathsAreAbsent(t *testing.T) {
	ex := newExtractor(t)
	for _, raw := range []string{
		`{}`,
		`{"evaluation": "flat string"}`,
		`{"evaluation": {"metadata": [1, 2, 3]}}`,
		`{"evaluation": {"content": ["a", "b"]}}`,
	} {
		assert.NotPanics(t, func() {
			assert.Empty(t, ex.Extract(decode(t, raw)), raw)
		})
	}
}

func TestExtractor_Identity(t *testing.T) {
	ex := newExtractor(t)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "email wins", raw: `{"userInfo": {"email": "A@B.C", "firstName": "A"}}`, want: "a@b.c"},
		{name: "name fallback", raw: `{"userInfo": {"firstName": " Grace ", "lastName": "Hopper"}}`, want: "Grace Hopper"},
		{name: "first name only", raw: `{"userInfo": {"firstName": "Grace"}}`, want: "Grace"},
		{name: "anonymous", raw: `{"token": "t9"}`, want: "anonymous:t9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.Describe(decode(t, tt.raw)).Evaluator)
		})
	}
}

func TestExtractor_Timestamps(t *testing.T) {
	ex := newExtractor(t)
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, raw := range []string{
		`{"timestamp": "2024-03-01"}`,
		`{"createdAt": "2024-03-01T00:00:00Z"}`,
		`{"timestamp": 1709251200}`,
		`{"timestamp": 1709251200000}`,
	} {
		assert.Equal(t, want, ex.Describe(decode(t, raw)).Timestamp, raw)
	}
	assert.True(t, ex.Describe(decode(t, `{"timestamp": "yesterday"}`)).Timestamp.IsZero())
}

func TestExtractor_ExtractAll(t *testing.T) {
	ex := newExtractor(t)
	evals := []types.Evaluation{
		decode(t, `{"token": "a", "evaluation": {"general": {"comments": "good"}}}`),
		decode(t, `{"token": "b", "evaluation": {"general": {"comments": "bad"}}}`),
	}

	comments := ex.ExtractAll(evals)
	require.Len(t, comments, 2)
	assert.Equal(t, "a", comments[0].EvaluationToken)
	assert.Equal(t, "b", comments[1].EvaluationToken)
	assert.NotEqual(t, comments[0].ID, comments[1].ID)
}
