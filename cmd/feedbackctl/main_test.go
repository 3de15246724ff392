package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const corpus = `{"evaluations": [
  {"token": "e1", "paper": {"title": "X"}, "userInfo": {"email": "e1@x.org", "expertiseWeight": 4.5},
   "evaluation": {"metadata": {"title": {"comments": "excellent extraction"}}}},
  {"token": "e2", "paper": {"title": "  x "}, "userInfo": {"email": "e2@x.org", "expertiseWeight": 1.0},
   "evaluation": {"metadata": {"title": {"comments": "terrible extraction, wrong title"}}}}
]}`

func run(t *testing.T, args ...string) (map[string]interface{}, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard

	err := app.Run(append([]string{"feedbackctl"}, args...))
	if err != nil {
		return nil, err
	}
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &body), out.String())
	return body, nil
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte(corpus), 0o644))
	return path
}

func TestSentimentCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"sentiment", "excellent", "and", "accurate"}, "positive"},
		{[]string{"sentiment", "terrible"}, "negative"},
		{[]string{"--pretty", "sentiment", "the", "table"}, "neutral"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			body, err := run(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, body["polarity"])
		})
	}

	_, err := run(t, "sentiment")
	assert.Error(t, err)
}

func TestExpertiseCommand(t *testing.T) {
	body, err := run(t, "expertise", "--weight", "4")
	require.NoError(t, err)
	assert.Equal(t, "expert", body["tier"])

	body, err = run(t, "expertise")
	require.NoError(t, err)
	assert.Equal(t, "unknown", body["tier"])
}

func TestAnalyzeFromFile(t *testing.T) {
	body, err := run(t, "analyze", "--file", writeCorpus(t))
	require.NoError(t, err)

	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["evaluations"])
	assert.Equal(t, float64(1), summary["multiEvaluatorPapers"])
	assert.Equal(t, true, body["kappa"].(map[string]interface{})["sufficient"])
}

func TestPapersCommand(t *testing.T) {
	body, err := run(t, "papers", "--file", writeCorpus(t))
	require.NoError(t, err)

	assert.Equal(t, "file", body["source"])
	multi := body["multiEvaluatorPapers"].([]interface{})
	require.Len(t, multi, 1)
	assert.Equal(t, "x", multi[0].(map[string]interface{})["key"])
}

func TestImportThenAnalyzeStore(t *testing.T) {
	dataDir := t.TempDir()

	body, err := run(t, "import", "--data-dir", dataDir, writeCorpus(t))
	require.NoError(t, err)
	assert.Equal(t, float64(2), body["count"])

	// importing the same tokens again updates in place
	_, err = run(t, "import", "--data-dir", dataDir, writeCorpus(t))
	require.NoError(t, err)

	body, err = run(t, "analyze", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Equal(t, float64(2), body["summary"].(map[string]interface{})["evaluations"])
}

func TestCorpusFlagValidation(t *testing.T) {
	path := writeCorpus(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no source", []string{"analyze"}},
		{"two sources", []string{"analyze", "--file", path, "--data-dir", t.TempDir()}},
		{"missing file", []string{"papers", "--file", filepath.Join(t.TempDir(), "nope.json")}},
		{"import without file", []string{"import", "--data-dir", t.TempDir()}},
		{"bad schema", []string{"--schema", filepath.Join(t.TempDir(), "nope.yaml"), "analyze", "--file", path}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
