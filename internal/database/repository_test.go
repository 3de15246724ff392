package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

func newTestRepository(t *testing.T, token TokenFunc) (*Repository, *DB) {
	t.Helper()
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db, token), db
}

func record(t *testing.T, fields map[string]interface{}) types.Value {
	t.Helper()
	v, err := types.FromAny(fields)
	require.NoError(t, err)
	return v
}

func TestNewDB_CreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	db, err := NewDB(dir)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Join(dir, FileName))
	assert.NoError(t, err)
	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.Contains(t, db.GetPoolStats(), "open_connections")
}

func TestRepository_ImportAndList(t *testing.T) {
	repo, _ := newTestRepository(t, nil)
	ctx := context.Background()

	evals := []types.Evaluation{
		types.NewEvaluation("b", record(t, map[string]interface{}{"paper": map[string]interface{}{"title": "Two"}})),
		types.NewEvaluation("a", record(t, map[string]interface{}{"paper": map[string]interface{}{"title": "One"}})),
	}

	batch, err := repo.ImportEvaluations(ctx, "file", evals)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Count)
	assert.Equal(t, 2, batch.Inserted)
	assert.Zero(t, batch.Updated)
	assert.NotEmpty(t, batch.ID)

	n, err := repo.CountEvaluations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	listed, err := repo.ListEvaluations(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "a", listed[0].Token)
	title, ok := listed[0].Data.Lookup("paper", "title")
	require.True(t, ok)
	s, _ := title.Text()
	assert.Equal(t, "One", s)
}

func TestRepository_UpsertByToken(t *testing.T) {
	repo, _ := newTestRepository(t, nil)
	ctx := context.Background()

	first := []types.Evaluation{types.NewEvaluation("t1", record(t, map[string]interface{}{"v": 1.0}))}
	_, err := repo.ImportEvaluations(ctx, "file", first)
	require.NoError(t, err)

	second := []types.Evaluation{
		types.NewEvaluation("t1", record(t, map[string]interface{}{"v": 2.0})),
		types.NewEvaluation("t2", record(t, map[string]interface{}{"v": 3.0})),
		types.NewEvaluation("t2", record(t, map[string]interface{}{"v": 4.0})),
	}
	batch, err := repo.ImportEvaluations(ctx, "remote", second)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Count)
	assert.Equal(t, 1, batch.Inserted)
	assert.Equal(t, 1, batch.Updated)

	listed, err := repo.ListEvaluations(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	values := map[string]float64{}
	for _, ev := range listed {
		v, ok := ev.Data.Lookup("v")
		require.True(t, ok)
		f, _ := v.Float()
		values[ev.Token] = f
	}
	assert.Equal(t, map[string]float64{"t1": 2, "t2": 4}, values)

	batches, err := repo.ListBatches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	sources := []string{batches[0].Source, batches[1].Source}
	assert.ElementsMatch(t, []string{"file", "remote"}, sources)
}

func TestRepository_TokenResolution(t *testing.T) {
	ctx := context.Background()
	untokened := []types.Evaluation{types.NewEvaluation("", record(t, map[string]interface{}{"id": "x"}))}

	repo, _ := newTestRepository(t, nil)
	_, err := repo.ImportEvaluations(ctx, "file", untokened)
	assert.Error(t, err)

	n, err := repo.CountEvaluations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "failed import leaves nothing behind")

	resolved, _ := newTestRepository(t, func(types.Evaluation) string { return "derived" })
	_, err = resolved.ImportEvaluations(ctx, "file", untokened)
	require.NoError(t, err)

	listed, err := resolved.ListEvaluations(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "derived", listed[0].Token)
}

func TestRepository_ReopenPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := NewDB(dir)
	require.NoError(t, err)
	_, err = NewRepository(db, nil).ImportEvaluations(ctx, "file",
		[]types.Evaluation{types.NewEvaluation("k", record(t, map[string]interface{}{"a": "b"}))})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(dir)
	require.NoError(t, err)
	defer db.Close()
	n, err := NewRepository(db, nil).CountEvaluations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
