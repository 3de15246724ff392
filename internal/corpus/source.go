package corpus

import (
	"context"
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/eval-consensus/internal/errors"
	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

// Source names understood by the service
const (
	SourceStore = "store"
	SourceFile  = "file"
)

// Source loads a full set of evaluations
type Source interface {
	Name() string
	Load(ctx context.Context) ([]types.Evaluation, error)
}

// FileSource reads a JSON export from disk
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Name() string { return SourceFile }

func (f *FileSource) Path() string { return f.path }

// Load reads and decodes the file on every call
func (f *FileSource) Load(ctx context.Context) ([]types.Evaluation, error) {
	if f.path == "" {
		return nil, errors.NewConfigurationError("CORPUS_FILE is not set", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errors.NewIngestionError(SourceFile, fmt.Errorf("failed to read %s: %w", f.path, err))
	}

	evals, err := types.DecodeEvaluations(data)
	if err != nil {
		return nil, errors.NewIngestionError(SourceFile, err)
	}
	return evals, nil
}

// Lister is the read side of the evaluation store
type Lister interface {
	ListEvaluations(ctx context.Context) ([]types.Evaluation, error)
}

// StoreSource serves whatever has been imported into the database
type StoreSource struct {
	store Lister
}

func NewStoreSource(store Lister) *StoreSource {
	return &StoreSource{store: store}
}

func (s *StoreSource) Name() string { return SourceStore }

func (s *StoreSource) Load(ctx context.Context) ([]types.Evaluation, error) {
	evals, err := s.store.ListEvaluations(ctx)
	if err != nil {
		return nil, errors.NewIngestionError(SourceStore, err)
	}
	return evals, nil
}
