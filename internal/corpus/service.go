package corpus

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/eval-consensus/internal/cache"
	"github.com/ZanzyTHEbar/eval-consensus/internal/errors"
	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

// Snapshot is an immutable view of one source at one point in time. Callers
// must not modify Evaluations.
type Snapshot struct {
	Source      string             `json:"source"`
	Evaluations []types.Evaluation `json:"-"`
	Count       int                `json:"count"`
	LoadedAt    time.Time          `json:"loadedAt"`
}

// FetchRecorder receives one notification per source load. *monitoring.Metrics satisfies it.
type FetchRecorder interface {
	RecordCorpusFetch(source string, success bool)
}

// Service hands out cached snapshots of the registered sources
type Service struct {
	sources  map[string]Source
	cache    *cache.Cache[*Snapshot]
	recorder FetchRecorder

	// one in-flight load per source
	loadMu sync.Map
}

// NewService creates a corpus service caching snapshots for ttl
func NewService(ttl time.Duration, recorder FetchRecorder, cacheRecorder cache.Recorder, sources ...Source) *Service {
	s := &Service{
		sources:  make(map[string]Source, len(sources)),
		recorder: recorder,
	}
	var opts []cache.Option[*Snapshot]
	if cacheRecorder != nil {
		opts = append(opts, cache.WithRecorder[*Snapshot](cacheRecorder))
	}
	s.cache = cache.New[*Snapshot](ttl, opts...)

	for _, src := range sources {
		if src != nil {
			s.sources[src.Name()] = src
		}
	}
	return s
}

// Sources lists registered source names in sorted order
func (s *Service) Sources() []string {
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the cached snapshot of name, loading it on a miss
func (s *Service) Snapshot(ctx context.Context, name string) (*Snapshot, error) {
	src, ok := s.sources[name]
	if !ok {
		return nil, errors.NewValidationError("unknown corpus source", name)
	}

	if snap, ok := s.cache.Get(name); ok {
		return snap, nil
	}

	mu, _ := s.loadMu.LoadOrStore(name, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	// another caller may have loaded it while we waited
	if snap, ok := s.cache.Peek(name); ok {
		return snap, nil
	}

	start := time.Now()
	evals, err := src.Load(ctx)
	if s.recorder != nil {
		s.recorder.RecordCorpusFetch(name, err == nil)
	}
	if err != nil {
		slog.Warn("Corpus load failed", "source", name, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, err
	}

	snap := &Snapshot{
		Source:      name,
		Evaluations: evals,
		Count:       len(evals),
		LoadedAt:    time.Now().UTC(),
	}
	s.cache.Set(name, snap)

	slog.Info("Corpus loaded", "source", name, "evaluations", len(evals), "duration_ms", time.Since(start).Milliseconds())
	return snap, nil
}

// Invalidate drops the cached snapshot of name
func (s *Service) Invalidate(name string) bool {
	return s.cache.Delete(name)
}

// InvalidateAll drops every cached snapshot and returns how many were dropped
func (s *Service) InvalidateAll() int {
	return s.cache.Clear()
}

// CacheStats reports the snapshot cache state
func (s *Service) CacheStats() map[string]interface{} {
	stats := s.cache.Stats()
	stats["sources"] = s.Sources()
	return stats
}

// Close stops the snapshot cache janitor
func (s *Service) Close() {
	s.cache.Close()
}
