package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/eval-consensus/internal/adapters"
	"github.com/ZanzyTHEbar/eval-consensus/internal/analysis"
	"github.com/ZanzyTHEbar/eval-consensus/internal/config"
	"github.com/ZanzyTHEbar/eval-consensus/internal/corpus"
	"github.com/ZanzyTHEbar/eval-consensus/internal/database"
	"github.com/ZanzyTHEbar/eval-consensus/internal/errors"
	"github.com/ZanzyTHEbar/eval-consensus/internal/expertise"
	"github.com/ZanzyTHEbar/eval-consensus/internal/extraction"
	"github.com/ZanzyTHEbar/eval-consensus/internal/middleware"
	"github.com/ZanzyTHEbar/eval-consensus/internal/monitoring"
	"github.com/ZanzyTHEbar/eval-consensus/internal/ratelimit"
	"github.com/ZanzyTHEbar/eval-consensus/internal/resilience"
	"github.com/ZanzyTHEbar/eval-consensus/internal/security"
	"github.com/ZanzyTHEbar/eval-consensus/internal/sentiment"
	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

const (
	maxImportBytes = 32 << 20
	sourceInline   = "inline"
	sourceAPI      = "api"
)

// server holds every long-lived dependency of the HTTP service
type server struct {
	cfg      *config.Config
	logger   *monitoring.Logger
	metrics  *monitoring.Metrics
	analyzer *analysis.Analyzer
	db       *database.DB
	repo     *database.Repository
	corpus   *corpus.Service
	limiter  *ratelimit.RateLimiter
	redis    *ratelimit.RedisClient
	remote   *adapters.RemoteSource

	maxBodyBytes int64
	compression  *middleware.CompressionMiddleware
}

func newServer(cfg *config.Config, logger *monitoring.Logger, metrics *monitoring.Metrics) (*server, error) {
	schema := extraction.DefaultSchema()
	if cfg.SchemaPath != "" {
		loaded, err := extraction.LoadSchema(cfg.SchemaPath)
		if err != nil {
			return nil, errors.NewConfigurationError("invalid SCHEMA_PATH", err)
		}
		schema = loaded
	}
	extractor, err := extraction.NewExtractor(schema)
	if err != nil {
		return nil, errors.NewConfigurationError("invalid extraction schema", err)
	}

	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open evaluation store: %w", err)
	}
	repo := database.NewRepository(db, func(ev types.Evaluation) string {
		return extractor.Describe(ev).Token
	})

	sources := []corpus.Source{corpus.NewStoreSource(repo)}
	if cfg.CorpusFile != "" {
		sources = append(sources, corpus.NewFileSource(cfg.CorpusFile))
	}

	var remote *adapters.RemoteSource
	if cfg.CorpusURL != "" {
		remote = adapters.NewRemoteSource(adapters.RemoteConfig{
			URL:     cfg.CorpusURL,
			Token:   cfg.CorpusToken,
			Timeout: cfg.RequestTimeout,
			Retry:   resilience.PolicyByName(cfg.CorpusRetry).Config,
			Breaker: resilience.CircuitBreakerConfig{
				FailureThreshold: 3,
				RecoveryTimeout:  time.Minute,
				OnOpen:           metrics.IncrementCircuitBreakerOpen,
			},
		})
		sources = append(sources, remote)
	}

	redisClient, err := ratelimit.NewRedisClient(ratelimit.RedisOptionsFromConfig(cfg))
	if err != nil {
		slog.Warn("Continuing without Redis", "error", err)
	}

	return &server{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		analyzer: analysis.NewAnalyzer(extractor),
		db:       db,
		repo:     repo,
		corpus:   corpus.NewService(cfg.CorpusCacheTTL, metrics, metrics, sources...),
		limiter:  ratelimit.NewRateLimiter(redisClient, ratelimit.Config{PerMinute: cfg.RateLimitPerMinute}, metrics),
		redis:    redisClient,
		remote:   remote,

		maxBodyBytes: maxImportBytes,
		compression:  middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
	}, nil
}

// Close releases background goroutines and connections
func (s *server) Close() {
	s.corpus.Close()
	s.limiter.Close()
	errors.SafeClose(s.redis, "redis")
	errors.SafeClose(s.db, "database")
}

func newRouter(s *server) *gin.Engine {
	r := gin.New()

	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())
	r.Use(cors.New(corsConfig(s.cfg)))
	r.Use(security.SecurityHeadersMiddleware(s.cfg.EnableHSTS))
	r.Use(security.RequireJSON())
	r.Use(requestTimeout(s.cfg.RequestTimeout))
	if s.cfg.EnableCompression {
		r.Use(s.compression.Handler())
	}

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/cache/stats", s.handleCacheStats)
	r.POST("/cache/invalidate", s.handleCacheInvalidate)
	r.GET("/ratelimit/status", s.limiter.HandleRateLimitStatus())
	r.GET("/evaluations/count", s.handleCountEvaluations)

	limited := r.Group("/", s.limiter.IPRateLimitMiddleware())
	limited.POST("/sentiment", s.handleSentiment)
	limited.POST("/expertise", s.handleExpertise)
	limited.POST("/evaluations", s.handleImport)
	limited.POST("/analyze", s.handleAnalyze)
	limited.GET("/papers", s.handlePapers)
	limited.GET("/kappa", s.handleKappa)

	return r
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", monitoring.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", monitoring.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if cfg.AllowAllOrigins() {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.Origins()
		c.AllowCredentials = true
	}
	return c
}

// requestTimeout bounds the request context
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Timeout", strconv.Itoa(int(d.Seconds())))
		c.Next()
	}
}

func (s *server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	resp := gin.H{
		"status":      "ok",
		"timestamp":   time.Now().Format(time.RFC3339),
		"sources":     s.corpus.Sources(),
		"database":    "ok",
		"redis":       "disabled",
		"redis_state": s.redis.State(),
	}

	if err := s.db.HealthCheck(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		resp["status"] = "degraded"
		resp["database"] = err.Error()
	}

	// limits fall back to memory without Redis, so it degrades but never fails the check
	if s.redis.Configured() {
		if err := s.redis.HealthCheck(c.Request.Context()); err != nil {
			resp["status"] = "degraded"
			resp["redis"] = err.Error()
		} else {
			resp["redis"] = "ok"
		}
	}

	if s.remote != nil {
		resp["remote_breaker"] = s.remote.Breaker().State().String()
	}

	c.JSON(status, resp)
}

func (s *server) handleMetrics(c *gin.Context) {
	stats := s.metrics.GetStats()
	stats["rate_limiter"] = s.limiter.GetStats()
	stats["database_pool"] = s.db.GetPoolStats()
	stats["snapshot_cache"] = s.corpus.CacheStats()
	stats["compression"] = s.compression.GetStats()
	if s.remote != nil {
		stats["remote_breaker"] = s.remote.Breaker().Stats()
	}
	c.JSON(http.StatusOK, stats)
}

func (s *server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.corpus.CacheStats())
}

func (s *server) handleCacheInvalidate(c *gin.Context) {
	name := c.Query("source")
	if name == "" {
		n := s.corpus.InvalidateAll()
		s.logger.CacheLogger("invalidate_all", "*", false, 0)
		c.JSON(http.StatusOK, gin.H{"invalidated": n})
		return
	}

	if !s.hasSource(name) {
		c.Error(errors.NewValidationError("unknown corpus source", name))
		return
	}
	n := 0
	if s.corpus.Invalidate(name) {
		n = 1
	}
	s.logger.CacheLogger("invalidate", name, false, 0)
	c.JSON(http.StatusOK, gin.H{"invalidated": n, "source": name})
}

func (s *server) hasSource(name string) bool {
	for _, src := range s.corpus.Sources() {
		if src == name {
			return true
		}
	}
	return false
}

// readBody reads the capped request body and rejects bytes that are not UTF-8.
// The JSON decoder would otherwise replace them silently.
func (s *server) readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes))
	if err != nil {
		return nil, errors.NewValidationError("failed to read request body", err.Error())
	}
	if !utf8.Valid(body) {
		return nil, errors.NewValidationError("request body is not valid UTF-8")
	}
	return body, nil
}

// bindJSON decodes the request body into dst. An empty body leaves dst as is.
func (s *server) bindJSON(c *gin.Context, dst interface{}) error {
	body, err := s.readBody(c)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.NewValidationError("invalid request body", err.Error())
	}
	return nil
}

func (s *server) handleSentiment(c *gin.Context) {
	var req types.SentimentRequest
	if err := s.bindJSON(c, &req); err != nil {
		c.Error(err)
		return
	}
	if err := security.ValidateText(req.Text, security.MaxTextBytes); err != nil {
		c.Error(errors.NewValidationError("invalid text", err.Error()))
		return
	}

	result := sentiment.Analyze(req.Text)
	c.JSON(http.StatusOK, gin.H{
		"result":   result,
		"polarity": result.Polarity(),
	})
}

func (s *server) handleExpertise(c *gin.Context) {
	var req types.ExpertiseRequest
	if err := s.bindJSON(c, &req); err != nil {
		c.Error(err)
		return
	}

	class := expertise.Classify(&expertise.Profile{
		Role:                 req.Role,
		DomainExpertise:      req.DomainExpertise,
		EvaluationExperience: req.EvaluationExperience,
		Weight:               req.Weight,
	})
	c.JSON(http.StatusOK, class)
}

func (s *server) handleImport(c *gin.Context) {
	body, err := s.readBody(c)
	if err != nil {
		c.Error(err)
		return
	}

	evals, err := types.DecodeEvaluations(body)
	if err != nil {
		c.Error(errors.NewValidationError("invalid evaluations payload", err.Error()))
		return
	}
	if len(evals) == 0 {
		c.Error(errors.NewValidationError("no evaluations to import"))
		return
	}

	start := time.Now()
	batch, err := s.repo.ImportEvaluations(c.Request.Context(), sourceAPI, evals)
	s.logger.IngestionLogger(sourceAPI, len(evals), time.Since(start), err)
	if err != nil {
		c.Error(errors.WrapError(err, "import failed"))
		return
	}

	s.metrics.AddEvaluationsIngested(batch.Count)
	s.corpus.Invalidate(corpus.SourceStore)

	c.JSON(http.StatusCreated, batch)
}

func (s *server) handleCountEvaluations(c *gin.Context) {
	n, err := s.repo.CountEvaluations(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// evaluations resolves the corpus of a request: inline records when the
// field is present, even as an empty list, otherwise the snapshot named by
// ?source=
func (s *server) evaluations(c *gin.Context, inline []types.Value) (string, []types.Evaluation, bool) {
	if inline != nil {
		evals := make([]types.Evaluation, 0, len(inline))
		for i, v := range inline {
			if v.Kind() != types.KindRecord {
				c.Error(errors.NewValidationError("evaluations must be objects", fmt.Sprintf("index %d is %s", i, v.Kind())))
				return "", nil, false
			}
			evals = append(evals, types.NewEvaluation("", v))
		}
		return sourceInline, evals, true
	}

	name := c.DefaultQuery("source", corpus.SourceStore)
	snap, err := s.corpus.Snapshot(c.Request.Context(), name)
	if err != nil {
		c.Error(err)
		return "", nil, false
	}
	return snap.Source, snap.Evaluations, true
}

func (s *server) handleAnalyze(c *gin.Context) {
	var req types.AnalyzeRequest
	if err := s.bindJSON(c, &req); err != nil {
		c.Error(err)
		return
	}

	source, evals, ok := s.evaluations(c, req.Evaluations)
	if !ok {
		return
	}

	start := time.Now()
	report := s.analyzer.Analyze(evals)
	s.metrics.IncrementAnalysis()
	s.logger.AnalysisLogger(source, len(evals), report.Summary.Comments, report.Summary.MultiEvaluatorPapers,
		report.Kappa.Kappa, report.Kappa.Sufficient, time.Since(start))

	c.Header("X-Corpus-Source", source)
	c.JSON(http.StatusOK, report)
}

type paperSummary struct {
	Key            string   `json:"key"`
	Title          string   `json:"title"`
	DOI            string   `json:"doi,omitempty"`
	Evaluators     []string `json:"evaluators"`
	EvaluatorCount int      `json:"evaluatorCount"`
	Comments       int      `json:"comments"`
}

func (s *server) handlePapers(c *gin.Context) {
	source, evals, ok := s.evaluations(c, nil)
	if !ok {
		return
	}

	resolved, _ := s.analyzer.Resolve(evals)
	multi := make([]paperSummary, 0, len(resolved.MultiEvaluatorPapers))
	for _, g := range resolved.MultiEvaluatorPapers {
		multi = append(multi, paperSummary{
			Key:            g.Key,
			Title:          g.Title,
			DOI:            g.DOI,
			Evaluators:     g.Evaluators,
			EvaluatorCount: g.EvaluatorCount(),
			Comments:       len(g.Comments),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"source":               source,
		"counts":               resolved.Counts,
		"multiEvaluatorPapers": multi,
	})
}

func (s *server) handleKappa(c *gin.Context) {
	source, evals, ok := s.evaluations(c, nil)
	if !ok {
		return
	}

	resolved, _ := s.analyzer.Resolve(evals)
	engine := analysis.NewEngine()
	units := analysis.UnitsFromIntersections(engine.CalculateIntersections(resolved.MultiEvaluatorPapers))

	c.JSON(http.StatusOK, gin.H{
		"source":      source,
		"overall":     analysis.CalculateFleissKappa(units),
		"byComponent": analysis.KappaByComponent(units),
	})
}
