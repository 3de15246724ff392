package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/eval-consensus/internal/config"
	"github.com/ZanzyTHEbar/eval-consensus/internal/monitoring"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:               "0",
		GinMode:            gin.TestMode,
		DataDir:            t.TempDir(),
		LogLevel:           "error",
		LogFormat:          "json",
		CorpusCacheTTL:     time.Minute,
		CorpusRetry:        "fast",
		RateLimitPerMinute: 1000,
		AllowedOrigins:     "*",
		RequestTimeout:     5 * time.Second,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	app, err := newServer(cfg, monitoring.NewLoggerTo(io.Discard, "error", "json"), monitoring.NewMetrics())
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return app, newRouter(app)
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// feedback builds one evaluation in the default schema layout with a
// metadata title comment
func feedback(token, title, email string, weight float64, comment string) map[string]interface{} {
	return map[string]interface{}{
		"token": token,
		"paper": map[string]interface{}{"title": title},
		"userInfo": map[string]interface{}{
			"email":           email,
			"expertiseWeight": weight,
		},
		"evaluation": map[string]interface{}{
			"metadata": map[string]interface{}{
				"title": map[string]interface{}{"comments": comment, "rating": 4},
			},
		},
	}
}

func corpusPayload() []interface{} {
	return []interface{}{
		feedback("e1", "X", "e1@x.org", 4.5, "excellent extraction"),
		feedback("e2", "  x ", "e2@x.org", 1.0, "terrible extraction, wrong title"),
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET /health returns OK status", http.MethodGet, http.StatusOK},
		{"POST /health is not routed", http.MethodPost, http.StatusNotFound},
		{"DELETE /health is not routed", http.MethodDelete, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, "/health", nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				body := decode(t, w)
				assert.Equal(t, "ok", body["status"])
				assert.Equal(t, []interface{}{"store"}, body["sources"])
				assert.Equal(t, "disabled", body["redis"])
				assert.Equal(t, "disabled", body["redis_state"])
				assert.NotEmpty(t, w.Header().Get(monitoring.RequestIDHeader))
			}
		})
	}
}

func TestSentimentEndpoint(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	tests := []struct {
		name         string
		body         interface{}
		wantStatus   int
		wantPolarity string
	}{
		{"positive text", map[string]string{"text": "excellent and accurate"}, http.StatusOK, "positive"},
		{"negative text", map[string]string{"text": "terrible, wrong"}, http.StatusOK, "negative"},
		{"empty text is neutral", map[string]string{"text": ""}, http.StatusOK, "neutral"},
		{"malformed json", "{", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/sentiment", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			body := decode(t, w)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantPolarity, body["polarity"])
			} else {
				assert.Equal(t, "validation", body["category"])
			}
		})
	}
}

func TestExpertiseEndpoint(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	w := do(t, r, http.MethodPost, "/expertise", map[string]interface{}{"weight": 4.0})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "expert", decode(t, w)["tier"])

	w = do(t, r, http.MethodPost, "/expertise", map[string]interface{}{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unknown", decode(t, w)["tier"])
}

func TestImportAndAnalyzeStore(t *testing.T) {
	app, r := newTestServer(t, testConfig(t))

	// prime the store snapshot so the import has something to invalidate
	w := do(t, r, http.MethodPost, "/analyze", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(0), decode(t, w)["summary"].(map[string]interface{})["evaluations"])

	w = do(t, r, http.MethodPost, "/evaluations", map[string]interface{}{"evaluations": corpusPayload()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decode(t, w)["count"])

	w = do(t, r, http.MethodGet, "/evaluations/count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["count"])

	w = do(t, r, http.MethodPost, "/analyze?source=store", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "store", w.Header().Get("X-Corpus-Source"))

	report := decode(t, w)
	summary := report["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["evaluations"])
	assert.Equal(t, float64(1), summary["multiEvaluatorPapers"])

	intersections := report["intersections"].([]interface{})
	require.Len(t, intersections, 1)
	components := intersections[0].(map[string]interface{})["components"].([]interface{})
	require.Len(t, components, 1)
	meta := components[0].(map[string]interface{})
	assert.Equal(t, "metadata", meta["component"])
	assert.Equal(t, false, meta["agreement"])
	assert.Equal(t, float64(1), meta["positiveCount"])
	assert.Equal(t, float64(1), meta["negativeCount"])

	assert.Equal(t, int64(2), app.metrics.EvaluationsIngested)
	assert.Equal(t, int64(2), app.metrics.AnalysisCount)
}

func TestAnalyzeInline(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	w := do(t, r, http.MethodPost, "/analyze", map[string]interface{}{"evaluations": corpusPayload()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "inline", w.Header().Get("X-Corpus-Source"))

	kappa := decode(t, w)["kappa"].(map[string]interface{})
	assert.Equal(t, true, kappa["sufficient"])

	w = do(t, r, http.MethodPost, "/analyze", map[string]interface{}{"evaluations": []interface{}{"not a record"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportValidation(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", "{"},
		{"not a list", map[string]interface{}{"evaluations": "x"}},
		{"empty list", []interface{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/evaluations", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_ERROR", decode(t, w)["code"])
		})
	}
}

func TestFileAndRemoteSources(t *testing.T) {
	payload, err := json.Marshal(corpusPayload())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	var hits int32
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write(payload)
	}))
	defer remote.Close()

	cfg := testConfig(t)
	cfg.CorpusFile = path
	cfg.CorpusURL = remote.URL
	cfg.CorpusToken = "tok"
	_, r := newTestServer(t, cfg)

	for _, source := range []string{"file", "remote"} {
		t.Run(source, func(t *testing.T) {
			w := do(t, r, http.MethodGet, "/papers?source="+source, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			body := decode(t, w)
			assert.Equal(t, source, body["source"])
			papers := body["multiEvaluatorPapers"].([]interface{})
			require.Len(t, papers, 1)
			assert.Equal(t, "x", papers[0].(map[string]interface{})["key"])
			assert.Equal(t, float64(2), papers[0].(map[string]interface{})["evaluatorCount"])

			w = do(t, r, http.MethodGet, "/kappa?source="+source, nil)
			require.Equal(t, http.StatusOK, w.Code)
			overall := decode(t, w)["overall"].(map[string]interface{})
			assert.Equal(t, float64(1), overall["units"])
		})
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "remote snapshot is cached")

	w := do(t, r, http.MethodPost, "/cache/invalidate?source=remote", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["invalidated"])

	w = do(t, r, http.MethodGet, "/papers?source=remote", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	w = do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, "closed", decode(t, w)["remote_breaker"])
}

func TestUnknownSource(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	for _, path := range []string{"/papers?source=nope", "/kappa?source=remote", "/cache/invalidate?source=nope"} {
		method := http.MethodGet
		if path[:6] == "/cache" {
			method = http.MethodPost
		}
		w := do(t, r, method, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "validation", decode(t, w)["category"], path)
	}
}

func TestRemoteFailureIsIngestionError(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer remote.Close()

	cfg := testConfig(t)
	cfg.CorpusURL = remote.URL
	_, r := newTestServer(t, cfg)

	w := do(t, r, http.MethodPost, "/analyze?source=remote", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "INGESTION_ERROR", decode(t, w)["code"])
}

func TestCacheAndMetricsEndpoints(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	do(t, r, http.MethodPost, "/analyze", nil)
	do(t, r, http.MethodPost, "/analyze", nil)

	w := do(t, r, http.MethodGet, "/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.Equal(t, float64(1), stats["hits"])
	assert.Equal(t, float64(1), stats["misses"])

	w = do(t, r, http.MethodPost, "/cache/invalidate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["invalidated"])

	w = do(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	metrics := decode(t, w)
	assert.Equal(t, float64(2), metrics["analyses"])
	assert.Equal(t, float64(1), metrics["corpus_fetches"])
	assert.Contains(t, metrics, "rate_limiter")
	assert.Contains(t, metrics, "database_pool")

	w = do(t, r, http.MethodGet, "/ratelimit/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitedEndpoints(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimitPerMinute = 2
	_, r := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		w := do(t, r, http.MethodPost, "/sentiment", map[string]string{"text": "good"})
		require.Equal(t, http.StatusOK, w.Code, fmt.Sprintf("request %d", i))
	}
	w := do(t, r, http.MethodPost, "/sentiment", map[string]string{"text": "good"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// operational endpoints are not limited
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/health", nil).Code)
}

func TestInvalidSchemaPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.SchemaPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := newServer(cfg, monitoring.NewLoggerTo(io.Discard, "error", "json"), monitoring.NewMetrics())
	assert.Error(t, err)
}

func TestResponseHardening(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableCompression = true
	_, r := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBufferString(`{"evaluations":[]}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	payload, err := json.Marshal(map[string]interface{}{"evaluations": corpusPayload()})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

// closedAddr returns a loopback address nothing listens on
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestHealthWithUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisAddr = closedAddr(t)
	_, r := newTestServer(t, cfg)

	w := do(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, "unavailable", body["redis_state"])
	assert.Contains(t, body["redis"], "redis ping failed")

	// limits keep working on memory buckets
	w = do(t, r, http.MethodPost, "/sentiment", map[string]string{"text": "good"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))

	w = do(t, r, http.MethodGet, "/metrics", nil)
	limiter := decode(t, w)["rate_limiter"].(map[string]interface{})
	assert.Equal(t, false, limiter["redis_enabled"])
	redis := limiter["redis"].(map[string]interface{})
	assert.Equal(t, "unavailable", redis["state"])
	assert.Contains(t, redis["fallback_reason"], "startup ping failed")
}

func TestRequestBodyLimit(t *testing.T) {
	app, r := newTestServer(t, testConfig(t))
	app.maxBodyBytes = 2048

	small := map[string]interface{}{"evaluations": corpusPayload()}
	big := map[string]interface{}{"evaluations": []interface{}{
		feedback("e1", "X", "e1@x.org", 4.5, strings.Repeat("excellent ", 400)),
	}}

	tests := []struct {
		name       string
		path       string
		body       interface{}
		wantStatus int
	}{
		{"analyze under the cap", "/analyze", small, http.StatusOK},
		{"analyze over the cap", "/analyze", big, http.StatusBadRequest},
		{"import under the cap", "/evaluations", small, http.StatusCreated},
		{"import over the cap", "/evaluations", big, http.StatusBadRequest},
		{"sentiment over the cap", "/sentiment", map[string]string{"text": strings.Repeat("good ", 1000)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusBadRequest {
				assert.Equal(t, "VALIDATION_ERROR", decode(t, w)["code"])
			}
		})
	}
}

func TestInvalidUTF8Body(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	for _, path := range []string{"/sentiment", "/analyze", "/evaluations"} {
		w := do(t, r, http.MethodPost, path, "{\"text\": \"bad \xff\xfe\"}")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "VALIDATION_ERROR", decode(t, w)["code"], path)
	}
}

func TestAnalyzeExplicitEmptyInline(t *testing.T) {
	_, r := newTestServer(t, testConfig(t))

	w := do(t, r, http.MethodPost, "/evaluations", corpusPayload())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/analyze", map[string]interface{}{"evaluations": []interface{}{}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "inline", w.Header().Get("X-Corpus-Source"))
	assert.Equal(t, float64(0), decode(t, w)["summary"].(map[string]interface{})["evaluations"])

	// a null list still means "use the store"
	w = do(t, r, http.MethodPost, "/analyze", `{"evaluations": null}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "store", w.Header().Get("X-Corpus-Source"))
}
