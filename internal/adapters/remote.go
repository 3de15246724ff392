package adapters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/eval-consensus/internal/errors"
	"github.com/ZanzyTHEbar/eval-consensus/internal/resilience"
	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

// RemoteSourceName is the corpus source name of the HTTP adapter
const RemoteSourceName = "remote"

// maxPayloadBytes bounds a single remote corpus download
const maxPayloadBytes = 64 << 20

// RemoteConfig configures the HTTP evaluation source
type RemoteConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
	Retry   resilience.RetryConfig
	Breaker resilience.CircuitBreakerConfig
	Client  *http.Client
}

// RemoteSource fetches an evaluation export over HTTP. The endpoint returns
// either a JSON array of records or {"evaluations": [...]}.
type RemoteSource struct {
	url     string
	token   string
	client  *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewRemoteSource creates a remote source guarded by retry and a circuit breaker
func NewRemoteSource(config RemoteConfig) *RemoteSource {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	retry := config.Retry
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultRetryConfig()
	}
	if config.Breaker.FailureThreshold == 0 {
		config.Breaker.FailureThreshold = 5
	}
	if config.Breaker.RecoveryTimeout == 0 {
		config.Breaker.RecoveryTimeout = 30 * time.Second
	}

	return &RemoteSource{
		url:     config.URL,
		token:   config.Token,
		client:  client,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(config.Breaker),
	}
}

func (r *RemoteSource) Name() string {
	return RemoteSourceName
}

// Breaker exposes the circuit breaker for stats
func (r *RemoteSource) Breaker() *resilience.CircuitBreaker {
	return r.breaker
}

// Load downloads and decodes the remote corpus
func (r *RemoteSource) Load(ctx context.Context) ([]types.Evaluation, error) {
	if r.url == "" {
		return nil, errors.NewConfigurationError("CORPUS_URL is not set", nil)
	}

	var evals []types.Evaluation
	err := r.breaker.Call(func() error {
		body, err := r.fetch(ctx)
		if err != nil {
			return err
		}
		evals, err = types.DecodeEvaluations(body)
		if err != nil {
			return fmt.Errorf("invalid corpus payload: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Warn("Remote corpus fetch failed", "url", r.url, "breaker", r.breaker.State().String(), "error", err)
		return nil, errors.NewIngestionError(RemoteSourceName, err)
	}

	return evals, nil
}

func (r *RemoteSource) fetch(ctx context.Context) ([]byte, error) {
	resp, err := resilience.RetryHTTP(ctx, r.retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
		if err != nil {
			return nil, errors.NewConfigurationError("invalid CORPUS_URL", err)
		}
		req.Header.Set("Accept", "application/json")
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, errors.NewNetworkError("corpus request failed", err)
		}
		return resp, nil
	})
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch corpus: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("corpus endpoint returned status %d: %s", resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	if len(body) > maxPayloadBytes {
		return nil, fmt.Errorf("corpus exceeds %d bytes", maxPayloadBytes)
	}
	return body, nil
}
