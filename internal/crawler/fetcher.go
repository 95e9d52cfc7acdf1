// Package crawler implements the acquisition side of the pipeline: fetching
// raw payloads from the remote document repository, extracting the indexable
// body at its content markers, choosing candidate identifiers, and persisting
// new documents into the datalake and control ledger.
package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/corpuskit/harvester/pkg/config"
	"github.com/corpuskit/harvester/pkg/logger"
	"github.com/corpuskit/harvester/pkg/metrics"
	"github.com/corpuskit/harvester/pkg/resilience"
)

// Outcome classifies the result of a fetch.
type Outcome int

const (
	// OutcomeBody means the payload was retrieved.
	OutcomeBody Outcome = iota
	// OutcomeNotFound means the repository has no document under the
	// identifier. Permanent for this session; never retried.
	OutcomeNotFound
	// OutcomeTransient means every retry attempt failed on a network-level
	// error. The identifier stays eligible for a future draw.
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBody:
		return "body"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// FetchResult is the explicit outcome of one Fetch call. Err carries the last
// underlying failure when the outcome is OutcomeTransient.
type FetchResult struct {
	Outcome Outcome
	Body    string
	Err     error
}

// Fetcher retrieves raw document payloads over HTTP with bounded retries,
// exponential backoff, and a circuit breaker guarding the remote source.
type Fetcher struct {
	cfg     config.SourceConfig
	client  *http.Client
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher for the configured source. The metrics
// argument may be nil.
func NewFetcher(cfg config.SourceConfig, m *metrics.Metrics) *Fetcher {
	if len(cfg.Suffixes) == 0 {
		cfg.Suffixes = []string{".txt"}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: resilience.NewCircuitBreaker("source", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerTrip,
		}),
		metrics: m,
		logger:  logger.WithComponent("fetcher"),
	}
}

// Fetch retrieves the payload for id. Each configured URL suffix is tried in
// order; a 404 on every suffix is a permanent NotFound and is not retried.
// Network-level failures are retried with exponential backoff up to the
// configured bound, after which the result is OutcomeTransient.
func (f *Fetcher) Fetch(ctx context.Context, id int) FetchResult {
	var (
		body     string
		notFound bool
	)

	retryCfg := resilience.RetryConfig{
		MaxAttempts:  f.cfg.MaxRetries,
		InitialDelay: f.cfg.RetryDelay,
		MaxDelay:     f.cfg.MaxDelay,
		Multiplier:   2.0,
	}
	err := resilience.Retry(ctx, fmt.Sprintf("fetch-%d", id), retryCfg, func() error {
		return f.breaker.Execute(func() error {
			for _, suffix := range f.cfg.Suffixes {
				url := fmt.Sprintf("%s/%d/pg%d%s", f.cfg.BaseURL, id, id, suffix)
				text, found, err := f.fetchOnce(ctx, url)
				if err != nil {
					if f.metrics != nil {
						f.metrics.FetchRetriesTotal.Inc()
					}
					return err
				}
				if found {
					body = text
					notFound = false
					return nil
				}
			}
			notFound = true
			return nil
		})
	})
	if err != nil {
		f.logger.Warn("all fetch attempts failed", "doc_id", id, "error", err)
		return FetchResult{Outcome: OutcomeTransient, Err: err}
	}
	if notFound {
		return FetchResult{Outcome: OutcomeNotFound}
	}
	return FetchResult{Outcome: OutcomeBody, Body: body}
}

// fetchOnce performs a single GET. found is false on a 404; any other non-2xx
// status or transport failure is returned as an error so the retry loop can
// back off and try again.
func (f *Fetcher) fetchOnce(ctx context.Context, url string) (text string, found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return string(data), true, nil
}
