package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/searchgate/server/internal/module/instance"
	"github.com/searchgate/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// CandidateSource yields the ordered upstream candidates for one request.
type CandidateSource interface {
	SelectCandidates() []*instance.SearchInstance
}

// ExhaustedError is returned when every failover candidate failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d upstream attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Proxy issues upstream search calls with per-attempt timeouts and bounded
// failover across instance candidates. Retries never escape a single Execute
// call; once it returns, the caller owns the outcome.
type Proxy struct {
	source  CandidateSource
	client  *http.Client
	metrics *metrics.Metrics
	logger  *zap.Logger

	attemptTimeout time.Duration
	maxAttempts    int
}

// ProxyConfig contains proxy configuration.
type ProxyConfig struct {
	AttemptTimeout time.Duration
	MaxAttempts    int
}

// NewProxy creates a new search proxy. Metrics may be nil.
func NewProxy(source CandidateSource, client *http.Client, m *metrics.Metrics, cfg ProxyConfig, logger *zap.Logger) *Proxy {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Proxy{
		source:         source,
		client:         client,
		metrics:        m,
		logger:         logger,
		attemptTimeout: cfg.AttemptTimeout,
		maxAttempts:    cfg.MaxAttempts,
	}
}

// Execute runs the query against the first candidate, failing over to the
// next on timeout, non-2xx status, or a malformed payload, up to the attempt
// bound. Each attempt carries its own timeout so a hung instance cannot
// block the caller.
func (p *Proxy) Execute(ctx context.Context, req Request) (*Response, error) {
	candidates := p.source.SelectCandidates()
	if len(candidates) > p.maxAttempts {
		candidates = candidates[:p.maxAttempts]
	}

	attempts := 0
	var lastErr error
	for _, cand := range candidates {
		attempts++
		resp, err := p.attempt(ctx, cand, req)
		if err == nil {
			resp.Attempts = attempts
			p.recordAttempt(cand.URL, "success")
			return resp, nil
		}
		lastErr = err
		p.recordAttempt(cand.URL, "error")
		p.logger.Warn("upstream attempt failed",
			zap.String("instance", cand.URL),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		// A canceled caller should not burn the remaining candidates.
		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no upstream candidates available")
	}
	return nil, &ExhaustedError{Attempts: attempts, Last: lastErr}
}

func (p *Proxy) attempt(ctx context.Context, cand *instance.SearchInstance, req Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, p.buildURL(cand.URL, req), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call instance: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("instance returned status %d", httpResp.StatusCode)
	}

	var payload upstreamResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	return normalize(cand.URL, req, &payload), nil
}

func (p *Proxy) buildURL(base string, req Request) string {
	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("format", "json")
	if len(req.Engines) > 0 {
		params.Set("engines", strings.Join(req.Engines, ","))
	}
	if req.Language != "" {
		params.Set("language", req.Language)
	}
	if req.SafeSearch != nil {
		params.Set("safesearch", strconv.Itoa(*req.SafeSearch))
	}
	if req.TimeRange != "" {
		params.Set("time_range", req.TimeRange)
	}
	if req.Page > 1 {
		params.Set("pageno", strconv.Itoa(req.Page))
	}
	if req.Category != "" {
		params.Set("categories", req.Category)
	}
	return strings.TrimSuffix(base, "/") + "/search?" + params.Encode()
}

// normalize converts an upstream payload into the fixed result shape,
// assigning 1-based positions in returned order.
func normalize(instanceURL string, req Request, payload *upstreamResponse) *Response {
	results := make([]Result, 0, len(payload.Results))
	seenEngines := make(map[string]struct{})
	for i, r := range payload.Results {
		results = append(results, Result{
			Title:         r.Title,
			URL:           r.URL,
			Snippet:       r.Content,
			Position:      i + 1,
			Engine:        r.Engine,
			PublishedDate: r.PublishedDate,
		})
		if r.Engine != "" {
			seenEngines[r.Engine] = struct{}{}
		}
	}

	enginesUsed := make([]string, 0, len(seenEngines))
	for e := range seenEngines {
		enginesUsed = append(enginesUsed, e)
	}
	sort.Strings(enginesUsed)
	if len(enginesUsed) == 0 {
		enginesUsed = req.Engines
	}

	count := payload.NumberOfResults
	if count == 0 {
		count = len(results)
	}

	return &Response{
		Results:         results,
		NumberOfResults: count,
		InstanceUsed:    instanceURL,
		EnginesUsed:     enginesUsed,
	}
}

func (p *Proxy) recordAttempt(instanceURL, status string) {
	if p.metrics != nil {
		p.metrics.UpstreamAttemptsTotal.WithLabelValues(instanceURL, status).Inc()
	}
}
