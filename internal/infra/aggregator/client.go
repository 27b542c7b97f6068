// Package aggregator talks to DEX swap aggregators over HTTP:
//   - Jupiter: quote + swap-instructions (Solana, instruction-returning)
//   - 1inch:   v6 swap (EVM, transaction-returning)
//
// Callers pass the *http.Client to use per request so proxy rotation stays
// outside this package.
package aggregator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/infra/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxErrorBody caps how much of a failed response ends up in an error.
const maxErrorBody = 512

type call struct {
	aggregator string
	endpoint   string
	method     string
	url        string
	header     http.Header
	body       any
}

// ─── Retry ──────────────────────────────────────────────────────────────────

// RetryConfig bounds retries of transient aggregator failures: transport
// errors, 429 and 5xx. Delay doubles per attempt up to MaxDelay.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   4 * time.Second,
	}
}

func (rc RetryConfig) backoff(attempt int) time.Duration {
	d := rc.BaseDelay
	for i := 0; i < attempt && d < rc.MaxDelay; i++ {
		d *= 2
	}
	if d > rc.MaxDelay {
		d = rc.MaxDelay
	}
	return d
}

// do sends c, retrying transient failures per rc, and decodes a 2xx JSON
// response into out.
func do(ctx context.Context, hc *http.Client, rc RetryConfig, c call, out any) error {
	for attempt := 0; ; attempt++ {
		retryable, err := once(ctx, hc, c, out)
		if err == nil || !retryable || attempt >= rc.MaxRetries {
			return err
		}
		metrics.AggregatorRetries.WithLabelValues(c.aggregator, c.endpoint).Inc()

		t := time.NewTimer(rc.backoff(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

// once sends one request. retryable reports whether a failure is transient.
func once(ctx context.Context, hc *http.Client, c call, out any) (retryable bool, err error) {
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		if err != nil {
			return false, fmt.Errorf("encode %s %s request: %w", c.aggregator, c.endpoint, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return false, fmt.Errorf("build %s %s request: %w", c.aggregator, c.endpoint, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	metrics.AggregatorLatency.WithLabelValues(c.aggregator, c.endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("%w: %s %s: %v", domain.ErrAggregator, c.aggregator, c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return transient, fmt.Errorf("%w: %s %s: status %d, body: %s",
			domain.ErrAggregator, c.aggregator, c.endpoint, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("%w: decode %s %s response: %v", domain.ErrAggregator, c.aggregator, c.endpoint, err)
	}
	return false, nil
}
