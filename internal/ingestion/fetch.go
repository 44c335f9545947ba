package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tdot-data/collision-weather-etl/internal/config"
)

// ErrUnavailable means a fetch exhausted all retry attempts. Callers
// treat it as "no data for this target" rather than a fatal failure.
var ErrUnavailable = errors.New("source unavailable after retries")

// RetryPolicy bounds a fetch: up to MaxAttempts tries, waiting
// Backoff × attempt between them.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Client is an HTTP GET client with bounded linear-backoff retry. The
// clock is injectable so retry waits are testable without real sleeps.
type Client struct {
	httpClient *http.Client
	policy     RetryPolicy
	clock      clockwork.Clock
}

func NewClient(cfg config.FetchConfig, clock clockwork.Clock) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		policy: RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     cfg.RetryBackoff,
		},
		clock: clock,
	}
}

// GetJSON fetches url and decodes the response body into v. Transport
// errors, non-2xx statuses and undecodable bodies are all retried; after
// the final attempt the last error is wrapped in ErrUnavailable.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		err := c.getOnce(ctx, url, v)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn("fetch attempt failed", "attempt", attempt, "error", err)

		if attempt < c.policy.MaxAttempts {
			wait := time.Duration(attempt) * c.policy.Backoff
			slog.Info("retrying fetch", "wait", wait.String())
			c.clock.Sleep(wait)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) getOnce(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return nil
}
