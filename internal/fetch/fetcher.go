package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"image-pipeline/internal/telemetry"
)

// Error is the terminal download failure after all attempts are spent. It
// wraps the last underlying cause.
type Error struct {
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fetcher downloads raw image bytes with a bounded timeout and a fixed-delay
// retry policy. It has no side effects beyond the network call.
type Fetcher struct {
	client   *http.Client
	attempts int
	delay    time.Duration
	maxBytes int64
}

// New builds a fetcher. Zero values fall back to 30s timeout, 3 attempts,
// 2s delay, and a 25 MiB body cap.
func New(timeout time.Duration, attempts int, delay time.Duration, maxBytes int64) *Fetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if attempts <= 0 {
		attempts = 3
	}
	if maxBytes == 0 {
		maxBytes = 25 * 1024 * 1024
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		attempts: attempts,
		delay:    delay,
		maxBytes: maxBytes,
	}
}

// Fetch issues up to the configured number of GETs, waiting the fixed delay
// between failed attempts. Any non-2xx response or transport error counts as
// a failed attempt. Exhausting attempts returns an *Error carrying the last
// cause.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if attempt > 1 {
			telemetry.FetchRetries.Inc()
			select {
			case <-ctx.Done():
				return nil, &Error{URL: url, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(f.delay):
			}
		}

		body, err := f.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}
	return nil, &Error{URL: url, Attempts: f.attempts, Err: lastErr}
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, f.maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("image too large (>%d bytes)", f.maxBytes)
	}
	return body, nil
}
