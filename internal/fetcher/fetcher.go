package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
)

// NewInvalidURLError builds the classified error for a rejected URL.
func NewInvalidURLError(rawURL, format string, args ...interface{}) error {
	return jobs.NewError(jobs.ErrorKindInvalidUrl, "%s: %s", fmt.Sprintf(format, args...), rawURL)
}

// HTTPFetcher downloads a single URL with a per-fetch timeout, a response
// body size ceiling and per-domain politeness delays.
type HTTPFetcher struct {
	client       *http.Client
	rateLimiter  *RateLimiter
	timeout      time.Duration
	maxBodyBytes int64
	userAgent    string
	logger       arbor.ILogger
}

// NewHTTPFetcher creates a fetcher from configuration.
func NewHTTPFetcher(config *common.FetcherConfig, logger arbor.ILogger) *HTTPFetcher {
	timeout := common.Duration(config.PerFetchTimeout)

	rateLimiter := NewRateLimiter(common.Duration(config.DomainDelay))
	for domain, delay := range config.DomainDelays {
		rateLimiter.SetDomainDelay(domain, common.Duration(delay))
	}

	return &HTTPFetcher{
		client: &http.Client{
			// The per-fetch context carries the timeout; the transport
			// timeout is a backstop against connection-level hangs.
			Timeout: timeout + 5*time.Second,
		},
		rateLimiter:  rateLimiter,
		timeout:      timeout,
		maxBodyBytes: config.MaxBodyBytes,
		userAgent:    config.UserAgent,
		logger:       logger,
	}
}

// Fetch downloads one URL. The context timeout aborts the underlying
// connection, not just the logical wait, so timed-out sockets do not leak.
// Failures come back classified: Timeout, HttpError, NetworkError or
// PayloadTooLarge.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*interfaces.FetchResult, error) {
	if err := f.rateLimiter.Wait(ctx, rawURL); err != nil {
		return nil, jobs.WrapError(jobs.ErrorKindNetworkError, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, NewInvalidURLError(rawURL, "failed to build request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a bounded amount so the connection can be reused.
		io.CopyN(io.Discard, resp.Body, 4096)
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &jobs.ClassifiedError{
				Kind:       jobs.ErrorKindRateLimited,
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("rate limited fetching %s", rawURL),
			}
		}
		return nil, jobs.NewHTTPError(resp.StatusCode, "unexpected status fetching %s", rawURL)
	}

	// Read one byte past the ceiling to tell "exactly at limit" from "over".
	limited := io.LimitReader(resp.Body, f.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, jobs.NewError(jobs.ErrorKindPayloadTooLarge, "response body exceeds %d bytes for %s", f.maxBodyBytes, rawURL)
	}

	return &interfaces.FetchResult{
		Body:        string(body),
		SizeBytes:   len(body),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// classifyFetchError maps transport-level failures to the error taxonomy.
func classifyFetchError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return jobs.WrapError(jobs.ErrorKindTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return jobs.WrapError(jobs.ErrorKindTimeout, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return jobs.WrapError(jobs.ErrorKindNetworkError, err)
	}

	return jobs.WrapError(jobs.ErrorKindNetworkError, err)
}
