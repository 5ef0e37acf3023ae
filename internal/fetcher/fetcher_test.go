package fetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/jobs"
)

func newFetcherForTest(t *testing.T, timeout string, maxBody int64) *HTTPFetcher {
	t.Helper()
	return NewHTTPFetcher(&common.FetcherConfig{
		PerFetchTimeout: timeout,
		MaxBodyBytes:    maxBody,
		UserAgent:       "colligo-test",
	}, arbor.NewLogger())
}

func classifiedKind(t *testing.T, err error) *jobs.ClassifiedError {
	t.Helper()
	var classified *jobs.ClassifiedError
	if !errors.As(err, &classified) {
		t.Fatalf("Expected a classified error, got %T: %v", err, err)
	}
	return classified
}

func TestHTTPFetcher_Success(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	f := newFetcherForTest(t, "5s", 1024)
	result, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if result.StatusCode != 200 {
		t.Errorf("Expected status 200, got %d", result.StatusCode)
	}
	if result.Body != "<html><body>ok</body></html>" {
		t.Errorf("Unexpected body: %q", result.Body)
	}
	if result.SizeBytes != len(result.Body) {
		t.Errorf("SizeBytes %d does not match body length %d", result.SizeBytes, len(result.Body))
	}
	if !strings.HasPrefix(result.ContentType, "text/html") {
		t.Errorf("Unexpected content type: %q", result.ContentType)
	}
	if gotUserAgent != "colligo-test" {
		t.Errorf("Expected configured user agent, got %q", gotUserAgent)
	}
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	f := newFetcherForTest(t, "100ms", 1024)

	start := time.Now()
	_, err := f.Fetch(context.Background(), server.URL)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected a timeout error")
	}
	classified := classifiedKind(t, err)
	if classified.Kind != jobs.ErrorKindTimeout {
		t.Errorf("Expected Timeout, got %s", classified.Kind)
	}
	if !classified.IsTransient() {
		t.Error("Timeout must be transient")
	}

	// The hang settles near the per-fetch timeout, not the handler's sleep.
	if elapsed > 1500*time.Millisecond {
		t.Errorf("Fetch took %v, expected it to abort around the 100ms timeout", elapsed)
	}
}

func TestHTTPFetcher_PayloadTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 200)))
	}))
	defer server.Close()

	f := newFetcherForTest(t, "5s", 64)
	_, err := f.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected an oversized body to be rejected")
	}

	classified := classifiedKind(t, err)
	if classified.Kind != jobs.ErrorKindPayloadTooLarge {
		t.Errorf("Expected PayloadTooLarge, got %s", classified.Kind)
	}
	if classified.IsTransient() {
		t.Error("PayloadTooLarge must be permanent")
	}
}

func TestHTTPFetcher_BodyExactlyAtLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("y", 64)))
	}))
	defer server.Close()

	f := newFetcherForTest(t, "5s", 64)
	result, err := f.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Body exactly at the ceiling should pass: %v", err)
	}
	if result.SizeBytes != 64 {
		t.Errorf("Expected 64 bytes, got %d", result.SizeBytes)
	}
}

func TestHTTPFetcher_StatusClassification(t *testing.T) {
	cases := []struct {
		name          string
		status        int
		wantKind      jobs.ErrorKind
		wantTransient bool
	}{
		{"not found", 404, jobs.ErrorKindHttpError, false},
		{"forbidden", 403, jobs.ErrorKindHttpError, false},
		{"rate limited", 429, jobs.ErrorKindRateLimited, true},
		{"server error", 503, jobs.ErrorKindHttpError, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			f := newFetcherForTest(t, "5s", 1024)
			_, err := f.Fetch(context.Background(), server.URL)
			if err == nil {
				t.Fatalf("Expected status %d to fail", tc.status)
			}

			classified := classifiedKind(t, err)
			if classified.Kind != tc.wantKind {
				t.Errorf("Expected kind %s, got %s", tc.wantKind, classified.Kind)
			}
			if classified.StatusCode != tc.status {
				t.Errorf("Expected status %d recorded, got %d", tc.status, classified.StatusCode)
			}
			if classified.IsTransient() != tc.wantTransient {
				t.Errorf("Expected transient=%v for status %d", tc.wantTransient, tc.status)
			}
		})
	}
}

func TestClassifyFetchError(t *testing.T) {
	deadline := classifiedKind(t, classifyFetchError(context.DeadlineExceeded))
	if deadline.Kind != jobs.ErrorKindTimeout {
		t.Errorf("Deadline exceeded should classify as Timeout, got %s", deadline.Kind)
	}

	opErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	network := classifiedKind(t, classifyFetchError(opErr))
	if network.Kind != jobs.ErrorKindNetworkError {
		t.Errorf("Connection failure should classify as NetworkError, got %s", network.Kind)
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	limiter := NewRateLimiter(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	limiter.Wait(ctx, "https://example.com/a")
	limiter.Wait(ctx, "https://example.com/b")
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Second fetch to the same domain should wait, elapsed %v", elapsed)
	}

	// A different domain is not held up by the first one's clock.
	start = time.Now()
	limiter.Wait(ctx, "https://other.example.org/")
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("Fresh domain should not wait, elapsed %v", elapsed)
	}
}

func TestRateLimiter_SetDomainDelay(t *testing.T) {
	limiter := NewRateLimiter(0)
	limiter.SetDomainDelay("slow.example.com", 40*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	limiter.Wait(ctx, "https://slow.example.com/a")
	limiter.Wait(ctx, "https://slow.example.com/b")
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Domain override delay not applied, elapsed %v", elapsed)
	}

	start = time.Now()
	limiter.Wait(ctx, "https://fast.example.com/a")
	limiter.Wait(ctx, "https://fast.example.com/b")
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("Zero default delay should not wait, elapsed %v", elapsed)
	}
}

func TestNewHTTPFetcher_AppliesDomainDelayOverrides(t *testing.T) {
	f := NewHTTPFetcher(&common.FetcherConfig{
		PerFetchTimeout: "5s",
		MaxBodyBytes:    1024,
		DomainDelay:     "10ms",
		DomainDelays: map[string]string{
			"slow.example.com": "2s",
		},
	}, arbor.NewLogger())

	f.rateLimiter.mu.RLock()
	defer f.rateLimiter.mu.RUnlock()

	limiter, ok := f.rateLimiter.limiters["slow.example.com"]
	if !ok {
		t.Fatal("Expected a limiter seeded for the configured domain")
	}
	if limiter.delay != 2*time.Second {
		t.Errorf("Expected 2s override, got %v", limiter.delay)
	}
	if f.rateLimiter.defaultDelay != 10*time.Millisecond {
		t.Errorf("Expected 10ms default delay, got %v", f.rateLimiter.defaultDelay)
	}
}
