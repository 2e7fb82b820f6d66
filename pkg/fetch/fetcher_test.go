package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/wordcrawl/pkg/config"
	"github.com/Sriram-PR/wordcrawl/pkg/utils"
)

// testConfig returns an AppConfig with fast retry delays for testing
func testConfig(maxRetries int) *config.AppConfig {
	return &config.AppConfig{
		MaxRetries:        maxRetries,
		InitialRetryDelay: 10 * time.Millisecond,
		MaxRetryDelay:     50 * time.Millisecond,
		UserAgent:         "wordcrawl-test",
		MaxPageSizeBytes:  1024,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testClient returns an http.Client suitable for testing
func testClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// mockServer creates an httptest.Server that returns status codes in sequence.
// Returns the server and an atomic counter tracking request attempts.
func mockServer(t *testing.T, statusCodes []int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attemptCount.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1 // repeat last status
		}
		w.WriteHeader(statusCodes[idx])
	}))
	t.Cleanup(server.Close)
	return server, attemptCount
}

func TestFetchWithRetry_Success(t *testing.T) {
	server, attempts := mockServer(t, []int{http.StatusOK})

	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_RetryableThenSuccess(t *testing.T) {
	tests := []struct {
		name     string
		codes    []int
		attempts int32
	}{
		{"ServerErrors", []int{500, 500, 200}, 3},
		{"RateLimit", []int{429, 200}, 2},
		{"Mixed", []int{500, 429, 503, 200}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, attempts := mockServer(t, tt.codes)

			fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

			resp, err := fetcher.FetchWithRetry(context.Background(), req)
			if err != nil {
				t.Fatalf("expected no error after retry, got: %v", err)
			}
			defer resp.Body.Close()

			if attempts.Load() != tt.attempts {
				t.Errorf("expected %d attempts, got %d", tt.attempts, attempts.Load())
			}
		})
	}
}

func TestFetchWithRetry_AllRetriesFail(t *testing.T) {
	server, attempts := mockServer(t, []int{500})

	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(context.Background(), req)
	if err == nil {
		t.Fatal("expected error after all retries failed")
	}
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response when all retries fail")
	}
	if !errors.Is(err, utils.ErrRetryFailed) || !errors.Is(err, utils.ErrServerHTTPError) {
		t.Errorf("expected ErrRetryFailed wrapping ErrServerHTTPError, got: %v", err)
	}
	if got := utils.CategorizeError(err); got != "RetryFailed_HTTPServer" {
		t.Errorf("CategorizeError = %q, want RetryFailed_HTTPServer", got)
	}
	if attempts.Load() != 4 {
		t.Errorf("expected 4 attempts (initial + 3 retries), got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ClientError_NoRetry(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusBadRequest} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			server, attempts := mockServer(t, []int{code})

			fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

			resp, err := fetcher.FetchWithRetry(context.Background(), req)
			if !errors.Is(err, utils.ErrClientHTTPError) {
				t.Errorf("expected ErrClientHTTPError, got: %v", err)
			}
			if resp == nil {
				t.Fatal("expected response for 4xx (caller may need to inspect)")
			}
			defer resp.Body.Close()

			if attempts.Load() != 1 {
				t.Errorf("expected 1 attempt (no retry for 4xx), got %d", attempts.Load())
			}
		})
	}
}

func TestFetchWithRetry_OtherStatus(t *testing.T) {
	server, attempts := mockServer(t, []int{301}) // No Location header, so not followed

	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(context.Background(), req)
	if !errors.Is(err, utils.ErrOtherHTTPError) {
		t.Errorf("expected ErrOtherHTTPError, got: %v", err)
	}
	if resp == nil {
		t.Fatal("expected response for non-2xx")
	}
	defer resp.Body.Close()

	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ContextCancelled_BeforeAttempt(t *testing.T) {
	server, attempts := mockServer(t, []int{200})

	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := fetcher.FetchWithRetry(ctx, req)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response for cancelled context")
	}
	if attempts.Load() != 0 {
		t.Errorf("expected 0 attempts, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ContextTimeout_DuringBackoff(t *testing.T) {
	server, attempts := mockServer(t, []int{500})

	cfg := testConfig(3)
	cfg.InitialRetryDelay = 10 * time.Second
	cfg.MaxRetryDelay = 10 * time.Second

	fetcher := NewFetcher(testClient(), cfg, testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	resp, err := fetcher.FetchWithRetry(ctx, req)
	if err == nil {
		t.Fatal("expected error for timed out context")
	}
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response")
	}
	if !errors.Is(err, utils.ErrServerHTTPError) {
		t.Errorf("expected last attempt's error to be wrapped, got: %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt before timeout, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_ContextTimeout_DuringRequest(t *testing.T) {
	slowServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(slowServer.Close)

	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, slowServer.URL, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp, err := fetcher.FetchWithRetry(ctx, req)
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got: %v", err)
	}
}

func TestFetchWithRetry_NetworkError_RetrySuccess(t *testing.T) {
	attemptCount := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attemptCount.Add(1) == 1 {
			// Close connection to simulate network error
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("server doesn't support hijacking")
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	fetcher := NewFetcher(testClient(), testConfig(3), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(context.Background(), req)
	if err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	defer resp.Body.Close()

	if attemptCount.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attemptCount.Load())
	}
}

func TestFetchWithRetry_ZeroRetries(t *testing.T) {
	server, attempts := mockServer(t, []int{500})

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)

	resp, err := fetcher.FetchWithRetry(context.Background(), req)
	if resp != nil {
		resp.Body.Close()
	}
	if !errors.Is(err, utils.ErrRetryFailed) {
		t.Errorf("expected ErrRetryFailed, got: %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt (no retries), got %d", attempts.Load())
	}
}

func TestBackoffDelay(t *testing.T) {
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffDelay(attempt, 100*time.Millisecond, time.Second)
		if d < 0 || d > 1100*time.Millisecond {
			t.Errorf("backoffDelay(%d) = %v, want within [0, 1.1s]", attempt, d)
		}
	}
	if d := backoffDelay(1, 0, 0); d != 0 {
		t.Errorf("backoffDelay with zero delays = %v, want 0", d)
	}
}

// --- FetchPage ---

func htmlServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestFetchPage_HTML(t *testing.T) {
	var gotUA string
	server := htmlServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<p>hello</p>")
	})

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	page, err := fetcher.FetchPage(context.Background(), server.URL+"/index.html")
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if string(page.Body) != "<p>hello</p>" {
		t.Errorf("Body = %q", page.Body)
	}
	if page.FinalURL.Path != "/index.html" {
		t.Errorf("FinalURL = %s, want path /index.html", page.FinalURL)
	}
	if gotUA != "wordcrawl-test" {
		t.Errorf("User-Agent = %q, want wordcrawl-test", gotUA)
	}
}

func TestFetchPage_FollowsRedirectForBase(t *testing.T) {
	server := htmlServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/docs/new", http.StatusMovedPermanently)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<p>moved</p>")
	})

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	page, err := fetcher.FetchPage(context.Background(), server.URL+"/old")
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if page.FinalURL.Path != "/docs/new" {
		t.Errorf("FinalURL = %s, want path /docs/new", page.FinalURL)
	}
}

func TestFetchPage_NotHTML(t *testing.T) {
	server := htmlServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.7")
	})

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	_, err := fetcher.FetchPage(context.Background(), server.URL)
	if !errors.Is(err, utils.ErrNotHTML) {
		t.Errorf("expected ErrNotHTML, got: %v", err)
	}
}

func TestFetchPage_BodyTooLong(t *testing.T) {
	server := htmlServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, strings.Repeat("a", 2048))
	})

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	_, err := fetcher.FetchPage(context.Background(), server.URL)
	if !errors.Is(err, utils.ErrResponseBodyTooLong) {
		t.Errorf("expected ErrResponseBodyTooLong, got: %v", err)
	}
}

func TestFetchPage_ClientError(t *testing.T) {
	server, _ := mockServer(t, []int{http.StatusNotFound})

	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	page, err := fetcher.FetchPage(context.Background(), server.URL)
	if page != nil {
		t.Error("expected nil page on 404")
	}
	if got := utils.CategorizeError(err); got != "HTTP_404" {
		t.Errorf("CategorizeError = %q, want HTTP_404 (err=%v)", got, err)
	}
}

func TestFetchPage_BadURL(t *testing.T) {
	fetcher := NewFetcher(testClient(), testConfig(0), testLogger())
	_, err := fetcher.FetchPage(context.Background(), "http://[::1")
	if !errors.Is(err, utils.ErrRequestCreation) {
		t.Errorf("expected ErrRequestCreation, got: %v", err)
	}
}

func TestIsHTML(t *testing.T) {
	tests := map[string]bool{
		"":                          true,
		"text/html":                 true,
		"TEXT/HTML; charset=utf-8":  true,
		"application/xhtml+xml":     true,
		"text/plain":                false,
		"application/json":          false,
		"image/png":                 false,
		"not a valid ; media type=": false,
	}
	for ct, want := range tests {
		if got := isHTML(ct); got != want {
			t.Errorf("isHTML(%q) = %v, want %v", ct, got, want)
		}
	}
}
