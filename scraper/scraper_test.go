package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-wb-ranker/config"
	"github.com/aluiziolira/go-wb-ranker/models"
	"github.com/jarcoal/httpmock"
)

const testSearchURL = "http://search.test/exactmatch/ru/common/v5/search"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.SearchURL = testSearchURL
	cfg.RetryAttempts = 3
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.RetryBackoffMax = 100 * time.Millisecond
	cfg.MinDelay = 5 * time.Millisecond
	cfg.MaxDelay = 20 * time.Millisecond
	return cfg
}

type fakeTransport struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, keyword string, page int) ([]models.Product, error)
}

func (f *fakeTransport) SearchPage(_ context.Context, keyword string, page int) ([]models.Product, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, keyword, page)
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.waits))
	copy(out, s.waits)
	return out
}

func productsPage(start int64, n int) []models.Product {
	products := make([]models.Product, n)
	for i := range products {
		products[i] = models.Product{ID: start + int64(i), Name: fmt.Sprintf("item %d", start+int64(i))}
	}
	return products
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: errors.New("Internal Server Error"), statusCode: http.StatusInternalServerError, expected: "upstream_unavailable"},
		{name: "bad gateway", err: nil, statusCode: http.StatusBadGateway, expected: "upstream_unavailable"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "rejected"},
		{name: "bad request", err: nil, statusCode: http.StatusBadRequest, expected: "rejected"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "upstream_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode, nil, time.Minute)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		value  string
		expect time.Duration
	}{
		{name: "absent", value: "", expect: time.Minute},
		{name: "seconds", value: "2", expect: 2 * time.Second},
		{name: "zero", value: "0", expect: time.Minute},
		{name: "http date", value: now.Add(30 * time.Second).Format(http.TimeFormat), expect: 30 * time.Second},
		{name: "past date", value: now.Add(-time.Hour).Format(http.TimeFormat), expect: time.Minute},
		{name: "garbage", value: "soon", expect: time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.value != "" {
				header.Set("Retry-After", tt.value)
			}
			if got := retryAfter(header, time.Minute, now); got != tt.expect {
				t.Fatalf("retryAfter(%q) = %v, want %v", tt.value, got, tt.expect)
			}
		})
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := RetryPolicy{Attempts: 5, BaseDelay: 100 * time.Millisecond, Factor: 2, MaxDelay: 500 * time.Millisecond}
	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
		500 * time.Millisecond,
	}
	for attempt, want := range expected {
		if got := policy.Backoff(attempt); got != want {
			t.Fatalf("Backoff(%d) = %v, want %v", attempt, got, want)
		}
	}
	if got := (RetryPolicy{}).Backoff(3); got != 0 {
		t.Fatalf("zero policy backoff = %v, want 0", got)
	}
}

func TestClientFindsTargetOnSecondPage(t *testing.T) {
	const target = 9001
	transport := &fakeTransport{fn: func(_ int, _ string, page int) ([]models.Product, error) {
		if page == 1 {
			return productsPage(1, 100), nil
		}
		products := productsPage(1000, 100)
		products[5] = models.Product{ID: target, Name: "target", Price: 1299}
		return products, nil
	}}
	sleeps := &sleepRecorder{}
	client := NewClient(testConfig(), transport, nil, WithSleep(sleeps.Sleep))

	outcome := client.Search(context.Background(), "dress", target, 5)
	if !outcome.IsFound() {
		t.Fatalf("expected found outcome, got %+v", outcome)
	}
	if outcome.Position != 106 || outcome.Page != 2 || outcome.PagesScanned != 2 {
		t.Fatalf("position/page/scanned = %d/%d/%d, want 106/2/2", outcome.Position, outcome.Page, outcome.PagesScanned)
	}
	if outcome.Product.Name != "target" {
		t.Fatalf("unexpected product: %+v", outcome.Product)
	}
	if transport.Calls() != 2 {
		t.Fatalf("transport calls = %d, want 2", transport.Calls())
	}
}

func TestClientRetriesUntilSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.RetryAttempts = 4
	const target = 77

	transport := &fakeTransport{fn: func(call int, _ string, _ int) ([]models.Product, error) {
		if call < cfg.RetryAttempts {
			return nil, ErrUpstreamUnavailable{StatusCode: 500, Err: errors.New("http status 500")}
		}
		return []models.Product{{ID: target}}, nil
	}}
	sleeps := &sleepRecorder{}
	client := NewClient(cfg, transport, NewMetrics(), WithSleep(sleeps.Sleep))

	outcome := client.Search(context.Background(), "shoes", target, 1)
	if !outcome.IsFound() || outcome.Position != 1 {
		t.Fatalf("expected found at position 1, got %+v", outcome)
	}
	if transport.Calls() != cfg.RetryAttempts {
		t.Fatalf("transport calls = %d, want %d", transport.Calls(), cfg.RetryAttempts)
	}

	waits := sleeps.Waits()
	if len(waits) != cfg.RetryAttempts-1 {
		t.Fatalf("sleeps = %v, want %d backoff waits", waits, cfg.RetryAttempts-1)
	}
	for i, wait := range waits {
		if want := client.policy.Backoff(i); wait != want {
			t.Fatalf("wait[%d] = %v, want %v", i, wait, want)
		}
	}
}

func TestClientExhaustsAttempts(t *testing.T) {
	cfg := testConfig()
	transport := &fakeTransport{fn: func(int, string, int) ([]models.Product, error) {
		return nil, ErrUpstreamUnavailable{StatusCode: 500, Err: errors.New("http status 500")}
	}}
	client := NewClient(cfg, transport, nil, WithSleep((&sleepRecorder{}).Sleep))

	outcome := client.Search(context.Background(), "bag", 1, 3)
	if !outcome.IsError() || outcome.IsFound() {
		t.Fatalf("expected error outcome, got %+v", outcome)
	}
	if !strings.Contains(outcome.Error, fmt.Sprintf("%d attempts", cfg.RetryAttempts)) {
		t.Fatalf("error %q should mention attempt count %d", outcome.Error, cfg.RetryAttempts)
	}
	if transport.Calls() != cfg.RetryAttempts {
		t.Fatalf("transport calls = %d, want %d", transport.Calls(), cfg.RetryAttempts)
	}
}

func TestClientDoesNotRetryRejected(t *testing.T) {
	transport := &fakeTransport{fn: func(int, string, int) ([]models.Product, error) {
		return nil, ErrRequestRejected{StatusCode: 400, Err: errors.New("http status 400")}
	}}
	sleeps := &sleepRecorder{}
	client := NewClient(testConfig(), transport, nil, WithSleep(sleeps.Sleep))

	outcome := client.Search(context.Background(), "hat", 1, 3)
	if !outcome.IsError() {
		t.Fatalf("expected error outcome, got %+v", outcome)
	}
	if transport.Calls() != 1 {
		t.Fatalf("transport calls = %d, want 1", transport.Calls())
	}
	if len(sleeps.Waits()) != 0 {
		t.Fatalf("rejected request should not sleep, got %v", sleeps.Waits())
	}
}

func TestClientNotFoundScansAllPages(t *testing.T) {
	cfg := testConfig()
	transport := &fakeTransport{fn: func(_ int, _ string, page int) ([]models.Product, error) {
		return productsPage(int64(page*1000), 10), nil
	}}
	sleeps := &sleepRecorder{}
	client := NewClient(cfg, transport, nil, WithSleep(sleeps.Sleep))

	outcome := client.Search(context.Background(), "scarf", 42, 3)
	if outcome.IsFound() || outcome.IsError() {
		t.Fatalf("expected plain not-found outcome, got %+v", outcome)
	}
	if outcome.PagesScanned != 3 {
		t.Fatalf("pages scanned = %d, want 3", outcome.PagesScanned)
	}

	waits := sleeps.Waits()
	if len(waits) != 2 {
		t.Fatalf("expected jitter before pages 2 and 3, got %v", waits)
	}
	for _, wait := range waits {
		if wait < cfg.MinDelay || wait > cfg.MaxDelay {
			t.Fatalf("jitter %v outside [%v, %v]", wait, cfg.MinDelay, cfg.MaxDelay)
		}
	}
}

func TestClientRespectsRetryAfter(t *testing.T) {
	cfg := testConfig()
	const target = 555

	mock := httpmock.NewMockTransport()
	calls := 0
	mock.RegisterResponder(http.MethodGet, testSearchURL, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			resp := httpmock.NewStringResponse(http.StatusTooManyRequests, "")
			if resp.Header == nil {
				resp.Header = http.Header{}
			}
			resp.Header.Set("Retry-After", "2")
			return resp, nil
		}
		return httpmock.NewStringResponse(http.StatusOK, fmt.Sprintf(`{"data":{"products":[{"id":%d,"name":"x"}]}}`, target)), nil
	})

	transport, err := NewHTTPTransport(cfg, nil)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	transport.WithTransport(mock)

	sleeps := &sleepRecorder{}
	client := NewClient(cfg, transport, nil, WithSleep(sleeps.Sleep))

	outcome := client.Search(context.Background(), "cap", target, 1)
	if !outcome.IsFound() {
		t.Fatalf("expected found outcome after rate limit, got %+v", outcome)
	}
	waits := sleeps.Waits()
	if len(waits) != 1 || waits[0] < 2*time.Second {
		t.Fatalf("expected one wait of at least 2s, got %v", waits)
	}
}

func TestClientGateBoundsConcurrency(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2

	var mu sync.Mutex
	active, peak := 0, 0
	transport := &fakeTransport{fn: func(int, string, int) ([]models.Product, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil, nil
	}}
	client := NewClient(cfg, transport, nil, WithSleep((&sleepRecorder{}).Sleep))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client.Search(context.Background(), fmt.Sprintf("kw%d", i), 1, 1)
		}(i)
	}
	wg.Wait()

	if peak > cfg.Concurrency {
		t.Fatalf("peak concurrency %d exceeds gate width %d", peak, cfg.Concurrency)
	}
}

func TestHealthCheck(t *testing.T) {
	healthy := &fakeTransport{fn: func(int, string, int) ([]models.Product, error) { return nil, nil }}
	if err := NewClient(testConfig(), healthy, nil).HealthCheck(context.Background()); err != nil {
		t.Fatalf("healthy transport: %v", err)
	}

	broken := &fakeTransport{fn: func(int, string, int) ([]models.Product, error) {
		return nil, ErrUpstreamUnavailable{Err: errors.New("down")}
	}}
	if err := NewClient(testConfig(), broken, nil).HealthCheck(context.Background()); err == nil {
		t.Fatalf("expected health check failure")
	}
}
