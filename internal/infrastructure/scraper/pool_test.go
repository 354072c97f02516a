package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type instrumentedFetcher struct {
	delay   time.Duration
	failURL string

	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    int
	closed   int
}

func (f *instrumentedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.inFlight++
	f.calls++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.delay):
	}
	if url == f.failURL {
		return nil, errors.New("connection reset")
	}
	return []byte("<html><head><title>" + url + "</title></head><body><main>content of " + url + "</main></body></html>"), nil
}

func (f *instrumentedFetcher) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func newTestPool(fetcher Fetcher, created *int32) *Pool {
	return NewPool(Options{
		BatchCooldown:     time.Millisecond,
		NavigationTimeout: time.Second,
		NewFetcher: func() (Fetcher, error) {
			if created != nil {
				atomic.AddInt32(created, 1)
			}
			return fetcher, nil
		},
	})
}

func testURLs(n int) []string {
	urls := make([]string, 0, n)
	for i := 0; i < n; i++ {
		urls = append(urls, fmt.Sprintf("https://site-%d.test/page", i))
	}
	return urls
}

func TestScrapeManyBoundsConcurrency(t *testing.T) {
	fetcher := &instrumentedFetcher{delay: 20 * time.Millisecond}
	pool := newTestPool(fetcher, nil)
	defer pool.Close()

	urls := testURLs(10)
	results := pool.ScrapeMany(context.Background(), urls, 3)

	if fetcher.maxSeen > 3 {
		t.Fatalf("expected at most 3 concurrent fetches, saw %d", fetcher.maxSeen)
	}
	if fetcher.calls != 10 {
		t.Fatalf("expected 10 fetches, got %d", fetcher.calls)
	}
	if len(results) != len(urls) {
		t.Fatalf("expected %d results, got %d", len(urls), len(results))
	}
	for i, res := range results {
		if res.URL != urls[i] {
			t.Fatalf("result %d out of order: %s", i, res.URL)
		}
		if !res.Success || res.Content != "content of "+urls[i] {
			t.Fatalf("unexpected result %d: %+v", i, res)
		}
	}
}

func TestScrapeManyIsolatesFailures(t *testing.T) {
	urls := testURLs(5)
	fetcher := &instrumentedFetcher{delay: time.Millisecond, failURL: urls[2]}
	pool := newTestPool(fetcher, nil)
	defer pool.Close()

	results := pool.ScrapeMany(context.Background(), urls, 3)
	for i, res := range results {
		if i == 2 {
			if res.Success || res.Error == "" || res.Content != "" {
				t.Fatalf("expected isolated failure, got %+v", res)
			}
			continue
		}
		if !res.Success || res.Error != "" {
			t.Fatalf("expected success for %s, got %+v", urls[i], res)
		}
	}
}

func TestScrapeManyStopsAtCancelledCooldown(t *testing.T) {
	fetcher := &instrumentedFetcher{delay: time.Millisecond}
	pool := NewPool(Options{
		BatchCooldown: time.Hour,
		NewFetcher:    func() (Fetcher, error) { return fetcher, nil },
	})
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	results := pool.ScrapeMany(ctx, testURLs(4), 2)
	if !results[0].Success || !results[1].Success {
		t.Fatalf("first batch should succeed: %+v", results[:2])
	}
	if results[2].Success || results[3].Success {
		t.Fatalf("second batch should fail after cancellation: %+v", results[2:])
	}
}

func TestPoolSessionIsLazyAndCloseIdempotent(t *testing.T) {
	var created int32
	fetcher := &instrumentedFetcher{delay: time.Millisecond}
	pool := newTestPool(fetcher, &created)

	if err := pool.Close(); err != nil {
		t.Fatalf("Close() on unused pool error = %v", err)
	}
	if atomic.LoadInt32(&created) != 0 {
		t.Fatalf("session must not be created before first scrape")
	}

	pool.ScrapeMany(context.Background(), testURLs(4), 3)
	if got := atomic.LoadInt32(&created); got != 1 {
		t.Fatalf("expected one session, got %d", got)
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if fetcher.closed != 1 {
		t.Fatalf("expected session closed once, got %d", fetcher.closed)
	}

	pool.ScrapeMany(context.Background(), testURLs(1), 3)
	if got := atomic.LoadInt32(&created); got != 2 {
		t.Fatalf("expected new session after close, got %d", got)
	}
	_ = pool.Close()
}

func TestScrapeOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			if !strings.Contains(r.UserAgent(), "Mozilla/5.0") {
				t.Errorf("unexpected user agent %q", r.UserAgent())
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head><title>Article</title></head><body><nav>menu</nav><article>Body text</article></body></html>`))
		case "/image.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 0x50})
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	pool := NewPool(Options{NavigationTimeout: 100 * time.Millisecond, BatchCooldown: -1})
	defer pool.Close()

	urls := []string{server.URL + "/article", server.URL + "/missing", server.URL + "/image.png", server.URL + "/slow"}
	results := pool.ScrapeMany(context.Background(), urls, 3)

	if !results[0].Success || results[0].Title != "Article" || results[0].Content != "Body text" {
		t.Fatalf("unexpected article result: %+v", results[0])
	}
	if results[1].Success || results[1].Error != "HTTP 404 error" {
		t.Fatalf("unexpected 404 result: %+v", results[1])
	}
	if results[2].Success {
		t.Fatalf("image resource must be rejected: %+v", results[2])
	}
	if results[3].Success || !strings.Contains(results[3].Error, "timeout") {
		t.Fatalf("expected navigation timeout, got %+v", results[3])
	}
}
