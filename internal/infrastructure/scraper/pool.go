package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

const (
	DefaultMaxConcurrent     = 3
	DefaultNavigationTimeout = 10 * time.Second
	DefaultBatchCooldown     = time.Second
)

type Options struct {
	NavigationTimeout time.Duration
	// BatchCooldown defaults to one second; negative disables it.
	BatchCooldown    time.Duration
	MaxContentLength int
	UserAgent        string
	MaxBodyBytes     int64
	// NewFetcher builds the session handle on first use.
	NewFetcher func() (Fetcher, error)
	Logger     *slog.Logger
}

func (o Options) normalize() Options {
	out := o
	if out.NavigationTimeout <= 0 {
		out.NavigationTimeout = DefaultNavigationTimeout
	}
	switch {
	case out.BatchCooldown == 0:
		out.BatchCooldown = DefaultBatchCooldown
	case out.BatchCooldown < 0:
		out.BatchCooldown = 0
	}
	if out.MaxContentLength <= 0 {
		out.MaxContentLength = DefaultMaxContentLength
	}
	if out.NewFetcher == nil {
		userAgent, maxBody := out.UserAgent, out.MaxBodyBytes
		out.NewFetcher = func() (Fetcher, error) {
			return NewHTTPFetcher(userAgent, maxBody), nil
		}
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Pool scrapes pages in bounded batches. The session handle is shared by all
// scrapes of the pool and must be released with Close.
type Pool struct {
	opts Options

	mu      sync.Mutex
	fetcher Fetcher
}

func NewPool(opts Options) *Pool {
	return &Pool{opts: opts.normalize()}
}

func (p *Pool) FilterValidURLs(urls []string) []string {
	return FilterValidURLs(urls)
}

// ScrapeMany returns one result per input URL in input order. Batches of
// maxConcurrent URLs run concurrently, batches run one after another.
func (p *Pool) ScrapeMany(ctx context.Context, urls []string, maxConcurrent int) []domain.ScrapeResult {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	results := make([]domain.ScrapeResult, len(urls))

	for start := 0; start < len(urls); start += maxConcurrent {
		if start > 0 {
			if err := p.cooldown(ctx); err != nil {
				for i := start; i < len(urls); i++ {
					results[i] = failedResult(urls[i], err)
				}
				break
			}
		}

		end := start + maxConcurrent
		if end > len(urls) {
			end = len(urls)
		}

		// A plain group: one failing page must not cancel its siblings.
		var g errgroup.Group
		g.SetLimit(maxConcurrent)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = p.Scrape(ctx, urls[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return results
}

// Scrape fetches and extracts one page. Failures are reported in the result.
func (p *Pool) Scrape(ctx context.Context, url string) domain.ScrapeResult {
	fetcher, err := p.session()
	if err != nil {
		return failedResult(url, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.NavigationTimeout)
	defer cancel()

	body, err := fetcher.Fetch(fetchCtx, url)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("navigation timeout of %s exceeded", p.opts.NavigationTimeout)
		}
		p.opts.Logger.Warn("scrape_failed", "url", url, "error", err)
		return failedResult(url, err)
	}

	page, err := ExtractPage(bytes.NewReader(body), p.opts.MaxContentLength)
	if err != nil {
		p.opts.Logger.Warn("scrape_failed", "url", url, "error", err)
		return failedResult(url, err)
	}

	return domain.ScrapeResult{
		URL:     url,
		Title:   page.Title,
		Content: page.Content,
		Success: true,
	}
}

// Close releases the session handle. Safe to call repeatedly and before any
// scrape; a later scrape opens a new session.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fetcher == nil {
		return nil
	}
	var err error
	if closer, ok := p.fetcher.(interface{ Close() error }); ok {
		err = closer.Close()
	}
	p.fetcher = nil
	return err
}

func (p *Pool) session() (Fetcher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fetcher != nil {
		return p.fetcher, nil
	}
	fetcher, err := p.opts.NewFetcher()
	if err != nil {
		return nil, fmt.Errorf("open scrape session: %w", err)
	}
	p.fetcher = fetcher
	return fetcher, nil
}

func (p *Pool) cooldown(ctx context.Context) error {
	if p.opts.BatchCooldown == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.opts.BatchCooldown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func failedResult(url string, err error) domain.ScrapeResult {
	return domain.ScrapeResult{
		URL:     url,
		Success: false,
		Error:   err.Error(),
	}
}

// Factory hands out one pool per turn.
type Factory struct {
	opts Options
}

func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

func (f *Factory) NewScraper() ports.WebScraper {
	return NewPool(f.opts)
}
