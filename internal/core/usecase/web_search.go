package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

const (
	DefaultMaxScrapeURLs     = 3
	DefaultScrapeConcurrency = 3
)

type WebResearchConfig struct {
	MaxScrapeURLs     int
	ScrapeConcurrency int
}

// WebSearchOutcome is the search step of a web turn. Degraded is set when the
// provider failed and Results holds the synthetic fallback entry.
type WebSearchOutcome struct {
	Results  []domain.WebSearchResult
	Degraded bool
}

// WebResearcher runs the search and scrape steps of a web turn.
type WebResearcher struct {
	searcher ports.WebSearcher
	scrapers ports.WebScraperFactory
	cfg      WebResearchConfig
	logger   *slog.Logger
	observer ports.PipelineObserver
}

func NewWebResearcher(searcher ports.WebSearcher, scrapers ports.WebScraperFactory, cfg WebResearchConfig, logger *slog.Logger, observer ports.PipelineObserver) *WebResearcher {
	if cfg.MaxScrapeURLs <= 0 {
		cfg.MaxScrapeURLs = DefaultMaxScrapeURLs
	}
	if cfg.ScrapeConcurrency <= 0 {
		cfg.ScrapeConcurrency = DefaultScrapeConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebResearcher{
		searcher: searcher,
		scrapers: scrapers,
		cfg:      cfg,
		logger:   logger,
		observer: observerOrNoop(observer),
	}
}

// Search never fails: a provider error degrades to a single synthetic entry.
func (r *WebResearcher) Search(ctx context.Context, query string) WebSearchOutcome {
	response, err := r.searcher.SearchWeb(ctx, query)
	if err != nil {
		r.logger.Warn("web_search_degraded", "error", err)
		r.observer.ObserveWebSearch(0, true)
		return WebSearchOutcome{
			Results:  []domain.WebSearchResult{{Name: SearchErrorTitle, Snippet: SearchUnavailableSnippet}},
			Degraded: true,
		}
	}
	results := response.Results()
	r.observer.ObserveWebSearch(len(results), false)
	return WebSearchOutcome{Results: results}
}

// Scrape fetches the first valid result URLs. No scraper is created when
// there is nothing to fetch.
func (r *WebResearcher) Scrape(ctx context.Context, results []domain.WebSearchResult) []domain.ScrapeResult {
	urls := make([]string, 0, len(results))
	for _, result := range results {
		if url := strings.TrimSpace(result.URL); url != "" {
			urls = append(urls, url)
		}
	}
	if len(urls) == 0 || r.scrapers == nil {
		return nil
	}

	scraper := r.scrapers.NewScraper()
	defer func() {
		if err := scraper.Close(); err != nil {
			r.logger.Warn("scraper_close_failed", "error", err)
		}
	}()

	valid := scraper.FilterValidURLs(urls)
	if len(valid) > r.cfg.MaxScrapeURLs {
		valid = valid[:r.cfg.MaxScrapeURLs]
	}
	if len(valid) == 0 {
		return nil
	}

	scraped := scraper.ScrapeMany(ctx, valid, r.cfg.ScrapeConcurrency)
	for _, page := range scraped {
		if !page.Success {
			r.logger.Info("scrape_failed", "url", page.URL, "error", page.Error)
		}
	}
	r.observer.ObserveScrapes(scraped)
	return scraped
}

// WebDiagnosticsUseCase exposes the raw search and scrape outcome of a query.
type WebDiagnosticsUseCase struct {
	researcher *WebResearcher
}

func NewWebDiagnosticsUseCase(researcher *WebResearcher) *WebDiagnosticsUseCase {
	return &WebDiagnosticsUseCase{researcher: researcher}
}

func (uc *WebDiagnosticsUseCase) Diagnose(ctx context.Context, query string) (*domain.WebDiagnostics, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "diagnose web search", errors.New("query is empty"))
	}
	if uc.researcher == nil {
		return nil, &domain.DetailedError{Kind: domain.ErrConfiguration, Message: "web search is not configured"}
	}

	outcome := uc.researcher.Search(ctx, query)
	scraped := uc.researcher.Scrape(ctx, outcome.Results)
	assembled, _, _ := webContext(scraped, outcome.Results)

	success := 0
	for _, page := range scraped {
		if page.Success {
			success++
		}
	}
	return &domain.WebDiagnostics{
		Query:           query,
		SearchResults:   outcome.Results,
		SearchDegraded:  outcome.Degraded,
		ScrapedContents: scraped,
		SuccessCount:    success,
		Context:         assembled,
	}, nil
}
