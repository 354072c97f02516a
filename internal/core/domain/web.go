package domain

type ScrapeResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type WebSearchResult struct {
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

type WebPages struct {
	Value []WebSearchResult `json:"value"`
}

type WebSearchResponse struct {
	WebPages WebPages `json:"webPages"`
}

func (r WebSearchResponse) Results() []WebSearchResult {
	return r.WebPages.Value
}

// WebDiagnostics is the raw outcome of one search-and-scrape run.
type WebDiagnostics struct {
	Query           string            `json:"query"`
	SearchResults   []WebSearchResult `json:"searchResults"`
	SearchDegraded  bool              `json:"searchDegraded"`
	ScrapedContents []ScrapeResult    `json:"scrapedContents"`
	SuccessCount    int               `json:"successCount"`
	Context         string            `json:"context"`
}
