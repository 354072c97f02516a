package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	MarkIndexed(ctx context.Context, id string, chunkCount int) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// DocumentAnalyzer turns raw document bytes into text paragraphs.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, doc *domain.Document, content []byte) ([]string, error)
}

// Chunker splits extracted text into overlapping chunks.
type Chunker interface {
	Split(text string) ([]domain.DocumentChunk, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the external similarity index.
type VectorIndex interface {
	EnsureIndex(ctx context.Context, dimensions int) error
	Write(ctx context.Context, passages []domain.IndexedPassage) error
	Query(ctx context.Context, vector []float32, k int, filter domain.FilterExpression) ([]domain.RetrievedResult, error)
}

// TokenStream is an open streaming completion.
type TokenStream interface {
	Next() bool
	Token() string
	Err() error
	Close() error
}

// ChatCompleter opens streaming chat completions.
type ChatCompleter interface {
	StreamCompletion(ctx context.Context, messages []domain.ChatMessage, model string) (TokenStream, error)
}

// HistoryStore reads and appends conversation turns.
type HistoryStore interface {
	EnsureThread(ctx context.Context, thread domain.Thread) (*domain.Thread, error)
	GetMessages(ctx context.Context, threadID, userID string) ([]domain.ConversationTurn, error)
	AddMessage(ctx context.Context, turn domain.ConversationTurn) error
}

// DepartmentResolver returns nil without error for unknown ids.
type DepartmentResolver interface {
	GetDepartment(ctx context.Context, id string) (*domain.Department, error)
}

// WebSearcher queries the web search provider.
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string) (domain.WebSearchResponse, error)
}

// WebScraper fetches and extracts pages. One instance serves one turn.
type WebScraper interface {
	FilterValidURLs(urls []string) []string
	ScrapeMany(ctx context.Context, urls []string, maxConcurrent int) []domain.ScrapeResult
	Close() error
}

// WebScraperFactory creates per-turn scrapers.
type WebScraperFactory interface {
	NewScraper() WebScraper
}

// SearchCache stores serialized search responses.
type SearchCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// SessionVerifier resolves a bearer token into a session.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Session, error)
}

// PipelineObserver receives outcome events of chat turns.
type PipelineObserver interface {
	ObserveRetrieval(mode domain.ChatMode, hits int, unavailable bool)
	ObserveWebSearch(results int, degraded bool)
	ObserveScrapes(results []domain.ScrapeResult)
	ObserveCompletion(mode domain.ChatMode, model string, state domain.CompletionState, tokens int, duration time.Duration)
}
