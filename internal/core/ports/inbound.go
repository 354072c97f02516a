package ports

import (
	"context"
	"io"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

// DocumentIngestor is the inbound contract for admin document uploads.
type DocumentIngestor interface {
	Upload(ctx context.Context, session domain.Session, req domain.UploadRequest, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// AnswerStream delivers one streamed answer to a transport.
type AnswerStream interface {
	ThreadID() string
	Citations() []domain.Citation
	SearchResults() []domain.WebSearchResult
	Tokens() <-chan string
	// Wait blocks until the stream reaches a terminal state.
	Wait() (string, error)
	// Detach stops token forwarding; the upstream stream keeps draining.
	Detach()
}

// ChatService answers one user turn in the requested mode.
type ChatService interface {
	Chat(ctx context.Context, session domain.Session, req domain.ChatRequest) (AnswerStream, error)
}

// HistoryReader lists persisted turns of a thread owned by the caller.
type HistoryReader interface {
	ListMessages(ctx context.Context, session domain.Session, threadID string) ([]domain.ConversationTurn, error)
}

// WebSearchDiagnostics runs search and scraping without a completion.
type WebSearchDiagnostics interface {
	Diagnose(ctx context.Context, query string) (*domain.WebDiagnostics, error)
}

// DocumentSearcher exposes department scoped retrieval to tool servers.
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, query, departmentID string, k int) ([]domain.RetrievedResult, error)
}
