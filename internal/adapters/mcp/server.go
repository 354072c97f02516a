// Package mcpadapter exposes document search to MCP clients.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

const (
	serverName    = "document-chat-assistant"
	serverVersion = "1.0.0"

	defaultK = 5
	maxK     = 20
)

type Server struct {
	searcher  ports.DocumentSearcher
	documents ports.DocumentReader
	logger    *slog.Logger
	mcp       *server.MCPServer
}

func NewServer(searcher ports.DocumentSearcher, documents ports.DocumentReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		searcher:  searcher,
		documents: documents,
		logger:    logger,
		mcp:       server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Search indexed documents and return the most relevant passages."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language search query.")),
		mcp.WithString("department_id", mcp.Description("Department to search in. Empty or \"all\" searches every department.")),
		mcp.WithNumber("k", mcp.Description("Maximum number of passages to return.")),
	), s.searchDocuments)

	if documents != nil {
		s.mcp.AddTool(mcp.NewTool("get_document",
			mcp.WithDescription("Return processing state and metadata of an uploaded document."),
			mcp.WithString("document_id", mcp.Required()),
		), s.getDocument)
	}
	return s
}

// Handler serves the streamable HTTP transport without server-side sessions.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

type passage struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	File       string  `json:"file"`
	Department string  `json:"department,omitempty"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	k := req.GetInt("k", defaultK)
	if k <= 0 || k > maxK {
		k = defaultK
	}

	results, err := s.searcher.SearchDocuments(ctx, query, req.GetString("department_id", ""), k)
	if err != nil {
		s.logger.Warn("mcp_search_failed", "error", err)
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}

	passages := make([]passage, 0, len(results))
	for _, r := range results {
		passages = append(passages, passage{
			ID:         r.ID,
			DocumentID: r.OwnerID,
			File:       r.SourceFileLabel,
			Department: r.DepartmentLabel,
			Score:      r.Score,
			Content:    r.Content,
		})
	}
	return jsonResult(passages)
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("document_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("document_id is required"), nil
	}
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return jsonResult(doc)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func toolErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "document not found"
	case errors.Is(err, domain.ErrInvalidInput):
		return domain.UserMessage(err, err.Error())
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		return "document search is temporarily unavailable"
	default:
		return domain.UserMessage(err, "document search failed")
	}
}
