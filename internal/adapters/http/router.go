package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/document-chat-assistant/internal/config"
	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
	"github.com/kirillkom/document-chat-assistant/internal/observability/metrics"
)

const (
	serviceName = "api"
	// multipartOverhead leaves room for boundaries and form fields around
	// the largest accepted file.
	multipartOverhead = 1 << 20
	maxJSONBodyBytes  = 1 << 20
)

// Services are the inbound ports served over HTTP. MCP and Metrics are
// optional.
type Services struct {
	Ingestor    ports.DocumentIngestor
	Documents   ports.DocumentReader
	Chat        ports.ChatService
	History     ports.HistoryReader
	Diagnostics ports.WebSearchDiagnostics
	Sessions    ports.SessionVerifier
	MCP         http.Handler
	Metrics     *metrics.HTTPServerMetrics
}

type Router struct {
	cfg       config.Config
	services  Services
	validator *requestValidator
	logger    *slog.Logger
}

func NewRouter(cfg config.Config, services Services, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Router{
		cfg:       cfg,
		services:  services,
		validator: validator,
		logger:    logger,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.services.Metrics != nil {
		mux.Handle("GET /metrics", rt.services.Metrics.Handler())
	}
	mux.Handle("POST /v1/documents", rt.authenticated(http.HandlerFunc(rt.uploadDocument)))
	mux.Handle("GET /v1/documents/{id}", rt.authenticated(http.HandlerFunc(rt.getDocument)))
	mux.Handle("POST /v1/chat/{mode}", rt.authenticated(http.HandlerFunc(rt.chat)))
	mux.Handle("GET /v1/threads/{id}/messages", rt.authenticated(http.HandlerFunc(rt.listMessages)))
	mux.Handle("POST /v1/diagnostics/web-search", rt.authenticated(http.HandlerFunc(rt.diagnoseWebSearch)))
	if rt.services.MCP != nil {
		mux.Handle("/mcp", rt.authenticated(rt.services.MCP))
	}

	var onReject func(string)
	if rt.services.Metrics != nil {
		onReject = func(reason string) { rt.services.Metrics.RecordRejected(serviceName, reason) }
	}

	var handler http.Handler = rt.validator.middleware(mux)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, onReject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	if rt.services.Metrics != nil {
		handler = rt.services.Metrics.Middleware(serviceName, handler)
	}
	return withRequestScope(accessLog(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxDocumentSize+multipartOverhead)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			rt.writeError(w, r, err)
			return
		}
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("multipart field 'file' is required")))
		return
	}
	defer file.Close()

	session := sessionFromContext(r.Context())
	doc, err := rt.services.Ingestor.Upload(r.Context(), session, domain.UploadRequest{
		Filename:     fileHeader.Filename,
		MimeType:     fileHeader.Header.Get("Content-Type"),
		SizeBytes:    fileHeader.Size,
		DepartmentID: strings.TrimSpace(r.FormValue("department_id")),
		UploadedBy:   session.UserID,
	}, file)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.services.Documents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	req.Mode = domain.ChatMode(r.PathValue("mode"))

	stream, err := rt.services.Chat.Chat(r.Context(), sessionFromContext(r.Context()), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.streamAnswer(w, r, stream)
}

func (rt *Router) listMessages(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	turns, err := rt.services.History.ListMessages(r.Context(), sessionFromContext(r.Context()), threadID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if turns == nil {
		turns = []domain.ConversationTurn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"thread_id": threadID,
		"messages":  turns,
	})
}

func (rt *Router) diagnoseWebSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "diagnose web search", errors.New("query is required")))
		return
	}

	report, err := rt.services.Diagnostics.Diagnose(r.Context(), req.Query)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
