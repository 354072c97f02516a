package docintel

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(Config{Endpoint: server.URL, APIKey: "key", PollInterval: 5 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestAnalyzePollsUntilSucceeded(t *testing.T) {
	var polls int32
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/formrecognizer/documentModels/prebuilt-document:analyze", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "%PDF-1.7" || r.Header.Get("Ocp-Apim-Subscription-Key") != "key" {
			t.Errorf("unexpected analyze request")
		}
		w.Header().Set("Operation-Location", server.URL+"/operations/1")
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/operations/1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 3 {
			_, _ = w.Write([]byte(`{"status":"running"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"succeeded","analyzeResult":{"paragraphs":[{"content":"Title"},{"content":"Body text"}]}}`))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	client, err := New(Config{Endpoint: server.URL, APIKey: "key", PollInterval: 5 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	paragraphs, err := client.Analyze(context.Background(), &domain.Document{Filename: "a.pdf", MimeType: "application/pdf"}, []byte("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(paragraphs) != 2 || paragraphs[0] != "Title" || paragraphs[1] != "Body text" {
		t.Fatalf("unexpected paragraphs %v", paragraphs)
	}
	if polls != 3 {
		t.Fatalf("expected 3 polls, got %d", polls)
	}
}

func TestAnalyzeMapsStatusToUserMessage(t *testing.T) {
	cases := map[int]struct {
		kind    error
		message string
	}{
		http.StatusUnauthorized:          {domain.ErrConfiguration, MessageUnauthorized},
		http.StatusRequestEntityTooLarge: {domain.ErrDocumentTooLarge, MessageTooLarge},
		http.StatusUnsupportedMediaType:  {domain.ErrUnsupportedFormat, MessageUnsupported},
		http.StatusTooManyRequests:       {domain.ErrRateLimited, MessageRateLimited},
		http.StatusInternalServerError:   {domain.ErrUpstreamUnavailable, MessageServerError},
	}
	for status, want := range cases {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := client.Analyze(context.Background(), &domain.Document{}, []byte("x"))
		if !domain.IsKind(err, want.kind) {
			t.Fatalf("status %d: expected kind %v, got %v", status, want.kind, err)
		}
		if got := domain.UserMessage(err, ""); got != want.message {
			t.Fatalf("status %d: expected message %q, got %q", status, want.message, got)
		}
	}
}

func TestAnalyzeRejectsOversizedContentLocally(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	_, err := client.Analyze(context.Background(), &domain.Document{}, make([]byte, domain.MaxDocumentSize))
	if !domain.IsKind(err, domain.ErrDocumentTooLarge) {
		t.Fatalf("expected ErrDocumentTooLarge, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no upstream call, got %d", calls)
	}
}

func TestAnalyzeReportsFailedOperation(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Operation-Location", server.URL+"/op")
			w.WriteHeader(http.StatusAccepted)
			return
		}
		_, _ = w.Write([]byte(`{"status":"failed","error":{"code":"InvalidContent","message":"corrupt","innererror":{"message":"The file is corrupted."}}}`))
	}))
	defer server.Close()

	client, err := New(Config{Endpoint: server.URL, APIKey: "key"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = client.Analyze(context.Background(), &domain.Document{}, []byte("x"))
	if got := domain.UserMessage(err, ""); got != "The file is corrupted." {
		t.Fatalf("expected inner error message, got %q (%v)", got, err)
	}
}
