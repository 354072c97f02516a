package httpadapter

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/document-chat-assistant/internal/config"
)

func decodeAccessLog(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["msg"] == "http_request" {
			return entry
		}
	}
	t.Fatalf("no http_request entry in:\n%s", buf.String())
	return nil
}

func TestAccessLogReportsUserAndThread(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := newLoggedTestHandler(t, config.Config{}, Services{
		Chat: &chatFake{stream: newAnswerStream("thread-7", "hello")},
	}, logger)

	req := chatRequest("simple", `{"query":"hi"}`)
	req.Header.Set(requestIDHeader, "req-log")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	entry := decodeAccessLog(t, &buf)
	if entry["request_id"] != "req-log" || entry["user_id"] != "user-1" || entry["thread_id"] != "thread-7" {
		t.Fatalf("unexpected access log entry %+v", entry)
	}
	if entry["status"] != float64(http.StatusOK) || entry["level"] != "INFO" {
		t.Fatalf("unexpected status or level in %+v", entry)
	}
}

func TestAccessLogWarnsOnClientErrorsWithoutUser(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := newLoggedTestHandler(t, config.Config{}, Services{}, logger)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/doc-1", nil))

	entry := decodeAccessLog(t, &buf)
	if entry["level"] != "WARN" || entry["status"] != float64(http.StatusUnauthorized) {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, ok := entry["user_id"]; ok {
		t.Fatalf("did not expect user_id for unauthenticated request: %+v", entry)
	}
}

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	_, _ = rec.Write([]byte("x"))
	rec.WriteHeader(http.StatusInternalServerError)
	if rec.statusCode != http.StatusOK || rec.bytesWritten != 1 {
		t.Fatalf("unexpected recorder state %+v", rec)
	}
	if rec.Unwrap() == nil {
		t.Fatalf("expected underlying writer")
	}
}
