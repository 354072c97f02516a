package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONStampsServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("worker", Options{Level: "warn", Output: &buf})
	logger.Info("dropped")
	logger.Warn("kept", "document_id", "doc-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if entry["service"] != "worker" || entry["msg"] != "kept" || entry["document_id"] != "doc-1" {
		t.Fatalf("unexpected record %+v", entry)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New("api", Options{Format: " TEXT ", Output: &buf}).Info("ready")
	if got := buf.String(); !strings.Contains(got, "msg=ready") || !strings.Contains(got, "service=api") {
		t.Fatalf("unexpected text record %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
