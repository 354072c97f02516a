package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

func TestBeginRejectsMissingSession(t *testing.T) {
	guard := NewSessionGuard(newHistoryStoreFake())
	_, err := guard.Begin(context.Background(), domain.Session{}, domain.ChatRequest{Query: "hi", Mode: domain.ChatModeSimple})
	if !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestBeginRejectsEmptyQueryAndUnknownMode(t *testing.T) {
	history := newHistoryStoreFake()
	guard := NewSessionGuard(history)
	session := domain.Session{UserID: "u-1"}

	if _, err := guard.Begin(context.Background(), session, domain.ChatRequest{Query: "  ", Mode: domain.ChatModeDocument}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty query, got %v", err)
	}
	if _, err := guard.Begin(context.Background(), session, domain.ChatRequest{Query: "hi", Mode: "image"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown mode, got %v", err)
	}
	if len(history.threads) != 0 {
		t.Fatalf("invalid requests must not create threads")
	}
}

func TestBeginEnsuresThreadForUser(t *testing.T) {
	history := newHistoryStoreFake()
	guard := NewSessionGuard(history)

	turn, err := guard.Begin(context.Background(), domain.Session{UserID: "u-1"}, domain.ChatRequest{
		Query:        "  " + strings.Repeat("long question ", 10),
		DepartmentID: " d-1 ",
		Model:        "GPT-3",
		Mode:         domain.ChatModeDocument,
	})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if turn.ThreadID == "" || turn.UserID != "u-1" || turn.DepartmentID != "d-1" || turn.Mode != domain.ChatModeDocument {
		t.Fatalf("unexpected turn %+v", turn)
	}
	thread := history.threads[turn.ThreadID]
	if thread.UserID != "u-1" || !strings.HasSuffix(thread.Title, "...") || len([]rune(thread.Title)) > threadTitleRunes+3 {
		t.Fatalf("unexpected thread %+v", thread)
	}
}

func TestBeginRejectsForeignThread(t *testing.T) {
	history := newHistoryStoreFake()
	history.threads["t-1"] = domain.Thread{ID: "t-1", UserID: "owner"}
	guard := NewSessionGuard(history)

	_, err := guard.Begin(context.Background(), domain.Session{UserID: "intruder"}, domain.ChatRequest{ThreadID: "t-1", Query: "hi", Mode: domain.ChatModeSimple})
	if !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestModelResolver(t *testing.T) {
	resolver := ModelResolver{Default: "gpt-4o", Aliases: map[string]string{"GPT-3": "gpt-35-turbo-16k"}}
	cases := map[string]string{
		"":        "gpt-4o",
		"GPT-3":   "gpt-35-turbo-16k",
		"gpt-3":   "gpt-35-turbo-16k",
		"unknown": "gpt-4o",
	}
	for requested, want := range cases {
		if got := resolver.Resolve(requested); got != want {
			t.Fatalf("Resolve(%q) = %q, want %q", requested, got, want)
		}
	}
}
