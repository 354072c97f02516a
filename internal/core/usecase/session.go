package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

const threadTitleRunes = 40

// SessionGuard validates a chat request and binds it to a thread owned by the
// caller.
type SessionGuard struct {
	history ports.HistoryStore
}

func NewSessionGuard(history ports.HistoryStore) *SessionGuard {
	return &SessionGuard{history: history}
}

func (g *SessionGuard) Begin(ctx context.Context, session domain.Session, req domain.ChatRequest) (domain.ChatTurn, error) {
	if strings.TrimSpace(session.UserID) == "" {
		return domain.ChatTurn{}, domain.WrapError(domain.ErrUnauthorized, "begin chat", errors.New("no session"))
	}
	question := strings.TrimSpace(req.Query)
	if question == "" {
		return domain.ChatTurn{}, domain.WrapError(domain.ErrInvalidInput, "begin chat", errors.New("query is empty"))
	}
	if !req.Mode.Valid() {
		return domain.ChatTurn{}, domain.WrapError(domain.ErrInvalidInput, "begin chat", errors.New("unknown chat mode"))
	}

	thread, err := g.history.EnsureThread(ctx, domain.Thread{
		ID:     strings.TrimSpace(req.ThreadID),
		UserID: session.UserID,
		Title:  threadTitle(question),
		Mode:   req.Mode,
	})
	if err != nil {
		return domain.ChatTurn{}, err
	}

	return domain.ChatTurn{
		ThreadID:     thread.ID,
		UserID:       session.UserID,
		Question:     question,
		DepartmentID: strings.TrimSpace(req.DepartmentID),
		Model:        strings.TrimSpace(req.Model),
		Mode:         req.Mode,
	}, nil
}

func threadTitle(question string) string {
	runes := []rune(question)
	if len(runes) <= threadTitleRunes {
		return question
	}
	return strings.TrimSpace(string(runes[:threadTitleRunes])) + "..."
}
