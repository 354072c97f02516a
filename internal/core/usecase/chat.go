package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

type ChatDependencies struct {
	Guard       *SessionGuard
	History     ports.HistoryStore
	Retriever   *Retriever
	Web         *WebResearcher
	Assembler   *ContextAssembler
	Completions *CompletionOrchestrator
	Models      ModelResolver
	RetrievalK  int
	Logger      *slog.Logger
	Observer    ports.PipelineObserver
}

// ChatUseCase answers doc, web and simple turns over a shared assembler and
// completion orchestrator.
type ChatUseCase struct {
	guard       *SessionGuard
	history     ports.HistoryStore
	retriever   *Retriever
	web         *WebResearcher
	assembler   *ContextAssembler
	completions *CompletionOrchestrator
	models      ModelResolver
	retrievalK  int
	logger      *slog.Logger
	observer    ports.PipelineObserver
}

func NewChatUseCase(deps ChatDependencies) *ChatUseCase {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RetrievalK <= 0 {
		deps.RetrievalK = DefaultRetrievalK
	}
	if deps.Assembler == nil {
		deps.Assembler = NewContextAssembler(AssemblerConfig{})
	}
	return &ChatUseCase{
		guard:       deps.Guard,
		history:     deps.History,
		retriever:   deps.Retriever,
		web:         deps.Web,
		assembler:   deps.Assembler,
		completions: deps.Completions,
		models:      deps.Models,
		retrievalK:  deps.RetrievalK,
		logger:      deps.Logger,
		observer:    observerOrNoop(deps.Observer),
	}
}

func (uc *ChatUseCase) Chat(ctx context.Context, session domain.Session, req domain.ChatRequest) (ports.AnswerStream, error) {
	turn, err := uc.guard.Begin(ctx, session, req)
	if err != nil {
		return nil, err
	}

	history, err := uc.history.GetMessages(ctx, turn.ThreadID, turn.UserID)
	if err != nil {
		return nil, err
	}

	input := AssemblyInput{
		Mode:     turn.Mode,
		History:  history,
		Question: turn.Question,
	}
	switch turn.Mode {
	case domain.ChatModeDocument:
		retrieved, err := uc.retrieve(ctx, turn)
		if err != nil {
			return nil, err
		}
		input.Retrieved = retrieved
	case domain.ChatModeWeb:
		if uc.web == nil {
			return nil, &domain.DetailedError{Kind: domain.ErrConfiguration, Message: "web search is not configured"}
		}
		outcome := uc.web.Search(ctx, turn.Question)
		input.Search = outcome.Results
		input.Scraped = uc.web.Scrape(ctx, outcome.Results)
	}

	payload := uc.assembler.Assemble(input)
	model := uc.models.Resolve(turn.Model)

	completion, err := uc.completions.Invoke(ctx, CompletionRequest{
		Messages: payload.Messages,
		Model:    model,
		Mode:     turn.Mode,
		OnOpen: func(ctx context.Context) {
			uc.persist(ctx, turn, domain.RoleUser, turn.Question, nil)
		},
		OnComplete: func(ctx context.Context, text string) {
			uc.persist(ctx, turn, domain.RoleAssistant, text, payload.Citations)
		},
	})
	if err != nil {
		return nil, err
	}

	return &answerStream{
		Completion:    completion,
		threadID:      turn.ThreadID,
		citations:     payload.Citations,
		searchResults: payload.SearchResults,
	}, nil
}

// retrieve degrades to an empty context when the index is unavailable.
func (uc *ChatUseCase) retrieve(ctx context.Context, turn domain.ChatTurn) ([]domain.RetrievedResult, error) {
	if uc.retriever == nil {
		return nil, &domain.DetailedError{Kind: domain.ErrConfiguration, Message: "retrieval is not configured"}
	}
	filter := uc.retriever.BuildFilter(ctx, turn.DepartmentID)
	results, err := uc.retriever.Retrieve(ctx, turn.Question, uc.retrievalK, filter)
	if err != nil {
		if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
			return nil, err
		}
		uc.logger.Warn("retrieval_unavailable", "thread_id", turn.ThreadID, "filter", filter.String(), "error", err)
		uc.observer.ObserveRetrieval(turn.Mode, 0, true)
		return nil, nil
	}
	uc.observer.ObserveRetrieval(turn.Mode, len(results), false)
	return results, nil
}

func (uc *ChatUseCase) persist(ctx context.Context, turn domain.ChatTurn, role domain.Role, content string, citations []domain.Citation) {
	err := uc.history.AddMessage(ctx, domain.ConversationTurn{
		ID:        uuid.NewString(),
		ThreadID:  turn.ThreadID,
		UserID:    turn.UserID,
		Role:      role,
		Content:   content,
		Citations: citations,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		uc.logger.Error("history_persist_failed", "thread_id", turn.ThreadID, "role", role, "error", err)
	}
}

type answerStream struct {
	*Completion
	threadID      string
	citations     []domain.Citation
	searchResults []domain.WebSearchResult
}

func (s *answerStream) ThreadID() string {
	return s.threadID
}

func (s *answerStream) Citations() []domain.Citation {
	return s.citations
}

func (s *answerStream) SearchResults() []domain.WebSearchResult {
	return s.searchResults
}

// HistoryUseCase lists the persisted turns of a caller's thread.
type HistoryUseCase struct {
	history ports.HistoryStore
}

func NewHistoryUseCase(history ports.HistoryStore) *HistoryUseCase {
	return &HistoryUseCase{history: history}
}

func (uc *HistoryUseCase) ListMessages(ctx context.Context, session domain.Session, threadID string) ([]domain.ConversationTurn, error) {
	if strings.TrimSpace(session.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "list messages", errors.New("no session"))
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list messages", errors.New("thread id is empty"))
	}
	return uc.history.GetMessages(ctx, threadID, session.UserID)
}
