package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

type historyStoreFake struct {
	mu      sync.Mutex
	threads map[string]domain.Thread
	turns   []domain.ConversationTurn
	added   []domain.ConversationTurn
	getErr  error
	addErr  error
	nextID  int
}

func newHistoryStoreFake() *historyStoreFake {
	return &historyStoreFake{threads: map[string]domain.Thread{}}
}

func (f *historyStoreFake) EnsureThread(_ context.Context, thread domain.Thread) (*domain.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if thread.ID == "" {
		f.nextID++
		thread.ID = fmt.Sprintf("thread-%d", f.nextID)
	}
	if existing, ok := f.threads[thread.ID]; ok {
		if existing.UserID != thread.UserID {
			return nil, domain.WrapError(domain.ErrForbidden, "ensure thread", errors.New("thread belongs to another user"))
		}
		return &existing, nil
	}
	f.threads[thread.ID] = thread
	return &thread, nil
}

func (f *historyStoreFake) GetMessages(_ context.Context, threadID, userID string) ([]domain.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make([]domain.ConversationTurn, 0, len(f.turns))
	for _, turn := range f.turns {
		if turn.ThreadID == threadID && turn.UserID == userID {
			out = append(out, turn)
		}
	}
	return out, nil
}

func (f *historyStoreFake) AddMessage(_ context.Context, turn domain.ConversationTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, turn)
	if f.addErr != nil {
		return f.addErr
	}
	f.turns = append(f.turns, turn)
	return nil
}

func (f *historyStoreFake) addedTurns() []domain.ConversationTurn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ConversationTurn(nil), f.added...)
}

type chatFixture struct {
	history   *historyStoreFake
	index     *vectorIndexFake
	embedder  *embedderFake
	searcher  *webSearcherFake
	scrapers  *scraperFactoryFake
	completer *completerFake
	observer  *observerFake
	chat      *ChatUseCase
}

func newChatFixture(stream *tokenStreamFake) *chatFixture {
	f := &chatFixture{
		history:   newHistoryStoreFake(),
		index:     &vectorIndexFake{},
		embedder:  &embedderFake{},
		searcher:  &webSearcherFake{},
		scrapers:  &scraperFactoryFake{},
		completer: &completerFake{stream: stream},
		observer:  &observerFake{},
	}
	departments := &departmentResolverFake{departments: map[string]domain.Department{"d-1": {ID: "d-1", Name: "HR"}}}
	f.chat = NewChatUseCase(ChatDependencies{
		Guard:       NewSessionGuard(f.history),
		History:     f.history,
		Retriever:   NewRetriever(f.embedder, f.index, departments, nil),
		Web:         NewWebResearcher(f.searcher, f.scrapers, WebResearchConfig{}, nil, f.observer),
		Assembler:   NewContextAssembler(AssemblerConfig{}),
		Completions: NewCompletionOrchestrator(f.completer, time.Second, nil, f.observer),
		Models:      ModelResolver{Default: "gpt-4o", Aliases: map[string]string{"GPT-3": "gpt-35-turbo-16k"}},
		Observer:    f.observer,
	})
	return f
}

func drain(t *testing.T, stream interface {
	Tokens() <-chan string
	Wait() (string, error)
}) (string, error) {
	t.Helper()
	for range stream.Tokens() {
	}
	return stream.Wait()
}

func (f *chatFixture) prompt() string {
	f.completer.mu.Lock()
	defer f.completer.mu.Unlock()
	return f.completer.messages[len(f.completer.messages)-1].Content
}

var testSession = domain.Session{UserID: "u-1", Name: "User"}

func TestChatDocumentTurnPersistsBothTurnsOnce(t *testing.T) {
	f := newChatFixture(newStream("Vacation ", "is 20 days"))
	f.index.results = []domain.RetrievedResult{{ID: "doc-1-0", SourceFileLabel: "policy.pdf", Content: "20 days", Score: 0.9}}

	answer, err := f.chat.Chat(context.Background(), testSession, domain.ChatRequest{
		Query:        "How long is vacation?",
		DepartmentID: "d-1",
		Model:        "GPT-3",
		Mode:         domain.ChatModeDocument,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	text, err := drain(t, answer)
	if err != nil || text != "Vacation is 20 days" {
		t.Fatalf("unexpected answer %q err=%v", text, err)
	}

	if value, _ := f.index.lastFilter.Value(domain.FieldDepartment); value != "HR" {
		t.Fatalf("expected department scoped retrieval, got %v", f.index.lastFilter)
	}
	if f.completer.lastModel != "gpt-35-turbo-16k" {
		t.Fatalf("expected aliased model, got %q", f.completer.lastModel)
	}
	if len(answer.Citations()) != 1 || answer.Citations()[0].ID != "doc-1-0" {
		t.Fatalf("unexpected citations %+v", answer.Citations())
	}

	added := f.history.addedTurns()
	if len(added) != 2 {
		t.Fatalf("expected user and assistant turns, got %d", len(added))
	}
	if added[0].Role != domain.RoleUser || added[0].Content != "How long is vacation?" {
		t.Fatalf("unexpected user turn %+v", added[0])
	}
	if added[1].Role != domain.RoleAssistant || added[1].Content != "Vacation is 20 days" || len(added[1].Citations) != 1 {
		t.Fatalf("unexpected assistant turn %+v", added[1])
	}
	if added[0].ThreadID != answer.ThreadID() || added[1].ThreadID != answer.ThreadID() {
		t.Fatalf("turns must belong to thread %s", answer.ThreadID())
	}
}

func TestChatContinuesWhenRetrievalUnavailable(t *testing.T) {
	f := newChatFixture(newStream("I could not find that"))
	f.index.queryErr = errors.New("index down")

	answer, err := f.chat.Chat(context.Background(), testSession, domain.ChatRequest{Query: "q", Mode: domain.ChatModeDocument})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if _, err := drain(t, answer); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !strings.Contains(f.prompt(), noRelevantInformation) {
		t.Fatalf("expected empty-context prompt, got %q", f.prompt())
	}
	if len(f.observer.retrievals) != 1 || !f.observer.retrievals[0] {
		t.Fatalf("expected unavailable retrieval observation, got %+v", f.observer.retrievals)
	}
}

func TestChatStartFailureMutatesNoHistory(t *testing.T) {
	f := newChatFixture(nil)
	f.completer.err = errors.New("dial tcp: connection refused")

	_, err := f.chat.Chat(context.Background(), testSession, domain.ChatRequest{Query: "hello", Mode: domain.ChatModeSimple})
	if !domain.IsKind(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if added := f.history.addedTurns(); len(added) != 0 {
		t.Fatalf("expected no history mutation, got %+v", added)
	}
}

func TestChatOpenStreamPersistsNoAssistantTurn(t *testing.T) {
	f := newChatFixture(nil)
	gate := &gatedStreamFake{tokens: make(chan string)}
	f.completer.gated = gate

	answer, err := f.chat.Chat(context.Background(), testSession, domain.ChatRequest{Query: "hello", Mode: domain.ChatModeSimple})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	gate.tokens <- "par"
	<-answer.Tokens()

	state := answer.(interface{ State() domain.CompletionState }).State()
	if state != domain.CompletionStreaming {
		t.Fatalf("expected streaming state, got %s", state)
	}
	if added := f.history.addedTurns(); len(added) != 1 || added[0].Role != domain.RoleUser {
		t.Fatalf("expected only the user turn while streaming, got %+v", added)
	}

	gate.tokens <- "tial"
	close(gate.tokens)
	if text, err := drain(t, answer); err != nil || text != "partial" {
		t.Fatalf("unexpected result %q err=%v", text, err)
	}
	assistant := 0
	for _, turn := range f.history.addedTurns() {
		if turn.Role == domain.RoleAssistant {
			assistant++
		}
	}
	if assistant != 1 {
		t.Fatalf("expected exactly one assistant turn, got %d", assistant)
	}
}

func TestChatWebWithoutSearchReportsConfiguration(t *testing.T) {
	f := newChatFixture(newStream("x"))
	f.chat.web = nil

	_, err := f.chat.Chat(context.Background(), testSession, domain.ChatRequest{Query: "hello", Mode: domain.ChatModeWeb})
	if !domain.IsKind(err, domain.ErrConfiguration) || domain.UserMessage(err, "") != "web search is not configured" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestChatMidStreamFailurePersistsNoAssistantTurn(t *testing.T) {
	stream := newStream("partial", "rest")
	stream.failAt = 1
	stream.err = errors.New("reset")
	f := newChatFixture(stream)

	answer, err := f.chat.Chat(context.Background(), testSession, domain.ChatRequest{Query: "hello", Mode: domain.ChatModeSimple})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if _, err := drain(t, answer); err == nil {
		t.Fatalf("expected stream error")
	}
	added := f.history.addedTurns()
	if len(added) != 1 || added[0].Role != domain.RoleUser {
		t.Fatalf("expected only the user turn, got %+v", added)
	}
}

func TestChatDetachedClientStillPersists(t *testing.T) {
	f := newChatFixture(newStream("a", "b", "c"))
	ctx, cancel := context.WithCancel(context.Background())

	answer, err := f.chat.Chat(ctx, testSession, domain.ChatRequest{Query: "hello", Mode: domain.ChatModeSimple})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	cancel()
	answer.Detach()
	if _, err := answer.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	added := f.history.addedTurns()
	if len(added) != 2 || added[1].Content != "abc" {
		t.Fatalf("expected assistant turn persisted after detach, got %+v", added)
	}
}

func TestChatWebEmptySearchSkipsScraper(t *testing.T) {
	f := newChatFixture(newStream("general answer"))

	answer, err := f.chat.Chat(context.Background(), testSession, domain.ChatRequest{Query: "news today", Mode: domain.ChatModeWeb})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if _, err := drain(t, answer); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if f.scrapers.created != 0 {
		t.Fatalf("expected scraper never created, got %d", f.scrapers.created)
	}
	if !strings.Contains(f.prompt(), NoSearchResultsSnippet) {
		t.Fatalf("expected fallback snippet in prompt, got %q", f.prompt())
	}
	if len(f.completer.messages) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(f.completer.messages))
	}
}

func TestChatWebCitesSearchResults(t *testing.T) {
	f := newChatFixture(newStream("answer"))
	f.searcher.results = searchResults(7)

	answer, err := f.chat.Chat(context.Background(), testSession, domain.ChatRequest{Query: "go release", Mode: domain.ChatModeWeb})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if _, err := drain(t, answer); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(answer.Citations()) != maxWebCitations || len(answer.SearchResults()) != maxWebCitations {
		t.Fatalf("expected %d citations and results, got %d / %d", maxWebCitations, len(answer.Citations()), len(answer.SearchResults()))
	}
	if f.scrapers.created != 1 || len(f.scrapers.scraper.scraped) != DefaultMaxScrapeURLs {
		t.Fatalf("expected one scraper over %d urls, got %+v", DefaultMaxScrapeURLs, f.scrapers.scraper)
	}
}

func TestChatHistoryReadFailureFailsTurn(t *testing.T) {
	f := newChatFixture(newStream("x"))
	f.history.getErr = errors.New("db down")

	if _, err := f.chat.Chat(context.Background(), testSession, domain.ChatRequest{Query: "q", Mode: domain.ChatModeSimple}); err == nil {
		t.Fatalf("expected history read failure to fail the turn")
	}
	if f.completer.calls != 0 {
		t.Fatalf("completion must not start, got %d calls", f.completer.calls)
	}
}

func TestChatSendsPriorHistory(t *testing.T) {
	f := newChatFixture(newStream("second answer"))
	f.history.threads["t-1"] = domain.Thread{ID: "t-1", UserID: testSession.UserID}
	f.history.turns = []domain.ConversationTurn{
		{ThreadID: "t-1", UserID: testSession.UserID, Role: domain.RoleUser, Content: "first"},
		{ThreadID: "t-1", UserID: testSession.UserID, Role: domain.RoleAssistant, Content: "first answer"},
	}

	answer, err := f.chat.Chat(context.Background(), testSession, domain.ChatRequest{ThreadID: "t-1", Query: "second", Mode: domain.ChatModeSimple})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if _, err := drain(t, answer); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(f.completer.messages) != 4 || f.completer.messages[2].Content != "first answer" {
		t.Fatalf("unexpected messages %+v", f.completer.messages)
	}
}

func TestListMessages(t *testing.T) {
	history := newHistoryStoreFake()
	history.turns = []domain.ConversationTurn{
		{ThreadID: "t-1", UserID: "u-1", Content: "mine"},
		{ThreadID: "t-1", UserID: "u-2", Content: "other"},
	}
	uc := NewHistoryUseCase(history)

	if _, err := uc.ListMessages(context.Background(), domain.Session{}, "t-1"); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := uc.ListMessages(context.Background(), testSession, " "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	turns, err := uc.ListMessages(context.Background(), testSession, "t-1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "mine" {
		t.Fatalf("unexpected turns %+v", turns)
	}
}
