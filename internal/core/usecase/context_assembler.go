package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

const (
	DefaultHistoryWindow        = 30
	DefaultCompactCitationLimit = 3
	DefaultAssistantName        = "Document Assistant"
	DefaultAnswerLanguage       = "English"

	// NoSearchResultsSnippet replaces the snippet text when search found nothing.
	NoSearchResultsSnippet = "No search results were found. Answer from general knowledge."
	// SearchUnavailableSnippet is the snippet of the synthetic entry used when
	// the search provider failed.
	SearchUnavailableSnippet = "The search service is unavailable. Answer from general knowledge."
	SearchErrorTitle         = "Search error"

	noRelevantInformation = "No relevant information was found."

	passageSeparator = "\n------\n"
	maxWebSnippets   = 10
	maxWebCitations  = 5
)

type AssemblerConfig struct {
	HistoryWindow        int
	CompactCitationLimit int
	AssistantName        string
	Language             string
}

// AssemblyInput is everything gathered for one turn before the completion call.
type AssemblyInput struct {
	Mode      domain.ChatMode
	Retrieved []domain.RetrievedResult
	Scraped   []domain.ScrapeResult
	Search    []domain.WebSearchResult
	History   []domain.ConversationTurn
	Question  string
}

// ContextAssembler builds the prompt payload for every chat mode.
type ContextAssembler struct {
	cfg AssemblerConfig
}

func NewContextAssembler(cfg AssemblerConfig) *ContextAssembler {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.CompactCitationLimit <= 0 {
		cfg.CompactCitationLimit = DefaultCompactCitationLimit
	}
	if strings.TrimSpace(cfg.AssistantName) == "" {
		cfg.AssistantName = DefaultAssistantName
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = DefaultAnswerLanguage
	}
	return &ContextAssembler{cfg: cfg}
}

func (a *ContextAssembler) Assemble(in AssemblyInput) domain.PromptPayload {
	payload := domain.PromptPayload{}

	var userContent string
	switch in.Mode {
	case domain.ChatModeDocument:
		payload.Context, payload.Citations = documentContext(in.Retrieved)
		payload.HasContext = payload.Context != ""
		userContent = a.documentPrompt(payload, in.Question)
	case domain.ChatModeWeb:
		payload.Context, payload.Citations, payload.SearchResults = webContext(in.Scraped, in.Search)
		payload.HasContext = len(payload.Citations) > 0
		userContent = a.webPrompt(payload, in.Question)
	default:
		userContent = in.Question
	}

	messages := make([]domain.ChatMessage, 0, a.cfg.HistoryWindow+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: a.systemPrompt()})
	for _, turn := range a.window(in.History) {
		if turn.Role != domain.RoleUser && turn.Role != domain.RoleAssistant {
			continue
		}
		messages = append(messages, domain.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: userContent})
	payload.Messages = messages
	return payload
}

// window keeps the most recent turns, oldest first.
func (a *ContextAssembler) window(history []domain.ConversationTurn) []domain.ConversationTurn {
	if len(history) <= a.cfg.HistoryWindow {
		return history
	}
	return history[len(history)-a.cfg.HistoryWindow:]
}

func (a *ContextAssembler) systemPrompt() string {
	return fmt.Sprintf("You are %s. Answer the user's questions politely in %s.", a.cfg.AssistantName, a.cfg.Language)
}

func (a *ContextAssembler) documentPrompt(payload domain.PromptPayload, question string) string {
	var b strings.Builder
	b.WriteString("- Given the following extracted parts of a long document, create a final answer.\n")
	b.WriteString("- If you don't know the answer, just say that you don't know. Don't try to make up an answer.\n")
	if payload.HasContext {
		b.WriteString("- You must always include a citation at the end of your answer and don't include full stop.\n")
		b.WriteString("- Use the format for your citation ")
		b.WriteString(citationTag("citation", a.compact(payload.Citations)))
		b.WriteString("\n")
	} else {
		b.WriteString("- The document search returned nothing. Tell the user that no relevant information was found.\n")
	}
	b.WriteString("----------------\ncontext:\n")
	if payload.HasContext {
		b.WriteString(payload.Context)
	} else {
		b.WriteString(noRelevantInformation)
	}
	b.WriteString("\n----------------\nquestion: ")
	b.WriteString(question)
	return b.String()
}

func (a *ContextAssembler) webPrompt(payload domain.PromptPayload, question string) string {
	var b strings.Builder
	b.WriteString("Answer the following question from the web search results in a clear, structured way.\n")
	b.WriteString("Lead with the most important facts and prefer concrete numbers, dates and places.\n")
	b.WriteString("Keep the answer to about 800 characters.\n")
	if payload.HasContext {
		b.WriteString("End the answer with the sources in this format:\n")
		b.WriteString(citationTag("webCitation", a.compact(payload.Citations)))
		b.WriteString("\n")
	}
	b.WriteString("\n[Question] ")
	b.WriteString(question)
	b.WriteString("\n[Web search results] ")
	b.WriteString(payload.Context)
	return b.String()
}

func (a *ContextAssembler) compact(citations []domain.Citation) []domain.Citation {
	if len(citations) > a.cfg.CompactCitationLimit {
		return citations[:a.cfg.CompactCitationLimit]
	}
	return citations
}

func documentContext(results []domain.RetrievedResult) (string, []domain.Citation) {
	if len(results) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(results))
	citations := make([]domain.Citation, 0, len(results))
	for i, result := range results {
		content := stripNewlines(result.Content)
		parts = append(parts, fmt.Sprintf("[%d]. file name: %s \n file id: %s \n %s", i, result.SourceFileLabel, result.ID, content))
		citations = append(citations, domain.Citation{Name: result.SourceFileLabel, ID: result.ID})
	}
	return strings.Join(parts, passageSeparator), citations
}

// webContext puts successful scrapes ahead of the raw snippet text. Citations
// follow the same order and are deduplicated by URL.
func webContext(scraped []domain.ScrapeResult, search []domain.WebSearchResult) (string, []domain.Citation, []domain.WebSearchResult) {
	var b strings.Builder
	citations := make([]domain.Citation, 0, maxWebCitations)
	seen := make(map[string]struct{})
	addCitation := func(name, url string) {
		if url == "" || len(citations) >= maxWebCitations {
			return
		}
		if _, ok := seen[url]; ok {
			return
		}
		seen[url] = struct{}{}
		citations = append(citations, domain.Citation{Name: name, ID: url})
	}

	for _, page := range scraped {
		if !page.Success || strings.TrimSpace(page.Content) == "" {
			continue
		}
		fmt.Fprintf(&b, "title: %s\nURL: %s\ncontent: %s\n\n", page.Title, page.URL, page.Content)
		addCitation(page.Title, page.URL)
	}

	snippets := make([]string, 0, maxWebSnippets)
	for i, result := range search {
		if i >= maxWebSnippets {
			break
		}
		if snippet := strings.TrimSpace(result.Snippet); snippet != "" {
			snippets = append(snippets, snippet)
		}
	}
	if len(snippets) == 0 {
		b.WriteString(NoSearchResultsSnippet)
	} else {
		b.WriteString(strings.Join(snippets, " "))
	}

	for _, result := range search {
		addCitation(result.Name, result.URL)
	}

	top := search
	if len(top) > maxWebCitations {
		top = top[:maxWebCitations]
	}
	return b.String(), citations, append([]domain.WebSearchResult(nil), top...)
}

func citationTag(name string, citations []domain.Citation) string {
	items := make([]string, 0, len(citations))
	for _, citation := range citations {
		items = append(items, fmt.Sprintf("{name:%q,id:%q}", citation.Name, citation.ID))
	}
	return "{% " + name + " items=[" + strings.Join(items, ", ") + "] /%}"
}

func stripNewlines(text string) string {
	return strings.NewReplacer("\r\n", "", "\n", "", "\r", "").Replace(text)
}
