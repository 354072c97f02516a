package domain

import "time"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation identifies the source of retrieved or scraped content.
type Citation struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type Thread struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Mode      ChatMode  `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ConversationTurn struct {
	ID        string     `json:"id"`
	ThreadID  string     `json:"thread_id"`
	UserID    string     `json:"user_id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Session is the authenticated caller resolved from the request.
type Session struct {
	UserID  string
	Name    string
	IsAdmin bool
}

type ChatMode string

const (
	ChatModeDocument ChatMode = "doc"
	ChatModeWeb      ChatMode = "web"
	ChatModeSimple   ChatMode = "simple"
)

func (m ChatMode) Valid() bool {
	switch m {
	case ChatModeDocument, ChatModeWeb, ChatModeSimple:
		return true
	default:
		return false
	}
}

type ChatRequest struct {
	ThreadID     string   `json:"threadId,omitempty"`
	Query        string   `json:"query"`
	DepartmentID string   `json:"selectedDepartmentId,omitempty"`
	Model        string   `json:"chatAPIModel,omitempty"`
	Mode         ChatMode `json:"-"`
}

// ChatTurn is a validated request bound to a thread.
type ChatTurn struct {
	ThreadID     string
	UserID       string
	Question     string
	DepartmentID string
	Model        string
	Mode         ChatMode
}

type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PromptPayload is the assembled input for one completion call.
type PromptPayload struct {
	Messages      []ChatMessage     `json:"messages"`
	Context       string            `json:"context"`
	HasContext    bool              `json:"has_context"`
	Citations     []Citation        `json:"citations"`
	SearchResults []WebSearchResult `json:"search_results,omitempty"`
}

type CompletionState string

const (
	CompletionIdle               CompletionState = "idle"
	CompletionAwaitingFirstToken CompletionState = "awaiting_first_token"
	CompletionStreaming          CompletionState = "streaming"
	CompletionCompleted          CompletionState = "completed"
	CompletionFailed             CompletionState = "failed"
)

func (s CompletionState) Terminal() bool {
	return s == CompletionCompleted || s == CompletionFailed
}
