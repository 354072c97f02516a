package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

// ConversationRepository stores chat threads and their turns.
type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// EnsureThread creates the thread when absent. A thread owned by another
// user is reported as ErrForbidden.
func (r *ConversationRepository) EnsureThread(ctx context.Context, thread domain.Thread) (*domain.Thread, error) {
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_threads (id, user_id, title, mode, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (id) DO NOTHING
`, thread.ID, thread.UserID, thread.Title, string(thread.Mode), now)
	if err != nil {
		return nil, fmt.Errorf("ensure thread insert: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, title, mode, created_at, updated_at
FROM chat_threads
WHERE id = $1
`, thread.ID)

	var out domain.Thread
	var mode string
	if err := row.Scan(&out.ID, &out.UserID, &out.Title, &mode, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("ensure thread select: %w", err)
	}
	out.Mode = domain.ChatMode(mode)
	if out.UserID != thread.UserID {
		return nil, domain.WrapError(domain.ErrForbidden, "ensure thread", fmt.Errorf("thread %s belongs to another user", thread.ID))
	}
	return &out, nil
}

// GetMessages returns the thread's turns in chronological order.
func (r *ConversationRepository) GetMessages(ctx context.Context, threadID, userID string) ([]domain.ConversationTurn, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, thread_id, user_id, role, content, citations, created_at
FROM chat_messages
WHERE thread_id = $1 AND user_id = $2
ORDER BY created_at ASC, id ASC
`, threadID, userID)
	if err != nil {
		return nil, fmt.Errorf("list thread messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ConversationTurn, 0)
	for rows.Next() {
		var turn domain.ConversationTurn
		var role string
		var citationsRaw []byte
		if err := rows.Scan(&turn.ID, &turn.ThreadID, &turn.UserID, &role, &turn.Content, &citationsRaw, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan thread message: %w", err)
		}
		turn.Role = domain.Role(role)
		if len(citationsRaw) > 0 {
			if err := json.Unmarshal(citationsRaw, &turn.Citations); err != nil {
				return nil, fmt.Errorf("unmarshal citations: %w", err)
			}
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread messages: %w", err)
	}
	return out, nil
}

func (r *ConversationRepository) AddMessage(ctx context.Context, turn domain.ConversationTurn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	citations := turn.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO chat_messages (id, thread_id, user_id, role, content, citations, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, turn.ID, turn.ThreadID, turn.UserID, string(turn.Role), turn.Content, citationsJSON, turn.CreatedAt); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE chat_threads SET updated_at = $2 WHERE id = $1`, turn.ThreadID, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "append message", errors.New("unknown thread "+turn.ThreadID))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}
