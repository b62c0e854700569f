package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"recipe-realtime/internal/models"
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateChatMessage(ctx context.Context, chatID string, senderID string, content string) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	ListChatMessages(ctx context.Context, chatID string, limit, offset int) ([]models.Message, error)
	MarkMessageRead(ctx context.Context, messageID string) error
	MarkChatRead(ctx context.Context, chatID string, readerID string) (int, error)
	CountUnreadForUser(ctx context.Context, userID string) (int, error)
	SearchForUser(ctx context.Context, userID string, query string, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, content, is_read, created_at`

// CreateChatMessage stores a message and bumps the chat's updated_at in one
// transaction.
func (r *MessageRepo) CreateChatMessage(ctx context.Context, chatID string, senderID string, content string) (msg models.Message, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = tx.GetContext(ctx, &msg, `INSERT INTO chat_messages (id, chat_id, sender_id, content) VALUES ($1, $2, $3, $4)
        RETURNING `+messageColumns, uuid.NewString(), chatID, senderID, content); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE chats SET updated_at = $2 WHERE id = $1`, chatID, msg.CreatedAt); err != nil {
		return models.Message{}, fmt.Errorf("bump chat: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	if !validID(messageID) {
		return models.Message{}, ErrMessageNotFound
	}
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM chat_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListChatMessages returns a page of messages in chronological order.
func (r *MessageRepo) ListChatMessages(ctx context.Context, chatID string, limit, offset int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM chat_messages
        WHERE chat_id=$1
        ORDER BY created_at ASC
        LIMIT $2 OFFSET $3`, chatID, limit, offset)
	return msgs, err
}

// MarkMessageRead flags one message as read.
func (r *MessageRepo) MarkMessageRead(ctx context.Context, messageID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_messages SET is_read = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkChatRead flags every unread message in the chat not sent by readerID.
func (r *MessageRepo) MarkChatRead(ctx context.Context, chatID string, readerID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_messages SET is_read = TRUE
        WHERE chat_id=$1 AND sender_id<>$2 AND is_read = FALSE`, chatID, readerID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}

// CountUnreadForUser counts unread messages addressed to userID across all chats.
func (r *MessageRepo) CountUnreadForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_messages m
        INNER JOIN chats c ON c.id = m.chat_id
        WHERE (c.user1_id=$1 OR c.user2_id=$1)
        AND m.sender_id<>$1
        AND m.is_read = FALSE`, userID)
	return count, err
}

// SearchForUser matches content as a substring within the user's chats, newest first.
func (r *MessageRepo) SearchForUser(ctx context.Context, userID string, query string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT m.id, m.chat_id, m.sender_id, m.content, m.is_read, m.created_at
        FROM chat_messages m
        INNER JOIN chats c ON c.id = m.chat_id
        WHERE (c.user1_id=$1 OR c.user2_id=$1)
        AND m.content ILIKE '%' || $2 || '%' ESCAPE '\'
        ORDER BY m.created_at DESC
        LIMIT $3`, userID, escapeLike(query), limit)
	return msgs, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
