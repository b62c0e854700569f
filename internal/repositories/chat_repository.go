package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"recipe-realtime/internal/models"
)

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	FindChatByPair(ctx context.Context, userA, userB string) (models.Chat, error)
	InsertChat(ctx context.Context, userA, userB string) (models.Chat, bool, error)
	ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, user1_id, user2_id, created_at, updated_at`

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	if !validID(chatID) {
		return models.Chat{}, ErrChatNotFound
	}
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// FindChatByPair looks the pair up in both orders.
func (r *ChatRepo) FindChatByPair(ctx context.Context, userA, userB string) (models.Chat, error) {
	var chat models.Chat
	query := `SELECT ` + chatColumns + ` FROM chats
        WHERE (user1_id=$1 AND user2_id=$2) OR (user1_id=$2 AND user2_id=$1)
        LIMIT 1`
	err := r.db.GetContext(ctx, &chat, query, userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// InsertChat creates the chat unless the unordered pair already exists, in
// which case the existing chat is returned with created=false.
func (r *ChatRepo) InsertChat(ctx context.Context, userA, userB string) (models.Chat, bool, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `INSERT INTO chats (id, user1_id, user2_id) VALUES ($1, $2, $3)
        ON CONFLICT DO NOTHING
        RETURNING `+chatColumns, uuid.NewString(), userA, userB)
	if err == nil {
		return chat, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, false, err
	}
	existing, err := r.FindChatByPair(ctx, userA, userB)
	return existing, false, err
}

// ListChatsForUser returns the user's chats, most recently active first.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, `SELECT `+chatColumns+` FROM chats
        WHERE user1_id=$1 OR user2_id=$1
        ORDER BY updated_at DESC`, userID)
	return chats, err
}
