package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"recipe-realtime/internal/logging"
)

// Connect opens the Postgres pool and applies migrations.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// users and follows belong to the user service; they are created here only so
// the service can run against an empty database.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            username TEXT NOT NULL,
            email TEXT NOT NULL,
            avatar_url TEXT,
            is_online BOOLEAN NOT NULL DEFAULT FALSE,
            last_seen_at TIMESTAMPTZ
        );`,
	`CREATE TABLE IF NOT EXISTS follows (
            follower_id UUID NOT NULL,
            following_id UUID NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(follower_id, following_id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_follows_following ON follows (following_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS chats (
            id UUID PRIMARY KEY,
            user1_id UUID NOT NULL,
            user2_id UUID NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_chats_pair ON chats (LEAST(user1_id, user2_id), GREATEST(user1_id, user2_id));`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
            id UUID PRIMARY KEY,
            chat_id UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL,
            content TEXT NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_chat ON chat_messages (chat_id, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_unread ON chat_messages (chat_id, sender_id) WHERE is_read = FALSE;`,
	`CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL,
            type TEXT NOT NULL,
            content TEXT NOT NULL,
            metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            dedup_bucket BIGINT NOT NULL
        );`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_notifications_dedup ON notifications (user_id, type, content, dedup_bucket);`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, created_at DESC);`,
}

// Migrate applies the schema idempotently.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	logging.Info().Int("statements", len(migrations)).Msg("database migrations applied")
	return nil
}
