package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-realtime/internal/db"
	"recipe-realtime/internal/models"
)

// openTestDB connects to TEST_DB_DSN and skips when it is unset.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func seedUser(t *testing.T, conn *sqlx.DB, name string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := conn.Exec(`INSERT INTO users (id, username, email) VALUES ($1, $2, $3)`, id, name, name+"@example.com")
	require.NoError(t, err)
	return id
}

func TestChatPairIsUnordered(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := NewChatRepo(conn)
	a, b := seedUser(t, conn, "anna"), seedUser(t, conn, "ben")

	first, created, err := repo.InsertChat(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.InsertChat(ctx, b, a)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	found, err := repo.FindChatByPair(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestMessagesReadAndUnreadCounts(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	chats, messages := NewChatRepo(conn), NewMessageRepo(conn)
	a, b := seedUser(t, conn, "cara"), seedUser(t, conn, "dan")

	chat, _, err := chats.InsertChat(ctx, a, b)
	require.NoError(t, err)
	_, err = messages.CreateChatMessage(ctx, chat.ID, a, "hello dan")
	require.NoError(t, err)
	_, err = messages.CreateChatMessage(ctx, chat.ID, b, "hi cara")
	require.NoError(t, err)

	unread, err := messages.CountUnreadForUser(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	marked, err := messages.MarkChatRead(ctx, chat.ID, b)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	unread, err = messages.CountUnreadForUser(ctx, b)
	require.NoError(t, err)
	assert.Zero(t, unread)

	found, err := messages.SearchForUser(ctx, a, "DAN", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "hello dan", found[0].Content)
}

func TestNotificationBucketConflictReturnsExisting(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := NewNotificationRepo(conn)
	user := seedUser(t, conn, "eve")

	n := models.Notification{
		ID:        uuid.NewString(),
		UserID:    user,
		Type:      models.NotificationLike,
		Content:   `ann liked your recipe "Soup"`,
		Metadata:  models.LikeMetadata{RecipeID: "r-1"},
		CreatedAt: time.Now().UTC(),
	}
	first, inserted, err := repo.Insert(ctx, n, 42)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, n.Metadata, first.Metadata)

	n.ID = uuid.NewString()
	second, inserted, err := repo.Insert(ctx, n, 42)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)

	counts, err := repo.CountUnread(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationCounts{Messages: 0, Others: 1, Total: 1}, counts)

	require.ErrorIs(t, repo.MarkRead(ctx, first.ID, uuid.NewString()), ErrNotificationNotFound)
	require.NoError(t, repo.MarkRead(ctx, first.ID, user))
}

func TestInvalidIDsAreNotFound(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	_, err := NewChatRepo(conn).GetChat(ctx, "42")
	assert.ErrorIs(t, err, ErrChatNotFound)
	_, err = NewNotificationRepo(conn).GetNotification(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}
