package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"recipe-realtime/internal/models"
)

// NotificationRepository persists notifications.
type NotificationRepository interface {
	FindRecentDuplicate(ctx context.Context, userID string, typ models.NotificationType, content string, since time.Time) (models.Notification, error)
	Insert(ctx context.Context, n models.Notification, bucket int64) (models.Notification, bool, error)
	GetNotification(ctx context.Context, id string) (models.Notification, error)
	List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	CountUnread(ctx context.Context, userID string) (models.NotificationCounts, error)
}

// NotificationRepo is a sqlx-backed repository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs a NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

type notificationRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Type      string         `db:"type"`
	Content   string         `db:"content"`
	Metadata  types.JSONText `db:"metadata"`
	IsRead    bool           `db:"is_read"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r notificationRow) toModel() (models.Notification, error) {
	typ := models.NotificationType(r.Type)
	meta, err := models.DecodeMetadata(typ, r.Metadata)
	if err != nil {
		return models.Notification{}, fmt.Errorf("notification %s: %w", r.ID, err)
	}
	return models.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      typ,
		Content:   r.Content,
		Metadata:  meta,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}, nil
}

func rowsToModels(rows []notificationRow) ([]models.Notification, error) {
	out := make([]models.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

const notificationColumns = `id, user_id, type, content, metadata, is_read, created_at`

// FindRecentDuplicate returns the newest notification with the same
// recipient, type and content created at or after since.
func (r *NotificationRepo) FindRecentDuplicate(ctx context.Context, userID string, typ models.NotificationType, content string, since time.Time) (models.Notification, error) {
	var row notificationRow
	err := r.db.GetContext(ctx, &row, `SELECT `+notificationColumns+` FROM notifications
        WHERE user_id=$1 AND type=$2 AND content=$3 AND created_at >= $4
        ORDER BY created_at DESC
        LIMIT 1`, userID, string(typ), content, since)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	if err != nil {
		return models.Notification{}, err
	}
	return row.toModel()
}

// Insert stores n. When a row with the same recipient, type, content and
// bucket already exists, that row is returned with inserted=false.
func (r *NotificationRepo) Insert(ctx context.Context, n models.Notification, bucket int64) (models.Notification, bool, error) {
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return models.Notification{}, false, fmt.Errorf("encode metadata: %w", err)
	}

	var row notificationRow
	err = r.db.GetContext(ctx, &row, `INSERT INTO notifications (id, user_id, type, content, metadata, is_read, created_at, dedup_bucket)
        VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
        ON CONFLICT (user_id, type, content, dedup_bucket) DO NOTHING
        RETURNING `+notificationColumns,
		n.ID, n.UserID, string(n.Type), n.Content, types.JSONText(meta), n.CreatedAt, bucket)
	if err == nil {
		created, err := row.toModel()
		return created, true, err
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, false, err
	}

	err = r.db.GetContext(ctx, &row, `SELECT `+notificationColumns+` FROM notifications
        WHERE user_id=$1 AND type=$2 AND content=$3 AND dedup_bucket=$4`, n.UserID, string(n.Type), n.Content, bucket)
	if err != nil {
		return models.Notification{}, false, err
	}
	existing, err := row.toModel()
	return existing, false, err
}

// GetNotification fetches one notification.
func (r *NotificationRepo) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	if !validID(id) {
		return models.Notification{}, ErrNotificationNotFound
	}
	var row notificationRow
	err := r.db.GetContext(ctx, &row, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Notification{}, ErrNotificationNotFound
	}
	if err != nil {
		return models.Notification{}, err
	}
	return row.toModel()
}

// List returns a page of the user's notifications, newest first.
func (r *NotificationRepo) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	var rows []notificationRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+notificationColumns+` FROM notifications
        WHERE user_id=$1 AND ($2 = FALSE OR is_read = FALSE)
        ORDER BY created_at DESC
        LIMIT $3 OFFSET $4`, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	return rowsToModels(rows)
}

// MarkRead flags one of the user's notifications as read.
func (r *NotificationRepo) MarkRead(ctx context.Context, id string, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of the user as read.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id=$1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}

// CountUnread splits unread notifications into message and non-message buckets.
func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (models.NotificationCounts, error) {
	var counts struct {
		Messages int `db:"messages"`
		Others   int `db:"others"`
	}
	err := r.db.GetContext(ctx, &counts, `SELECT
            COUNT(*) FILTER (WHERE type = $2) AS messages,
            COUNT(*) FILTER (WHERE type <> $2) AS others
        FROM notifications
        WHERE user_id=$1 AND is_read = FALSE`, userID, string(models.NotificationMessage))
	if err != nil {
		return models.NotificationCounts{}, err
	}
	return models.NotificationCounts{
		Messages: counts.Messages,
		Others:   counts.Others,
		Total:    counts.Messages + counts.Others,
	}, nil
}
