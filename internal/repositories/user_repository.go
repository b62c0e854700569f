package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"recipe-realtime/internal/models"
)

// UserRepository reads user profiles and records presence.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.UserProfile, error)
	GetUsers(ctx context.Context, ids []string) ([]models.UserProfile, error)
	SetOnline(ctx context.Context, userID string, online bool) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, email, avatar_url, is_online, last_seen_at`

// GetUser fetches one profile.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.UserProfile, error) {
	if !validID(userID) {
		return models.UserProfile{}, ErrUserNotFound
	}
	var u models.UserProfile
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserProfile{}, ErrUserNotFound
	}
	return u, err
}

// GetUsers fetches the profiles that exist among ids; missing ids are skipped.
func (r *UserRepo) GetUsers(ctx context.Context, ids []string) ([]models.UserProfile, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []models.UserProfile{}, nil
	}
	var users []models.UserProfile
	err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, pq.Array(valid))
	return users, err
}

// SetOnline records the presence flag and, on going offline, the last-seen time.
func (r *UserRepo) SetOnline(ctx context.Context, userID string, online bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_online=$2,
        last_seen_at = CASE WHEN $2 THEN last_seen_at ELSE NOW() END
        WHERE id=$1`, userID, online)
	return err
}
