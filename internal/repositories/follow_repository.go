package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// FollowRepository lists follower edges.
type FollowRepository interface {
	ListFollowerIDs(ctx context.Context, userID string, limit, offset int) ([]string, error)
}

// FollowRepo is a sqlx implementation of FollowRepository.
type FollowRepo struct {
	db *sqlx.DB
}

// NewFollowRepo constructs a FollowRepo.
func NewFollowRepo(db *sqlx.DB) *FollowRepo {
	return &FollowRepo{db: db}
}

// ListFollowerIDs returns a page of the ids following userID, oldest follow first.
func (r *FollowRepo) ListFollowerIDs(ctx context.Context, userID string, limit, offset int) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT follower_id FROM follows
        WHERE following_id=$1
        ORDER BY created_at ASC
        LIMIT $2 OFFSET $3`, userID, limit, offset)
	return ids, err
}
