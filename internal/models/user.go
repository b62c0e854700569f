package models

import "time"

// UserProfile is the public part of a user record owned by the user service.
type UserProfile struct {
	ID         string     `db:"id" json:"id"`
	Username   string     `db:"username" json:"username"`
	Email      string     `db:"email" json:"email"`
	AvatarURL  *string    `db:"avatar_url" json:"avatarUrl,omitempty"`
	IsOnline   bool       `db:"is_online" json:"isOnline"`
	LastSeenAt *time.Time `db:"last_seen_at" json:"lastSeenAt,omitempty"`
}

// PlaceholderProfile stands in for a participant whose user record is missing.
func PlaceholderProfile(id string) UserProfile {
	prefix := id
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return UserProfile{
		ID:       id,
		Username: "user_" + prefix,
		Email:    prefix + "@unknown.local",
	}
}
