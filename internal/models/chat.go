package models

import "time"

// Chat is a private conversation between exactly two users.
type Chat struct {
	ID        string    `db:"id" json:"id"`
	User1ID   string    `db:"user1_id" json:"user1Id"`
	User2ID   string    `db:"user2_id" json:"user2Id"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// HasParticipant reports whether userID is one of the two chat members.
func (c Chat) HasParticipant(userID string) bool {
	return userID != "" && (c.User1ID == userID || c.User2ID == userID)
}

// Counterpart returns the other participant, or "" when userID is not a member.
func (c Chat) Counterpart(userID string) string {
	switch userID {
	case c.User1ID:
		return c.User2ID
	case c.User2ID:
		return c.User1ID
	default:
		return ""
	}
}

// ChatView is a chat enriched with both participant profiles.
type ChatView struct {
	Chat
	User1 UserProfile `json:"user1"`
	User2 UserProfile `json:"user2"`
}
