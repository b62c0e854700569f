package models

import "time"

// Message is a chat message.
type Message struct {
	ID        string    `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chatId"`
	SenderID  string    `db:"sender_id" json:"senderId"`
	Content   string    `db:"content" json:"content"`
	IsRead    bool      `db:"is_read" json:"isRead"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
