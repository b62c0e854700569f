package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"recipe-realtime/internal/models"
	"recipe-realtime/internal/ws"
)

const defaultMaxToasts = 20

// Toast is a transient notice shown for an incoming notification.
type Toast struct {
	NotificationID string                  `json:"notificationId"`
	Type           models.NotificationType `json:"type"`
	Content        string                  `json:"content"`
	Link           string                  `json:"link,omitempty"`
	At             time.Time               `json:"at"`
}

// Snapshot is a copy of the mirrored state.
type Snapshot struct {
	UserID        string
	ActiveChat    string
	UnreadByChat  map[string]int
	MessageBadge  int
	OtherBadge    int
	Typing        map[string][]string
	ReadReceipts  map[string]int
	Toasts        []Toast
	LastError     *ws.ErrorPayload
	LastMessageAt time.Time
}

// State mirrors what a browser client renders from server events: per-chat
// unread counts, the two notification badges, typing indicators and toasts.
type State struct {
	mu sync.Mutex

	userID       string
	activeChat   string
	unread       map[string]int
	messageBadge int
	otherBadge   int
	typing       map[string]map[string]bool
	readReceipts map[string]int
	toasts       []Toast
	maxToasts    int
	lastError    *ws.ErrorPayload
	lastMessage  time.Time
}

// NewState returns an empty mirror.
func NewState() *State {
	return &State{
		unread:       make(map[string]int),
		typing:       make(map[string]map[string]bool),
		readReceipts: make(map[string]int),
		maxToasts:    defaultMaxToasts,
	}
}

// Apply folds one server frame into the state. Unknown events are ignored.
func (s *State) Apply(env ws.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Event {
	case ws.EventJoined:
		var p ws.JoinedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.userID = p.UserID

	case ws.EventNewMessage:
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.lastMessage = msg.CreatedAt
		if users := s.typing[msg.ChatID]; users != nil {
			delete(users, msg.SenderID)
		}
		if msg.SenderID != s.userID && msg.ChatID != s.activeChat {
			s.unread[msg.ChatID]++
		}

	case ws.EventMessageSent:
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.lastMessage = msg.CreatedAt

	case ws.EventNotification:
		var n models.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.applyNotification(n)

	case ws.EventUserTyping:
		var p ws.UserTypingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		users := s.typing[p.ChatID]
		if p.IsTyping {
			if users == nil {
				users = make(map[string]bool)
				s.typing[p.ChatID] = users
			}
			users[p.UserID] = true
		} else if users != nil {
			delete(users, p.UserID)
		}

	case ws.EventMessagesRead:
		var p ws.MessagesReadPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.readReceipts[p.ChatID] += p.Count

	case ws.EventError:
		var p ws.ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.lastError = &p
	}
	return nil
}

func (s *State) applyNotification(n models.Notification) {
	if n.IsRead {
		return
	}
	if n.Type == models.NotificationMessage {
		s.messageBadge++
		if meta, ok := n.Metadata.(models.MessageMetadata); ok && meta.ChatID == s.activeChat {
			return
		}
	} else {
		s.otherBadge++
	}

	toast := Toast{NotificationID: n.ID, Type: n.Type, Content: n.Content, At: n.CreatedAt}
	if n.Metadata != nil {
		toast.Link = n.Metadata.Link()
	}
	s.toasts = append(s.toasts, toast)
	if len(s.toasts) > s.maxToasts {
		s.toasts = s.toasts[len(s.toasts)-s.maxToasts:]
	}
}

// OpenChat makes chatID the visible chat and clears its unread count.
func (s *State) OpenChat(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeChat = chatID
	cleared := s.unread[chatID]
	delete(s.unread, chatID)
	return cleared
}

// CloseChat clears the visible chat.
func (s *State) CloseChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeChat = ""
}

// ChatRead clears the unread count of a chat after the user marked it read.
func (s *State) ChatRead(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unread, chatID)
}

// SetCounts replaces both badges with server counts.
func (s *State) SetCounts(counts models.NotificationCounts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageBadge = counts.Messages
	s.otherBadge = counts.Others
}

// NotificationsRead resets both badges.
func (s *State) NotificationsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageBadge = 0
	s.otherBadge = 0
}

// DismissToasts drops all toasts.
func (s *State) DismissToasts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toasts = nil
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		UserID:        s.userID,
		ActiveChat:    s.activeChat,
		UnreadByChat:  make(map[string]int, len(s.unread)),
		MessageBadge:  s.messageBadge,
		OtherBadge:    s.otherBadge,
		Typing:        make(map[string][]string, len(s.typing)),
		ReadReceipts:  make(map[string]int, len(s.readReceipts)),
		Toasts:        append([]Toast(nil), s.toasts...),
		LastMessageAt: s.lastMessage,
	}
	for k, v := range s.unread {
		snap.UnreadByChat[k] = v
	}
	for chat, users := range s.typing {
		for u := range users {
			snap.Typing[chat] = append(snap.Typing[chat], u)
		}
		sort.Strings(snap.Typing[chat])
	}
	for k, v := range s.readReceipts {
		snap.ReadReceipts[k] = v
	}
	if s.lastError != nil {
		e := *s.lastError
		snap.LastError = &e
	}
	return snap
}
