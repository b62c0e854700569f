package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"recipe-realtime/internal/models"
	"recipe-realtime/internal/repositories"
)

type memStore struct {
	mu            sync.Mutex
	users         map[string]models.UserProfile
	chats         map[string]models.Chat
	messages      []models.Message
	notifications []storedNotification
	followers     map[string][]string
	clock         func() time.Time
	failInsert    error
}

type storedNotification struct {
	models.Notification
	bucket int64
}

func newMemStore(userIDs ...string) *memStore {
	s := &memStore{
		users:     map[string]models.UserProfile{},
		chats:     map[string]models.Chat{},
		followers: map[string][]string{},
		clock:     time.Now,
	}
	for _, id := range userIDs {
		s.users[id] = models.UserProfile{ID: id, Username: id, Email: id + "@example.com"}
	}
	return s
}

// chat repository

type memChatRepo struct{ s *memStore }

func (r memChatRepo) GetChat(_ context.Context, chatID string) (models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	chat, ok := r.s.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return chat, nil
}

func (r memChatRepo) FindChatByPair(_ context.Context, a, b string) (models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, chat := range r.s.chats {
		if (chat.User1ID == a && chat.User2ID == b) || (chat.User1ID == b && chat.User2ID == a) {
			return chat, nil
		}
	}
	return models.Chat{}, repositories.ErrChatNotFound
}

func (r memChatRepo) InsertChat(ctx context.Context, a, b string) (models.Chat, bool, error) {
	if chat, err := r.FindChatByPair(ctx, a, b); err == nil {
		return chat, false, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock()
	chat := models.Chat{ID: uuid.NewString(), User1ID: a, User2ID: b, CreatedAt: now, UpdatedAt: now}
	r.s.chats[chat.ID] = chat
	return chat, true, nil
}

func (r memChatRepo) ListChatsForUser(_ context.Context, userID string) ([]models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Chat
	for _, chat := range r.s.chats {
		if chat.HasParticipant(userID) {
			out = append(out, chat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// message repository

type memMessageRepo struct{ s *memStore }

func (r memMessageRepo) CreateChatMessage(_ context.Context, chatID, senderID, content string) (models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock()
	msg := models.Message{ID: uuid.NewString(), ChatID: chatID, SenderID: senderID, Content: content, CreatedAt: now}
	r.s.messages = append(r.s.messages, msg)
	chat := r.s.chats[chatID]
	chat.UpdatedAt = now
	r.s.chats[chatID] = chat
	return msg, nil
}

func (r memMessageRepo) GetMessage(_ context.Context, id string) (models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return models.Message{}, repositories.ErrMessageNotFound
}

func (r memMessageRepo) ListChatMessages(_ context.Context, chatID string, limit, offset int) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Message
	for _, m := range r.s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	if offset >= len(out) {
		return []models.Message{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memMessageRepo) MarkMessageRead(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.messages {
		if r.s.messages[i].ID == id {
			r.s.messages[i].IsRead = true
			return nil
		}
	}
	return repositories.ErrMessageNotFound
}

func (r memMessageRepo) MarkChatRead(_ context.Context, chatID, readerID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for i := range r.s.messages {
		m := &r.s.messages[i]
		if m.ChatID == chatID && m.SenderID != readerID && !m.IsRead {
			m.IsRead = true
			count++
		}
	}
	return count, nil
}

func (r memMessageRepo) CountUnreadForUser(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, m := range r.s.messages {
		chat := r.s.chats[m.ChatID]
		if chat.HasParticipant(userID) && m.SenderID != userID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

func (r memMessageRepo) SearchForUser(_ context.Context, userID, query string, limit int) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Message
	for i := len(r.s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.s.messages[i]
		if r.s.chats[m.ChatID].HasParticipant(userID) && strings.Contains(strings.ToLower(m.Content), strings.ToLower(query)) {
			out = append(out, m)
		}
	}
	return out, nil
}

// user repository

type memUserRepo struct{ s *memStore }

func (r memUserRepo) GetUser(_ context.Context, id string) (models.UserProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return models.UserProfile{}, repositories.ErrUserNotFound
	}
	return u, nil
}

func (r memUserRepo) GetUsers(_ context.Context, ids []string) ([]models.UserProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.UserProfile
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r memUserRepo) SetOnline(_ context.Context, id string, online bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.s.users[id]
	u.IsOnline = online
	r.s.users[id] = u
	return nil
}

// follow repository

type memFollowRepo struct{ s *memStore }

func (r memFollowRepo) ListFollowerIDs(_ context.Context, userID string, limit, offset int) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := r.s.followers[userID]
	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return append([]string(nil), ids...), nil
}

// notification repository

type memNotificationRepo struct{ s *memStore }

func (r memNotificationRepo) FindRecentDuplicate(_ context.Context, userID string, typ models.NotificationType, content string, since time.Time) (models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		n := r.s.notifications[i]
		if n.UserID == userID && n.Type == typ && n.Content == content && !n.CreatedAt.Before(since) {
			return n.Notification, nil
		}
	}
	return models.Notification{}, repositories.ErrNotificationNotFound
}

func (r memNotificationRepo) Insert(_ context.Context, n models.Notification, bucket int64) (models.Notification, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failInsert != nil {
		return models.Notification{}, false, r.s.failInsert
	}
	for _, existing := range r.s.notifications {
		if existing.UserID == n.UserID && existing.Type == n.Type && existing.Content == n.Content && existing.bucket == bucket {
			return existing.Notification, false, nil
		}
	}
	r.s.notifications = append(r.s.notifications, storedNotification{Notification: n, bucket: bucket})
	return n, true, nil
}

func (r memNotificationRepo) GetNotification(_ context.Context, id string) (models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range r.s.notifications {
		if n.ID == id {
			return n.Notification, nil
		}
	}
	return models.Notification{}, repositories.ErrNotificationNotFound
}

func (r memNotificationRepo) List(_ context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Notification
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		n := r.s.notifications[i]
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n.Notification)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memNotificationRepo) MarkRead(_ context.Context, id, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.notifications {
		if r.s.notifications[i].ID == id && r.s.notifications[i].UserID == userID {
			r.s.notifications[i].IsRead = true
			return nil
		}
	}
	return repositories.ErrNotificationNotFound
}

func (r memNotificationRepo) MarkAllRead(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for i := range r.s.notifications {
		if r.s.notifications[i].UserID == userID && !r.s.notifications[i].IsRead {
			r.s.notifications[i].IsRead = true
			count++
		}
	}
	return count, nil
}

func (r memNotificationRepo) CountUnread(_ context.Context, userID string) (models.NotificationCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var c models.NotificationCounts
	for _, n := range r.s.notifications {
		if n.UserID != userID || n.IsRead {
			continue
		}
		if n.Type == models.NotificationMessage {
			c.Messages++
		} else {
			c.Others++
		}
	}
	c.Total = c.Messages + c.Others
	return c, nil
}

func (s *memStore) notificationCount(userID string, typ models.NotificationType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && n.Type == typ {
			count++
		}
	}
	return count
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
