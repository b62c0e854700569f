package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"recipe-realtime/internal/apperr"
	"recipe-realtime/internal/events"
	"recipe-realtime/internal/logging"
	"recipe-realtime/internal/models"
	"recipe-realtime/internal/repositories"
)

const (
	// MaxMessageRunes bounds the content of one chat message.
	MaxMessageRunes = 4000
	// SearchLimit caps the results of a message search.
	SearchLimit = 50

	defaultPageSize = 50
	maxPageSize     = 200
)

// MessageNotifier receives the counterpart notification side effect of a send.
type MessageNotifier interface {
	MessageSent(ctx context.Context, msg models.Message, recipientID string)
}

// ChatService owns private chats and their messages.
type ChatService struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	users    repositories.UserRepository
	bus      *events.Bus
	notifier MessageNotifier
}

// NewChatService builds a ChatService. notifier may be nil.
func NewChatService(chats repositories.ChatRepository, messages repositories.MessageRepository, users repositories.UserRepository, bus *events.Bus, notifier MessageNotifier) *ChatService {
	return &ChatService{
		chats:    chats,
		messages: messages,
		users:    users,
		bus:      bus,
		notifier: notifier,
	}
}

// SetNotifier attaches the message notifier after construction.
func (s *ChatService) SetNotifier(n MessageNotifier) {
	s.notifier = n
}

// CreateChat returns the chat between the two users, creating it if needed.
func (s *ChatService) CreateChat(ctx context.Context, user1ID, user2ID string) (models.Chat, error) {
	user1ID, user2ID = strings.TrimSpace(user1ID), strings.TrimSpace(user2ID)
	if user1ID == "" || user2ID == "" {
		return models.Chat{}, fmt.Errorf("both participants are required: %w", apperr.ErrValidation)
	}
	if user1ID == user2ID {
		return models.Chat{}, fmt.Errorf("cannot chat with yourself: %w", apperr.ErrValidation)
	}

	chat, err := s.chats.FindChatByPair(ctx, user1ID, user2ID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, fmt.Errorf("find chat: %w", err)
	}

	for _, id := range []string{user1ID, user2ID} {
		if _, err := s.users.GetUser(ctx, id); err != nil {
			return models.Chat{}, err
		}
	}

	chat, created, err := s.chats.InsertChat(ctx, user1ID, user2ID)
	if err != nil {
		return models.Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	if created {
		logging.Ctx(ctx).Info().Str("chat_id", chat.ID).Msg("chat created")
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (s *ChatService) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	return s.chats.GetChat(ctx, chatID)
}

// SendMessage persists a message from a participant. The message.sent event
// and the counterpart notification happen after commit and never fail the send.
func (s *ChatService) SendMessage(ctx context.Context, chatID, senderID, content string) (models.Message, error) {
	if err := validateContent(content); err != nil {
		return models.Message{}, err
	}

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Message{}, err
	}
	if !chat.HasParticipant(senderID) {
		return models.Message{}, fmt.Errorf("sender is not a chat participant: %w", apperr.ErrForbidden)
	}

	msg, err := s.messages.CreateChatMessage(ctx, chatID, senderID, content)
	if err != nil {
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}

	recipientID := chat.Counterpart(senderID)
	s.bus.Publish(ctx, events.TopicMessageSent, events.MessageSent{Message: msg, RecipientID: recipientID})
	if s.notifier != nil {
		s.notifier.MessageSent(ctx, msg, recipientID)
	}
	return msg, nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("message content is empty: %w", apperr.ErrValidation)
	}
	if utf8.RuneCountInString(content) > MaxMessageRunes {
		return fmt.Errorf("message content exceeds %d characters: %w", MaxMessageRunes, apperr.ErrValidation)
	}
	return nil
}

// MarkMessageRead flags one message as read on behalf of a participant.
func (s *ChatService) MarkMessageRead(ctx context.Context, messageID, readerID string) error {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	chat, err := s.chats.GetChat(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(readerID) {
		return fmt.Errorf("reader is not a chat participant: %w", apperr.ErrForbidden)
	}
	return s.messages.MarkMessageRead(ctx, messageID)
}

// MarkChatRead flags every unread message the counterpart sent in the chat
// and returns how many were flipped.
func (s *ChatService) MarkChatRead(ctx context.Context, chatID, readerID string) (int, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if !chat.HasParticipant(readerID) {
		return 0, fmt.Errorf("reader is not a chat participant: %w", apperr.ErrForbidden)
	}

	count, err := s.messages.MarkChatRead(ctx, chatID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark chat read: %w", err)
	}

	s.bus.Publish(ctx, events.TopicMessagesRead, events.MessagesRead{
		ChatID:        chatID,
		ReaderID:      readerID,
		CounterpartID: chat.Counterpart(readerID),
		Count:         count,
	})
	return count, nil
}

// GetUnreadCount counts unread messages addressed to the user across all chats.
func (s *ChatService) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	return s.messages.CountUnreadForUser(ctx, userID)
}

// SearchMessages returns messages containing query from the user's chats,
// newest first. An empty query matches nothing.
func (s *ChatService) SearchMessages(ctx context.Context, userID, query string) ([]models.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Message{}, nil
	}
	return s.messages.SearchForUser(ctx, userID, query, SearchLimit)
}

// ListUserChats returns the user's chats, most recently active first, with
// both participant profiles attached.
func (s *ChatService) ListUserChats(ctx context.Context, userID string) ([]models.ChatView, error) {
	chats, err := s.chats.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	ids := make([]string, 0, len(chats)*2)
	seen := map[string]struct{}{}
	for _, chat := range chats {
		for _, id := range []string{chat.User1ID, chat.User2ID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	profiles := map[string]models.UserProfile{}
	if len(ids) > 0 {
		users, err := s.users.GetUsers(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load participants: %w", err)
		}
		for _, u := range users {
			profiles[u.ID] = u
		}
	}

	views := make([]models.ChatView, 0, len(chats))
	for _, chat := range chats {
		views = append(views, models.ChatView{
			Chat:  chat,
			User1: profileOrPlaceholder(profiles, chat.User1ID),
			User2: profileOrPlaceholder(profiles, chat.User2ID),
		})
	}
	return views, nil
}

func profileOrPlaceholder(profiles map[string]models.UserProfile, id string) models.UserProfile {
	if p, ok := profiles[id]; ok {
		return p
	}
	return models.PlaceholderProfile(id)
}

// ListMessages returns a page of the chat's messages, oldest first, for a participant.
func (s *ChatService) ListMessages(ctx context.Context, chatID, readerID string, limit, offset int) ([]models.Message, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(readerID) {
		return nil, fmt.Errorf("not a chat participant: %w", apperr.ErrForbidden)
	}
	limit, offset = clampPage(limit, offset)
	return s.messages.ListChatMessages(ctx, chatID, limit, offset)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
