package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"recipe-realtime/internal/models"
	"recipe-realtime/internal/services"
)

type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) CreateChat(ctx context.Context, user1ID, user2ID string) (models.Chat, error) {
	args := m.Called(ctx, user1ID, user2ID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatServiceMock) SendMessage(ctx context.Context, chatID, senderID, content string) (models.Message, error) {
	args := m.Called(ctx, chatID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ChatServiceMock) MarkMessageRead(ctx context.Context, messageID, readerID string) error {
	args := m.Called(ctx, messageID, readerID)
	return args.Error(0)
}

func (m *ChatServiceMock) MarkChatRead(ctx context.Context, chatID, readerID string) (int, error) {
	args := m.Called(ctx, chatID, readerID)
	return args.Int(0), args.Error(1)
}

func (m *ChatServiceMock) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *ChatServiceMock) SearchMessages(ctx context.Context, userID, query string) ([]models.Message, error) {
	args := m.Called(ctx, userID, query)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) ListUserChats(ctx context.Context, userID string) ([]models.ChatView, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatView
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatView)
	}
	return list, args.Error(1)
}

func (m *ChatServiceMock) ListMessages(ctx context.Context, chatID, readerID string, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, chatID, readerID, limit, offset)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

type NotificationServiceMock struct {
	mock.Mock
}

func (m *NotificationServiceMock) Create(ctx context.Context, userID string, typ models.NotificationType, content string, meta models.Metadata) (models.Notification, error) {
	args := m.Called(ctx, userID, typ, content, meta)
	var n models.Notification
	if val := args.Get(0); val != nil {
		n = val.(models.Notification)
	}
	return n, args.Error(1)
}

func (m *NotificationServiceMock) NotifyFollowersOfNewRecipe(ctx context.Context, authorID, content string, meta models.NewRecipeMetadata) (services.FanoutResult, error) {
	args := m.Called(ctx, authorID, content, meta)
	var res services.FanoutResult
	if val := args.Get(0); val != nil {
		res = val.(services.FanoutResult)
	}
	return res, args.Error(1)
}

func (m *NotificationServiceMock) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly, limit, offset)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}

func (m *NotificationServiceMock) GetCounts(ctx context.Context, userID string) (models.NotificationCounts, error) {
	args := m.Called(ctx, userID)
	var counts models.NotificationCounts
	if val := args.Get(0); val != nil {
		counts = val.(models.NotificationCounts)
	}
	return counts, args.Error(1)
}

func (m *NotificationServiceMock) MarkRead(ctx context.Context, id, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *NotificationServiceMock) MarkAllRead(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type DispatcherMock struct {
	mock.Mock
}

func (m *DispatcherMock) Dispatch(ctx context.Context, routingKey string, ev services.DomainEvent) error {
	args := m.Called(ctx, routingKey, ev)
	return args.Error(0)
}

type PresenceStoreMock struct {
	mock.Mock
}

func (m *PresenceStoreMock) SetOnline(ctx context.Context, userID string, online bool) error {
	args := m.Called(ctx, userID, online)
	return args.Error(0)
}
