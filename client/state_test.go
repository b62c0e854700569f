package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-realtime/internal/models"
	"recipe-realtime/internal/ws"
)

const (
	me    = "user-me"
	other = "user-other"
)

func frame(t *testing.T, event string, data any) ws.Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return ws.Envelope{Event: event, Data: raw}
}

func joinedState(t *testing.T) *State {
	s := NewState()
	require.NoError(t, s.Apply(frame(t, ws.EventJoined, ws.JoinedPayload{UserID: me})))
	return s
}

func TestNewMessageIncrementsUnreadUntilRead(t *testing.T) {
	s := joinedState(t)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Apply(frame(t, ws.EventNewMessage, models.Message{ID: "m", ChatID: "c1", SenderID: other})))
	}
	assert.Equal(t, 2, s.Snapshot().UnreadByChat["c1"])

	s.ChatRead("c1")
	assert.Zero(t, s.Snapshot().UnreadByChat["c1"])
}

func TestOpenChatSuppressesUnread(t *testing.T) {
	s := joinedState(t)
	require.NoError(t, s.Apply(frame(t, ws.EventNewMessage, models.Message{ChatID: "c1", SenderID: other})))

	assert.Equal(t, 1, s.OpenChat("c1"))
	require.NoError(t, s.Apply(frame(t, ws.EventNewMessage, models.Message{ChatID: "c1", SenderID: other})))
	assert.Empty(t, s.Snapshot().UnreadByChat)

	s.CloseChat()
	require.NoError(t, s.Apply(frame(t, ws.EventNewMessage, models.Message{ChatID: "c1", SenderID: other})))
	assert.Equal(t, 1, s.Snapshot().UnreadByChat["c1"])
}

func TestNotificationBadgesAndToasts(t *testing.T) {
	s := joinedState(t)

	require.NoError(t, s.Apply(frame(t, ws.EventNotification, models.Notification{
		ID: "n1", UserID: me, Type: models.NotificationLike, Content: "liked",
		Metadata: models.LikeMetadata{RecipeID: "r1"},
	})))
	require.NoError(t, s.Apply(frame(t, ws.EventNotification, models.Notification{
		ID: "n2", UserID: me, Type: models.NotificationMessage, Content: "sent you a message",
		Metadata: models.MessageMetadata{ChatID: "c1"},
	})))

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.MessageBadge)
	assert.Equal(t, 1, snap.OtherBadge)
	require.Len(t, snap.Toasts, 2)
	assert.Equal(t, "liked", snap.Toasts[0].Content)
	assert.Equal(t, models.LikeMetadata{RecipeID: "r1"}.Link(), snap.Toasts[0].Link)

	s.NotificationsRead()
	snap = s.Snapshot()
	assert.Zero(t, snap.MessageBadge)
	assert.Zero(t, snap.OtherBadge)
}

func TestMessageNotificationForOpenChatHasNoToast(t *testing.T) {
	s := joinedState(t)
	s.OpenChat("c1")

	require.NoError(t, s.Apply(frame(t, ws.EventNotification, models.Notification{
		ID: "n1", Type: models.NotificationMessage, Metadata: models.MessageMetadata{ChatID: "c1"},
	})))

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.MessageBadge)
	assert.Empty(t, snap.Toasts)
}

func TestToastsAreBounded(t *testing.T) {
	s := joinedState(t)
	for i := 0; i < defaultMaxToasts+5; i++ {
		require.NoError(t, s.Apply(frame(t, ws.EventNotification, models.Notification{Type: models.NotificationSystem, Content: "hi"})))
	}
	assert.Len(t, s.Snapshot().Toasts, defaultMaxToasts)
	assert.Equal(t, defaultMaxToasts+5, s.Snapshot().OtherBadge)

	s.DismissToasts()
	assert.Empty(t, s.Snapshot().Toasts)
}

func TestTypingClearedByMessage(t *testing.T) {
	s := joinedState(t)

	require.NoError(t, s.Apply(frame(t, ws.EventUserTyping, ws.UserTypingPayload{ChatID: "c1", UserID: other, IsTyping: true})))
	assert.Equal(t, []string{other}, s.Snapshot().Typing["c1"])

	require.NoError(t, s.Apply(frame(t, ws.EventNewMessage, models.Message{ChatID: "c1", SenderID: other})))
	assert.Empty(t, s.Snapshot().Typing["c1"])
}

func TestReadReceiptsAndErrors(t *testing.T) {
	s := joinedState(t)

	require.NoError(t, s.Apply(frame(t, ws.EventMessagesRead, ws.MessagesReadPayload{ChatID: "c1", ReaderID: other, Count: 3})))
	require.NoError(t, s.Apply(frame(t, ws.EventError, ws.ErrorPayload{Code: "Forbidden", Message: "nope", Event: ws.EventSendMessage})))

	snap := s.Snapshot()
	assert.Equal(t, 3, snap.ReadReceipts["c1"])
	require.NotNil(t, snap.LastError)
	assert.Equal(t, "Forbidden", snap.LastError.Code)
}

func TestSetCountsReplacesBadges(t *testing.T) {
	s := NewState()
	s.SetCounts(models.NotificationCounts{Messages: 4, Others: 1, Total: 5})

	snap := s.Snapshot()
	assert.Equal(t, 4, snap.MessageBadge)
	assert.Equal(t, 1, snap.OtherBadge)
}

func TestApplyRejectsMalformedPayload(t *testing.T) {
	s := NewState()
	err := s.Apply(ws.Envelope{Event: ws.EventNewMessage, Data: json.RawMessage(`"nope"`)})
	assert.Error(t, err)
}
