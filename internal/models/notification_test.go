package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-realtime/internal/apperr"
)

func TestDecodeMetadataSelectsVariant(t *testing.T) {
	meta, err := DecodeMetadata(NotificationComment, []byte(`{"recipe_id":"r1","comment_id":"c9","actor_id":"a"}`))
	require.NoError(t, err)
	comment, ok := meta.(CommentMetadata)
	require.True(t, ok)
	assert.Equal(t, "r1", comment.RecipeID)
	assert.Equal(t, "/recipes/r1#comment-c9", comment.Link())
}

func TestDecodeMetadataEveryTypeHasVariant(t *testing.T) {
	for _, typ := range NotificationTypes {
		meta, err := DecodeMetadata(typ, nil)
		require.NoError(t, err, typ)
		assert.Equal(t, typ, meta.Type())
		assert.NotEmpty(t, meta.Link())
	}
}

func TestDecodeMetadataRejectsUnknownType(t *testing.T) {
	_, err := DecodeMetadata("poke", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestNotificationJSONRoundTripKeepsVariant(t *testing.T) {
	in := Notification{
		ID:       "n1",
		UserID:   "u1",
		Type:     NotificationMessage,
		Content:  "New message from alice",
		Metadata: MessageMetadata{ChatID: "c1", MessageID: "m1", SenderID: "u2"},
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"chat_id":"c1"`)

	var out Notification
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in.Metadata, out.Metadata)
	assert.Equal(t, "/chats/c1", out.Metadata.Link())
}

func TestChatCounterpart(t *testing.T) {
	chat := Chat{ID: "c", User1ID: "a", User2ID: "b"}
	assert.Equal(t, "b", chat.Counterpart("a"))
	assert.Equal(t, "a", chat.Counterpart("b"))
	assert.Equal(t, "", chat.Counterpart("x"))
	assert.False(t, chat.HasParticipant(""))
}

func TestPlaceholderProfileUsesIDPrefix(t *testing.T) {
	p := PlaceholderProfile("1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assert.Equal(t, "user_1b4e28ba", p.Username)
	assert.Equal(t, "1b4e28ba@unknown.local", p.Email)
}
