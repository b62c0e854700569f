package models

import (
	"encoding/json"
	"fmt"
	"time"

	"recipe-realtime/internal/apperr"
)

// NotificationType enumerates the notification kinds.
type NotificationType string

const (
	NotificationLike           NotificationType = "like"
	NotificationComment        NotificationType = "comment"
	NotificationFollow         NotificationType = "follow"
	NotificationRecipeApproved NotificationType = "recipe_approved"
	NotificationRecipeRejected NotificationType = "recipe_rejected"
	NotificationSystem         NotificationType = "system"
	NotificationRecipeShared   NotificationType = "recipe_shared"
	NotificationNewRecipe      NotificationType = "new_recipe"
	NotificationMessage        NotificationType = "message"
	NotificationFavorite       NotificationType = "favorite"
)

// NotificationTypes lists every known type.
var NotificationTypes = []NotificationType{
	NotificationLike,
	NotificationComment,
	NotificationFollow,
	NotificationRecipeApproved,
	NotificationRecipeRejected,
	NotificationSystem,
	NotificationRecipeShared,
	NotificationNewRecipe,
	NotificationMessage,
	NotificationFavorite,
}

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Notification is a persisted notice for one recipient.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Content   string           `json:"content"`
	Metadata  Metadata         `json:"metadata"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// UnmarshalJSON decodes the metadata variant selected by the type field.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type alias Notification
	var raw struct {
		alias
		Metadata json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	meta, err := DecodeMetadata(raw.Type, raw.Metadata)
	if err != nil {
		return err
	}
	*n = Notification(raw.alias)
	n.Metadata = meta
	return nil
}

// NotificationCounts splits unread notifications into the two client badges.
type NotificationCounts struct {
	Messages int `json:"messages"`
	Others   int `json:"others"`
	Total    int `json:"total"`
}

// Metadata points back at the entity that triggered a notification. Each
// notification type has exactly one variant.
type Metadata interface {
	Type() NotificationType
	// Link is the client route opened when the notification is clicked.
	Link() string
}

type LikeMetadata struct {
	RecipeID string `json:"recipe_id"`
	ActorID  string `json:"actor_id,omitempty"`
}

type CommentMetadata struct {
	RecipeID  string `json:"recipe_id"`
	CommentID string `json:"comment_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
}

type FollowMetadata struct {
	FollowerID string `json:"follower_id"`
}

type RecipeApprovedMetadata struct {
	RecipeID string `json:"recipe_id"`
}

type RecipeRejectedMetadata struct {
	RecipeID string `json:"recipe_id"`
	Reason   string `json:"reason,omitempty"`
}

type SystemMetadata struct {
	URL string `json:"url,omitempty"`
}

type RecipeSharedMetadata struct {
	RecipeID   string `json:"recipe_id"`
	SharedByID string `json:"shared_by_id,omitempty"`
}

type NewRecipeMetadata struct {
	RecipeID string `json:"recipe_id"`
	AuthorID string `json:"author_id,omitempty"`
}

type MessageMetadata struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id,omitempty"`
	SenderID  string `json:"sender_id,omitempty"`
}

type FavoriteMetadata struct {
	RecipeID string `json:"recipe_id"`
	ActorID  string `json:"actor_id,omitempty"`
}

func (LikeMetadata) Type() NotificationType           { return NotificationLike }
func (CommentMetadata) Type() NotificationType        { return NotificationComment }
func (FollowMetadata) Type() NotificationType         { return NotificationFollow }
func (RecipeApprovedMetadata) Type() NotificationType { return NotificationRecipeApproved }
func (RecipeRejectedMetadata) Type() NotificationType { return NotificationRecipeRejected }
func (SystemMetadata) Type() NotificationType         { return NotificationSystem }
func (RecipeSharedMetadata) Type() NotificationType   { return NotificationRecipeShared }
func (NewRecipeMetadata) Type() NotificationType      { return NotificationNewRecipe }
func (MessageMetadata) Type() NotificationType        { return NotificationMessage }
func (FavoriteMetadata) Type() NotificationType       { return NotificationFavorite }

func (m LikeMetadata) Link() string           { return recipeLink(m.RecipeID) }
func (m CommentMetadata) Link() string        { return recipeLink(m.RecipeID) + commentAnchor(m.CommentID) }
func (m FollowMetadata) Link() string         { return "/users/" + m.FollowerID }
func (m RecipeApprovedMetadata) Link() string { return recipeLink(m.RecipeID) }
func (m RecipeRejectedMetadata) Link() string { return recipeLink(m.RecipeID) }
func (m RecipeSharedMetadata) Link() string   { return recipeLink(m.RecipeID) }
func (m NewRecipeMetadata) Link() string      { return recipeLink(m.RecipeID) }
func (m MessageMetadata) Link() string        { return "/chats/" + m.ChatID }
func (m FavoriteMetadata) Link() string       { return recipeLink(m.RecipeID) }

func (m SystemMetadata) Link() string {
	if m.URL != "" {
		return m.URL
	}
	return "/notifications"
}

func recipeLink(id string) string {
	if id == "" {
		return "/notifications"
	}
	return "/recipes/" + id
}

func commentAnchor(id string) string {
	if id == "" {
		return ""
	}
	return "#comment-" + id
}

// DecodeMetadata decodes raw JSON into the variant for t. Empty input yields
// the zero variant.
func DecodeMetadata(t NotificationType, raw []byte) (Metadata, error) {
	var meta Metadata
	switch t {
	case NotificationLike:
		meta = &LikeMetadata{}
	case NotificationComment:
		meta = &CommentMetadata{}
	case NotificationFollow:
		meta = &FollowMetadata{}
	case NotificationRecipeApproved:
		meta = &RecipeApprovedMetadata{}
	case NotificationRecipeRejected:
		meta = &RecipeRejectedMetadata{}
	case NotificationSystem:
		meta = &SystemMetadata{}
	case NotificationRecipeShared:
		meta = &RecipeSharedMetadata{}
	case NotificationNewRecipe:
		meta = &NewRecipeMetadata{}
	case NotificationMessage:
		meta = &MessageMetadata{}
	case NotificationFavorite:
		meta = &FavoriteMetadata{}
	default:
		return nil, fmt.Errorf("unknown notification type %q: %w", t, apperr.ErrValidation)
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, meta); err != nil {
			return nil, fmt.Errorf("decode %s metadata: %w", t, apperr.ErrValidation)
		}
	}
	return deref(meta), nil
}

// deref turns the pointer used for decoding back into a value variant.
func deref(meta Metadata) Metadata {
	switch m := meta.(type) {
	case *LikeMetadata:
		return *m
	case *CommentMetadata:
		return *m
	case *FollowMetadata:
		return *m
	case *RecipeApprovedMetadata:
		return *m
	case *RecipeRejectedMetadata:
		return *m
	case *SystemMetadata:
		return *m
	case *RecipeSharedMetadata:
		return *m
	case *NewRecipeMetadata:
		return *m
	case *MessageMetadata:
		return *m
	case *FavoriteMetadata:
		return *m
	}
	return meta
}
