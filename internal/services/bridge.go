package services

import (
	"context"
	"fmt"
	"strings"

	"recipe-realtime/internal/apperr"
	"recipe-realtime/internal/logging"
	"recipe-realtime/internal/models"
	"recipe-realtime/internal/repositories"
)

// Routing keys of the domain events the bridge understands.
const (
	EventRecipeLiked        = "recipe.liked"
	EventRecipeCommented    = "recipe.commented"
	EventUserFollowed       = "user.followed"
	EventRecipeFavorited    = "recipe.favorited"
	EventRecipePublished    = "recipe.published"
	EventRecipeApproved     = "recipe.approved"
	EventRecipeRejected     = "recipe.rejected"
	EventRecipeShared       = "recipe.shared"
	EventSystemAnnouncement = "system.announcement"
)

// DomainEventKeys lists every routing key Dispatch accepts.
var DomainEventKeys = []string{
	EventRecipeLiked,
	EventRecipeCommented,
	EventUserFollowed,
	EventRecipeFavorited,
	EventRecipePublished,
	EventRecipeApproved,
	EventRecipeRejected,
	EventRecipeShared,
	EventSystemAnnouncement,
}

// DomainEvent is the body of a domain event published by the CRUD services.
// Which fields are required depends on the routing key.
type DomainEvent struct {
	ActorID     string `json:"actorId,omitempty"`
	ActorName   string `json:"actorName,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
	RecipeID    string `json:"recipeId,omitempty"`
	RecipeTitle string `json:"recipeTitle,omitempty"`
	CommentID   string `json:"commentId,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Message     string `json:"message,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Notifier is the notification store as seen by the bridge.
type Notifier interface {
	Create(ctx context.Context, userID string, typ models.NotificationType, content string, meta models.Metadata) (models.Notification, error)
	NotifyFollowersOfNewRecipe(ctx context.Context, authorID, content string, meta models.NewRecipeMetadata) (FanoutResult, error)
}

// Bridge turns domain events into notifications with human-readable content.
// Notification failures are logged and never reach the caller.
type Bridge struct {
	notifier Notifier
	users    repositories.UserRepository
}

// NewBridge builds a Bridge. users resolves actor names and may be nil.
func NewBridge(notifier Notifier, users repositories.UserRepository) *Bridge {
	return &Bridge{notifier: notifier, users: users}
}

func (b *Bridge) actorName(ctx context.Context, actorID, given string) string {
	if given = strings.TrimSpace(given); given != "" {
		return given
	}
	if b.users != nil && actorID != "" {
		if u, err := b.users.GetUser(ctx, actorID); err == nil && u.Username != "" {
			return u.Username
		}
	}
	return models.PlaceholderProfile(actorID).Username
}

func recipePhrase(title string) string {
	if title = strings.TrimSpace(title); title == "" {
		return "your recipe"
	}
	return fmt.Sprintf("your recipe %q", title)
}

func (b *Bridge) create(ctx context.Context, actorID, recipientID string, typ models.NotificationType, content string, meta models.Metadata) {
	if recipientID == "" {
		logging.Ctx(ctx).Warn().Str("type", string(typ)).Msg("notification skipped: no recipient")
		return
	}
	if actorID != "" && actorID == recipientID {
		return
	}
	if _, err := b.notifier.Create(ctx, recipientID, typ, content, meta); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("type", string(typ)).Str("user_id", recipientID).Msg("notification create failed")
	}
}

// RecipeLiked notifies the recipe owner of a like.
func (b *Bridge) RecipeLiked(ctx context.Context, actorID, actorName, ownerID, recipeID, title string) {
	content := fmt.Sprintf("%s liked %s", b.actorName(ctx, actorID, actorName), recipePhrase(title))
	b.create(ctx, actorID, ownerID, models.NotificationLike, content, models.LikeMetadata{RecipeID: recipeID, ActorID: actorID})
}

// RecipeCommented notifies the recipe owner of a comment.
func (b *Bridge) RecipeCommented(ctx context.Context, actorID, actorName, ownerID, recipeID, commentID, title string) {
	content := fmt.Sprintf("%s commented on %s", b.actorName(ctx, actorID, actorName), recipePhrase(title))
	b.create(ctx, actorID, ownerID, models.NotificationComment, content, models.CommentMetadata{RecipeID: recipeID, CommentID: commentID, ActorID: actorID})
}

// UserFollowed notifies a user of a new follower.
func (b *Bridge) UserFollowed(ctx context.Context, followerID, followerName, followeeID string) {
	content := fmt.Sprintf("%s started following you", b.actorName(ctx, followerID, followerName))
	b.create(ctx, followerID, followeeID, models.NotificationFollow, content, models.FollowMetadata{FollowerID: followerID})
}

// RecipeFavorited notifies the recipe owner that someone saved the recipe.
func (b *Bridge) RecipeFavorited(ctx context.Context, actorID, actorName, ownerID, recipeID, title string) {
	content := fmt.Sprintf("%s added %s to favorites", b.actorName(ctx, actorID, actorName), recipePhrase(title))
	b.create(ctx, actorID, ownerID, models.NotificationFavorite, content, models.FavoriteMetadata{RecipeID: recipeID, ActorID: actorID})
}

// RecipePublished fans a new recipe out to the author's followers.
func (b *Bridge) RecipePublished(ctx context.Context, authorID, authorName, recipeID, title string) {
	name := b.actorName(ctx, authorID, authorName)
	content := fmt.Sprintf("%s published a new recipe", name)
	if t := strings.TrimSpace(title); t != "" {
		content = fmt.Sprintf("%s published a new recipe %q", name, t)
	}
	res, err := b.notifier.NotifyFollowersOfNewRecipe(ctx, authorID, content, models.NewRecipeMetadata{RecipeID: recipeID, AuthorID: authorID})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("author_id", authorID).Msg("new recipe fan-out failed")
		return
	}
	logging.Ctx(ctx).Debug().
		Str("author_id", authorID).
		Int("notified", res.Notified).
		Int("failed", res.Failed).
		Bool("truncated", res.Truncated).
		Msg("new recipe fan-out done")
}

// RecipeApproved tells the owner their recipe passed moderation.
func (b *Bridge) RecipeApproved(ctx context.Context, ownerID, recipeID, title string) {
	content := fmt.Sprintf("%s was approved", capitalize(recipePhrase(title)))
	b.create(ctx, "", ownerID, models.NotificationRecipeApproved, content, models.RecipeApprovedMetadata{RecipeID: recipeID})
}

// RecipeRejected tells the owner their recipe failed moderation.
func (b *Bridge) RecipeRejected(ctx context.Context, ownerID, recipeID, title, reason string) {
	content := fmt.Sprintf("%s was rejected", capitalize(recipePhrase(title)))
	if r := strings.TrimSpace(reason); r != "" {
		content += ": " + r
	}
	b.create(ctx, "", ownerID, models.NotificationRecipeRejected, content, models.RecipeRejectedMetadata{RecipeID: recipeID, Reason: reason})
}

// RecipeShared notifies the user a recipe was shared with.
func (b *Bridge) RecipeShared(ctx context.Context, sharerID, sharerName, recipientID, recipeID, title string) {
	content := fmt.Sprintf("%s shared a recipe with you", b.actorName(ctx, sharerID, sharerName))
	if t := strings.TrimSpace(title); t != "" {
		content += fmt.Sprintf(": %q", t)
	}
	b.create(ctx, sharerID, recipientID, models.NotificationRecipeShared, content, models.RecipeSharedMetadata{RecipeID: recipeID, SharedByID: sharerID})
}

// MessageSent notifies the counterpart of a new chat message.
func (b *Bridge) MessageSent(ctx context.Context, msg models.Message, recipientID string) {
	content := fmt.Sprintf("%s sent you a message", b.actorName(ctx, msg.SenderID, ""))
	b.create(ctx, msg.SenderID, recipientID, models.NotificationMessage, content, models.MessageMetadata{ChatID: msg.ChatID, MessageID: msg.ID, SenderID: msg.SenderID})
}

// System sends an operator announcement to one user.
func (b *Bridge) System(ctx context.Context, recipientID, content, url string) {
	b.create(ctx, "", recipientID, models.NotificationSystem, content, models.SystemMetadata{URL: url})
}

// Dispatch routes a decoded domain event to its handler. It fails only when
// the event itself is unusable.
func (b *Bridge) Dispatch(ctx context.Context, routingKey string, ev DomainEvent) error {
	need := func(fields ...string) error {
		for _, f := range fields {
			if strings.TrimSpace(f) == "" {
				return fmt.Errorf("%s: missing required field: %w", routingKey, apperr.ErrValidation)
			}
		}
		return nil
	}

	switch routingKey {
	case EventRecipeLiked:
		if err := need(ev.ActorID, ev.RecipientID, ev.RecipeID); err != nil {
			return err
		}
		b.RecipeLiked(ctx, ev.ActorID, ev.ActorName, ev.RecipientID, ev.RecipeID, ev.RecipeTitle)
	case EventRecipeCommented:
		if err := need(ev.ActorID, ev.RecipientID, ev.RecipeID); err != nil {
			return err
		}
		b.RecipeCommented(ctx, ev.ActorID, ev.ActorName, ev.RecipientID, ev.RecipeID, ev.CommentID, ev.RecipeTitle)
	case EventUserFollowed:
		if err := need(ev.ActorID, ev.RecipientID); err != nil {
			return err
		}
		b.UserFollowed(ctx, ev.ActorID, ev.ActorName, ev.RecipientID)
	case EventRecipeFavorited:
		if err := need(ev.ActorID, ev.RecipientID, ev.RecipeID); err != nil {
			return err
		}
		b.RecipeFavorited(ctx, ev.ActorID, ev.ActorName, ev.RecipientID, ev.RecipeID, ev.RecipeTitle)
	case EventRecipePublished:
		if err := need(ev.ActorID, ev.RecipeID); err != nil {
			return err
		}
		b.RecipePublished(ctx, ev.ActorID, ev.ActorName, ev.RecipeID, ev.RecipeTitle)
	case EventRecipeApproved:
		if err := need(ev.RecipientID, ev.RecipeID); err != nil {
			return err
		}
		b.RecipeApproved(ctx, ev.RecipientID, ev.RecipeID, ev.RecipeTitle)
	case EventRecipeRejected:
		if err := need(ev.RecipientID, ev.RecipeID); err != nil {
			return err
		}
		b.RecipeRejected(ctx, ev.RecipientID, ev.RecipeID, ev.RecipeTitle, ev.Reason)
	case EventRecipeShared:
		if err := need(ev.ActorID, ev.RecipientID, ev.RecipeID); err != nil {
			return err
		}
		b.RecipeShared(ctx, ev.ActorID, ev.ActorName, ev.RecipientID, ev.RecipeID, ev.RecipeTitle)
	case EventSystemAnnouncement:
		if err := need(ev.RecipientID, ev.Message); err != nil {
			return err
		}
		b.System(ctx, ev.RecipientID, ev.Message, ev.URL)
	default:
		return fmt.Errorf("unknown domain event %q: %w", routingKey, apperr.ErrValidation)
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
