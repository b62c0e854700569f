package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"recipe-realtime/internal/apperr"
	"recipe-realtime/internal/events"
	"recipe-realtime/internal/logging"
	"recipe-realtime/internal/models"
	"recipe-realtime/internal/observability"
	"recipe-realtime/internal/repositories"
)

const (
	// DefaultDedupWindow is the trailing window inside which an identical
	// notification is treated as a duplicate.
	DefaultDedupWindow = 5 * time.Minute
	// DefaultFanoutCap bounds how many followers one new recipe notifies.
	DefaultFanoutCap = 100

	lockStripes = 64
)

// NotificationOptions tunes a NotificationService.
type NotificationOptions struct {
	DedupWindow time.Duration
	FanoutCap   int
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// NotificationService is the single entry point for creating notifications.
type NotificationService struct {
	repo      repositories.NotificationRepository
	follows   repositories.FollowRepository
	bus       *events.Bus
	window    time.Duration
	fanoutCap int
	now       func() time.Time
	locks     [lockStripes]sync.Mutex
}

// NewNotificationService builds a NotificationService.
func NewNotificationService(repo repositories.NotificationRepository, follows repositories.FollowRepository, bus *events.Bus, opts NotificationOptions) *NotificationService {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = DefaultDedupWindow
	}
	if opts.FanoutCap <= 0 {
		opts.FanoutCap = DefaultFanoutCap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &NotificationService{
		repo:      repo,
		follows:   follows,
		bus:       bus,
		window:    opts.DedupWindow,
		fanoutCap: opts.FanoutCap,
		now:       opts.Now,
	}
}

func (s *NotificationService) lockFor(userID string) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(userID)%lockStripes]
}

// Create stores a notification unless an identical one (same recipient, type
// and content) exists inside the dedup window, in which case the existing row
// is returned and nothing is pushed.
func (s *NotificationService) Create(ctx context.Context, userID string, typ models.NotificationType, content string, meta models.Metadata) (models.Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.Notification{}, fmt.Errorf("recipient is required: %w", apperr.ErrValidation)
	}
	if !typ.Valid() {
		return models.Notification{}, fmt.Errorf("unknown notification type %q: %w", typ, apperr.ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return models.Notification{}, fmt.Errorf("notification content is empty: %w", apperr.ErrValidation)
	}
	if meta == nil {
		zero, err := models.DecodeMetadata(typ, nil)
		if err != nil {
			return models.Notification{}, err
		}
		meta = zero
	}
	if meta.Type() != typ {
		return models.Notification{}, fmt.Errorf("metadata for %s does not match type %s: %w", meta.Type(), typ, apperr.ErrValidation)
	}

	n, inserted, err := s.createLocked(ctx, userID, typ, content, meta)
	if err != nil {
		observability.IncNotification(string(typ), "failed")
		return models.Notification{}, err
	}
	if !inserted {
		observability.IncNotification(string(typ), "duplicate")
		logging.Ctx(ctx).Debug().Str("notification_id", n.ID).Str("user_id", userID).Str("type", string(typ)).Msg("duplicate notification suppressed")
		return n, nil
	}

	observability.IncNotification(string(typ), "created")
	s.bus.Publish(ctx, events.TopicNotificationCreated, events.NotificationCreated{Notification: n})
	return n, nil
}

func (s *NotificationService) createLocked(ctx context.Context, userID string, typ models.NotificationType, content string, meta models.Metadata) (models.Notification, bool, error) {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	now := s.now().UTC()
	existing, err := s.repo.FindRecentDuplicate(ctx, userID, typ, content, now.Add(-s.window))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repositories.ErrNotificationNotFound) {
		return models.Notification{}, false, fmt.Errorf("dedup lookup: %w", err)
	}

	n := models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Content:   content,
		Metadata:  meta,
		CreatedAt: now,
	}
	stored, inserted, err := s.repo.Insert(ctx, n, s.bucket(now))
	if err != nil {
		return models.Notification{}, false, fmt.Errorf("insert notification: %w", err)
	}
	return stored, inserted, nil
}

// bucket numbers the fixed window containing t. Two rows in the same bucket
// are always inside one dedup window of each other.
func (s *NotificationService) bucket(t time.Time) int64 {
	return t.UnixNano() / int64(s.window)
}

// GetNotification returns one of the user's notifications.
func (s *NotificationService) GetNotification(ctx context.Context, id, userID string) (models.Notification, error) {
	n, err := s.repo.GetNotification(ctx, id)
	if err != nil {
		return models.Notification{}, err
	}
	if n.UserID != userID {
		return models.Notification{}, fmt.Errorf("notification belongs to another user: %w", apperr.ErrForbidden)
	}
	return n, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if _, err := s.GetNotification(ctx, id, userID); err != nil {
		return err
	}
	return s.repo.MarkRead(ctx, id, userID)
}

// MarkAllRead flags every unread notification of the user and returns the count.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

// GetCounts returns the unread badge counts.
func (s *NotificationService) GetCounts(ctx context.Context, userID string) (models.NotificationCounts, error) {
	return s.repo.CountUnread(ctx, userID)
}

// List returns a page of the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	limit, offset = clampPage(limit, offset)
	list, err := s.repo.List(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Notification{}
	}
	return list, nil
}

// FanoutResult summarizes one follower fan-out.
type FanoutResult struct {
	Notified  int  `json:"notified"`
	Failed    int  `json:"failed"`
	Truncated bool `json:"truncated"`
}

// NotifyFollowersOfNewRecipe sends a new_recipe notification to the author's
// followers, up to the configured cap. A failure for one follower does not
// stop the rest.
func (s *NotificationService) NotifyFollowersOfNewRecipe(ctx context.Context, authorID, content string, meta models.NewRecipeMetadata) (FanoutResult, error) {
	ids, err := s.follows.ListFollowerIDs(ctx, authorID, s.fanoutCap+1, 0)
	if err != nil {
		return FanoutResult{}, fmt.Errorf("list followers: %w", err)
	}

	var result FanoutResult
	if len(ids) > s.fanoutCap {
		ids = ids[:s.fanoutCap]
		result.Truncated = true
		observability.IncFanoutTruncated()
		logging.Ctx(ctx).Warn().
			Str("author_id", authorID).
			Str("recipe_id", meta.RecipeID).
			Int("cap", s.fanoutCap).
			Msg("follower fan-out truncated at cap")
	}

	for _, followerID := range ids {
		if followerID == authorID {
			continue
		}
		if _, err := s.Create(ctx, followerID, models.NotificationNewRecipe, content, meta); err != nil {
			result.Failed++
			logging.Ctx(ctx).Error().Err(err).Str("follower_id", followerID).Msg("new recipe notification failed")
			continue
		}
		result.Notified++
	}
	return result, nil
}
