package repositories

import (
	"fmt"

	"github.com/google/uuid"

	"recipe-realtime/internal/apperr"
)

var (
	ErrChatNotFound         = fmt.Errorf("chat not found: %w", apperr.ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("message not found: %w", apperr.ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user not found: %w", apperr.ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification not found: %w", apperr.ErrNotFound)
)

// validID reports whether id can name a row. Ids are UUIDs, so anything else
// cannot exist.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}
