package ws

import (
	"strings"

	"github.com/google/uuid"
)

func newConnID() string {
	return uuid.NewString()
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
