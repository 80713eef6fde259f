package repository

import (
	"context"
	"time"
)

// PresenceRepository tracks user heartbeats and reports how many users are online.
type PresenceRepository interface {
	Touch(ctx context.Context, userID string, at time.Time) error
	// CountSince returns the number of distinct users seen at or after since.
	CountSince(ctx context.Context, since time.Time) (int64, error)
}
