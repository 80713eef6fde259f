package repository

import (
	"context"

	"github.com/user/bookscan-service/internal/entity"
)

// Notifier is the outbound Notification Sink for credential-refresh status.
type Notifier interface {
	NotifyRefresh(ctx context.Context, outcome entity.RefreshOutcome) error
}
