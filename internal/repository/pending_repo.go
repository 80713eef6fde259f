package repository

import (
	"context"
	"time"

	"github.com/user/bookscan-service/internal/entity"
)

// PendingRepository stores pending-scrape entries keyed by the query hash.
type PendingRepository interface {
	Put(ctx context.Context, entry *entity.PendingScrapeEntry, ttl time.Duration) error
	// Take reads and deletes the entry atomically; ErrNotFound when absent.
	Take(ctx context.Context, queryKey string) (*entity.PendingScrapeEntry, error)
	// Peek reads without deleting; ErrNotFound when absent.
	Peek(ctx context.Context, queryKey string) (*entity.PendingScrapeEntry, error)
}
