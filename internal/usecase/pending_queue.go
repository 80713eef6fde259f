package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
	"github.com/user/bookscan-service/internal/similarity"
	"github.com/user/bookscan-service/pkg/utils"
)

// QueryKey is the pending-entry key for a search text: a short hash of its
// normalized form, so that case and punctuation variants share one entry.
func QueryKey(query string) string {
	return utils.ShortHash(similarity.Normalize(query))
}

// PendingQueue remembers queries whose scrape was cut short by the budget.
type PendingQueue struct {
	repo repository.PendingRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewPendingQueue(repo repository.PendingRepository, ttl time.Duration) *PendingQueue {
	return &PendingQueue{repo: repo, ttl: ttl, now: time.Now}
}

// Add records a truncated scrape, replacing any previous entry for the query.
func (q *PendingQueue) Add(ctx context.Context, query, author string, alreadyFetched int) (*entity.PendingScrapeEntry, error) {
	entry := &entity.PendingScrapeEntry{
		QueryKey:       QueryKey(query),
		RawQuery:       query,
		Author:         author,
		AlreadyFetched: alreadyFetched,
		CreatedAt:      q.now().UTC(),
	}
	if err := q.repo.Put(ctx, entry, q.ttl); err != nil {
		return nil, err
	}
	return entry, nil
}

// TakeIfPresent returns and removes the entry for query, or nil when there is none.
func (q *PendingQueue) TakeIfPresent(ctx context.Context, query string) (*entity.PendingScrapeEntry, error) {
	entry, err := q.repo.Take(ctx, QueryKey(query))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}

// Peek returns the entry for query without consuming it, or nil.
func (q *PendingQueue) Peek(ctx context.Context, query string) (*entity.PendingScrapeEntry, error) {
	entry, err := q.repo.Peek(ctx, QueryKey(query))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}
