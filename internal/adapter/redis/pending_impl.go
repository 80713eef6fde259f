package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
)

const pendingKeyPrefix = "pending_parse:"

// PendingRepoImpl stores pending-scrape entries as hashes with a TTL.
type PendingRepoImpl struct {
	client *redis.Client
}

// NewPendingRepo creates a new instance of PendingRepoImpl.
func NewPendingRepo(client *redis.Client) *PendingRepoImpl {
	return &PendingRepoImpl{client: client}
}

func (r *PendingRepoImpl) generateKey(queryKey string) string {
	return pendingKeyPrefix + queryKey
}

// Put writes the entry and its TTL atomically.
func (r *PendingRepoImpl) Put(ctx context.Context, entry *entity.PendingScrapeEntry, ttl time.Duration) error {
	key := r.generateKey(entry.QueryKey)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"raw_query", entry.RawQuery,
			"author", entry.Author,
			"already_fetched", entry.AlreadyFetched,
			"created_at", entry.CreatedAt.UTC().Format(time.RFC3339),
		)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

// Take reads and deletes the entry in one MULTI block.
func (r *PendingRepoImpl) Take(ctx context.Context, queryKey string) (*entity.PendingScrapeEntry, error) {
	key := r.generateKey(queryKey)
	var fields *redis.MapStringStringCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decodePending(queryKey, fields.Val())
}

// Peek reads the entry without consuming it.
func (r *PendingRepoImpl) Peek(ctx context.Context, queryKey string) (*entity.PendingScrapeEntry, error) {
	fields, err := r.client.HGetAll(ctx, r.generateKey(queryKey)).Result()
	if err != nil {
		return nil, err
	}
	return decodePending(queryKey, fields)
}

func decodePending(queryKey string, fields map[string]string) (*entity.PendingScrapeEntry, error) {
	if len(fields) == 0 {
		return nil, repository.ErrNotFound
	}
	fetched, err := strconv.Atoi(fields["already_fetched"])
	if err != nil {
		return nil, fmt.Errorf("pending entry %s: already_fetched: %w", queryKey, err)
	}
	entry := &entity.PendingScrapeEntry{
		QueryKey:       queryKey,
		RawQuery:       fields["raw_query"],
		Author:         fields["author"],
		AlreadyFetched: fetched,
	}
	if at, err := time.Parse(time.RFC3339, fields["created_at"]); err == nil {
		entry.CreatedAt = at
	}
	return entry, nil
}
