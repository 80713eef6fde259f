package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceKey = "bookscan:presence"

// PresenceRepoImpl keeps user heartbeats in a sorted set scored by the last
// time each user was seen.
type PresenceRepoImpl struct {
	client    *redis.Client
	retention time.Duration
}

// NewPresenceRepo creates a PresenceRepoImpl. Heartbeats older than retention
// are trimmed on every Touch.
func NewPresenceRepo(client *redis.Client, retention time.Duration) *PresenceRepoImpl {
	return &PresenceRepoImpl{client: client, retention: retention}
}

// Touch records that userID was active at the given time.
func (r *PresenceRepoImpl) Touch(ctx context.Context, userID string, at time.Time) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, presenceKey, redis.Z{Score: float64(at.UnixMilli()), Member: userID})
		if r.retention > 0 {
			cutoff := at.Add(-r.retention).UnixMilli()
			pipe.ZRemRangeByScore(ctx, presenceKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
		}
		return nil
	})
	return err
}

// CountSince returns how many distinct users were seen at or after since.
func (r *PresenceRepoImpl) CountSince(ctx context.Context, since time.Time) (int64, error) {
	return r.client.ZCount(ctx, presenceKey, strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
}
