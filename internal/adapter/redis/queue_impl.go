package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
)

const (
	readyQueueKey   = "bookscan:tasks:ready"
	delayedQueueKey = "bookscan:tasks:delayed"
)

// TaskQueueRepoImpl implements repository.TaskQueueRepository with a Redis
// list for ready tasks and a sorted set, scored by due time, for delayed ones.
type TaskQueueRepoImpl struct {
	client *redis.Client
	now    func() time.Time
}

// NewTaskQueueRepo creates a new instance of TaskQueueRepoImpl.
func NewTaskQueueRepo(client *redis.Client) *TaskQueueRepoImpl {
	return &TaskQueueRepoImpl{client: client, now: time.Now}
}

// Enqueue pushes the task to the left of the ready list, or parks it in the
// delayed set until it is due.
func (r *TaskQueueRepoImpl) Enqueue(ctx context.Context, task *entity.Task, delay time.Duration) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	if delay <= 0 {
		return r.client.LPush(ctx, readyQueueKey, payload).Err()
	}
	due := r.now().Add(delay).UnixMilli()
	return r.client.ZAdd(ctx, delayedQueueKey, redis.Z{Score: float64(due), Member: payload}).Err()
}

// Dequeue promotes due delayed tasks and pops one ready task from the right.
// With wait > 0 it blocks (BRPOP, whole seconds); otherwise it does not block.
func (r *TaskQueueRepoImpl) Dequeue(ctx context.Context, wait time.Duration) (*entity.Task, error) {
	if err := r.promoteDue(ctx); err != nil {
		return nil, fmt.Errorf("promote delayed tasks: %w", err)
	}

	var raw string
	if wait > 0 {
		res, err := r.client.BRPop(ctx, wait, readyQueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, repository.ErrQueueEmpty
			}
			return nil, err
		}
		// BRPOP answers [key, value]
		raw = res[1]
	} else {
		val, err := r.client.RPop(ctx, readyQueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, repository.ErrQueueEmpty
			}
			return nil, err
		}
		raw = val
	}

	var task entity.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &task, nil
}

// promoteDue moves every delayed task whose due time has passed onto the
// ready list. ZREM decides ownership, so concurrent workers never promote the
// same member twice.
func (r *TaskQueueRepoImpl) promoteDue(ctx context.Context) error {
	due, err := r.client.ZRangeByScore(ctx, delayedQueueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(r.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range due {
		removed, err := r.client.ZRem(ctx, delayedQueueKey, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := r.client.LPush(ctx, readyQueueKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the current number of ready tasks.
func (r *TaskQueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, readyQueueKey).Result()
}

// Delayed returns the number of tasks waiting for their due time.
func (r *TaskQueueRepoImpl) Delayed(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, delayedQueueKey).Result()
}
