package repository

import (
	"context"
	"time"

	"github.com/user/bookscan-service/internal/entity"
)

// TaskQueueRepository is a FIFO of background tasks with delayed delivery.
type TaskQueueRepository interface {
	// Enqueue makes the task available after delay (immediately when delay <= 0).
	Enqueue(ctx context.Context, task *entity.Task, delay time.Duration) error
	// Dequeue blocks up to wait for a ready task; ErrQueueEmpty on timeout.
	Dequeue(ctx context.Context, wait time.Duration) (*entity.Task, error)
	// Size returns the number of ready tasks.
	Size(ctx context.Context) (int64, error)
}
