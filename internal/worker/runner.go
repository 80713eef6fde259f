// Package worker consumes the task queue with a fixed pool of goroutines and
// applies per-type retry policies to failed tasks.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
	"github.com/user/bookscan-service/internal/usecase"
	"github.com/user/bookscan-service/pkg/metrics"
)

// Handler runs one task. A non-nil error schedules a retry unless it wraps
// usecase.ErrInvalidPayload.
type Handler func(ctx context.Context, task *entity.Task) error

// Retrier re-enqueues a failed task.
type Retrier interface {
	Retry(ctx context.Context, task *entity.Task, delay time.Duration) error
}

// Job outcomes reported to metrics.
const (
	outcomeSuccess = "success"
	outcomeRetry   = "retry"
	outcomeDead    = "dead"
	outcomeUnknown = "unknown_type"
)

type registration struct {
	handler Handler
	policy  RetryPolicy
}

// Runner is the worker pool.
type Runner struct {
	queue       repository.TaskQueueRepository
	retrier     Retrier
	workers     int
	poll        time.Duration
	taskTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger

	handlers map[string]registration
	wg       sync.WaitGroup
}

func NewRunner(queue repository.TaskQueueRepository, retrier Retrier, workers int, m *metrics.Metrics, logger *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		queue:       queue,
		retrier:     retrier,
		workers:     workers,
		poll:        2 * time.Second,
		taskTimeout: 10 * time.Minute,
		metrics:     m,
		logger:      logger,
		handlers:    make(map[string]registration),
	}
}

// Handle registers the handler and retry policy for a task type.
func (r *Runner) Handle(taskType string, h Handler, policy RetryPolicy) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	r.handlers[taskType] = registration{handler: h, policy: policy}
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight task has finished.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info("worker pool started", zap.Int("workers", r.workers))
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.wg.Wait()
	r.logger.Info("worker pool stopped")
}

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	log := r.logger.With(zap.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := r.queue.Dequeue(ctx, r.poll)
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrQueueEmpty):
			r.reportDepth(ctx)
			continue
		case ctx.Err() != nil:
			return
		default:
			log.Error("dequeue failed", zap.Error(err))
			if !sleep(ctx, r.poll) {
				return
			}
			continue
		}
		// Tasks already taken off the queue finish even during shutdown.
		r.Process(context.WithoutCancel(ctx), task)
	}
}

// Process runs one task and applies its retry policy on failure.
func (r *Runner) Process(ctx context.Context, task *entity.Task) {
	log := r.logger.With(
		zap.String("task_id", task.ID),
		zap.String("type", task.Type),
		zap.Int("attempt", task.Attempt),
	)
	reg, ok := r.handlers[task.Type]
	if !ok {
		log.Error("no handler for task type, dropping")
		r.metrics.IncJob(task.Type, outcomeUnknown)
		return
	}

	start := time.Now()
	err := r.run(ctx, reg.handler, task)
	if err == nil {
		log.Info("task completed", zap.Duration("duration", time.Since(start)))
		r.metrics.IncJob(task.Type, outcomeSuccess)
		return
	}

	if errors.Is(err, usecase.ErrInvalidPayload) || task.Attempt >= reg.policy.MaxAttempts {
		log.Error("task failed permanently", zap.Error(err))
		r.metrics.IncJob(task.Type, outcomeDead)
		return
	}

	delay := reg.policy.Backoff(task.Attempt)
	if err := r.retrier.Retry(ctx, task, delay); err != nil {
		log.Error("task retry could not be scheduled", zap.Error(err))
		r.metrics.IncJob(task.Type, outcomeDead)
		return
	}
	log.Warn("task failed, retry scheduled", zap.Duration("backoff", delay), zap.Error(err))
	r.metrics.IncJob(task.Type, outcomeRetry)
}

func (r *Runner) run(ctx context.Context, h Handler, task *entity.Task) (err error) {
	ctx, cancel := context.WithTimeout(ctx, r.taskTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return h(ctx, task)
}

func (r *Runner) reportDepth(ctx context.Context) {
	n, err := r.queue.Size(ctx)
	if err != nil {
		return
	}
	r.metrics.SetQueueDepth(n)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
