package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
	"github.com/user/bookscan-service/pkg/metrics"
)

// JobManager puts background tasks on the task queue.
type JobManager struct {
	queue   repository.TaskQueueRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

func NewJobManager(queue repository.TaskQueueRepository, m *metrics.Metrics, logger *zap.Logger) *JobManager {
	return &JobManager{
		queue:   queue,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Schedule enqueues a task of the given type. payload may be nil.
func (m *JobManager) Schedule(ctx context.Context, taskType string, payload any, delay time.Duration) (string, error) {
	task := &entity.Task{
		ID:         m.newID(),
		Type:       taskType,
		Attempt:    1,
		EnqueuedAt: m.now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("encode %s payload: %w", taskType, err)
		}
		task.Payload = raw
	}
	if err := m.queue.Enqueue(ctx, task, delay); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	m.logger.Info("task scheduled",
		zap.String("task_id", task.ID),
		zap.String("type", taskType),
		zap.Duration("delay", delay),
	)
	return task.ID, nil
}

// Retry re-enqueues a failed task with its attempt counter advanced.
func (m *JobManager) Retry(ctx context.Context, task *entity.Task, delay time.Duration) error {
	next := *task
	next.Attempt++
	next.EnqueuedAt = m.now().UTC()
	return m.queue.Enqueue(ctx, &next, delay)
}

// SubmitParse validates and enqueues a parse_query task.
func (m *JobManager) SubmitParse(ctx context.Context, p entity.ParseQueryPayload) (string, error) {
	p, err := normalizeParsePayload(p)
	if err != nil {
		return "", err
	}
	return m.Schedule(ctx, entity.TaskParseQuery, p, 0)
}

// RequestRefresh enqueues an immediate refresh_credential task.
func (m *JobManager) RequestRefresh(ctx context.Context) (string, error) {
	return m.Schedule(ctx, entity.TaskRefreshCredential, nil, 0)
}

// RequestSweep enqueues an immediate sweep_discounts task.
func (m *JobManager) RequestSweep(ctx context.Context) (string, error) {
	return m.Schedule(ctx, entity.TaskSweepDiscounts, nil, 0)
}

// QueueDepth reports the ready-queue length and mirrors it into the gauge.
func (m *JobManager) QueueDepth(ctx context.Context) (int64, error) {
	n, err := m.queue.Size(ctx)
	if err != nil {
		return 0, err
	}
	m.metrics.SetQueueDepth(n)
	return n, nil
}

func normalizeParsePayload(p entity.ParseQueryPayload) (entity.ParseQueryPayload, error) {
	p.Query = strings.TrimSpace(p.Query)
	if p.Query == "" {
		return p, fmt.Errorf("%w: query is empty", ErrInvalidPayload)
	}
	if p.Source == "" {
		p.Source = entity.SourceChitaiGorod
	}
	if p.Source != entity.SourceChitaiGorod {
		return p, fmt.Errorf("%w: unsupported source %q", ErrInvalidPayload, p.Source)
	}
	return p, nil
}
