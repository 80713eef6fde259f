package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/usecase"
)

// Periodic is one recurring task.
type Periodic struct {
	Type  string
	Every time.Duration
	// Immediate enqueues the task once when the scheduler starts.
	Immediate bool
}

// Scheduler enqueues recurring tasks.
type Scheduler struct {
	jobs    usecase.TaskScheduler
	entries []Periodic
	logger  *zap.Logger
}

func NewScheduler(jobs usecase.TaskScheduler, logger *zap.Logger, entries ...Periodic) *Scheduler {
	return &Scheduler{jobs: jobs, entries: entries, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range s.entries {
		if e.Every <= 0 {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, e)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e Periodic) {
	if e.Immediate {
		s.enqueue(ctx, e.Type)
	}
	ticker := time.NewTicker(e.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueue(ctx, e.Type)
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context, taskType string) {
	if _, err := s.jobs.Schedule(ctx, taskType, nil, 0); err != nil && ctx.Err() == nil {
		s.logger.Error("periodic task not scheduled", zap.String("type", taskType), zap.Error(err))
	}
}
