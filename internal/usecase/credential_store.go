package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
	"github.com/user/bookscan-service/pkg/logger"
)

// TaskScheduler enqueues background tasks.
type TaskScheduler interface {
	Schedule(ctx context.Context, taskType string, payload any, delay time.Duration) (string, error)
}

// CredentialStore is the catalog credential as seen by the API client: the
// cached token and cookie jar, with a static token fallback.
type CredentialStore struct {
	repo        repository.CredentialRepository
	scheduler   TaskScheduler
	staticToken string
	countdown   time.Duration
	logger      *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewCredentialStore(repo repository.CredentialRepository, scheduler TaskScheduler, staticToken string, countdown time.Duration, logger *zap.Logger) *CredentialStore {
	return &CredentialStore{
		repo:        repo,
		scheduler:   scheduler,
		staticToken: staticToken,
		countdown:   countdown,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Get returns the cached credential. On a cache miss or a cache failure it
// falls back to the static token, and returns nil when there is none.
func (s *CredentialStore) Get(ctx context.Context) (*entity.AuthCredential, error) {
	cred, err := s.repo.Load(ctx)
	switch {
	case err == nil:
		if cred.Token == "" && s.staticToken != "" {
			cred.Token = s.staticToken
		}
		return cred, nil
	case errors.Is(err, repository.ErrNotFound):
	default:
		s.logger.Warn("credential cache unavailable, using fallback", zap.Error(err))
	}

	if s.staticToken == "" {
		return nil, nil
	}
	return &entity.AuthCredential{Token: s.staticToken}, nil
}

// Save overwrites the cached credential (last writer wins).
func (s *CredentialStore) Save(ctx context.Context, cred *entity.AuthCredential, ttl time.Duration) error {
	cred.TTLSeconds = int(ttl.Seconds())
	return s.repo.Save(ctx, cred, ttl)
}

// TriggerRefresh schedules a refresh_credential task after the countdown.
func (s *CredentialStore) TriggerRefresh(ctx context.Context) error {
	id, err := s.scheduler.Schedule(ctx, entity.TaskRefreshCredential, nil, s.countdown)
	if err != nil {
		return err
	}
	s.logger.Info("credential refresh triggered", zap.String("task_id", id), zap.Duration("countdown", s.countdown))
	return nil
}

// AwaitRefresh polls the store until it holds a token different from stale.
func (s *CredentialStore) AwaitRefresh(ctx context.Context, stale string, maxWait, poll time.Duration) (*entity.AuthCredential, error) {
	deadline := s.now().Add(maxWait)
	for {
		cred, err := s.Get(ctx)
		if err == nil && !cred.Empty() && cred.Token != stale {
			s.logger.Info("credential refreshed", zap.String("token", logger.TokenPreview(cred.Token)))
			return cred, nil
		}
		if !s.now().Before(deadline) {
			return nil, ErrRefreshTimeout
		}
		if err := s.sleep(ctx, poll); err != nil {
			return nil, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
