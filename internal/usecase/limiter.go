package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/repository"
)

// LoadSignal reports how many users are currently online.
type LoadSignal interface {
	OnlineUsers(ctx context.Context) (int64, error)
}

// PresenceSignal counts heartbeats seen within a sliding window.
type PresenceSignal struct {
	repo   repository.PresenceRepository
	window time.Duration
	now    func() time.Time
}

func NewPresenceSignal(repo repository.PresenceRepository, window time.Duration) *PresenceSignal {
	return &PresenceSignal{repo: repo, window: window, now: time.Now}
}

func (s *PresenceSignal) OnlineUsers(ctx context.Context) (int64, error) {
	return s.repo.CountSince(ctx, s.now().Add(-s.window))
}

// StaticSignal always reports the same number of users.
type StaticSignal int64

func (s StaticSignal) OnlineUsers(context.Context) (int64, error) { return int64(s), nil }

// LoadAwareLimiter shrinks the per-run item budget while many users are online.
type LoadAwareLimiter struct {
	signal    LoadSignal
	threshold int64
	normal    int
	loaded    int
	logger    *zap.Logger
}

func NewLoadAwareLimiter(signal LoadSignal, threshold int64, normal, loaded int, logger *zap.Logger) *LoadAwareLimiter {
	return &LoadAwareLimiter{
		signal:    signal,
		threshold: threshold,
		normal:    normal,
		loaded:    loaded,
		logger:    logger,
	}
}

// ShouldLimit returns whether the system is loaded and the item budget to use.
// A failing signal is treated as no load.
func (l *LoadAwareLimiter) ShouldLimit(ctx context.Context) (bool, int) {
	online, err := l.signal.OnlineUsers(ctx)
	if err != nil {
		l.logger.Warn("load signal unavailable", zap.Error(err))
		return false, l.normal
	}
	if online > l.threshold {
		l.logger.Info("load limit active", zap.Int64("online", online), zap.Int("budget", l.loaded))
		return true, l.loaded
	}
	return false, l.normal
}

// NormalBudget is the unlimited per-run item budget.
func (l *LoadAwareLimiter) NormalBudget() int { return l.normal }
