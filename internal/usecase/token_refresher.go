package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
	"github.com/user/bookscan-service/pkg/logger"
	"github.com/user/bookscan-service/pkg/metrics"
)

// CredentialProber sends one validation request with an explicit credential.
type CredentialProber interface {
	Probe(ctx context.Context, cred *entity.AuthCredential, withCookies bool) (int, error)
}

// CredentialSaver persists a validated credential.
type CredentialSaver interface {
	Save(ctx context.Context, cred *entity.AuthCredential, ttl time.Duration) error
}

// TokenRefresher runs the challenge flow: solve, extract, validate, persist.
type TokenRefresher struct {
	solver   repository.ChallengeSolver
	prober   CredentialProber
	store    CredentialSaver
	notifier repository.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger

	siteURL string
	ttl     time.Duration
	now     func() time.Time
}

func NewTokenRefresher(
	solver repository.ChallengeSolver,
	prober CredentialProber,
	store CredentialSaver,
	notifier repository.Notifier,
	m *metrics.Metrics,
	siteURL string,
	ttl time.Duration,
	logger *zap.Logger,
) *TokenRefresher {
	return &TokenRefresher{
		solver:   solver,
		prober:   prober,
		store:    store,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		siteURL:  siteURL,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Refresh obtains and validates a new credential. Every outcome is reported
// through the notifier; the returned error lets the task queue retry.
func (r *TokenRefresher) Refresh(ctx context.Context) (*entity.AuthCredential, error) {
	cred, err := r.refresh(ctx)
	if err != nil {
		r.metrics.IncCredentialRefresh(refreshOutcome(err))
		r.logger.Error("credential refresh failed", zap.String("backend", r.solver.Name()), zap.Error(err))
		r.notify(ctx, entity.RefreshOutcome{
			Status:  "error",
			Message: err.Error(),
			Backend: r.solver.Name(),
			At:      r.now().UTC(),
		})
		return nil, err
	}

	r.metrics.IncCredentialRefresh("success")
	preview := logger.TokenPreview(cred.Token)
	r.logger.Info("credential refreshed",
		zap.String("backend", r.solver.Name()),
		zap.String("token", preview),
		zap.Int("cookies", len(cred.Cookies)),
	)
	r.notify(ctx, entity.RefreshOutcome{
		Status:       "success",
		Message:      "token refreshed",
		TokenPreview: preview,
		Backend:      r.solver.Name(),
		At:           r.now().UTC(),
	})
	return cred, nil
}

func (r *TokenRefresher) refresh(ctx context.Context) (*entity.AuthCredential, error) {
	solved, err := r.solver.Solve(ctx, r.siteURL)
	if err != nil {
		return nil, fmt.Errorf("solve challenge: %w", err)
	}

	token, strategy := ExtractToken(solved.Cookies, solved.HTML)
	if token == "" {
		return nil, fmt.Errorf("%w: no auth token among %d cookies", repository.ErrSolverRejected, len(solved.Cookies))
	}
	r.logger.Debug("auth token extracted", zap.String("strategy", strategy), zap.String("token", logger.TokenPreview(token)))

	cred := &entity.AuthCredential{
		Token:      token,
		Cookies:    solved.Cookies,
		AcquiredAt: r.now().UTC(),
	}

	status, err := r.prober.Probe(ctx, cred, false)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	if status == http.StatusForbidden && len(cred.Cookies) > 0 {
		r.logger.Warn("token validation forbidden, retrying with full cookie jar")
		status, err = r.prober.Probe(ctx, cred, true)
		if err != nil {
			return nil, fmt.Errorf("validate token with cookies: %w", err)
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: validation returned %d", ErrCredentialRejected, status)
	}

	if err := r.store.Save(ctx, cred, r.ttl); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	return cred, nil
}

func (r *TokenRefresher) notify(ctx context.Context, outcome entity.RefreshOutcome) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyRefresh(ctx, outcome); err != nil {
		r.logger.Warn("refresh notification failed", zap.Error(err))
	}
}

func refreshOutcome(err error) string {
	switch {
	case errors.Is(err, repository.ErrSolverTimeout):
		return "solver_timeout"
	case errors.Is(err, repository.ErrSolverRejected):
		return "solver_rejected"
	case errors.Is(err, ErrCredentialRejected):
		return "rejected"
	default:
		return "error"
	}
}

// LogNotifier writes refresh outcomes to the log when no message bus is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyRefresh(_ context.Context, outcome entity.RefreshOutcome) error {
	n.logger.Info("credential refresh status",
		zap.String("status", outcome.Status),
		zap.String("message", outcome.Message),
		zap.String("token", outcome.TokenPreview),
		zap.String("backend", outcome.Backend),
	)
	return nil
}
