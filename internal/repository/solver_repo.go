package repository

import (
	"context"
)

// SolveResult is what a challenge solver hands back: the cookie jar and, when
// available, the rendered landing page.
type SolveResult struct {
	Cookies map[string]string
	HTML    string
}

// ChallengeSolver defines the contract for the mechanism that passes the
// target's anti-bot challenge. Implementations return ErrSolverTimeout or
// ErrSolverRejected (possibly wrapped) on failure.
type ChallengeSolver interface {
	Solve(ctx context.Context, targetURL string) (*SolveResult, error)
	// Name identifies the backend in logs and notifications.
	Name() string
}
