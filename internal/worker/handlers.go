package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/usecase"
)

// ParseHandler decodes a parse_query payload and runs the orchestrator.
func ParseHandler(o *usecase.ParseOrchestrator) Handler {
	return func(ctx context.Context, task *entity.Task) error {
		var p entity.ParseQueryPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("%w: %v", usecase.ErrInvalidPayload, err)
		}
		_, err := o.Run(ctx, p)
		return err
	}
}

// RefreshHandler runs the challenge flow.
func RefreshHandler(r *usecase.TokenRefresher) Handler {
	return func(ctx context.Context, _ *entity.Task) error {
		_, err := r.Refresh(ctx)
		return err
	}
}

// SweepHandler runs the discount sweep.
func SweepHandler(s *usecase.DiscountSweep) Handler {
	return func(ctx context.Context, _ *entity.Task) error {
		_, err := s.Run(ctx)
		return err
	}
}
