package worker

import (
	"math/rand"
	"sync"
	"time"

	"github.com/user/bookscan-service/internal/entity"
)

// RetryPolicy bounds how often a failing task is re-run and how long to wait
// between runs. Attempts are counted from 1.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// FixedBackoff waits d before every retry.
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// ExponentialBackoff waits base·2^(attempt-1).
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base << (attempt - 1)
	}
}

// RandomBackoff waits a uniformly random duration in [lo, hi].
func RandomBackoff(lo, hi time.Duration, rnd *rand.Rand) func(int) time.Duration {
	var mu sync.Mutex
	return func(int) time.Duration {
		if hi <= lo {
			return lo
		}
		mu.Lock()
		defer mu.Unlock()
		return lo + time.Duration(rnd.Int63n(int64(hi-lo)+1))
	}
}

// DefaultPolicies returns the retry schedule of every task type.
func DefaultPolicies(rnd *rand.Rand) map[string]RetryPolicy {
	return map[string]RetryPolicy{
		entity.TaskRefreshCredential: {MaxAttempts: 3, Backoff: RandomBackoff(5*time.Minute, 10*time.Minute, rnd)},
		entity.TaskParseQuery:        {MaxAttempts: 3, Backoff: ExponentialBackoff(30 * time.Second)},
		entity.TaskSweepDiscounts:    {MaxAttempts: 2, Backoff: FixedBackoff(15 * time.Minute)},
	}
}
