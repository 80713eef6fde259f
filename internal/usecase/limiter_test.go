package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type presenceStub struct {
	count int64
	err   error
	since time.Time
}

func (p *presenceStub) Touch(context.Context, string, time.Time) error { return nil }

func (p *presenceStub) CountSince(_ context.Context, since time.Time) (int64, error) {
	p.since = since
	return p.count, p.err
}

func TestLoadAwareLimiter(t *testing.T) {
	tests := []struct {
		name        string
		online      int64
		err         error
		wantLimited bool
		wantBudget  int
	}{
		{"idle", 0, nil, false, 25},
		{"at threshold", 50, nil, false, 25},
		{"above threshold", 51, nil, true, 10},
		{"signal down", 0, errors.New("redis down"), false, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &presenceStub{count: tt.online, err: tt.err}
			signal := NewPresenceSignal(repo, 5*time.Minute)
			signal.now = func() time.Time { return time.Unix(1000, 0) }

			l := NewLoadAwareLimiter(signal, 50, 25, 10, zap.NewNop())
			limited, budget := l.ShouldLimit(context.Background())
			assert.Equal(t, tt.wantLimited, limited)
			assert.Equal(t, tt.wantBudget, budget)
			assert.Equal(t, time.Unix(700, 0), repo.since)
		})
	}
}

func TestPendingQueue(t *testing.T) {
	ctx := context.Background()
	repo := newMemPending()
	q := NewPendingQueue(repo, 24*time.Hour)

	got, err := q.TakeIfPresent(ctx, "Дюна")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = q.Add(ctx, "Дюна  Герберт", "Фрэнк Герберт", 25)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, repo.ttls[QueryKey("дюна герберт")])

	peeked, err := q.Peek(ctx, "ДЮНА, Герберт")
	require.NoError(t, err)
	require.NotNil(t, peeked)
	assert.Equal(t, 25, peeked.AlreadyFetched)

	taken, err := q.TakeIfPresent(ctx, "дюна герберт")
	require.NoError(t, err)
	require.NotNil(t, taken)
	assert.Equal(t, "Дюна  Герберт", taken.RawQuery)
	assert.Equal(t, "Фрэнк Герберт", taken.Author)

	again, err := q.TakeIfPresent(ctx, "дюна герберт")
	require.NoError(t, err)
	assert.Nil(t, again, "take consumes the entry")
}

func TestQueryKey(t *testing.T) {
	assert.Len(t, QueryKey("Дюна"), 8)
	assert.Equal(t, QueryKey("Дюна!"), QueryKey(" дюна "))
	assert.NotEqual(t, QueryKey("Дюна"), QueryKey("Дюна Герберт"))
}
