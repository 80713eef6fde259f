package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/catalog"
	"github.com/user/bookscan-service/internal/entity"
)

type loadStub struct{ online atomic.Int64 }

func (l *loadStub) OnlineUsers(context.Context) (int64, error) { return l.online.Load(), nil }

type orchestratorFixture struct {
	orch     *ParseOrchestrator
	items    *memItems
	logs     *memParseLogs
	pending  *PendingQueue
	searcher *fakeSearcher
	creds    *fakeCreds
	load     *loadStub
}

func newOrchestratorFixture(t *testing.T, seed ...entity.ScrapedItem) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		items:    newMemItems(seed...),
		logs:     &memParseLogs{},
		pending:  NewPendingQueue(newMemPending(), 24*time.Hour),
		searcher: &fakeSearcher{total: map[string]int{}},
		creds:    &fakeCreds{cred: &entity.AuthCredential{Token: "token"}},
		load:     &loadStub{},
	}
	limiter := NewLoadAwareLimiter(f.load, 50, 25, 10, zap.NewNop())
	f.orch = NewParseOrchestrator(f.items, f.logs, searcherOf(f.searcher), f.creds, limiter, f.pending, nil, zap.NewNop())
	return f
}

func TestParseSkipsWhenSimilarItemsStored(t *testing.T) {
	f := newOrchestratorFixture(t, book("3046783", "Дюна", "Фрэнк Герберт", 25))

	res, err := f.orch.Run(context.Background(), entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)

	assert.Equal(t, entity.DecisionSkip, res.Decision)
	assert.Len(t, res.Items, 1)
	assert.Empty(t, f.searcher.calls(), "no scrape on skip")
	assert.Equal(t, []string{"skipped"}, f.logs.statuses())
}

func TestParseFullScrapeUnderBudget(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.searcher.total["Дюна Герберт"] = 12

	res, err := f.orch.Run(context.Background(), entity.ParseQueryPayload{Query: "  Дюна Герберт "})
	require.NoError(t, err)

	assert.Equal(t, entity.DecisionFullScrape, res.Decision)
	assert.Equal(t, 25, res.Budget)
	assert.Equal(t, 12, res.ItemsFound)
	assert.Equal(t, 12, res.ItemsInserted)
	assert.False(t, res.PendingQueued)
	assert.Equal(t, 12, f.items.count())

	calls := f.searcher.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, catalog.SearchQuery{Phrase: "Дюна Герберт", Offset: 0, Limit: 25}, calls[0])

	entry, err := f.pending.Peek(context.Background(), "Дюна Герберт")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, []string{"success"}, f.logs.statuses())
}

func TestParseTruncatedRunTopsUpLater(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t)
	f.searcher.total["Дюна Герберт"] = 40
	f.load.online.Store(80)

	first, err := f.orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)
	assert.Equal(t, 10, first.Budget)
	assert.Equal(t, 10, first.ItemsFound)
	assert.True(t, first.PendingQueued)

	entry, err := f.pending.Peek(ctx, "дюна, герберт!")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 10, entry.AlreadyFetched)
	assert.Equal(t, "Фрэнк Герберт", entry.Author)

	// Load drops: the next run tops up instead of skipping, even though
	// similar items are now stored.
	f.load.online.Store(0)
	second, err := f.orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)
	assert.Equal(t, entity.DecisionTopUp, second.Decision)
	assert.Equal(t, 15, second.Budget)
	assert.Equal(t, 10, second.Offset)
	assert.Equal(t, 15, second.ItemsInserted)
	assert.True(t, second.PendingQueued)
	assert.Equal(t, 25, f.items.count(), "top-up does not duplicate stored items")

	entry, err = f.pending.Peek(ctx, "Дюна Герберт")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 25, entry.AlreadyFetched)

	// The normal budget is used up: the entry is consumed without a scrape.
	third, err := f.orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)
	assert.Equal(t, entity.DecisionTopUp, third.Decision)
	assert.Zero(t, third.Budget)
	assert.Len(t, f.searcher.calls(), 2)

	fourth, err := f.orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)
	assert.Equal(t, entity.DecisionSkip, fourth.Decision)
	assert.Len(t, f.searcher.calls(), 2)
}

func TestParseRescrapeUpdatesStoredItemsInPlace(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t)
	f.searcher.total["Дюна"] = 3
	f.searcher.price = 700

	first, err := f.orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна"})
	require.NoError(t, err)
	assert.Equal(t, 3, first.ItemsInserted)

	// A pending entry at offset zero makes the next run fetch the same
	// products again, now at a lower price.
	_, err = f.pending.Add(ctx, "Дюна", "Фрэнк Герберт", 0)
	require.NoError(t, err)
	f.searcher.price = 650

	second, err := f.orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна"})
	require.NoError(t, err)
	assert.Equal(t, entity.DecisionTopUp, second.Decision)
	assert.Zero(t, second.ItemsInserted)
	assert.Equal(t, 3, second.ItemsUpdated)
	assert.Equal(t, 3, f.items.count())

	stored, err := f.items.FindBySourceID(ctx, entity.SourceChitaiGorod, "Дюна-0")
	require.NoError(t, err)
	assert.Equal(t, 650.0, stored.CurrentPrice)
}

func TestParseSoftFailsOnCatalogError(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t)
	f.searcher.err = &catalog.APIError{Kind: catalog.KindExhausted, Err: &catalog.APIError{Kind: catalog.KindTransient, Status: 502}}
	_, err := f.pending.Add(ctx, "Дюна Герберт", "Фрэнк Герберт", 10)
	require.NoError(t, err)

	res, err := f.orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)
	assert.Equal(t, "exhausted", res.SoftFailure)
	assert.Zero(t, res.ItemsFound)
	assert.Equal(t, []string{"error"}, f.logs.statuses())

	entry, err := f.pending.Peek(ctx, "Дюна Герберт")
	require.NoError(t, err)
	require.NotNil(t, entry, "pending entry survives a failed top-up")
	assert.Equal(t, 10, entry.AlreadyFetched)
}

func TestParseSoftFailsWithoutCredential(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.creds.cred = nil

	res, err := f.orch.Run(context.Background(), entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)
	assert.Equal(t, "credential_unavailable", res.SoftFailure)
	assert.Equal(t, 1, f.creds.triggers)
	assert.Empty(t, f.searcher.calls())
}

func TestParseUnauthorizedIsSoft(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.searcher.err = &catalog.APIError{Kind: catalog.KindUnauthorized, Status: 401}

	res, err := f.orch.Run(context.Background(), entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)
	assert.Equal(t, "unauthorized", res.SoftFailure)
}

func TestParseReturnsStoreErrors(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.items.findErr = errors.New("connection refused")

	_, err := f.orch.Run(context.Background(), entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.Error(t, err)
}

func TestParseRejectsInvalidPayload(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.orch.Run(context.Background(), entity.ParseQueryPayload{Query: "   "})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = f.orch.Run(context.Background(), entity.ParseQueryPayload{Query: "Дюна", Source: "labirint"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
