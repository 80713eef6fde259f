package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/catalog"
	"github.com/user/bookscan-service/internal/entity"
)

// searchDocument builds page of a catalog result set with total books.
// Products whose number is in notebooks carry a stationery title.
func searchDocument(t *testing.T, total, page, perPage int, notebooks func(i int) bool) string {
	t.Helper()
	var included []map[string]any
	for i := (page-1)*perPage + 1; i <= min(page*perPage, total); i++ {
		title := fmt.Sprintf("Дюна. Том %d", i)
		if notebooks != nil && notebooks(i) {
			title = fmt.Sprintf("Блокнот «Дюна» %d", i)
		}
		included = append(included, map[string]any{
			"id":   3046700 + i,
			"type": "product",
			"attributes": map[string]any{
				"title":    title,
				"authors":  []map[string]string{{"firstName": "Фрэнк", "lastName": "Герберт"}},
				"price":    500 + i,
				"oldPrice": 700,
				"discount": 28,
				"url":      fmt.Sprintf("product/dyuna-%d", i),
				"status":   "canBuy",
			},
		})
	}
	raw, err := json.Marshal(map[string]any{"data": map[string]string{"type": "search-result"}, "included": included})
	require.NoError(t, err)
	return string(raw)
}

func pageParams(req *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(req.URL.Query().Get("products[page]"))
	perPage, _ = strconv.Atoi(req.URL.Query().Get("products[per-page]"))
	return page, perPage
}

func newPipelineClient(transport http.RoundTripper, creds catalog.CredentialSource) *catalog.Client {
	opts := catalog.DefaultOptions()
	opts.BaseURL = "https://api.test/web/api/v2"
	opts.SiteURL = "https://shop.test"
	opts.DelayMin, opts.DelayMax = 0, 0
	opts.RPS = 0
	opts.CacheSize = 0
	return catalog.NewClient(opts, creds, zap.NewNop(),
		catalog.WithHTTPClient(&http.Client{Transport: transport}),
		catalog.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
}

func sessionsOf(c *catalog.Client) SearcherFactory {
	return func() ProductSearcher { return c.Session() }
}

func TestParsePipelineAgainstCatalog(t *testing.T) {
	ctx := context.Background()
	transport := httpmock.NewMockTransport()
	var perPage, auth string
	transport.RegisterResponder(http.MethodGet, "https://api.test/web/api/v2/search/product",
		func(req *http.Request) (*http.Response, error) {
			perPage = req.URL.Query().Get("products[per-page]")
			auth = req.Header.Get("Authorization")
			page, size := pageParams(req)
			return httpmock.NewStringResponse(http.StatusOK, searchDocument(t, 12, page, size, nil)), nil
		})

	credRepo := &memCredentials{cred: &entity.AuthCredential{Token: "cached-token"}}
	queue := &memQueue{}
	store := NewCredentialStore(credRepo, NewJobManager(queue, nil, zap.NewNop()), "", 5*time.Second, zap.NewNop())

	client := newPipelineClient(transport, store)

	items := newMemItems()
	pending := NewPendingQueue(newMemPending(), 24*time.Hour)
	limiter := NewLoadAwareLimiter(StaticSignal(0), 50, 25, 10, zap.NewNop())
	orch := NewParseOrchestrator(items, &memParseLogs{}, sessionsOf(client), store, limiter, pending, nil, zap.NewNop())

	res, err := orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)

	assert.Equal(t, "60", perPage)
	assert.Equal(t, "Bearer cached-token", auth)
	assert.Equal(t, 12, res.ItemsFound)
	assert.Equal(t, 12, items.count())
	assert.False(t, res.PendingQueued)

	stored, err := items.FindBySourceID(ctx, entity.SourceChitaiGorod, "3046701")
	require.NoError(t, err)
	assert.Equal(t, "Фрэнк Герберт", stored.AuthorName())
	assert.Equal(t, "https://shop.test/product/dyuna-1", stored.URL)

	entry, err := pending.Peek(ctx, "Дюна Герберт")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Empty(t, queue.tasks, "no refresh scheduled on a healthy token")

	// A second run finds the stored books and does not call the catalog again.
	again, err := orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)
	assert.Equal(t, entity.DecisionSkip, again.Decision)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestParseQueuesTopUpWhenFilteredPageIsTruncated(t *testing.T) {
	ctx := context.Background()
	transport := httpmock.NewMockTransport()
	everyFifth := func(i int) bool { return i%5 == 0 }
	transport.RegisterResponder(http.MethodGet, "https://api.test/web/api/v2/search/product",
		func(req *http.Request) (*http.Response, error) {
			page, size := pageParams(req)
			return httpmock.NewStringResponse(http.StatusOK, searchDocument(t, 100, page, size, everyFifth)), nil
		})

	creds := &rotatingCreds{tokens: []string{"token"}}
	client := newPipelineClient(transport, creds)
	items := newMemItems()
	pending := NewPendingQueue(newMemPending(), 24*time.Hour)
	// 100 users online: the loaded budget of 10 applies.
	limiter := NewLoadAwareLimiter(StaticSignal(100), 50, 25, 10, zap.NewNop())
	orch := NewParseOrchestrator(items, &memParseLogs{}, sessionsOf(client), creds, limiter, pending, nil, zap.NewNop())

	res, err := orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Budget)
	assert.Equal(t, 10, res.ItemsFound)
	assert.True(t, res.PendingQueued)
	for _, item := range res.Items {
		assert.NotContains(t, item.Title, "Блокнот")
	}

	entry, err := pending.Peek(ctx, "Дюна Герберт")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 10, entry.AlreadyFetched)

	// The top-up continues after the tenth accepted book.
	again, err := orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)
	assert.Equal(t, entity.DecisionTopUp, again.Decision)
	require.NotEmpty(t, again.Items)
	assert.Equal(t, "3046713", again.Items[0].SourceID)
}

// rotatingCreds hands out tokens in order; each TriggerRefresh advances to
// the next one.
type rotatingCreds struct {
	mu       sync.Mutex
	tokens   []string
	current  int
	triggers int
}

func (r *rotatingCreds) Get(context.Context) (*entity.AuthCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &entity.AuthCredential{Token: r.tokens[r.current]}, nil
}

func (r *rotatingCreds) TriggerRefresh(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers++
	if r.current < len(r.tokens)-1 {
		r.current++
	}
	return nil
}

func (r *rotatingCreds) AwaitRefresh(ctx context.Context, _ string, _, _ time.Duration) (*entity.AuthCredential, error) {
	return r.Get(ctx)
}

func TestParseJobsEachHealExpiredToken(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	valid := "t2"
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "https://api.test/web/api/v2/search/product",
		func(req *http.Request) (*http.Response, error) {
			mu.Lock()
			defer mu.Unlock()
			if req.Header.Get("Authorization") != "Bearer "+valid {
				return httpmock.NewStringResponse(http.StatusUnauthorized, `{}`), nil
			}
			page, size := pageParams(req)
			return httpmock.NewStringResponse(http.StatusOK, searchDocument(t, 12, page, size, nil)), nil
		})

	creds := &rotatingCreds{tokens: []string{"t1", "t2", "t3"}}
	client := newPipelineClient(transport, creds)
	limiter := NewLoadAwareLimiter(StaticSignal(0), 50, 25, 10, zap.NewNop())
	orch := NewParseOrchestrator(newMemItems(), &memParseLogs{}, sessionsOf(client), creds, limiter,
		NewPendingQueue(newMemPending(), 24*time.Hour), nil, zap.NewNop())

	first, err := orch.Run(ctx, entity.ParseQueryPayload{Query: "Дюна Герберт"})
	require.NoError(t, err)
	assert.Empty(t, first.SoftFailure)
	assert.Equal(t, 12, first.ItemsFound)

	// t2 expires between jobs.
	mu.Lock()
	valid = "t3"
	mu.Unlock()

	second, err := orch.Run(ctx, entity.ParseQueryPayload{Query: "Основание Азимов"})
	require.NoError(t, err)
	assert.Empty(t, second.SoftFailure)
	assert.Equal(t, 12, second.ItemsFound)
	assert.Equal(t, 2, creds.triggers)
}
