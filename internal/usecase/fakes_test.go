package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/user/bookscan-service/internal/catalog"
	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
)

type memItems struct {
	mu      sync.Mutex
	items   map[string]entity.ScrapedItem
	order   []string
	findErr error
}

func newMemItems(seed ...entity.ScrapedItem) *memItems {
	m := &memItems{items: make(map[string]entity.ScrapedItem)}
	for i := range seed {
		_, _ = m.Upsert(context.Background(), &seed[i])
	}
	return m
}

func (m *memItems) Upsert(_ context.Context, item *entity.ScrapedItem) (repository.UpsertOp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := item.Source + "/" + item.SourceID
	if _, ok := m.items[key]; ok {
		m.items[key] = *item
		return repository.OpUpdated, nil
	}
	m.items[key] = *item
	m.order = append(m.order, key)
	return repository.OpInserted, nil
}

func (m *memItems) FindByWords(_ context.Context, words []string, limit int) ([]entity.ScrapedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []entity.ScrapedItem
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		item := m.items[m.order[i]]
		text := strings.ToLower(item.Title + " " + item.AuthorName())
		for _, w := range words {
			if strings.Contains(text, w) {
				out = append(out, item)
				break
			}
		}
	}
	return out, nil
}

func (m *memItems) FindBySourceID(_ context.Context, source, sourceID string) (*entity.ScrapedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[source+"/"+sourceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &item, nil
}

func (m *memItems) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type memParseLogs struct {
	mu   sync.Mutex
	logs []entity.ParseLog
}

func (m *memParseLogs) Save(_ context.Context, log *entity.ParseLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, *log)
	return nil
}

func (m *memParseLogs) Recent(_ context.Context, limit int) ([]entity.ParseLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]entity.ParseLog(nil), m.logs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out[:min(limit, len(out))], nil
}

func (m *memParseLogs) statuses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, l := range m.logs {
		out = append(out, l.Status)
	}
	return out
}

type memPending struct {
	mu      sync.Mutex
	entries map[string]entity.PendingScrapeEntry
	ttls    map[string]time.Duration
}

func newMemPending() *memPending {
	return &memPending{entries: map[string]entity.PendingScrapeEntry{}, ttls: map[string]time.Duration{}}
}

func (m *memPending) Put(_ context.Context, entry *entity.PendingScrapeEntry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.QueryKey] = *entry
	m.ttls[entry.QueryKey] = ttl
	return nil
}

func (m *memPending) Take(_ context.Context, key string) (*entity.PendingScrapeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	delete(m.entries, key)
	return &entry, nil
}

func (m *memPending) Peek(_ context.Context, key string) (*entity.PendingScrapeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &entry, nil
}

type memQueue struct {
	mu     sync.Mutex
	tasks  []*entity.Task
	delays []time.Duration
}

func (q *memQueue) Enqueue(_ context.Context, task *entity.Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	q.delays = append(q.delays, delay)
	return nil
}

func (q *memQueue) Dequeue(context.Context, time.Duration) (*entity.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, repository.ErrQueueEmpty
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	q.delays = q.delays[1:]
	return t, nil
}

func (q *memQueue) Size(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.tasks)), nil
}

// fakeSearcher serves a fixed catalog of n products per phrase and records calls.
type fakeSearcher struct {
	mu      sync.Mutex
	total   map[string]int
	price   float64
	err     error
	queries []catalog.SearchQuery
}

func (f *fakeSearcher) SearchProducts(_ context.Context, q catalog.SearchQuery) ([]entity.ScrapedItem, catalog.NormalizeReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	report := catalog.NormalizeReport{Rejected: map[catalog.RejectReason]int{}}
	if f.err != nil {
		return nil, report, f.err
	}
	var out []entity.ScrapedItem
	for i := q.Offset; i < f.total[q.Phrase] && len(out) < q.Limit; i++ {
		b := book(fmt.Sprintf("%s-%d", q.Phrase, i), q.Phrase+" том "+fmt.Sprint(i+1), "Фрэнк Герберт", 10+i)
		if f.price > 0 {
			b.CurrentPrice = f.price
		}
		out = append(out, b)
	}
	report.Products, report.Accepted = len(out), len(out)
	return out, report, nil
}

func searcherOf(s ProductSearcher) SearcherFactory {
	return func() ProductSearcher { return s }
}

func (f *fakeSearcher) calls() []catalog.SearchQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]catalog.SearchQuery(nil), f.queries...)
}

type fakeCreds struct {
	mu       sync.Mutex
	cred     *entity.AuthCredential
	triggers int
}

func (f *fakeCreds) Get(context.Context) (*entity.AuthCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cred, nil
}

func (f *fakeCreds) TriggerRefresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	return nil
}

type memCredentials struct {
	mu      sync.Mutex
	cred    *entity.AuthCredential
	ttl     time.Duration
	loadErr error
	loads   int
}

func (m *memCredentials) Load(context.Context) (*entity.AuthCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.cred == nil {
		return nil, repository.ErrNotFound
	}
	c := *m.cred
	return &c, nil
}

func (m *memCredentials) Save(_ context.Context, cred *entity.AuthCredential, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *cred
	m.cred = &c
	m.ttl = ttl
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []entity.RefreshOutcome
}

func (n *recordingNotifier) NotifyRefresh(_ context.Context, o entity.RefreshOutcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, o)
	return nil
}

func book(id, title, author string, discount int) entity.ScrapedItem {
	a := author
	d := discount
	return entity.ScrapedItem{
		Source:          entity.SourceChitaiGorod,
		SourceID:        id,
		Title:           title,
		Author:          &a,
		CurrentPrice:    500,
		DiscountPercent: &d,
		URL:             "https://shop.test/product/" + id,
		FetchedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}
