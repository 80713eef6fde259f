package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestCredentialRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	repo := NewCredentialRepo(client)

	if _, err := repo.Load(ctx); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Load() on empty cache err = %v, want ErrNotFound", err)
	}

	acquired := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cred := &entity.AuthCredential{
		Token:      "eyJhbGciOiJIUzI1NiJ9.payload.sig",
		Cookies:    map[string]string{"access-token": "Bearer%20eyJ", "__ddg1_": "abc"},
		AcquiredAt: acquired,
	}
	if err := repo.Save(ctx, cred, 24*time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Token != cred.Token || got.Cookies["__ddg1_"] != "abc" || !got.AcquiredAt.Equal(acquired) {
		t.Fatalf("Load() = %+v", got)
	}
	if got.TTLSeconds != int((24 * time.Hour).Seconds()) {
		t.Fatalf("TTLSeconds = %d", got.TTLSeconds)
	}

	// a token-only save replaces the whole credential, jar included
	if err := repo.Save(ctx, &entity.AuthCredential{Token: "second"}, 24*time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, _ = repo.Load(ctx)
	if got.Token != "second" || len(got.Cookies) != 0 {
		t.Fatalf("after token-only save: %+v", got)
	}
	if mr.Exists(cookiesKey) {
		t.Fatal("stale cookie jar survived a token-only save")
	}

	mr.FastForward(25 * time.Hour)
	if _, err := repo.Load(ctx); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Load() after expiry err = %v", err)
	}
}

func TestPendingTakeRemovesEntry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	repo := NewPendingRepo(client)

	entry := &entity.PendingScrapeEntry{
		QueryKey:       "a1b2c3d4",
		RawQuery:       "Дюна Герберт",
		Author:         "Фрэнк Герберт",
		AlreadyFetched: 25,
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := repo.Put(ctx, entry, 24*time.Hour); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if ttl := mr.TTL("pending_parse:a1b2c3d4"); ttl != 24*time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}

	peeked, err := repo.Peek(ctx, "a1b2c3d4")
	if err != nil || peeked.AlreadyFetched != 25 {
		t.Fatalf("Peek() = %+v, %v", peeked, err)
	}

	taken, err := repo.Take(ctx, "a1b2c3d4")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if taken.RawQuery != "Дюна Герберт" || taken.Author != "Фрэнк Герберт" || taken.AlreadyFetched != 25 || !taken.CreatedAt.Equal(entry.CreatedAt) {
		t.Fatalf("Take() = %+v", taken)
	}
	if _, err := repo.Take(ctx, "a1b2c3d4"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("second Take() err = %v, want ErrNotFound", err)
	}
}

func TestPendingExpires(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	repo := NewPendingRepo(client)

	if err := repo.Put(ctx, &entity.PendingScrapeEntry{QueryKey: "k", AlreadyFetched: 10}, time.Hour); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	mr.FastForward(2 * time.Hour)
	if _, err := repo.Peek(ctx, "k"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Peek() after TTL err = %v", err)
	}
}

func TestTaskQueueFIFO(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	repo := NewTaskQueueRepo(client)

	for _, id := range []string{"t1", "t2"} {
		if err := repo.Enqueue(ctx, &entity.Task{ID: id, Type: entity.TaskParseQuery}, 0); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}
	if n, _ := repo.Size(ctx); n != 2 {
		t.Fatalf("Size() = %d", n)
	}

	first, err := repo.Dequeue(ctx, time.Second)
	if err != nil || first.ID != "t1" {
		t.Fatalf("Dequeue() = %+v, %v", first, err)
	}
	second, err := repo.Dequeue(ctx, 0)
	if err != nil || second.ID != "t2" {
		t.Fatalf("Dequeue() = %+v, %v", second, err)
	}
	if _, err := repo.Dequeue(ctx, 0); !errors.Is(err, repository.ErrQueueEmpty) {
		t.Fatalf("Dequeue() on empty queue err = %v", err)
	}
}

func TestTaskQueueDelayedDelivery(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	repo := NewTaskQueueRepo(client)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	task := &entity.Task{ID: "refresh", Type: entity.TaskRefreshCredential, Attempt: 1}
	if err := repo.Enqueue(ctx, task, 5*time.Second); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := repo.Dequeue(ctx, 0); !errors.Is(err, repository.ErrQueueEmpty) {
		t.Fatalf("task delivered before it was due: %v", err)
	}
	if n, _ := repo.Delayed(ctx); n != 1 {
		t.Fatalf("Delayed() = %d", n)
	}

	now = now.Add(6 * time.Second)
	got, err := repo.Dequeue(ctx, 0)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if got.ID != "refresh" || got.Attempt != 1 {
		t.Fatalf("Dequeue() = %+v", got)
	}
	if n, _ := repo.Delayed(ctx); n != 0 {
		t.Fatalf("Delayed() after promotion = %d", n)
	}
}

func TestPresenceCount(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	repo := NewPresenceRepo(client, time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_ = repo.Touch(ctx, "u1", now.Add(-10*time.Minute))
	_ = repo.Touch(ctx, "u2", now.Add(-2*time.Minute))
	_ = repo.Touch(ctx, "u3", now)
	_ = repo.Touch(ctx, "u3", now) // same user twice

	n, err := repo.CountSince(ctx, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("CountSince() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("CountSince() = %d, want 2", n)
	}

	// u1 falls out of retention once a much later heartbeat arrives
	_ = repo.Touch(ctx, "u4", now.Add(55*time.Minute))
	all, _ := repo.CountSince(ctx, time.Time{})
	if all != 3 {
		t.Fatalf("members after trim = %d, want 3", all)
	}
}
