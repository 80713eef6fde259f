package repository

import (
	"context"

	"github.com/user/bookscan-service/internal/entity"
)

// UpsertOp tells whether an upsert created a row or changed an existing one.
type UpsertOp int

const (
	OpInserted UpsertOp = iota
	OpUpdated
)

// ItemRepository is the Record Store for scraped items.
type ItemRepository interface {
	// Upsert inserts the item or, when (source, source_id) already exists,
	// updates its mutable fields.
	Upsert(ctx context.Context, item *entity.ScrapedItem) (UpsertOp, error)
	// FindByWords returns at most limit items whose title or author contains any
	// of the words, newest first. An empty word list returns the newest items.
	FindByWords(ctx context.Context, words []string, limit int) ([]entity.ScrapedItem, error)
	// FindBySourceID retrieves a single item by its natural key.
	FindBySourceID(ctx context.Context, source, sourceID string) (*entity.ScrapedItem, error)
}

// ParseLogRepository stores one row per orchestrator run.
type ParseLogRepository interface {
	Save(ctx context.Context, log *entity.ParseLog) error
	Recent(ctx context.Context, limit int) ([]entity.ParseLog, error)
}
