package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
)

const itemColumns = `id, source, source_id, title, author, publisher, binding,
	current_price::float8, original_price::float8, discount_percent, url, image_url,
	genres, isbn, quantity, status, rating, reviews, fetched_at`

// ItemRepoImpl provides a concrete implementation for the ItemRepository interface using PostgreSQL.
type ItemRepoImpl struct {
	db *pgxpool.Pool
}

// NewItemRepo creates a new instance of ItemRepoImpl.
func NewItemRepo(db *pgxpool.Pool) *ItemRepoImpl {
	return &ItemRepoImpl{db: db}
}

// Upsert stores the item keyed on (source, source_id). On conflict the price,
// stock and presentation fields are replaced and descriptive fields are only
// filled when the new scrape carries them.
func (r *ItemRepoImpl) Upsert(ctx context.Context, item *entity.ScrapedItem) (repository.UpsertOp, error) {
	genres := item.Genres
	if genres == nil {
		genres = []string{}
	}
	genresJSON, err := json.Marshal(genres)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO items (source, source_id, title, author, publisher, binding, current_price, original_price,
			discount_percent, url, image_url, genres, isbn, quantity, status, rating, reviews, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (source, source_id) DO UPDATE SET
			title = EXCLUDED.title,
			author = COALESCE(EXCLUDED.author, items.author),
			publisher = COALESCE(EXCLUDED.publisher, items.publisher),
			binding = COALESCE(EXCLUDED.binding, items.binding),
			current_price = EXCLUDED.current_price,
			original_price = EXCLUDED.original_price,
			discount_percent = EXCLUDED.discount_percent,
			url = EXCLUDED.url,
			image_url = COALESCE(EXCLUDED.image_url, items.image_url),
			genres = CASE WHEN jsonb_array_length(EXCLUDED.genres) > 0 THEN EXCLUDED.genres ELSE items.genres END,
			isbn = COALESCE(EXCLUDED.isbn, items.isbn),
			quantity = EXCLUDED.quantity,
			status = EXCLUDED.status,
			rating = EXCLUDED.rating,
			reviews = EXCLUDED.reviews,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = NOW()
		RETURNING id, (xmax = 0) AS inserted;
	`

	var inserted bool
	err = r.db.QueryRow(ctx, query,
		item.Source,
		item.SourceID,
		item.Title,
		item.Author,
		item.Publisher,
		item.Binding,
		item.CurrentPrice,
		item.OriginalPrice,
		item.DiscountPercent,
		item.URL,
		item.ImageURL,
		string(genresJSON),
		item.ISBN,
		item.Quantity,
		item.Status,
		item.Rating,
		item.Reviews,
		item.FetchedAt,
	).Scan(&item.ID, &inserted)
	if err != nil {
		return 0, fmt.Errorf("upsert item %s/%s: %w", item.Source, item.SourceID, err)
	}
	if inserted {
		return repository.OpInserted, nil
	}
	return repository.OpUpdated, nil
}

// FindByWords returns the newest items whose title or author contains any of the words.
func (r *ItemRepoImpl) FindByWords(ctx context.Context, words []string, limit int) ([]entity.ScrapedItem, error) {
	where, args := wordFilter(words)
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM items %s ORDER BY fetched_at DESC LIMIT $%d;`, itemColumns, where, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []entity.ScrapedItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// FindBySourceID retrieves a single item by its natural key.
func (r *ItemRepoImpl) FindBySourceID(ctx context.Context, source, sourceID string) (*entity.ScrapedItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM items WHERE source = $1 AND source_id = $2;`, itemColumns)
	item, err := scanItem(r.db.QueryRow(ctx, query, source, sourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// wordFilter builds "WHERE title ILIKE $1 OR author ILIKE $1 OR ..." for the
// non-empty words. No words means no filter.
func wordFilter(words []string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	for _, w := range words {
		if w = strings.TrimSpace(w); w == "" {
			continue
		}
		args = append(args, "%"+likeEscaper.Replace(w)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("title ILIKE $%d OR author ILIKE $%d", n, n))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " OR "), args
}

func scanItem(row pgx.Row) (*entity.ScrapedItem, error) {
	var (
		item       entity.ScrapedItem
		genresJSON []byte
	)
	err := row.Scan(
		&item.ID,
		&item.Source,
		&item.SourceID,
		&item.Title,
		&item.Author,
		&item.Publisher,
		&item.Binding,
		&item.CurrentPrice,
		&item.OriginalPrice,
		&item.DiscountPercent,
		&item.URL,
		&item.ImageURL,
		&genresJSON,
		&item.ISBN,
		&item.Quantity,
		&item.Status,
		&item.Rating,
		&item.Reviews,
		&item.FetchedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(genresJSON, &item.Genres); err != nil {
		return nil, fmt.Errorf("decode genres of %s: %w", item.SourceID, err)
	}
	return &item, nil
}
