package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/bookscan-service/internal/entity"
)

// ParseLogRepoImpl provides a concrete implementation for the ParseLogRepository interface using PostgreSQL.
type ParseLogRepoImpl struct {
	db *pgxpool.Pool
}

// NewParseLogRepo creates a new instance of ParseLogRepoImpl.
func NewParseLogRepo(db *pgxpool.Pool) *ParseLogRepoImpl {
	return &ParseLogRepoImpl{db: db}
}

// Save appends a parse log row and fills in its id and creation time.
func (r *ParseLogRepoImpl) Save(ctx context.Context, log *entity.ParseLog) error {
	query := `
		INSERT INTO parse_logs (source, query, status, message, items)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at;
	`
	return r.db.QueryRow(ctx, query,
		log.Source,
		log.Query,
		log.Status,
		log.Message,
		log.Items,
	).Scan(&log.ID, &log.CreatedAt)
}

// Recent returns the latest parse logs, newest first.
func (r *ParseLogRepoImpl) Recent(ctx context.Context, limit int) ([]entity.ParseLog, error) {
	query := `
		SELECT id, source, query, status, message, items, created_at
		FROM parse_logs
		ORDER BY created_at DESC
		LIMIT $1;
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []entity.ParseLog
	for rows.Next() {
		var l entity.ParseLog
		if err := rows.Scan(&l.ID, &l.Source, &l.Query, &l.Status, &l.Message, &l.Items, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
