package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	id               BIGSERIAL PRIMARY KEY,
	source           TEXT          NOT NULL,
	source_id        TEXT          NOT NULL,
	title            TEXT          NOT NULL,
	author           TEXT,
	publisher        TEXT,
	binding          TEXT,
	current_price    NUMERIC(12,2) NOT NULL CHECK (current_price >= 0),
	original_price   NUMERIC(12,2),
	discount_percent INTEGER,
	url              TEXT          NOT NULL,
	image_url        TEXT,
	genres           JSONB         NOT NULL DEFAULT '[]',
	isbn             TEXT,
	quantity         INTEGER,
	status           TEXT,
	rating           DOUBLE PRECISION,
	reviews          INTEGER,
	fetched_at       TIMESTAMPTZ   NOT NULL,
	created_at       TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
	UNIQUE (source, source_id)
);

CREATE INDEX IF NOT EXISTS items_fetched_at_idx ON items (fetched_at DESC);

CREATE TABLE IF NOT EXISTS parse_logs (
	id         BIGSERIAL PRIMARY KEY,
	source     TEXT        NOT NULL,
	query      TEXT        NOT NULL,
	status     TEXT        NOT NULL,
	message    TEXT        NOT NULL DEFAULT '',
	items      INTEGER     NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the tables the record store needs when they are missing.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
