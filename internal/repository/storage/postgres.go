package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id         TEXT PRIMARY KEY,
	creator    TEXT NOT NULL,
	opponent   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	clock      JSONB,
	winner     TEXT,
	end_reason TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS matches_in_progress ON matches (id) WHERE status = 'in_progress';

CREATE TABLE IF NOT EXISTS moves (
	id           TEXT PRIMARY KEY,
	match_id     TEXT NOT NULL REFERENCES matches (id),
	move_index   INTEGER NOT NULL CHECK (move_index >= 0),
	player_id    TEXT NOT NULL,
	seat         SMALLINT NOT NULL,
	action       INTEGER NOT NULL,
	snapshot     JSONB NOT NULL,
	clock        JSONB,
	committed_at TIMESTAMPTZ NOT NULL,
	UNIQUE (match_id, move_index)
);

CREATE TABLE IF NOT EXISTS move_writers (
	token TEXT PRIMARY KEY
);

CREATE OR REPLACE FUNCTION guard_move_writes() RETURNS trigger AS $$
BEGIN
	IF TG_OP <> 'INSERT' THEN
		RAISE EXCEPTION 'moves are immutable' USING ERRCODE = 'insufficient_privilege';
	END IF;
	IF NOT EXISTS (SELECT 1 FROM move_writers WHERE token = current_setting('matchsync.writer', true)) THEN
		RAISE EXCEPTION 'moves are written by the coordinator only' USING ERRCODE = 'insufficient_privilege';
	END IF;
	RETURN NEW;
END
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS moves_writer_guard ON moves;
CREATE TRIGGER moves_writer_guard
	BEFORE INSERT OR UPDATE OR DELETE ON moves
	FOR EACH ROW EXECUTE FUNCTION guard_move_writes();
`

type PostgresStorage struct {
	Pool *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, dsn string, maxConns int32) (*PostgresStorage, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &PostgresStorage{Pool: pool}, nil
}

// Migrate - creates the schema and registers the move writer.
func (that *PostgresStorage) Migrate(ctx context.Context, writerToken string) error {
	if _, err := that.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	_, err := that.Pool.Exec(ctx, `INSERT INTO move_writers (token) VALUES ($1) ON CONFLICT DO NOTHING`, writerToken)
	if err != nil {
		return fmt.Errorf("failed to register writer: %w", err)
	}

	return nil
}

func (that *PostgresStorage) Ping(ctx context.Context) error {
	return that.Pool.Ping(ctx)
}

func (that *PostgresStorage) Close() {
	that.Pool.Close()
}
