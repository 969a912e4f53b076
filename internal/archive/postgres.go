package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ Archiver = (*Postgres)(nil)

const ddlTurns = `
CREATE TABLE IF NOT EXISTS turns (
    id          BIGSERIAL    PRIMARY KEY,
    model       TEXT         NOT NULL,
    backend     TEXT         NOT NULL,
    profile     TEXT         NOT NULL DEFAULT '',
    question    TEXT         NOT NULL,
    answer      TEXT         NOT NULL DEFAULT '',
    had_image   BOOLEAN      NOT NULL DEFAULT false,
    latency_ns  BIGINT       NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_turns_created_at ON turns (created_at);
`

// Postgres is an [Archiver] backed by a turns table. All operations share a
// single [pgxpool.Pool] and are safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres establishes a connection pool to the database at dsn and
// ensures the turns table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlTurns); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// InsertTurn implements [Archiver]. A zero CreatedAt is replaced with the
// current time.
func (p *Postgres) InsertTurn(ctx context.Context, turn Turn) error {
	const q = `
		INSERT INTO turns
		    (model, backend, profile, question, answer, had_image, latency_ns, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := p.pool.Exec(ctx, q,
		turn.Model,
		turn.Backend,
		turn.Profile,
		turn.Question,
		turn.Answer,
		turn.HadImage,
		turn.Latency.Nanoseconds(),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("archive: insert turn: %w", err)
	}
	return nil
}

// RecentTurns implements [Archiver].
func (p *Postgres) RecentTurns(ctx context.Context, limit int) ([]Turn, error) {
	const q = `
		SELECT model, backend, profile, question, answer, had_image, latency_ns, created_at
		FROM   turns
		ORDER  BY created_at DESC, id DESC
		LIMIT  $1`

	rows, err := p.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: recent turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var (
			t         Turn
			latencyNS int64
		)
		if err := row.Scan(
			&t.Model,
			&t.Backend,
			&t.Profile,
			&t.Question,
			&t.Answer,
			&t.HadImage,
			&latencyNS,
			&t.CreatedAt,
		); err != nil {
			return Turn{}, err
		}
		t.Latency = time.Duration(latencyNS)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan turns: %w", err)
	}
	return turns, nil
}

// Ping implements [Archiver].
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close implements [Archiver]. It releases all pooled connections.
func (p *Postgres) Close() {
	p.pool.Close()
}
