package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"story-chain/story/domain"

	_ "github.com/lib/pq" // driver postgres
)

// writeLockID é a chave do advisory lock que serializa escritas entre réplicas.
const writeLockID int64 = 0x73746f7279 // "story"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sentences (
	id BIGSERIAL PRIMARY KEY,
	text TEXT NOT NULL,
	author TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	client_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sentences_client ON sentences(client_id, id);
`

// PostgresLedger implementa domain.Ledger sobre Postgres.
//
// Cada Write pega pg_advisory_xact_lock dentro da transação, então várias
// instâncias do serviço podem compartilhar o mesmo banco.
type PostgresLedger struct {
	db *sql.DB
}

// OpenPostgresLedger conecta em dsn e garante o schema.
func OpenPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}
	l := NewPostgresLedger(db)
	if err := l.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// NewPostgresLedger usa uma conexão já aberta (útil com sqlmock).
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Close() error {
	return l.db.Close()
}

func (l *PostgresLedger) Latest(ctx context.Context) (*domain.Contribution, error) {
	var (
		c   domain.Contribution
		key string
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT id, text, author, client_id, created_at
		FROM sentences
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&c.Seq, &c.Text, &c.Author, &key, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "latest", Err: err}
	}
	c.ContributorKey = domain.ContributorKey(key)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (l *PostgresLedger) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sentences").Scan(&n); err != nil {
		return 0, &domain.StorageError{Op: "count", Err: err}
	}
	return n, nil
}

func (l *PostgresLedger) LastContributionTime(ctx context.Context, key domain.ContributorKey) (time.Time, bool, error) {
	return pgLastContributionTime(ctx, l.db, key)
}

func (l *PostgresLedger) Write(ctx context.Context, fn func(domain.LedgerWriter) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "begin", Err: err}
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", writeLockID); err != nil {
		_ = tx.Rollback()
		return &domain.StorageError{Op: "lock", Err: err}
	}
	if err := fn(&postgresWriter{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit", Err: err}
	}
	return nil
}

type postgresWriter struct {
	tx *sql.Tx
}

func (w *postgresWriter) LastContributionTime(ctx context.Context, key domain.ContributorKey) (time.Time, bool, error) {
	return pgLastContributionTime(ctx, w.tx, key)
}

func (w *postgresWriter) Append(ctx context.Context, c domain.NewContribution) (domain.Contribution, error) {
	now := timeNow().UTC()
	var id int64
	err := w.tx.QueryRowContext(ctx, `
		INSERT INTO sentences (text, author, created_at, client_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, c.Text, c.Author, now, string(c.ContributorKey)).Scan(&id)
	if err != nil {
		return domain.Contribution{}, &domain.StorageError{Op: "append", Err: err}
	}
	return domain.Contribution{
		Seq:            id,
		Text:           c.Text,
		Author:         c.Author,
		ContributorKey: c.ContributorKey,
		CreatedAt:      now,
	}, nil
}

func pgLastContributionTime(ctx context.Context, q queryRower, key domain.ContributorKey) (time.Time, bool, error) {
	var at time.Time
	err := q.QueryRowContext(ctx, `
		SELECT created_at
		FROM sentences
		WHERE client_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, string(key)).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &domain.StorageError{Op: "last contribution", Err: err}
	}
	return at.UTC(), true, nil
}
