package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"story-chain/story/domain"

	_ "modernc.org/sqlite" // driver SQLite em Go puro
)

// timeNow pode ser trocado nos testes.
var timeNow = time.Now

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sentences (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	author TEXT NOT NULL,
	created_at TEXT NOT NULL,
	client_id TEXT NOT NULL
);
`

// SQLiteLedger implementa domain.Ledger sobre um arquivo SQLite.
//
// O formato da tabela é o mesmo da versão anterior do serviço, então um
// banco existente pode ser aberto direto. Escritas passam por um mutex do
// processo e por transações BEGIN IMMEDIATE (_txlock), o que também protege
// contra outro processo escrevendo no mesmo arquivo.
type SQLiteLedger struct {
	db   *sql.DB
	path string
	wmu  sync.Mutex
}

// OpenSQLiteLedger abre (ou cria) o banco em path e aplica schema/migração.
func OpenSQLiteLedger(ctx context.Context, path string) (*SQLiteLedger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// cada conexão de :memory: é um banco diferente
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database: %w", err)
	}

	l := &SQLiteLedger{db: db, path: path}
	if err := l.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func (l *SQLiteLedger) ensureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	// bancos antigos não tinham client_id
	rows, err := l.db.QueryContext(ctx, "PRAGMA table_info(sentences)")
	if err != nil {
		return fmt.Errorf("reading table info: %w", err)
	}
	hasClientID := false
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scanning table info: %w", err)
		}
		if name == "client_id" {
			hasClientID = true
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("reading table info: %w", err)
	}
	if !hasClientID {
		if _, err := l.db.ExecContext(ctx, "ALTER TABLE sentences ADD COLUMN client_id TEXT NOT NULL DEFAULT ''"); err != nil {
			return fmt.Errorf("adding client_id column: %w", err)
		}
	}

	if _, err := l.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_sentences_client ON sentences(client_id, id)"); err != nil {
		return fmt.Errorf("creating client index: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) Path() string {
	return l.path
}

// Latest retorna a contribuição de maior id, ou nil se o ledger está vazio.
func (l *SQLiteLedger) Latest(ctx context.Context) (*domain.Contribution, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, text, author, client_id, created_at
		FROM sentences
		ORDER BY id DESC
		LIMIT 1
	`)
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "latest", Err: err}
	}
	return &c, nil
}

func (l *SQLiteLedger) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sentences").Scan(&n); err != nil {
		return 0, &domain.StorageError{Op: "count", Err: err}
	}
	return n, nil
}

func (l *SQLiteLedger) LastContributionTime(ctx context.Context, key domain.ContributorKey) (time.Time, bool, error) {
	return lastContributionTime(ctx, l.db, key)
}

// Write roda fn numa transação IMMEDIATE. Erros de fn voltam sem embrulho;
// falhas do banco viram domain.StorageError.
func (l *SQLiteLedger) Write(ctx context.Context, fn func(domain.LedgerWriter) error) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "begin", Err: err}
	}
	if err := fn(&sqliteWriter{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit", Err: err}
	}
	return nil
}

type sqliteWriter struct {
	tx *sql.Tx
}

func (w *sqliteWriter) LastContributionTime(ctx context.Context, key domain.ContributorKey) (time.Time, bool, error) {
	return lastContributionTime(ctx, w.tx, key)
}

func (w *sqliteWriter) Append(ctx context.Context, c domain.NewContribution) (domain.Contribution, error) {
	now := timeNow().UTC()
	res, err := w.tx.ExecContext(ctx, `
		INSERT INTO sentences (text, author, created_at, client_id)
		VALUES (?, ?, ?, ?)
	`, c.Text, c.Author, now.Format(time.RFC3339Nano), string(c.ContributorKey))
	if err != nil {
		return domain.Contribution{}, &domain.StorageError{Op: "append", Err: err}
	}
	id, err := res.LastInsertId()
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

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lastContributionTime(ctx context.Context, q queryRower, key domain.ContributorKey) (time.Time, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT created_at
		FROM sentences
		WHERE client_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, string(key)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, &domain.StorageError{Op: "last contribution", Err: err}
	}
	at, err := parseTimestamp(raw)
	if err != nil {
		return time.Time{}, false, &domain.StorageError{Op: "last contribution", Err: err}
	}
	return at, true, nil
}

func scanContribution(row *sql.Row) (domain.Contribution, error) {
	var (
		c   domain.Contribution
		key string
		raw string
	)
	if err := row.Scan(&c.Seq, &c.Text, &c.Author, &key, &raw); err != nil {
		return domain.Contribution{}, err
	}
	at, err := parseTimestamp(raw)
	if err != nil {
		return domain.Contribution{}, err
	}
	c.ContributorKey = domain.ContributorKey(key)
	c.CreatedAt = at
	return c, nil
}

// parseTimestamp aceita RFC 3339 com ou sem fração (inclui o isoformat
// "+00:00" gravado pela versão anterior).
func parseTimestamp(raw string) (time.Time, error) {
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at %q: %w", raw, err)
	}
	return at.UTC(), nil
}
