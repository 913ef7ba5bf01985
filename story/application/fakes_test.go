package application

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"story-chain/story/domain"
)

// memLedger é um ledger em memória com a mesma disciplina de escritor único
// do SQLiteLedger: Write segura o lock do início ao fim e descarta o que fn
// gravou se ela falhar.
type memLedger struct {
	mu      sync.RWMutex
	wmu     sync.Mutex
	rows    []domain.Contribution
	now     func() time.Time
	failErr error
}

func newMemLedger(now func() time.Time) *memLedger {
	return &memLedger{now: now}
}

func (l *memLedger) Latest(context.Context) (*domain.Contribution, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.rows) == 0 {
		return nil, nil
	}
	c := l.rows[len(l.rows)-1]
	return &c, nil
}

func (l *memLedger) Count(context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.rows)), nil
}

func (l *memLedger) LastContributionTime(_ context.Context, key domain.ContributorKey) (time.Time, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lastFor(l.rows, key)
}

func (l *memLedger) Write(ctx context.Context, fn func(domain.LedgerWriter) error) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	l.mu.RLock()
	tx := &memTx{l: l, base: append([]domain.Contribution(nil), l.rows...)}
	l.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	if l.failErr != nil {
		return &domain.StorageError{Op: "commit", Err: l.failErr}
	}
	l.mu.Lock()
	l.rows = append(l.rows, tx.pending...)
	l.mu.Unlock()
	return nil
}

type memTx struct {
	l       *memLedger
	base    []domain.Contribution
	pending []domain.Contribution
}

func (t *memTx) LastContributionTime(_ context.Context, key domain.ContributorKey) (time.Time, bool, error) {
	return lastFor(append(t.base, t.pending...), key)
}

func (t *memTx) Append(_ context.Context, c domain.NewContribution) (domain.Contribution, error) {
	row := domain.Contribution{
		Seq:            int64(len(t.base)+len(t.pending)) + 1,
		Text:           c.Text,
		Author:         c.Author,
		ContributorKey: c.ContributorKey,
		CreatedAt:      t.l.now(),
	}
	t.pending = append(t.pending, row)
	return row, nil
}

func lastFor(rows []domain.Contribution, key domain.ContributorKey) (time.Time, bool, error) {
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].ContributorKey == key {
			return rows[i].CreatedAt, true, nil
		}
	}
	return time.Time{}, false, nil
}

// staticResolver aceita qualquer token não vazio e emite "new-N" para vazios.
type staticResolver struct {
	mu     sync.Mutex
	issued int
}

func (r *staticResolver) Resolve(token string) (domain.ContributorKey, string) {
	if token != "" {
		return domain.ContributorKey(token), ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued++
	tok := "new-" + strconv.Itoa(r.issued)
	return domain.ContributorKey(tok), tok
}

type recordingStats struct {
	mu     sync.Mutex
	events []domain.StatsEvent
	err    error
}

func (s *recordingStats) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingStats) outcomes() []domain.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Outcome, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Outcome)
	}
	return out
}

type historyFunc func(ctx context.Context, key domain.ContributorKey) (time.Time, bool, error)

func (f historyFunc) LastContributionTime(ctx context.Context, key domain.ContributorKey) (time.Time, bool, error) {
	return f(ctx, key)
}

var errDiskFull = errors.New("disk full")
