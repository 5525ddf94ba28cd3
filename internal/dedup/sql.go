package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Dialect selects placeholder syntax for SQLStore.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

const (
	claimQuery = `INSERT INTO callback_dedup (message_id, state, claimed_at, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (message_id) DO UPDATE SET
  state = excluded.state,
  claimed_at = excluded.claimed_at,
  expires_at = excluded.expires_at
WHERE callback_dedup.expires_at <= excluded.claimed_at`

	completeQuery = `INSERT INTO callback_dedup (message_id, state, claimed_at, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (message_id) DO UPDATE SET
  state = excluded.state,
  expires_at = excluded.expires_at`

	pruneQuery = `DELETE FROM callback_dedup WHERE expires_at <= ?`
)

// SQLStore keeps records in the callback_dedup table created by the storage
// package. Times are stored as unix milliseconds.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	closed  atomic.Bool
	now     func() time.Time

	claim, complete, prune string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database whose schema is already bootstrapped.
// The store owns db and closes it on Close.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:       db,
		dialect:  dialect,
		now:      time.Now,
		claim:    rebind(dialect, claimQuery),
		complete: rebind(dialect, completeQuery),
		prune:    rebind(dialect, pruneQuery),
	}
}

func (s *SQLStore) Claim(ctx context.Context, key string, lease time.Duration) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, s.claim, key, string(StateProcessing), now.UnixMilli(), now.Add(lease).UnixMilli())
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup claim rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) Complete(ctx context.Context, key string, retention time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	now := s.now()
	if _, err := s.db.ExecContext(ctx, s.complete, key, string(StateProcessed), now.UnixMilli(), now.Add(retention).UnixMilli()); err != nil {
		return fmt.Errorf("dedup complete: %w", err)
	}
	return nil
}

func (s *SQLStore) Prune(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, s.prune, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("dedup prune: %w", err)
	}
	return res.RowsAffected()
}

// State returns the live state of key, if any.
func (s *SQLStore) State(ctx context.Context, key string) (State, bool, error) {
	q := rebind(s.dialect, `SELECT state FROM callback_dedup WHERE message_id = ? AND expires_at > ?`)
	var state string
	err := s.db.QueryRowContext(ctx, q, key, s.now().UnixMilli()).Scan(&state)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup state: %w", err)
	}
	return State(state), true, nil
}

func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// rebind converts ? placeholders to $n for Postgres.
func rebind(d Dialect, query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
