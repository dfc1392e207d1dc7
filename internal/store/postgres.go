package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ledger_state (
    id         SMALLINT PRIMARY KEY CHECK (id = 1),
    version    BIGINT      NOT NULL,
    snapshot   JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS journal_entries (
    id        UUID PRIMARY KEY,
    version   BIGINT      NOT NULL UNIQUE,
    op        TEXT        NOT NULL,
    caller    TEXT        NOT NULL,
    accounts  TEXT[]      NOT NULL,
    block     BIGINT      NOT NULL,
    outcome   TEXT        NOT NULL,
    params    JSONB       NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_journal_accounts ON journal_entries USING GIN (accounts);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
// The snapshot is a single JSONB row; the journal is append-only.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) LoadState(ctx context.Context) (*model.State, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot::TEXT FROM ledger_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return model.UnmarshalState(data)
}

// Commit writes the snapshot and the journal entry in one transaction.
// The state row is locked so concurrent writers serialize on the version.
func (s *PostgresStore) Commit(ctx context.Context, st *model.State, entry *model.JournalEntry) error {
	data, err := model.MarshalState(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var stored int64
	err = tx.QueryRow(ctx,
		`SELECT version FROM ledger_state WHERE id = 1 FOR UPDATE`).Scan(&stored)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("read version: %w", err)
	}
	if err := checkVersion(uint64(stored), st, entry); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_state (id, version, snapshot, updated_at)
		 VALUES (1, $1, $2::JSONB, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET version = EXCLUDED.version, snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`,
		int64(st.Version), string(data), entry.Timestamp,
	); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO journal_entries (id, version, op, caller, accounts, block, outcome, params, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::JSONB, $9)`,
		entry.ID, int64(entry.Version), entry.Op, string(entry.Caller), entry.Accounts,
		int64(entry.Block), entry.Outcome, paramsText(entry.Params), entry.Timestamp,
	); err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetJournalEntry(ctx context.Context, id string) (*model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx, journalSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := scanJournalEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("journal entry %s: %w", id, ErrNotFound)
	}
	return &entries[0], nil
}

func (s *PostgresStore) ListJournal(ctx context.Context, after uint64, limit int) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		journalSelect+` WHERE version > $1 ORDER BY version LIMIT $2`,
		int64(after), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func (s *PostgresStore) ListJournalByAccount(ctx context.Context, acct account.Account, limit int) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		journalSelect+` WHERE $1 = ANY(accounts) ORDER BY version DESC LIMIT $2`,
		string(acct), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

const journalSelect = `SELECT id::TEXT, version, op, caller, accounts, block, outcome, params::TEXT, timestamp
	FROM journal_entries`

// scanJournalEntries reads pgx rows into JournalEntry slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanJournalEntries(rows pgxRows) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var version, block int64
		var caller, params string
		var ts time.Time

		if err := rows.Scan(&e.ID, &version, &e.Op, &caller, &e.Accounts,
			&block, &e.Outcome, &params, &ts); err != nil {
			return nil, err
		}

		e.Version = uint64(version)
		e.Block = uint64(block)
		e.Caller = account.Account(caller)
		e.Params = []byte(params)
		e.Timestamp = ts.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func paramsText(p []byte) string {
	if len(p) == 0 {
		return "{}"
	}
	return string(p)
}
