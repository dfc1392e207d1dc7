package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/model"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_state (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    version    INTEGER NOT NULL,
    snapshot   TEXT    NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS journal_entries (
    id        TEXT    PRIMARY KEY,
    version   INTEGER NOT NULL UNIQUE,
    op        TEXT    NOT NULL,
    caller    TEXT    NOT NULL,
    accounts  TEXT    NOT NULL,
    block     INTEGER NOT NULL,
    outcome   TEXT    NOT NULL,
    params    TEXT    NOT NULL,
    timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS journal_accounts (
    entry_id TEXT    NOT NULL REFERENCES journal_entries(id),
    account  TEXT    NOT NULL,
    version  INTEGER NOT NULL,
    PRIMARY KEY (entry_id, account)
);

CREATE INDEX IF NOT EXISTS idx_journal_accounts ON journal_accounts(account, version DESC);
`

// SQLiteStore implements Store on a single SQLite file (pure Go, no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadState(ctx context.Context) (*model.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM ledger_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return model.UnmarshalState([]byte(data))
}

func (s *SQLiteStore) Commit(ctx context.Context, st *model.State, entry *model.JournalEntry) error {
	data, err := model.MarshalState(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	accounts, err := json.Marshal(entry.Accounts)
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var stored int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM ledger_state WHERE id = 1`).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read version: %w", err)
	}
	if err := checkVersion(uint64(stored), st, entry); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_state (id, version, snapshot, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET version = excluded.version,
		     snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		int64(st.Version), string(data), entry.Timestamp.UnixNano(),
	); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO journal_entries (id, version, op, caller, accounts, block, outcome, params, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, int64(entry.Version), entry.Op, string(entry.Caller), string(accounts),
		int64(entry.Block), entry.Outcome, paramsText(entry.Params), entry.Timestamp.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}

	for _, a := range entry.Accounts {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO journal_accounts (entry_id, account, version) VALUES (?, ?, ?)`,
			entry.ID, a, int64(entry.Version),
		); err != nil {
			return fmt.Errorf("index journal entry: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetJournalEntry(ctx context.Context, id string) (*model.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, sqliteJournalSelect+` WHERE j.id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := scanSQLiteEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("journal entry %s: %w", id, ErrNotFound)
	}
	return &entries[0], nil
}

func (s *SQLiteStore) ListJournal(ctx context.Context, after uint64, limit int) ([]model.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteJournalSelect+` WHERE j.version > ? ORDER BY j.version LIMIT ?`,
		int64(after), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteEntries(rows)
}

func (s *SQLiteStore) ListJournalByAccount(ctx context.Context, acct account.Account, limit int) ([]model.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		sqliteJournalSelect+` JOIN journal_accounts a ON a.entry_id = j.id
		 WHERE a.account = ? ORDER BY j.version DESC LIMIT ?`,
		string(acct), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteEntries(rows)
}

const sqliteJournalSelect = `SELECT j.id, j.version, j.op, j.caller, j.accounts, j.block, j.outcome, j.params, j.timestamp
	FROM journal_entries j`

func scanSQLiteEntries(rows *sql.Rows) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var version, block, ts int64
		var caller, accounts, params string

		if err := rows.Scan(&e.ID, &version, &e.Op, &caller, &accounts,
			&block, &e.Outcome, &params, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(accounts), &e.Accounts); err != nil {
			return nil, fmt.Errorf("decode accounts of %s: %w", e.ID, err)
		}

		e.Version = uint64(version)
		e.Block = uint64(block)
		e.Caller = account.Account(caller)
		e.Params = []byte(params)
		e.Timestamp = time.Unix(0, ts).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
