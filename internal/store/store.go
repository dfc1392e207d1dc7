// Package store defines the persistence interface for the ledger engine.
// Implementations include PostgreSQL (source of truth), SQLite (single
// node), Redis (read-through cache) and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/model"
)

var (
	// ErrNotFound is returned when nothing has been committed yet or a
	// journal entry does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrVersionConflict is returned when a commit does not extend the
	// stored snapshot by exactly one version.
	ErrVersionConflict = errors.New("store: version conflict")
)

// Store is the persistence interface. Every committed request writes the
// full state snapshot and one journal entry in a single atomic unit.
type Store interface {
	// --- State snapshot ---

	// LoadState returns the latest committed snapshot, or ErrNotFound.
	LoadState(ctx context.Context) (*model.State, error)

	// Commit persists st and appends entry atomically. st.Version must be
	// the stored version plus one (or 1 for the first commit) and must
	// equal entry.Version.
	Commit(ctx context.Context, st *model.State, entry *model.JournalEntry) error

	// --- Immutable journal ---

	// GetJournalEntry retrieves one entry by id.
	GetJournalEntry(ctx context.Context, id string) (*model.JournalEntry, error)

	// ListJournal returns entries with version > after, oldest first.
	ListJournal(ctx context.Context, after uint64, limit int) ([]model.JournalEntry, error)

	// ListJournalByAccount returns the newest entries touching acct.
	ListJournalByAccount(ctx context.Context, acct account.Account, limit int) ([]model.JournalEntry, error)
}

// checkVersion validates a commit against the currently stored version.
func checkVersion(stored uint64, st *model.State, entry *model.JournalEntry) error {
	if st.Version != stored+1 || entry.Version != st.Version {
		return fmt.Errorf("%w: stored %d, state %d, entry %d",
			ErrVersionConflict, stored, st.Version, entry.Version)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

const maxListLimit = 500
