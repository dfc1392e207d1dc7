package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/model"
)

// MemoryStore implements Store in memory. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot []byte // encoded so callers can never alias stored state
	version  uint64
	journal  []model.JournalEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LoadState(_ context.Context) (*model.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return nil, ErrNotFound
	}
	return model.UnmarshalState(s.snapshot)
}

func (s *MemoryStore) Commit(_ context.Context, st *model.State, entry *model.JournalEntry) error {
	data, err := model.MarshalState(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkVersion(s.version, st, entry); err != nil {
		return err
	}
	s.snapshot = data
	s.version = st.Version
	s.journal = append(s.journal, copyEntry(*entry))
	return nil
}

func (s *MemoryStore) GetJournalEntry(_ context.Context, id string) (*model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.journal {
		if e.ID == id {
			c := copyEntry(e)
			return &c, nil
		}
	}
	return nil, fmt.Errorf("journal entry %s: %w", id, ErrNotFound)
}

func (s *MemoryStore) ListJournal(_ context.Context, after uint64, limit int) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = clampLimit(limit)
	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.Version <= after {
			continue
		}
		result = append(result, copyEntry(e))
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) ListJournalByAccount(_ context.Context, acct account.Account, limit int) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = clampLimit(limit)
	var result []model.JournalEntry
	for i := len(s.journal) - 1; i >= 0 && len(result) < limit; i-- {
		if touches(s.journal[i], acct) {
			result = append(result, copyEntry(s.journal[i]))
		}
	}
	return result, nil
}

func touches(e model.JournalEntry, acct account.Account) bool {
	for _, a := range e.Accounts {
		if a == string(acct) {
			return true
		}
	}
	return false
}

func copyEntry(e model.JournalEntry) model.JournalEntry {
	e.Accounts = append([]string(nil), e.Accounts...)
	e.Params = append([]byte(nil), e.Params...)
	return e
}
