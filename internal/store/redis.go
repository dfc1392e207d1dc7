package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Commits go to the primary store and then refresh the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
	prefix  string
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		prefix:  "ledger",
	}
}

// WithPrefix namespaces cache keys, e.g. per test run.
func (s *CachedStore) WithPrefix(prefix string) *CachedStore {
	s.prefix = prefix
	return s
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) Commit(ctx context.Context, st *model.State, entry *model.JournalEntry) error {
	if err := s.primary.Commit(ctx, st, entry); err != nil {
		// The primary may have moved on without us; drop the snapshot so
		// the next read goes to the source of truth.
		s.rdb.Del(ctx, s.stateKey())
		return err
	}
	if data, err := model.MarshalState(st); err == nil {
		s.rdb.Set(ctx, s.stateKey(), data, s.ttl)
	}
	s.cacheEntry(ctx, entry)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LoadState(ctx context.Context) (*model.State, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, s.stateKey()).Bytes()
	if err == nil {
		if st, err := model.UnmarshalState(data); err == nil {
			return st, nil
		}
	}

	// Cache miss: read from primary.
	st, err := s.primary.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := model.MarshalState(st); err == nil {
		s.rdb.Set(ctx, s.stateKey(), data, s.ttl)
	}
	return st, nil
}

func (s *CachedStore) GetJournalEntry(ctx context.Context, id string) (*model.JournalEntry, error) {
	data, err := s.rdb.Get(ctx, s.entryKey(id)).Bytes()
	if err == nil {
		var e model.JournalEntry
		if json.Unmarshal(data, &e) == nil {
			return &e, nil
		}
	}

	e, err := s.primary.GetJournalEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheEntry(ctx, e)
	return e, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListJournal(ctx context.Context, after uint64, limit int) ([]model.JournalEntry, error) {
	return s.primary.ListJournal(ctx, after, limit)
}

func (s *CachedStore) ListJournalByAccount(ctx context.Context, acct account.Account, limit int) ([]model.JournalEntry, error) {
	return s.primary.ListJournalByAccount(ctx, acct, limit)
}

// --- Cache helpers ---

// Entries are immutable so they can be cached without invalidation.
func (s *CachedStore) cacheEntry(ctx context.Context, e *model.JournalEntry) {
	if data, err := json.Marshal(e); err == nil {
		s.rdb.Set(ctx, s.entryKey(e.ID), data, s.ttl)
	}
}

func (s *CachedStore) stateKey() string         { return fmt.Sprintf("%s:state", s.prefix) }
func (s *CachedStore) entryKey(id string) string { return fmt.Sprintf("%s:journal:%s", s.prefix, id) }
