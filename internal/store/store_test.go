package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/units"
)

func sampleState(version uint64) *model.State {
	st := model.NewState()
	bal := units.Tokens(1_000)
	st.Balances["alice"] = &bal
	st.TotalSupply = bal
	st.Positions[0] = &model.Position{ID: 0, Owner: "alice", Principal: units.Tokens(50), LastAccrual: 100, AccruedAt: 100}
	st.NextPositionID = 1
	st.Version = version
	return st
}

func sampleEntry(version uint64, op string, accounts ...string) *model.JournalEntry {
	params, _ := json.Marshal(map[string]string{"op": op})
	return &model.JournalEntry{
		ID:        uuid.NewString(),
		Op:        op,
		Caller:    account.Account(accounts[0]),
		Accounts:  accounts,
		Block:     version * 10,
		Outcome:   model.OutcomeOK,
		Params:    params,
		Version:   version,
		Timestamp: time.Unix(1_700_000_000+int64(version), 0).UTC(),
	}
}

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.LoadState(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	e1 := sampleEntry(1, "transfer", "alice", "bob")
	require.NoError(t, s.Commit(ctx, sampleState(1), e1))

	// Version must advance by exactly one.
	err = s.Commit(ctx, sampleState(3), sampleEntry(3, "transfer", "alice"))
	require.ErrorIs(t, err, ErrVersionConflict)
	err = s.Commit(ctx, sampleState(2), sampleEntry(1, "transfer", "alice"))
	require.ErrorIs(t, err, ErrVersionConflict)

	e2 := sampleEntry(2, "mint", "carol")
	require.NoError(t, s.Commit(ctx, sampleState(2), e2))
	e3 := sampleEntry(3, "claim", "alice")
	require.NoError(t, s.Commit(ctx, sampleState(3), e3))

	st, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Version)
	assert.Equal(t, units.Tokens(1_000), *st.Balances["alice"])
	require.Contains(t, st.Positions, uint64(0))
	assert.Equal(t, int64(100), st.Positions[0].AccruedAt)

	got, err := s.GetJournalEntry(ctx, e2.ID)
	require.NoError(t, err)
	assert.Equal(t, "mint", got.Op)
	assert.Equal(t, []string{"carol"}, got.Accounts)
	assert.JSONEq(t, string(e2.Params), string(got.Params))
	assert.True(t, e2.Timestamp.Equal(got.Timestamp))

	_, err = s.GetJournalEntry(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.ListJournal(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(2), all[0].Version)
	assert.Equal(t, uint64(3), all[1].Version)

	mine, err := s.ListJournalByAccount(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, e3.ID, mine[0].ID, "newest first")
	assert.Equal(t, e1.ID, mine[1].ID)

	one, err := s.ListJournalByAccount(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	st := sampleState(1)
	require.NoError(t, s.Commit(ctx, st, sampleEntry(1, "transfer", "alice")))

	// Mutating the caller's copy must not reach the stored snapshot.
	st.Balances["alice"].SetUint64(1)
	loaded, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, units.Tokens(1_000), *loaded.Balances["alice"])
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(context.Background(), sampleState(1), sampleEntry(1, "transfer", "alice")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	st, err := s.LoadState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Version)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS journal_entries, ledger_state`)
	require.NoError(t, err)
	s := NewPostgresStore(pool)
	require.NoError(t, s.Migrate(ctx))
	exerciseStore(t, s)
}

func TestCachedStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	prefix := fmt.Sprintf("ledgertest-%s", uuid.NewString())
	s := NewCachedStore(NewMemoryStore(), rdb, time.Minute).WithPrefix(prefix)
	exerciseStore(t, s)

	n, err := rdb.Exists(context.Background(), prefix+":state").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
