package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/slimefarm/ledger-engine/internal/config"
	"github.com/slimefarm/ledger-engine/internal/store"
)

// openStore selects the store: Postgres when a database URL is set
// (wrapped with the Redis read-through cache when a Redis URL is set),
// else SQLite when a path is set, else memory. The returned cleanup
// releases every connection that was opened.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (store.Store, func(), error) {
	var cleanup []func()
	closeAll := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("connected to PostgreSQL")

		var st store.Store = pg
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			logger.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
		return st, closeAll, nil

	case cfg.SQLitePath != "":
		sq, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened SQLite store", "path", cfg.SQLitePath)
		return sq, func() { sq.Close() }, nil

	default:
		logger.Warn("no database configured, using in-memory store (data will not persist)")
		return store.NewMemoryStore(), func() {}, nil
	}
}

// lastBlock returns the block of the newest committed journal entry so
// a restarted block clock never runs backwards.
func lastBlock(ctx context.Context, st store.Store) (uint64, error) {
	snap, err := st.LoadState(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	entries, err := st.ListJournal(ctx, snap.Version-1, 1)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[0].Block, nil
}
