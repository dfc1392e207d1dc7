// Package engine executes ledger requests one at a time. Each request runs
// against a clone of the committed state; on success the new snapshot and
// a journal entry are committed atomically before the clone replaces the
// in-memory state. A failed request leaves both untouched.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/access"
	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/chain"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/ledger"
	"github.com/slimefarm/ledger-engine/internal/liquidity"
	"github.com/slimefarm/ledger-engine/internal/metrics"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/store"
	"github.com/slimefarm/ledger-engine/internal/tax"
)

// Deps are the collaborators of an Engine.
type Deps struct {
	Store  store.Store
	Clock  chain.Clock
	Pool   liquidity.Pool
	Access access.Controller // defaults to access.OwnerSet
	Logger *slog.Logger      // defaults to slog.Default()
}

// Engine serializes requests with a mutex (single-instance). Reads load
// the last committed snapshot without locking.
//
// The pool is the only collaborator called while the request lock is held.
// A request issued during that call, including one the pool itself makes,
// fails with fault.ErrReentrant instead of waiting on the lock.
type Engine struct {
	mu          sync.Mutex
	store       store.Store
	clock       chain.Clock
	pool        *guardedPool
	access      access.Controller
	logger      *slog.Logger
	state       atomic.Pointer[model.State]
	interacting atomic.Bool
	onCommit    []func(model.JournalEntry)
}

// New loads the committed state from deps.Store. If nothing has been
// committed yet the genesis state is built from g and committed as
// version 1.
func New(ctx context.Context, deps Deps, g Genesis) (*Engine, error) {
	if deps.Store == nil || deps.Clock == nil || deps.Pool == nil {
		return nil, errors.New("engine: store, clock and pool are required")
	}
	if deps.Access == nil {
		deps.Access = access.OwnerSet{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	e := &Engine{
		store:  deps.Store,
		clock:  deps.Clock,
		access: deps.Access,
		logger: deps.Logger,
	}
	e.pool = &guardedPool{Pool: deps.Pool, busy: &e.interacting}

	st, err := deps.Store.LoadState(ctx)
	switch {
	case err == nil:
		e.state.Store(st)
		e.logger.Info("state loaded", "version", st.Version, "positions", len(st.Positions))
	case errors.Is(err, store.ErrNotFound):
		if err := e.genesis(ctx, g); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("engine: load state: %w", err)
	}

	committed := e.state.Load()
	if committed.System.Pool != deps.Pool.Address() {
		return nil, fmt.Errorf("engine: pool %s does not match state pool %s",
			deps.Pool.Address(), committed.System.Pool)
	}
	metrics.StateVersion.Set(float64(committed.Version))
	return e, nil
}

func (e *Engine) genesis(ctx context.Context, g Genesis) error {
	st, err := NewGenesisState(g)
	if err != nil {
		return err
	}
	st.Version = 1
	entry := &model.JournalEntry{
		ID:        uuid.NewString(),
		Op:        "genesis",
		Caller:    g.Deployer,
		Accounts:  []string{string(g.Deployer)},
		Block:     e.clock.Block(),
		Outcome:   model.OutcomeOK,
		Params:    mustJSON(map[string]any{"initial_supply": st.TotalSupply.Dec()}),
		Version:   1,
		Timestamp: time.Unix(e.clock.Now(), 0).UTC(),
	}
	if err := e.store.Commit(ctx, st, entry); err != nil {
		return fmt.Errorf("engine: commit genesis: %w", err)
	}
	e.state.Store(st)
	e.logger.Info("genesis committed", "deployer", g.Deployer, "supply", st.TotalSupply.Dec())
	return nil
}

// OnCommit registers fn to run after every committed request. fn runs
// while the request lock is held; it may read but must not issue requests.
func (e *Engine) OnCommit(fn func(model.JournalEntry)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCommit = append(e.onCommit, fn)
}

// txn is the scratch space of one request.
type txn struct {
	ctx        context.Context
	st         *model.State
	caller     account.Account
	now        int64
	block      uint64
	privileged bool
	accounts   map[account.Account]struct{}
	outcome    string
	poolCalls  uint64 // pool interactions before the request began
}

func (t *txn) touch(accts ...account.Account) {
	for _, a := range accts {
		if a != "" {
			t.accounts[a] = struct{}{}
		}
	}
}

func (t *txn) taxEnv() tax.Env {
	return tax.Env{Block: t.block, Now: t.now}
}

func (t *txn) requirePrivileged(c access.Controller) error {
	return access.Require(c, t.st, t.caller)
}

// run executes fn as one atomic request.
func run[T any](e *Engine, ctx context.Context, op string, caller account.Account, params map[string]any,
	fn func(*txn) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	if e.interacting.Load() {
		err := fmt.Errorf("%w: %s issued during a pool call", fault.ErrReentrant, op)
		e.reject(op, caller, err)
		return zero, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	committed := e.state.Load()
	t := &txn{
		ctx:      ctx,
		st:       committed.Clone(),
		caller:   caller,
		now:      e.clock.Now(),
		block:    e.clock.Block(),
		accounts: make(map[account.Account]struct{}),
		outcome:  model.OutcomeOK,
	}
	t.poolCalls = e.pool.calls.Load()
	t.privileged = e.access.IsPrivileged(t.st, caller)
	t.touch(caller)
	metrics.BlockHeight.Set(float64(t.block))

	result, err := fn(t)
	if err == nil {
		err = ledger.New(t.st).CheckInvariants()
	}
	if err != nil {
		e.reject(op, caller, err)
		return zero, err
	}

	t.st.Version = committed.Version + 1
	entry := model.JournalEntry{
		ID:        uuid.NewString(),
		Op:        op,
		Caller:    caller,
		Accounts:  sortedAccounts(t.accounts),
		Block:     t.block,
		Outcome:   t.outcome,
		Params:    mustJSON(params),
		Version:   t.st.Version,
		Timestamp: time.Unix(t.now, 0).UTC(),
	}
	if err := e.store.Commit(ctx, t.st, &entry); err != nil {
		err = fmt.Errorf("%w: commit: %v", fault.ErrInvariant, err)
		if e.pool.calls.Load() != t.poolCalls {
			e.logger.Error("pool deposit not rolled back after failed commit",
				"op", op, "version", t.st.Version, "err", err)
		}
		e.reject(op, caller, err)
		return zero, err
	}
	e.state.Store(t.st)

	metrics.RequestsTotal.WithLabelValues(op, t.outcome).Inc()
	metrics.RequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.StateVersion.Set(float64(t.st.Version))

	level := slog.LevelInfo
	if t.outcome == model.OutcomeIntercepted {
		level = slog.LevelWarn
	}
	attrs := []any{"op", op, "caller", caller, "outcome", t.outcome, "version", entry.Version, "block", t.block}
	for k, v := range params {
		attrs = append(attrs, k, v)
	}
	e.logger.Log(ctx, level, "request committed", attrs...)

	for _, fn := range e.onCommit {
		fn(entry)
	}
	return result, nil
}

// guardedPool marks the engine busy for the duration of each deposit.
type guardedPool struct {
	liquidity.Pool
	busy  *atomic.Bool
	calls atomic.Uint64
}

func (g *guardedPool) AddLiquidity(ctx context.Context, token, base uint256.Int) (uint256.Int, error) {
	g.busy.Store(true)
	defer g.busy.Store(false)
	g.calls.Add(1)
	return g.Pool.AddLiquidity(ctx, token, base)
}

func (e *Engine) reject(op string, caller account.Account, err error) {
	code := fault.CodeOf(err)
	metrics.RequestsTotal.WithLabelValues(op, code).Inc()
	if fault.KindOf(err) == fault.StateInvariant {
		e.logger.Error("request failed", "op", op, "caller", caller, "code", code, "err", err)
		return
	}
	e.logger.Warn("request rejected", "op", op, "caller", caller, "code", code, "err", err)
}

func sortedAccounts(m map[account.Account]struct{}) []string {
	out := make([]string, 0, len(m))
	for a := range m {
		out = append(out, string(a))
	}
	sort.Strings(out)
	return out
}

func mustJSON(v map[string]any) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage(`{}`)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
