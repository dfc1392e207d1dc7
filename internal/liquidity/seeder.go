package liquidity

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/ledger"
	"github.com/slimefarm/ledger-engine/internal/model"
)

// Env is the environment a seeding request executes in.
type Env struct {
	Caller account.Account
	Now    int64
	Block  uint64
}

// Request describes one deposit into the pool.
type Request struct {
	Token         uint256.Int // tokens taken from the contract balance
	Base          uint256.Int // base currency attached by the caller
	Activate      bool        // open trading after the deposit
	EnableAntibot bool        // start the antibot freeze on activation
}

// Result reports a completed deposit.
type Result struct {
	Token     uint256.Int `json:"token"`
	Base      uint256.Int `json:"base"`
	Share     uint256.Int `json:"share"`
	Activated bool        `json:"activated"`
}

// Seeder moves tokens from the contract balance to the pool. Callers must
// have checked privilege already.
type Seeder struct {
	st   *model.State
	led  *ledger.Ledger
	pool Pool
}

// NewSeeder wraps st and pool.
func NewSeeder(st *model.State, pool Pool) *Seeder {
	return &Seeder{st: st, led: ledger.New(st), pool: pool}
}

// AddLiquidity deposits req.Token from the contract and req.Base into the
// pool. Every ledger mutation happens before the pool is called, and the
// in-progress flag rejects a pool that calls back in.
func (s *Seeder) AddLiquidity(ctx context.Context, env Env, req Request) (Result, error) {
	if s.st.Liquidity.InProgress {
		return Result{}, fault.ErrReentrant
	}
	if req.Token.IsZero() || req.Base.IsZero() {
		return Result{}, fmt.Errorf("%w: token and base amounts must be positive", fault.ErrInvalidAmount)
	}
	contract := s.st.System.Contract
	held := s.led.BalanceOf(contract)
	if held.Lt(&req.Token) {
		return Result{}, fmt.Errorf("%w: contract holds %s, requested %s",
			fault.ErrInvalidRatio, held.Dec(), req.Token.Dec())
	}
	if req.Activate && !s.st.Pause.TradingPaused {
		return Result{}, fault.ErrAlreadyActive
	}
	if s.pool.Address() != s.st.System.Pool {
		return Result{}, fmt.Errorf("%w: pool %s is not the configured counterparty %s",
			fault.ErrInvariant, s.pool.Address(), s.st.System.Pool)
	}

	// Effects.
	s.st.Liquidity.InProgress = true
	if err := s.led.Move(contract, s.pool.Address(), req.Token); err != nil {
		return Result{}, err
	}
	liq := &s.st.Liquidity
	if _, overflow := liq.TokenTotal.AddOverflow(&liq.TokenTotal, &req.Token); overflow {
		return Result{}, fmt.Errorf("%w: seeded token total", fault.ErrOverflow)
	}
	if _, overflow := liq.BaseTotal.AddOverflow(&liq.BaseTotal, &req.Base); overflow {
		return Result{}, fmt.Errorf("%w: seeded base total", fault.ErrOverflow)
	}
	liq.Seeded = true
	if req.Activate {
		s.activate(env, req.EnableAntibot)
	}

	// Interaction.
	share, err := s.pool.AddLiquidity(ctx, req.Token, req.Base)
	if err != nil {
		return Result{}, fmt.Errorf("pool add liquidity: %w", err)
	}
	liq.Shares.Add(&liq.Shares, &share)
	liq.InProgress = false

	return Result{Token: req.Token, Base: req.Base, Share: share, Activated: req.Activate}, nil
}

// AddInitialLiquidity first pulls req.Token from the caller into the
// contract, then deposits and activates trading.
func (s *Seeder) AddInitialLiquidity(ctx context.Context, env Env, req Request) (Result, error) {
	if s.st.Liquidity.InProgress {
		return Result{}, fault.ErrReentrant
	}
	if !s.st.Pause.TradingPaused {
		return Result{}, fault.ErrAlreadyActive
	}
	if req.Token.IsZero() {
		return Result{}, fmt.Errorf("%w: token amount must be positive", fault.ErrInvalidAmount)
	}
	if err := s.led.Move(env.Caller, s.st.System.Contract, req.Token); err != nil {
		return Result{}, err
	}
	req.Activate = true
	return s.AddLiquidity(ctx, env, req)
}

// Activate opens trading without a deposit.
func (s *Seeder) Activate(env Env, antibot bool) error {
	if !s.st.Pause.TradingPaused {
		return fault.ErrAlreadyActive
	}
	s.activate(env, antibot)
	return nil
}

// activate is one-way: nothing sets TradingPaused back to true.
func (s *Seeder) activate(env Env, antibot bool) {
	s.st.Pause.TradingPaused = false
	s.st.Pause.ActivatedAt = env.Now
	if antibot {
		s.st.Antibot.Enabled = true
		s.st.Antibot.ActivationBlock = env.Block
	}
}
