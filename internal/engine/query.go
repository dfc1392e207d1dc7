package engine

import (
	"context"
	"sort"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/slimefarm/ledger-engine/internal/accrual"
	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/ledger"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/position"
	"github.com/slimefarm/ledger-engine/internal/tax"
)

// Status summarizes the trading, antibot and presale state.
type Status struct {
	Version         uint64               `json:"version"`
	Block           uint64               `json:"block"`
	Now             int64                `json:"now"`
	TradingPaused   bool                 `json:"trading_paused"`
	ActivatedAt     int64                `json:"activated_at"`
	InLaunchWindow  bool                 `json:"in_launch_window"`
	MintPaused      bool                 `json:"mint_paused"`
	AntibotEnabled  bool                 `json:"antibot_enabled"`
	AntibotActive   bool                 `json:"antibot_active"`
	ActivationBlock uint64               `json:"activation_block"`
	FreezeWindow    uint64               `json:"freeze_window"`
	PresalePaused   bool                 `json:"presale_paused"`
	PresaleEnded    bool                 `json:"presale_ended"`
	TotalSupply     uint256.Int          `json:"total_supply"`
	Positions       int                  `json:"positions"`
	System          model.SystemAccounts `json:"system"`
	Liquidity       model.LiquidityState `json:"liquidity"`
	Proceeds        uint256.Int          `json:"presale_proceeds"`
}

// LevelInfo is one row of the level/APR table.
type LevelInfo struct {
	Level     int             `json:"level"`
	Threshold uint256.Int     `json:"threshold"`
	APRBps    uint32          `json:"apr_bps"`
	APR       decimal.Decimal `json:"apr_percent"`
}

// BlacklistInfo reports the antibot flag of an account.
type BlacklistInfo struct {
	Flagged   bool   `json:"flagged"`
	FlaggedAt uint64 `json:"flagged_at"`
	Frozen    bool   `json:"frozen"`
}

func (e *Engine) read() *model.State {
	return e.state.Load()
}

// BalanceOf returns the balance of a.
func (e *Engine) BalanceOf(a account.Account) uint256.Int {
	return ledger.New(e.read()).BalanceOf(a)
}

// Allowance returns how much spender may move from owner.
func (e *Engine) Allowance(owner, spender account.Account) uint256.Int {
	return ledger.New(e.read()).Allowance(owner, spender)
}

// TotalSupply returns the token supply.
func (e *Engine) TotalSupply() uint256.Int {
	return ledger.New(e.read()).TotalSupply()
}

// Position returns position id.
func (e *Engine) Position(id uint64) (model.Position, error) {
	b, err := position.New(e.read())
	if err != nil {
		return model.Position{}, err
	}
	return b.Get(id)
}

// PositionsOf returns the positions held by owner.
func (e *Engine) PositionsOf(owner account.Account) ([]model.Position, error) {
	b, err := position.New(e.read())
	if err != nil {
		return nil, err
	}
	return b.Owned(owner), nil
}

// RewardOf returns the reward id would pay if claimed now.
func (e *Engine) RewardOf(id uint64) (uint256.Int, error) {
	b, err := position.New(e.read())
	if err != nil {
		return uint256.Int{}, err
	}
	return b.Reward(id, e.clock.Now())
}

// Policy returns the current tax policy.
func (e *Engine) Policy() model.TaxPolicy {
	p := e.read().Tax
	p.Destinations = append([]model.FeeDestination(nil), p.Destinations...)
	return p
}

// IsBlacklisted reports the antibot flag of a at the current block.
func (e *Engine) IsBlacklisted(a account.Account) BlacklistInfo {
	ab := e.read().Antibot
	at, ok := ab.Blacklist[a]
	return BlacklistInfo{
		Flagged:   ok,
		FlaggedAt: at,
		Frozen:    tax.Frozen(ab, a, e.clock.Block()),
	}
}

// APRTable returns the level table, level 0 first.
func (e *Engine) APRTable() ([]LevelInfo, error) {
	tbl, err := accrual.FromParams(e.read().Params)
	if err != nil {
		return nil, err
	}
	out := make([]LevelInfo, 0, tbl.MaxLevel()+1)
	for lvl := 0; lvl <= tbl.MaxLevel(); lvl++ {
		out = append(out, LevelInfo{
			Level:     lvl,
			Threshold: tbl.Threshold(lvl),
			APRBps:    tbl.APR(lvl),
			APR:       tbl.ApproxAPR(lvl),
		})
	}
	return out, nil
}

// Status returns the current lifecycle flags.
func (e *Engine) Status() Status {
	st := e.read()
	now, block := e.clock.Now(), e.clock.Block()
	return Status{
		Version:         st.Version,
		Block:           block,
		Now:             now,
		TradingPaused:   st.Pause.TradingPaused,
		ActivatedAt:     st.Pause.ActivatedAt,
		InLaunchWindow:  tax.InLaunchWindow(st.Tax, st.Pause, now),
		MintPaused:      st.Pause.MintPaused,
		AntibotEnabled:  st.Antibot.Enabled,
		AntibotActive:   tax.WindowActive(st.Antibot, block),
		ActivationBlock: st.Antibot.ActivationBlock,
		FreezeWindow:    st.Antibot.FreezeWindow,
		PresalePaused:   st.Presale.Paused,
		PresaleEnded:    st.Presale.Ended,
		TotalSupply:     st.TotalSupply,
		Positions:       int(st.NextPositionID),
		System:          st.System,
		Liquidity:       st.Liquidity,
		Proceeds:        st.Presale.Proceeds,
	}
}

// PresalePayouts returns every proceeds withdrawal, oldest first.
func (e *Engine) PresalePayouts() []model.ProceedsPayout {
	return append([]model.ProceedsPayout(nil), e.read().Presale.Payouts...)
}

// Holding is one non-zero balance.
type Holding struct {
	Account account.Account
	Balance uint256.Int
}

// Holders returns every non-zero balance, sorted by account.
func (e *Engine) Holders() []Holding {
	st := e.read()
	out := make([]Holding, 0, len(st.Balances))
	for a, bal := range st.Balances {
		if bal.IsZero() {
			continue
		}
		out = append(out, Holding{Account: a, Balance: *bal})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

// Journal returns committed entries after version, oldest first.
func (e *Engine) Journal(ctx context.Context, after uint64, limit int) ([]model.JournalEntry, error) {
	return e.store.ListJournal(ctx, after, limit)
}

// JournalOf returns the newest entries touching a.
func (e *Engine) JournalOf(ctx context.Context, a account.Account, limit int) ([]model.JournalEntry, error) {
	return e.store.ListJournalByAccount(ctx, a, limit)
}
