package engine

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/metrics"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/position"
	"github.com/slimefarm/ledger-engine/internal/tax"
	"github.com/slimefarm/ledger-engine/internal/units"
)

// ClaimAllResult reports a batch claim.
type ClaimAllResult struct {
	Total     uint256.Int `json:"total"`
	Positions []uint64    `json:"positions"`
}

func (t *txn) book() (*position.Book, error) {
	return position.New(t.st)
}

func (t *txn) positionEnv(value uint256.Int) position.Env {
	p := tax.New(t.st)
	exempt := p.IsExempt(t.caller)
	return position.Env{
		Caller:     t.caller,
		Now:        t.now,
		Privileged: t.privileged,
		Exempt:     exempt,
		Paused:     t.st.Pause.TradingPaused && !exempt,
		Held:       p.Held(t.taxEnv(), t.caller),
		Value:      value,
	}
}

// Mint creates count positions for owner, paid by caller.
func (e *Engine) Mint(ctx context.Context, caller, owner account.Account, count int) ([]model.Position, error) {
	params := map[string]any{"owner": owner, "count": count}
	return run(e, ctx, "mint", caller, params, func(t *txn) ([]model.Position, error) {
		b, err := t.book()
		if err != nil {
			return nil, err
		}
		minted, err := b.Mint(t.positionEnv(uint256.Int{}), owner, count)
		if err != nil {
			return nil, err
		}
		t.touch(owner, t.st.System.Escrow)
		metrics.PositionsMinted.WithLabelValues("regular").Add(float64(len(minted)))
		return minted, nil
	})
}

// MintPresale creates count presale positions for owner. value is the
// base currency attached by caller.
func (e *Engine) MintPresale(ctx context.Context, caller, owner account.Account, count int, value uint256.Int) ([]model.Position, error) {
	params := map[string]any{"owner": owner, "count": count, "value": value.Dec()}
	return run(e, ctx, "mint_presale", caller, params, func(t *txn) ([]model.Position, error) {
		b, err := t.book()
		if err != nil {
			return nil, err
		}
		minted, err := b.MintPresale(t.positionEnv(value), owner, count)
		if err != nil {
			return nil, err
		}
		t.touch(owner)
		metrics.PositionsMinted.WithLabelValues("presale").Add(float64(len(minted)))
		return minted, nil
	})
}

// Compound adds amount of caller's tokens to the principal of id.
func (e *Engine) Compound(ctx context.Context, caller account.Account, id uint64, amount uint256.Int) (position.CompoundResult, error) {
	params := map[string]any{"position": id, "amount": units.FormatTokens(amount)}
	return run(e, ctx, "compound", caller, params, func(t *txn) (position.CompoundResult, error) {
		b, err := t.book()
		if err != nil {
			return position.CompoundResult{}, err
		}
		t.touch(t.st.System.Escrow)
		return b.Compound(t.positionEnv(uint256.Int{}), id, amount)
	})
}

// ClaimReward pays the owed reward of id to its owner. A zero reward
// commits as a no-op.
func (e *Engine) ClaimReward(ctx context.Context, caller account.Account, id uint64) (uint256.Int, error) {
	params := map[string]any{"position": id}
	return run(e, ctx, "claim_reward", caller, params, func(t *txn) (uint256.Int, error) {
		b, err := t.book()
		if err != nil {
			return uint256.Int{}, err
		}
		paid, err := b.Claim(t.positionEnv(uint256.Int{}), id)
		if err != nil {
			return uint256.Int{}, err
		}
		recordReward(t, paid)
		return paid, nil
	})
}

// ClaimAll claims every position caller owns.
func (e *Engine) ClaimAll(ctx context.Context, caller account.Account) (ClaimAllResult, error) {
	return run(e, ctx, "claim_all", caller, nil, func(t *txn) (ClaimAllResult, error) {
		b, err := t.book()
		if err != nil {
			return ClaimAllResult{}, err
		}
		total, ids, err := b.ClaimAll(t.positionEnv(uint256.Int{}))
		if err != nil {
			return ClaimAllResult{}, err
		}
		recordReward(t, total)
		return ClaimAllResult{Total: total, Positions: ids}, nil
	})
}

// TransferPosition hands id, with its full record, to to.
func (e *Engine) TransferPosition(ctx context.Context, caller account.Account, id uint64, to account.Account) (model.Position, error) {
	params := map[string]any{"position": id, "to": to}
	return run(e, ctx, "transfer_position", caller, params, func(t *txn) (model.Position, error) {
		b, err := t.book()
		if err != nil {
			return model.Position{}, err
		}
		t.touch(to)
		return b.Transfer(t.positionEnv(uint256.Int{}), id, to)
	})
}

// ClaimPresaleProceeds pays out the accumulated presale base currency to
// to and records the payout in the presale history. Privileged, and only
// after the presale has ended. With nothing accumulated it commits as a
// no-op and records nothing.
func (e *Engine) ClaimPresaleProceeds(ctx context.Context, caller, to account.Account) (model.ProceedsPayout, error) {
	params := map[string]any{"to": to}
	return run(e, ctx, "claim_presale_proceeds", caller, params, func(t *txn) (model.ProceedsPayout, error) {
		if err := t.requirePrivileged(e.access); err != nil {
			return model.ProceedsPayout{}, err
		}
		if !t.st.Presale.Ended {
			return model.ProceedsPayout{}, fault.ErrPresaleNotEnded
		}
		if to == "" {
			return model.ProceedsPayout{}, fmt.Errorf("%w: empty recipient", fault.ErrInvalidAddress)
		}
		payout := model.ProceedsPayout{To: to, Amount: t.st.Presale.Proceeds, Block: t.block}
		t.touch(to)
		if payout.Amount.IsZero() {
			return payout, nil
		}
		t.st.Presale.Proceeds = uint256.Int{}
		t.st.Presale.Payouts = append(t.st.Presale.Payouts, payout)
		return payout, nil
	})
}

func recordReward(t *txn, paid uint256.Int) {
	if paid.IsZero() {
		return
	}
	t.touch(t.st.System.RewardPool)
	v, _ := units.ToDecimal(paid).Float64()
	metrics.RewardsPaid.Add(v)
}
