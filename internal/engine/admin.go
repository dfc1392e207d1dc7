package engine

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/access"
	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/liquidity"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/tax"
	"github.com/slimefarm/ledger-engine/internal/units"
)

func (t *txn) seeder(pool liquidity.Pool) *liquidity.Seeder {
	return liquidity.NewSeeder(t.st, pool)
}

func (t *txn) liquidityEnv() liquidity.Env {
	return liquidity.Env{Caller: t.caller, Now: t.now, Block: t.block}
}

// AddLiquidity deposits token from the contract balance and base into the
// pool. It does not change the trading state.
func (e *Engine) AddLiquidity(ctx context.Context, caller account.Account, token, base uint256.Int) (liquidity.Result, error) {
	params := map[string]any{"token": units.FormatTokens(token), "base": base.Dec()}
	return run(e, ctx, "add_liquidity", caller, params, func(t *txn) (liquidity.Result, error) {
		if err := t.requirePrivileged(e.access); err != nil {
			return liquidity.Result{}, err
		}
		t.touch(t.st.System.Contract, t.st.System.Pool)
		return t.seeder(e.pool).AddLiquidity(t.ctx, t.liquidityEnv(), liquidity.Request{Token: token, Base: base})
	})
}

// AddInitialLiquidity pulls token from caller, seeds the pool and
// activates trading, optionally starting the antibot freeze.
func (e *Engine) AddInitialLiquidity(ctx context.Context, caller account.Account, token, base uint256.Int, antibot bool) (liquidity.Result, error) {
	params := map[string]any{"token": units.FormatTokens(token), "base": base.Dec(), "antibot": antibot}
	return run(e, ctx, "add_initial_liquidity", caller, params, func(t *txn) (liquidity.Result, error) {
		if err := t.requirePrivileged(e.access); err != nil {
			return liquidity.Result{}, err
		}
		t.touch(t.st.System.Contract, t.st.System.Pool)
		return t.seeder(e.pool).AddInitialLiquidity(t.ctx, t.liquidityEnv(), liquidity.Request{
			Token: token, Base: base, EnableAntibot: antibot,
		})
	})
}

// ActivateTrading opens trading without a deposit. One-way.
func (e *Engine) ActivateTrading(ctx context.Context, caller account.Account, antibot bool) error {
	params := map[string]any{"antibot": antibot}
	_, err := run(e, ctx, "activate_trading", caller, params, func(t *txn) (struct{}, error) {
		if err := t.requirePrivileged(e.access); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, t.seeder(e.pool).Activate(t.liquidityEnv(), antibot)
	})
	return err
}

// SetTaxPolicy replaces the whole tax policy.
func (e *Engine) SetTaxPolicy(ctx context.Context, caller account.Account, p model.TaxPolicy) error {
	params := map[string]any{
		"buy_fee_bps":         p.BuyFeeBps,
		"sell_fee_bps":        p.SellFeeBps,
		"launch_sell_fee_bps": p.LaunchSellFeeBps,
		"launch_window":       p.LaunchWindow,
		"destinations":        p.Destinations,
	}
	_, err := run(e, ctx, "set_tax_policy", caller, params, func(t *txn) (struct{}, error) {
		if err := t.requirePrivileged(e.access); err != nil {
			return struct{}{}, err
		}
		if err := tax.ValidatePolicy(p); err != nil {
			return struct{}{}, err
		}
		p.Destinations = append([]model.FeeDestination(nil), p.Destinations...)
		t.st.Tax = p
		return struct{}{}, nil
	})
	return err
}

// SetTaxDestinations replaces only the fee destinations.
func (e *Engine) SetTaxDestinations(ctx context.Context, caller account.Account, dests []model.FeeDestination) error {
	params := map[string]any{"destinations": dests}
	_, err := run(e, ctx, "set_tax_destinations", caller, params, func(t *txn) (struct{}, error) {
		if err := t.requirePrivileged(e.access); err != nil {
			return struct{}{}, err
		}
		p := t.st.Tax
		p.Destinations = append([]model.FeeDestination(nil), dests...)
		if err := tax.ValidatePolicy(p); err != nil {
			return struct{}{}, err
		}
		t.st.Tax = p
		return struct{}{}, nil
	})
	return err
}

// SetExempt adds or removes acct from the pause/antibot exempt set.
func (e *Engine) SetExempt(ctx context.Context, caller, acct account.Account, exempt bool) error {
	params := map[string]any{"account": acct, "exempt": exempt}
	_, err := run(e, ctx, "set_exempt", caller, params, func(t *txn) (struct{}, error) {
		if err := t.requirePrivileged(e.access); err != nil {
			return struct{}{}, err
		}
		if acct == "" {
			return struct{}{}, fmt.Errorf("%w: empty account", fault.ErrInvalidAddress)
		}
		if exempt {
			t.st.Pause.Exempt[acct] = true
		} else {
			delete(t.st.Pause.Exempt, acct)
		}
		t.touch(acct)
		return struct{}{}, nil
	})
	return err
}

// SetMintPaused toggles the regular mint.
func (e *Engine) SetMintPaused(ctx context.Context, caller account.Account, paused bool) error {
	return e.setFlag(ctx, "set_mint_paused", caller, paused, func(st *model.State) error {
		st.Pause.MintPaused = paused
		return nil
	})
}

// SetPresalePaused toggles the presale.
func (e *Engine) SetPresalePaused(ctx context.Context, caller account.Account, paused bool) error {
	return e.setFlag(ctx, "set_presale_paused", caller, paused, func(st *model.State) error {
		st.Presale.Paused = paused
		return nil
	})
}

// SetPresaleEnded closes the presale for good.
func (e *Engine) SetPresaleEnded(ctx context.Context, caller account.Account) error {
	return e.setFlag(ctx, "set_presale_ended", caller, true, func(st *model.State) error {
		st.Presale.Ended = true
		return nil
	})
}

// AddOwner extends the privileged set.
func (e *Engine) AddOwner(ctx context.Context, caller, owner account.Account) error {
	params := map[string]any{"owner": owner}
	_, err := run(e, ctx, "add_owner", caller, params, func(t *txn) (struct{}, error) {
		t.touch(owner)
		return struct{}{}, access.AddOwner(e.access, t.st, caller, owner)
	})
	return err
}

func (e *Engine) setFlag(ctx context.Context, op string, caller account.Account, v bool, apply func(*model.State) error) error {
	params := map[string]any{"value": v}
	_, err := run(e, ctx, op, caller, params, func(t *txn) (struct{}, error) {
		if err := t.requirePrivileged(e.access); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, apply(t.st)
	})
	return err
}
