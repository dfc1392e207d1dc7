package engine

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/ledger"
	"github.com/slimefarm/ledger-engine/internal/metrics"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/tax"
	"github.com/slimefarm/ledger-engine/internal/units"
)

// Transfer moves amount from caller to to through the tax pipeline.
// An intercepted transfer commits (the flags persist) and returns a
// receipt with Intercepted set.
func (e *Engine) Transfer(ctx context.Context, caller, to account.Account, amount uint256.Int) (tax.Receipt, error) {
	params := map[string]any{"to": to, "amount": units.FormatTokens(amount)}
	return run(e, ctx, "transfer", caller, params, func(t *txn) (tax.Receipt, error) {
		if to == "" {
			return tax.Receipt{}, fmt.Errorf("%w: empty recipient", fault.ErrInvalidAddress)
		}
		rcpt, err := tax.New(t.st).Transfer(t.taxEnv(), caller, to, amount)
		if err != nil {
			return rcpt, err
		}
		recordReceipt(t, rcpt)
		return rcpt, nil
	})
}

// TransferFrom moves amount from owner to to on behalf of caller.
func (e *Engine) TransferFrom(ctx context.Context, caller, owner, to account.Account, amount uint256.Int) (tax.Receipt, error) {
	params := map[string]any{"from": owner, "to": to, "amount": units.FormatTokens(amount)}
	return run(e, ctx, "transfer_from", caller, params, func(t *txn) (tax.Receipt, error) {
		if owner == "" || to == "" {
			return tax.Receipt{}, fmt.Errorf("%w: empty owner or recipient", fault.ErrInvalidAddress)
		}
		rcpt, err := tax.New(t.st).TransferFrom(t.taxEnv(), caller, owner, to, amount)
		if err != nil {
			return rcpt, err
		}
		recordReceipt(t, rcpt)
		return rcpt, nil
	})
}

// Approve sets the allowance of spender over caller's balance.
func (e *Engine) Approve(ctx context.Context, caller, spender account.Account, amount uint256.Int) error {
	params := map[string]any{"spender": spender, "amount": allowanceText(amount)}
	_, err := run(e, ctx, "approve", caller, params, func(t *txn) (struct{}, error) {
		if spender == "" {
			return struct{}{}, fmt.Errorf("%w: empty spender", fault.ErrInvalidAddress)
		}
		ledger.New(t.st).Approve(caller, spender, amount)
		t.touch(spender)
		return struct{}{}, nil
	})
	return err
}

// IncreaseAllowance raises caller's allowance to spender by delta.
func (e *Engine) IncreaseAllowance(ctx context.Context, caller, spender account.Account, delta uint256.Int) error {
	params := map[string]any{"spender": spender, "delta": units.FormatTokens(delta)}
	_, err := run(e, ctx, "increase_allowance", caller, params, func(t *txn) (struct{}, error) {
		if spender == "" {
			return struct{}{}, fmt.Errorf("%w: empty spender", fault.ErrInvalidAddress)
		}
		ledger.New(t.st).IncreaseAllowance(caller, spender, delta)
		t.touch(spender)
		return struct{}{}, nil
	})
	return err
}

// DecreaseAllowance lowers caller's allowance to spender by delta.
func (e *Engine) DecreaseAllowance(ctx context.Context, caller, spender account.Account, delta uint256.Int) error {
	params := map[string]any{"spender": spender, "delta": units.FormatTokens(delta)}
	_, err := run(e, ctx, "decrease_allowance", caller, params, func(t *txn) (struct{}, error) {
		t.touch(spender)
		return struct{}{}, ledger.New(t.st).DecreaseAllowance(caller, spender, delta)
	})
	return err
}

// FundRewardPool moves amount from caller to the reward pool. Anyone may
// fund the pool, subject to the pause and antibot gates unless privileged.
func (e *Engine) FundRewardPool(ctx context.Context, caller account.Account, amount uint256.Int) error {
	params := map[string]any{"amount": units.FormatTokens(amount)}
	_, err := run(e, ctx, "fund_reward_pool", caller, params, func(t *txn) (struct{}, error) {
		if amount.IsZero() {
			return struct{}{}, fault.ErrInvalidAmount
		}
		if !t.privileged {
			if err := tax.New(t.st).Gate(t.taxEnv(), caller); err != nil {
				return struct{}{}, err
			}
		}
		t.touch(t.st.System.RewardPool)
		return struct{}{}, ledger.New(t.st).Move(caller, t.st.System.RewardPool, amount)
	})
	return err
}

func recordReceipt(t *txn, rcpt tax.Receipt) {
	t.touch(rcpt.From, rcpt.To)
	t.touch(rcpt.Flagged...)
	if rcpt.Intercepted {
		t.outcome = model.OutcomeIntercepted
		metrics.AntibotInterceptions.Inc()
		return
	}
	for _, s := range rcpt.Splits {
		t.touch(s.Account)
		fee, _ := units.ToDecimal(s.Amount).Float64()
		metrics.FeesCollected.WithLabelValues(string(s.Account), string(rcpt.Direction)).Add(fee)
	}
}

func allowanceText(v uint256.Int) string {
	if v.Eq(&ledger.MaxAllowance) {
		return "max"
	}
	return units.FormatTokens(v)
}
