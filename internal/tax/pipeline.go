// Package tax wraps every holder-initiated transfer with the pause gate,
// the antibot gate and buy/sell fee splitting before the balance ledger
// mutates anything.
//
// Order of checks:
//  1. pause gate: paused trading blocks transfers between two non-exempt accounts
//  2. antibot gate: inside the launch freeze, or for a recently flagged
//     account, the transfer is intercepted: counterparts are flagged,
//     balances are untouched and no error is returned
//  3. fees: buys and sells against the pool pay a fee split across the
//     configured destinations; plain transfers are free
package tax

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/ledger"
	"github.com/slimefarm/ledger-engine/internal/model"
)

// Env is the environment a transfer executes in.
type Env struct {
	Block uint64
	Now   int64
}

// Receipt describes the effect of a transfer.
type Receipt struct {
	From        account.Account   `json:"from"`
	To          account.Account   `json:"to"`
	Amount      uint256.Int       `json:"amount"`
	Direction   Direction         `json:"direction"`
	FeeBps      uint32            `json:"fee_bps"`
	Fee         uint256.Int       `json:"fee"`
	Net         uint256.Int       `json:"net"`
	Splits      []Split           `json:"splits,omitempty"`
	Intercepted bool              `json:"intercepted"`
	Flagged     []account.Account `json:"flagged,omitempty"`
}

// Pipeline applies transfer policy to a state snapshot.
type Pipeline struct {
	st  *model.State
	led *ledger.Ledger
}

// New wraps st.
func New(st *model.State) *Pipeline {
	return &Pipeline{st: st, led: ledger.New(st)}
}

// IsExempt reports whether a bypasses pause and antibot checks.
// Contract-held system accounts other than the pool are always exempt.
func (p *Pipeline) IsExempt(a account.Account) bool {
	if p.st.Pause.Exempt[a] {
		return true
	}
	sys := p.st.System
	return a != "" && a != sys.Pool && (a == sys.Contract || a == sys.RewardPool || a == sys.Escrow)
}

// CheckPause fails with ErrTradingPaused when trading is paused and
// neither side is exempt.
func (p *Pipeline) CheckPause(from, to account.Account) error {
	if p.st.Pause.TradingPaused && !p.IsExempt(from) && !p.IsExempt(to) {
		return fmt.Errorf("%w: %s → %s", fault.ErrTradingPaused, from, to)
	}
	return nil
}

// Held reports whether the antibot gate holds a at env.Block: during the
// launch freeze, or while a recent flag on a has not expired.
func (p *Pipeline) Held(env Env, a account.Account) bool {
	if p.IsExempt(a) {
		return false
	}
	return WindowActive(p.st.Antibot, env.Block) || Frozen(p.st.Antibot, a, env.Block)
}

// Gate checks a request in which a pays tokens into a system account.
// System accounts are exempt, so the pause is judged on a alone, and a
// held payer is rejected rather than intercepted.
func (p *Pipeline) Gate(env Env, a account.Account) error {
	if p.IsExempt(a) {
		return nil
	}
	if p.st.Pause.TradingPaused {
		return fmt.Errorf("%w: %s", fault.ErrTradingPaused, a)
	}
	if p.Held(env, a) {
		return fmt.Errorf("%w: %s at block %d", fault.ErrAntibotHold, a, env.Block)
	}
	return nil
}

// Transfer moves amount from → to through the full pipeline.
func (p *Pipeline) Transfer(env Env, from, to account.Account, amount uint256.Int) (Receipt, error) {
	rcpt := Receipt{From: from, To: to, Amount: amount}
	if amount.IsZero() {
		return rcpt, fault.ErrInvalidAmount
	}
	if err := p.CheckPause(from, to); err != nil {
		return rcpt, err
	}
	if flagged, ok := p.intercept(env, from, to); ok {
		for _, a := range flagged {
			p.st.Antibot.Blacklist[a] = env.Block
		}
		rcpt.Intercepted = true
		rcpt.Flagged = flagged
		return rcpt, nil
	}

	bal := p.led.BalanceOf(from)
	if bal.Lt(&amount) {
		return rcpt, fmt.Errorf("%w: %s holds %s, needs %s", fault.ErrInsufficientBalance, from, bal.Dec(), amount.Dec())
	}

	rcpt.Direction = Classify(p.st.System.Pool, from, to)
	rcpt.FeeBps = FeeBps(p.st.Tax, p.st.Pause, rcpt.Direction, env.Now)
	rcpt.Fee = ComputeFee(amount, rcpt.FeeBps)
	rcpt.Splits = SplitFee(rcpt.Fee, p.st.Tax.Destinations)
	rcpt.Net.Sub(&amount, &rcpt.Fee)

	// One adjustment: debit the gross, credit net and every split.
	if err := p.led.Debit(from, amount); err != nil {
		return rcpt, err
	}
	p.led.Credit(to, rcpt.Net)
	for _, s := range rcpt.Splits {
		p.led.Credit(s.Account, s.Amount)
	}
	return rcpt, nil
}

// TransferFrom is Transfer on behalf of spender. The allowance is only
// consumed when value actually moves.
func (p *Pipeline) TransferFrom(env Env, spender, from, to account.Account, amount uint256.Int) (Receipt, error) {
	if err := p.led.CheckAllowance(from, spender, amount); err != nil {
		return Receipt{From: from, To: to, Amount: amount}, err
	}
	rcpt, err := p.Transfer(env, from, to, amount)
	if err != nil || rcpt.Intercepted {
		return rcpt, err
	}
	if err := p.led.SpendAllowance(from, spender, amount); err != nil {
		return rcpt, fmt.Errorf("%w: allowance changed mid-transfer: %v", fault.ErrInvariant, err)
	}
	return rcpt, nil
}

// intercept decides whether the antibot gate holds this transfer and
// which accounts to flag. Exempt senders always pass during the launch
// freeze; the pool and other system accounts are never flagged.
func (p *Pipeline) intercept(env Env, from, to account.Account) ([]account.Account, bool) {
	ab := p.st.Antibot
	held := false
	if WindowActive(ab, env.Block) && !p.IsExempt(from) {
		held = true
	}
	for _, a := range []account.Account{from, to} {
		if !p.IsExempt(a) && Frozen(ab, a, env.Block) {
			held = true
		}
	}
	if !held {
		return nil, false
	}
	var flagged []account.Account
	for _, a := range []account.Account{from, to} {
		if p.IsExempt(a) || a == p.st.System.Pool || a == "" {
			continue
		}
		if len(flagged) == 1 && flagged[0] == a {
			continue
		}
		// Re-flagging a frozen account would extend its freeze forever.
		if Frozen(ab, a, env.Block) {
			continue
		}
		flagged = append(flagged, a)
	}
	return flagged, true
}
