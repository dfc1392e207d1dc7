// Package ledger is the fungible balance ledger: balances, total supply and
// allowances. It is the only package that writes those tables; every other
// component moves value through it.
//
// Methods validate before they mutate, so a returned error always means the
// state is unchanged.
package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/model"
)

// MaxAllowance is the unlimited-allowance sentinel. Spending against it
// never decrements.
var MaxAllowance = *new(uint256.Int).SetAllOne()

// Ledger operates on a state snapshot.
type Ledger struct {
	st *model.State
}

// New wraps st.
func New(st *model.State) *Ledger {
	return &Ledger{st: st}
}

// BalanceOf returns the balance of a.
func (l *Ledger) BalanceOf(a account.Account) uint256.Int {
	if v, ok := l.st.Balances[a]; ok {
		return *v
	}
	return uint256.Int{}
}

// TotalSupply returns the number of base units in existence.
func (l *Ledger) TotalSupply() uint256.Int {
	return l.st.TotalSupply
}

// Allowance returns how much spender may move from owner.
func (l *Ledger) Allowance(owner, spender account.Account) uint256.Int {
	if m, ok := l.st.Allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return *v
		}
	}
	return uint256.Int{}
}

// Issue creates amount new units on a and grows the supply.
func (l *Ledger) Issue(a account.Account, amount uint256.Int) error {
	var supply uint256.Int
	if _, overflow := supply.AddOverflow(&l.st.TotalSupply, &amount); overflow {
		return fmt.Errorf("%w: supply", fault.ErrOverflow)
	}
	l.st.TotalSupply = supply
	bal := l.BalanceOf(a)
	bal.Add(&bal, &amount) // cannot overflow: bal <= supply
	l.setBalance(a, bal)
	return nil
}

// Move transfers amount from one account to another without any policy
// checks. Callers that need pause, antibot or fee handling go through the
// tax pipeline instead.
func (l *Ledger) Move(from, to account.Account, amount uint256.Int) error {
	fromBal := l.BalanceOf(from)
	if fromBal.Lt(&amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", fault.ErrInsufficientBalance, from, fromBal.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	fromBal.Sub(&fromBal, &amount)
	toBal := l.BalanceOf(to)
	toBal.Add(&toBal, &amount)
	l.setBalance(from, fromBal)
	l.setBalance(to, toBal)
	return nil
}

// Credit is one leg of a split transfer: it adds amount to a. It must be
// paired with a Debit of the same total in the same request.
func (l *Ledger) Credit(a account.Account, amount uint256.Int) {
	bal := l.BalanceOf(a)
	bal.Add(&bal, &amount)
	l.setBalance(a, bal)
}

// Debit removes amount from a.
func (l *Ledger) Debit(a account.Account, amount uint256.Int) error {
	bal := l.BalanceOf(a)
	if bal.Lt(&amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", fault.ErrInsufficientBalance, a, bal.Dec(), amount.Dec())
	}
	bal.Sub(&bal, &amount)
	l.setBalance(a, bal)
	return nil
}

// Approve sets the allowance of spender over owner's balance.
func (l *Ledger) Approve(owner, spender account.Account, amount uint256.Int) {
	m, ok := l.st.Allowances[owner]
	if !ok {
		m = make(map[account.Account]*uint256.Int)
		l.st.Allowances[owner] = m
	}
	if amount.IsZero() {
		delete(m, spender)
		if len(m) == 0 {
			delete(l.st.Allowances, owner)
		}
		return
	}
	m[spender] = amount.Clone()
}

// IncreaseAllowance adds delta to an allowance, saturating at MaxAllowance.
func (l *Ledger) IncreaseAllowance(owner, spender account.Account, delta uint256.Int) {
	cur := l.Allowance(owner, spender)
	if _, overflow := cur.AddOverflow(&cur, &delta); overflow {
		cur = MaxAllowance
	}
	l.Approve(owner, spender, cur)
}

// DecreaseAllowance subtracts delta from an allowance.
func (l *Ledger) DecreaseAllowance(owner, spender account.Account, delta uint256.Int) error {
	cur := l.Allowance(owner, spender)
	if cur.Lt(&delta) {
		return fmt.Errorf("%w: allowance %s below decrease %s", fault.ErrInsufficientAllowance, cur.Dec(), delta.Dec())
	}
	cur.Sub(&cur, &delta)
	l.Approve(owner, spender, cur)
	return nil
}

// CheckAllowance reports whether spender may move amount from owner.
func (l *Ledger) CheckAllowance(owner, spender account.Account, amount uint256.Int) error {
	if owner == spender {
		return nil
	}
	cur := l.Allowance(owner, spender)
	if cur.Lt(&amount) {
		return fmt.Errorf("%w: %s may spend %s of %s, needs %s",
			fault.ErrInsufficientAllowance, spender, cur.Dec(), owner, amount.Dec())
	}
	return nil
}

// SpendAllowance decrements an allowance unless it is MaxAllowance.
func (l *Ledger) SpendAllowance(owner, spender account.Account, amount uint256.Int) error {
	if err := l.CheckAllowance(owner, spender, amount); err != nil {
		return err
	}
	if owner == spender {
		return nil
	}
	cur := l.Allowance(owner, spender)
	if cur.Eq(&MaxAllowance) {
		return nil
	}
	cur.Sub(&cur, &amount)
	l.Approve(owner, spender, cur)
	return nil
}

// TransferFrom moves amount from owner to recipient on behalf of spender.
func (l *Ledger) TransferFrom(spender, owner, to account.Account, amount uint256.Int) error {
	if err := l.CheckAllowance(owner, spender, amount); err != nil {
		return err
	}
	if err := l.Move(owner, to, amount); err != nil {
		return err
	}
	return l.SpendAllowance(owner, spender, amount)
}

// Sum returns the total of all balances. It equals TotalSupply for a
// consistent ledger.
func (l *Ledger) Sum() uint256.Int {
	var total uint256.Int
	for _, v := range l.st.Balances {
		total.Add(&total, v)
	}
	return total
}

// CheckInvariants verifies that balances add up to the supply.
func (l *Ledger) CheckInvariants() error {
	sum := l.Sum()
	if sum.Gt(&l.st.TotalSupply) {
		return fmt.Errorf("%w: balances %s exceed supply %s", fault.ErrInvariant, sum.Dec(), l.st.TotalSupply.Dec())
	}
	return nil
}

func (l *Ledger) setBalance(a account.Account, v uint256.Int) {
	if v.IsZero() {
		delete(l.st.Balances, a)
		return
	}
	l.st.Balances[a] = v.Clone()
}
