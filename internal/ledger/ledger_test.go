package ledger

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/model"
)

func u(n uint64) uint256.Int { return *uint256.NewInt(n) }

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New(model.NewState())
	if err := l.Issue("alice", u(1000)); err != nil {
		t.Fatalf("issue: %v", err)
	}
	return l
}

func TestIssue_GrowsSupply(t *testing.T) {
	l := newLedger(t)
	supply := l.TotalSupply()
	if supply.Uint64() != 1000 {
		t.Errorf("expected supply 1000, got %s", supply.Dec())
	}
	bal := l.BalanceOf("alice")
	if bal.Uint64() != 1000 {
		t.Errorf("expected balance 1000, got %s", bal.Dec())
	}
}

func TestIssue_Overflow(t *testing.T) {
	l := newLedger(t)
	if err := l.Issue("bob", MaxAllowance); !errors.Is(err, fault.ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	bal := l.BalanceOf("bob")
	if !bal.IsZero() {
		t.Error("failed issue must not credit")
	}
}

func TestMove(t *testing.T) {
	l := newLedger(t)
	if err := l.Move("alice", "bob", u(300)); err != nil {
		t.Fatalf("move: %v", err)
	}
	a, b := l.BalanceOf("alice"), l.BalanceOf("bob")
	if a.Uint64() != 700 || b.Uint64() != 300 {
		t.Errorf("unexpected balances alice=%s bob=%s", a.Dec(), b.Dec())
	}
	if err := l.CheckInvariants(); err != nil {
		t.Errorf("invariants: %v", err)
	}
}

func TestMove_InsufficientLeavesStateUnchanged(t *testing.T) {
	l := newLedger(t)
	err := l.Move("alice", "bob", u(1001))
	if !errors.Is(err, fault.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if fault.KindOf(err) != fault.InsufficientFunds {
		t.Errorf("expected InsufficientFunds kind, got %s", fault.KindOf(err))
	}
	a := l.BalanceOf("alice")
	if a.Uint64() != 1000 {
		t.Errorf("balance changed on failure: %s", a.Dec())
	}
	if _, ok := l.st.Balances["bob"]; ok {
		t.Error("failed move must not create an entry")
	}
}

func TestMove_ToSelf(t *testing.T) {
	l := newLedger(t)
	if err := l.Move("alice", "alice", u(10)); err != nil {
		t.Fatalf("self move: %v", err)
	}
	a := l.BalanceOf("alice")
	if a.Uint64() != 1000 {
		t.Errorf("self move changed balance: %s", a.Dec())
	}
}

func TestTransferFrom_DecrementsAllowance(t *testing.T) {
	l := newLedger(t)
	l.Approve("alice", "escrow", u(500))

	if err := l.TransferFrom("escrow", "alice", "escrow", u(200)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	allow := l.Allowance("alice", "escrow")
	if allow.Uint64() != 300 {
		t.Errorf("expected allowance 300, got %s", allow.Dec())
	}

	err := l.TransferFrom("escrow", "alice", "escrow", u(301))
	if !errors.Is(err, fault.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	bal := l.BalanceOf("alice")
	if bal.Uint64() != 800 {
		t.Errorf("failed transferFrom moved funds: %s", bal.Dec())
	}
}

func TestTransferFrom_MaxAllowanceNeverDecrements(t *testing.T) {
	l := newLedger(t)
	l.Approve("alice", "escrow", MaxAllowance)

	for i := 0; i < 3; i++ {
		if err := l.TransferFrom("escrow", "alice", "bob", u(100)); err != nil {
			t.Fatalf("transferFrom %d: %v", i, err)
		}
	}
	allow := l.Allowance("alice", "escrow")
	if !allow.Eq(&MaxAllowance) {
		t.Errorf("max allowance decremented to %s", allow.Dec())
	}
}

func TestTransferFrom_InsufficientBalanceKeepsAllowance(t *testing.T) {
	l := newLedger(t)
	l.Approve("alice", "escrow", u(5000))
	err := l.TransferFrom("escrow", "alice", "bob", u(2000))
	if !errors.Is(err, fault.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	allow := l.Allowance("alice", "escrow")
	if allow.Uint64() != 5000 {
		t.Errorf("allowance consumed on failure: %s", allow.Dec())
	}
}

func TestIncreaseDecreaseAllowance(t *testing.T) {
	l := newLedger(t)
	l.IncreaseAllowance("alice", "bob", u(10))
	l.IncreaseAllowance("alice", "bob", u(5))
	allow := l.Allowance("alice", "bob")
	if allow.Uint64() != 15 {
		t.Fatalf("expected 15, got %s", allow.Dec())
	}
	if err := l.DecreaseAllowance("alice", "bob", u(20)); !errors.Is(err, fault.ErrInsufficientAllowance) {
		t.Errorf("expected ErrInsufficientAllowance, got %v", err)
	}
	if err := l.DecreaseAllowance("alice", "bob", u(15)); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if _, ok := l.st.Allowances["alice"]; ok {
		t.Error("zero allowance should be pruned")
	}

	l.Approve("alice", "bob", MaxAllowance)
	l.IncreaseAllowance("alice", "bob", u(1))
	allow = l.Allowance("alice", "bob")
	if !allow.Eq(&MaxAllowance) {
		t.Error("increase past max should saturate")
	}
}

func TestCreditDebit(t *testing.T) {
	l := newLedger(t)
	if err := l.Debit("alice", u(100)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	l.Credit("bob", u(95))
	l.Credit("rewards", u(5))
	sum := l.Sum()
	if sum.Uint64() != 1000 {
		t.Errorf("split transfer should conserve value, sum=%s", sum.Dec())
	}
	if err := l.Debit("carol", u(1)); !errors.Is(err, fault.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}
