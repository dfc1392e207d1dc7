// Package fault defines the error taxonomy shared by every ledger component.
//
// Each failure carries a Kind (what class of problem) and a Code (which
// rule rejected the request). Sentinels are declared once with New and
// wrapped at call sites with fmt.Errorf("%w: ...") to add detail.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Validation covers bad amounts, unknown ids and unauthorized callers.
	Validation Kind = iota + 1
	// InsufficientFunds covers balance, allowance and reward-pool shortfalls.
	InsufficientFunds
	// PolicyViolation covers paused trading, caps and max-level rules.
	PolicyViolation
	// StateInvariant should be unreachable; it signals a corrupted ledger.
	StateInvariant
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "ValidationError"
	case InsufficientFunds:
		return "InsufficientFunds"
	case PolicyViolation:
		return "PolicyViolation"
	case StateInvariant:
		return "StateInvariantViolation"
	default:
		return "Unknown"
	}
}

// Error is a classified ledger failure.
type Error struct {
	Kind   Kind
	Code   string
	Reason string
}

// New creates a sentinel error.
func New(kind Kind, code, reason string) *Error {
	return &Error{Kind: kind, Code: code, Reason: reason}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is matches any fault with the same code, so wrapped copies compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// KindOf returns the kind of the first fault in err's chain. Errors that
// are not faults are treated as invariant violations.
func KindOf(err error) Kind {
	var f *Error
	if errors.As(err, &f) {
		return f.Kind
	}
	return StateInvariant
}

// CodeOf returns the code of the first fault in err's chain, or "Internal".
func CodeOf(err error) string {
	var f *Error
	if errors.As(err, &f) {
		return f.Code
	}
	return "Internal"
}

var (
	ErrInvalidAmount   = New(Validation, "InvalidAmount", "amount must be positive")
	ErrInvalidPosition = New(Validation, "InvalidPosition", "position does not exist")
	ErrInvalidAddress  = New(Validation, "InvalidAddress", "malformed account")
	ErrInvalidPolicy   = New(Validation, "InvalidPolicy", "policy parameters are inconsistent")
	ErrNotOwner        = New(Validation, "NotOwner", "caller does not own the position")
	ErrNotPrivileged   = New(Validation, "NotPrivileged", "caller is not privileged")

	ErrInsufficientBalance    = New(InsufficientFunds, "InsufficientBalance", "balance too low")
	ErrInsufficientAllowance  = New(InsufficientFunds, "InsufficientAllowance", "allowance too low")
	ErrInsufficientRewardPool = New(InsufficientFunds, "InsufficientRewardPool", "reward pool cannot cover the claim")
	ErrIncorrectPayment       = New(InsufficientFunds, "IncorrectPayment", "attached payment does not match the price")

	ErrTradingPaused        = New(PolicyViolation, "TradingPaused", "trading is paused")
	ErrPaused               = New(PolicyViolation, "Paused", "minting is paused")
	ErrPresalePaused        = New(PolicyViolation, "PresalePaused", "presale is paused or over")
	ErrPresaleNotEnded      = New(PolicyViolation, "PresaleNotEnded", "presale has not ended")
	ErrSupplyCapReached     = New(PolicyViolation, "SupplyCapReached", "position supply cap reached")
	ErrPerAddressCapReached = New(PolicyViolation, "PerAddressCapReached", "per-address mint cap reached")
	ErrMaxLevelReached      = New(PolicyViolation, "MaxLevelReached", "position is already at max level")
	ErrInvalidRatio         = New(PolicyViolation, "InvalidRatio", "contract does not hold the requested token amount")
	ErrAlreadyActive        = New(PolicyViolation, "AlreadyActive", "trading is already active")
	ErrReentrant            = New(PolicyViolation, "Reentrant", "request issued during a pool interaction")
	ErrAntibotHold          = New(PolicyViolation, "AntibotHold", "caller is held by the antibot freeze")

	ErrOverflow  = New(StateInvariant, "Overflow", "arithmetic overflow")
	ErrInvariant = New(StateInvariant, "Invariant", "ledger invariant violated")
)
