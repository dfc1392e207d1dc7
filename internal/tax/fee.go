package tax

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/model"
)

// MaxFeeBps caps any single fee rate at 100%.
const MaxFeeBps = 10000

// Direction classifies a transfer relative to the external pool.
type Direction string

const (
	Plain Direction = "plain"
	Buy   Direction = "buy"  // pool → holder
	Sell  Direction = "sell" // holder → pool
)

// Split is one fee destination's share of a collected fee.
type Split struct {
	Account account.Account `json:"account"`
	Amount  uint256.Int     `json:"amount"`
}

// Classify returns the direction of a transfer given the pool account.
func Classify(pool, from, to account.Account) Direction {
	switch {
	case pool == "" || from == to:
		return Plain
	case from == pool:
		return Buy
	case to == pool:
		return Sell
	default:
		return Plain
	}
}

// FeeBps returns the fee rate for a direction at now. Sells inside the
// launch window after activation pay the launch rate.
func FeeBps(p model.TaxPolicy, pause model.PauseState, dir Direction, now int64) uint32 {
	switch dir {
	case Buy:
		return p.BuyFeeBps
	case Sell:
		if InLaunchWindow(p, pause, now) {
			return p.LaunchSellFeeBps
		}
		return p.SellFeeBps
	default:
		return 0
	}
}

// InLaunchWindow reports whether the elevated sell rate applies at now.
func InLaunchWindow(p model.TaxPolicy, pause model.PauseState, now int64) bool {
	if pause.ActivatedAt == 0 || p.LaunchWindow <= 0 || p.LaunchSellFeeBps == 0 {
		return false
	}
	return now >= pause.ActivatedAt && now-pause.ActivatedAt < p.LaunchWindow
}

// ComputeFee returns amount × bps / 10000, rounded down. The result is
// never larger than amount for bps <= MaxFeeBps.
func ComputeFee(amount uint256.Int, bps uint32) uint256.Int {
	var fee uint256.Int
	if bps == 0 {
		return fee
	}
	// 512-bit intermediate; cannot overflow because bps <= 10000.
	fee.MulDivOverflow(&amount, uint256.NewInt(uint64(bps)), uint256.NewInt(MaxFeeBps))
	return fee
}

// SplitFee divides fee across destinations by weight. Integer-division
// remainders go to the first destination so the splits sum to fee exactly.
func SplitFee(fee uint256.Int, dests []model.FeeDestination) []Split {
	if fee.IsZero() || len(dests) == 0 {
		return nil
	}
	splits := make([]Split, len(dests))
	var assigned uint256.Int
	for i, d := range dests {
		var share uint256.Int
		share.MulDivOverflow(&fee, uint256.NewInt(uint64(d.WeightBps)), uint256.NewInt(MaxFeeBps))
		splits[i] = Split{Account: d.Account, Amount: share}
		assigned.Add(&assigned, &share)
	}
	var remainder uint256.Int
	remainder.Sub(&fee, &assigned)
	splits[0].Amount.Add(&splits[0].Amount, &remainder)
	return splits
}

// ValidatePolicy checks rates and destination weights.
func ValidatePolicy(p model.TaxPolicy) error {
	for name, bps := range map[string]uint32{
		"buy":         p.BuyFeeBps,
		"sell":        p.SellFeeBps,
		"launch sell": p.LaunchSellFeeBps,
	} {
		if bps > MaxFeeBps {
			return fmt.Errorf("%w: %s fee %d bps exceeds %d", fault.ErrInvalidPolicy, name, bps, MaxFeeBps)
		}
	}
	if p.LaunchWindow < 0 {
		return fmt.Errorf("%w: negative launch window", fault.ErrInvalidPolicy)
	}
	charges := p.BuyFeeBps > 0 || p.SellFeeBps > 0 || p.LaunchSellFeeBps > 0
	if len(p.Destinations) == 0 {
		if charges {
			return fmt.Errorf("%w: fees configured without destinations", fault.ErrInvalidPolicy)
		}
		return nil
	}
	var total uint32
	seen := make(map[account.Account]bool, len(p.Destinations))
	for _, d := range p.Destinations {
		if d.Account == "" {
			return fmt.Errorf("%w: empty fee destination", fault.ErrInvalidPolicy)
		}
		if seen[d.Account] {
			return fmt.Errorf("%w: duplicate fee destination %s", fault.ErrInvalidPolicy, d.Account)
		}
		seen[d.Account] = true
		total += d.WeightBps
	}
	if total != MaxFeeBps {
		return fmt.Errorf("%w: destination weights sum to %d bps, need %d", fault.ErrInvalidPolicy, total, MaxFeeBps)
	}
	return nil
}
