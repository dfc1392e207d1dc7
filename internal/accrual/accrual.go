// Package accrual implements the reward accrual engine: the principal→level
// step function, the level→APR table and simple-interest yield.
//
// It is stateless: position state is passed in, never stored.
//
// Yield is simple interest over the elapsed period:
//
//	reward = principal × aprBps × elapsed / (10000 × SecondsPerYear)
//
// Both multiplications happen before the single division, with a 512-bit
// intermediate, so rounding loss is below one base unit per settlement.
// Compounding only happens when a position owner explicitly compounds.
package accrual

import (
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/model"
)

// SecondsPerYear is the accrual year (365 days).
const SecondsPerYear = 365 * 24 * 60 * 60

// BpsDenominator is 100% in basis points.
const BpsDenominator = 10000

var (
	// ErrEmptyTable is returned when no level thresholds are configured.
	ErrEmptyTable = errors.New("accrual: at least one level threshold is required")

	// ErrThresholdOrder is returned when thresholds are not strictly increasing.
	ErrThresholdOrder = errors.New("accrual: level thresholds must be strictly increasing")

	// ErrAPRLength is returned when the APR table does not cover every level.
	ErrAPRLength = errors.New("accrual: APR table needs one entry per level including level 0")
)

var yearDenominator = uint256.NewInt(BpsDenominator * SecondsPerYear)

// Table maps principal to level and level to APR.
type Table struct {
	thresholds []uint256.Int
	aprBps     []uint32
}

// NewTable validates and builds a table. thresholds[i] is the principal
// needed for level i+1; aprBps[l] is the APR of level l.
func NewTable(thresholds []uint256.Int, aprBps []uint32) (*Table, error) {
	if len(thresholds) == 0 {
		return nil, ErrEmptyTable
	}
	for i := 1; i < len(thresholds); i++ {
		if !thresholds[i-1].Lt(&thresholds[i]) {
			return nil, fmt.Errorf("%w: level %d (%s) <= level %d (%s)",
				ErrThresholdOrder, i+1, thresholds[i].Dec(), i, thresholds[i-1].Dec())
		}
	}
	if len(aprBps) != len(thresholds)+1 {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrAPRLength, len(aprBps), len(thresholds)+1)
	}
	return &Table{
		thresholds: append([]uint256.Int(nil), thresholds...),
		aprBps:     append([]uint32(nil), aprBps...),
	}, nil
}

// FromParams builds the table stored in the position parameters.
func FromParams(p model.PositionParams) (*Table, error) {
	t, err := NewTable(p.Thresholds, p.APRBps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrInvalidPolicy, err)
	}
	return t, nil
}

// MaxLevel is the highest reachable level.
func (t *Table) MaxLevel() int {
	return len(t.thresholds)
}

// MaxPrincipal is the principal at which a position reaches MaxLevel.
// Principal is never allowed above it.
func (t *Table) MaxPrincipal() uint256.Int {
	return t.thresholds[len(t.thresholds)-1]
}

// Threshold returns the principal required for level (1..MaxLevel).
// Level 0 requires nothing.
func (t *Table) Threshold(level int) uint256.Int {
	if level <= 0 {
		return uint256.Int{}
	}
	if level > len(t.thresholds) {
		level = len(t.thresholds)
	}
	return t.thresholds[level-1]
}

// LevelFor returns the highest level whose threshold is <= principal.
// It is a monotonic, non-decreasing step function.
func (t *Table) LevelFor(principal uint256.Int) int {
	return sort.Search(len(t.thresholds), func(i int) bool {
		return principal.Lt(&t.thresholds[i])
	})
}

// APR returns the APR of level in basis points.
func (t *Table) APR(level int) uint32 {
	if level < 0 {
		level = 0
	}
	if level >= len(t.aprBps) {
		level = len(t.aprBps) - 1
	}
	return t.aprBps[level]
}

// ApproxAPR returns the APR of level as a percentage, e.g. 12.5.
func (t *Table) ApproxAPR(level int) decimal.Decimal {
	return decimal.New(int64(t.APR(level)), -2)
}

// Reward computes simple interest for elapsed seconds. Non-positive
// elapsed yields zero.
func Reward(principal uint256.Int, aprBps uint32, elapsed int64) (uint256.Int, error) {
	if elapsed <= 0 || aprBps == 0 || principal.IsZero() {
		return uint256.Int{}, nil
	}
	var scaled uint256.Int
	if _, overflow := scaled.MulOverflow(&principal, uint256.NewInt(uint64(aprBps))); overflow {
		return uint256.Int{}, fmt.Errorf("%w: principal %s × apr %d", fault.ErrOverflow, principal.Dec(), aprBps)
	}
	var reward uint256.Int
	if _, overflow := reward.MulDivOverflow(&scaled, uint256.NewInt(uint64(elapsed)), yearDenominator); overflow {
		return uint256.Int{}, fmt.Errorf("%w: reward over %ds", fault.ErrOverflow, elapsed)
	}
	return reward, nil
}

// Accrued returns the reward owed to p at now.
func (t *Table) Accrued(p *model.Position, now int64) (uint256.Int, error) {
	return Reward(p.Principal, t.APR(p.Level), now-p.LastAccrual)
}

// Absorb splits an added amount into the part the position can take
// before hitting MaxPrincipal and the refund beyond it.
func (t *Table) Absorb(principal, amount uint256.Int) (newPrincipal, absorbed, refund uint256.Int) {
	max := t.MaxPrincipal()
	if !principal.Lt(&max) {
		return principal, uint256.Int{}, amount
	}
	var room uint256.Int
	room.Sub(&max, &principal)
	if amount.Gt(&room) {
		absorbed = room
		refund.Sub(&amount, &room)
	} else {
		absorbed = amount
	}
	newPrincipal.Add(&principal, &absorbed)
	return newPrincipal, absorbed, refund
}
