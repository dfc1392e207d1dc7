package position

import (
	"fmt"

	"github.com/slimefarm/ledger-engine/internal/fault"
)

// MaxBatch is the largest count a single mint request may ask for.
const MaxBatch = 1000

// MintLimiter enforces the global supply cap and the per-address cap.
//
// Both limits count positions ever minted, not positions currently held:
// transferring a position away does not free room for its minter.
// A zero limit means unlimited.
type MintLimiter struct {
	// MaxSupply is the maximum number of positions in existence.
	MaxSupply int

	// MaxPerAddress is the maximum cumulative mints credited to one owner.
	MaxPerAddress int
}

// NewMintLimiter creates a limiter with the given caps.
func NewMintLimiter(maxSupply, maxPerAddress int) *MintLimiter {
	if maxSupply < 0 {
		maxSupply = 0
	}
	if maxPerAddress < 0 {
		maxPerAddress = 0
	}
	return &MintLimiter{MaxSupply: maxSupply, MaxPerAddress: maxPerAddress}
}

// CheckLimit validates minting count more positions.
//
// Parameters:
//   - supply: positions minted so far across all owners
//   - ownerMinted: positions minted so far for the receiving owner
//   - count: positions requested
func (l *MintLimiter) CheckLimit(supply, ownerMinted, count int) error {
	if count < 1 {
		return fmt.Errorf("%w: count %d", fault.ErrInvalidAmount, count)
	}

	// Compare against the room left so a huge count cannot wrap the sum.
	// 1. Global supply.
	if l.MaxSupply > 0 && count > l.MaxSupply-supply {
		return fmt.Errorf("%w: %d minted, %d requested, cap %d",
			fault.ErrSupplyCapReached, supply, count, l.MaxSupply)
	}

	// 2. Per-address cumulative mints.
	if l.MaxPerAddress > 0 && count > l.MaxPerAddress-ownerMinted {
		return fmt.Errorf("%w: %d minted, %d requested, cap %d",
			fault.ErrPerAddressCapReached, ownerMinted, count, l.MaxPerAddress)
	}

	// 3. Batch size, which also bounds unlimited configurations.
	if count > MaxBatch {
		return fmt.Errorf("%w: count %d exceeds batch limit %d", fault.ErrInvalidAmount, count, MaxBatch)
	}

	return nil
}
