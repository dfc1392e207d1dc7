package tax

import (
	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/model"
)

// WindowActive reports whether the launch freeze is running at block.
func WindowActive(ab model.AntibotState, block uint64) bool {
	if !ab.Enabled || block < ab.ActivationBlock {
		return false
	}
	return block-ab.ActivationBlock < ab.FreezeWindow
}

// Frozen reports whether a was flagged recently enough to still be held.
// Flags are never cleared; they simply stop mattering once
// block − flaggedAt reaches the freeze window.
func Frozen(ab model.AntibotState, a account.Account, block uint64) bool {
	flagged, ok := ab.Blacklist[a]
	if !ok || block < flagged {
		return false
	}
	return block-flagged < ab.FreezeWindow
}

// IsBlacklisted reports whether a has ever been flagged.
func IsBlacklisted(ab model.AntibotState, a account.Account) bool {
	_, ok := ab.Blacklist[a]
	return ok
}
