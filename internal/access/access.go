// Package access decides which callers may run administrative operations.
package access

import (
	"fmt"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/model"
)

// Controller answers isPrivileged against a state snapshot.
type Controller interface {
	IsPrivileged(st *model.State, caller account.Account) bool
}

// OwnerSet grants privilege to the owners recorded in the state.
type OwnerSet struct{}

func (OwnerSet) IsPrivileged(st *model.State, caller account.Account) bool {
	return caller != "" && st.Owners[caller]
}

// Require fails with ErrNotPrivileged unless caller is privileged.
func Require(c Controller, st *model.State, caller account.Account) error {
	if !c.IsPrivileged(st, caller) {
		return fmt.Errorf("%w: %s", fault.ErrNotPrivileged, caller)
	}
	return nil
}

// AddOwner extends the owner set. Only an existing owner may add one.
func AddOwner(c Controller, st *model.State, caller, owner account.Account) error {
	if err := Require(c, st, caller); err != nil {
		return err
	}
	if owner == "" {
		return fmt.Errorf("%w: empty owner", fault.ErrInvalidAddress)
	}
	st.Owners[owner] = true
	return nil
}
