package access

import (
	"errors"
	"testing"

	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/model"
)

func TestOwnerSet(t *testing.T) {
	st := model.NewState()
	st.Owners["deployer"] = true

	var c OwnerSet
	if !c.IsPrivileged(st, "deployer") {
		t.Error("deployer should be privileged")
	}
	if c.IsPrivileged(st, "mallory") {
		t.Error("mallory should not be privileged")
	}
	if c.IsPrivileged(st, "") {
		t.Error("empty caller should not be privileged")
	}
}

func TestRequire(t *testing.T) {
	st := model.NewState()
	err := Require(OwnerSet{}, st, "mallory")
	if !errors.Is(err, fault.ErrNotPrivileged) {
		t.Fatalf("expected ErrNotPrivileged, got %v", err)
	}
	if fault.KindOf(err) != fault.Validation {
		t.Errorf("expected Validation, got %s", fault.KindOf(err))
	}
}

func TestAddOwner(t *testing.T) {
	st := model.NewState()
	st.Owners["deployer"] = true

	if err := AddOwner(OwnerSet{}, st, "mallory", "mallory"); !errors.Is(err, fault.ErrNotPrivileged) {
		t.Fatalf("expected ErrNotPrivileged, got %v", err)
	}
	if err := AddOwner(OwnerSet{}, st, "deployer", "ops"); err != nil {
		t.Fatal(err)
	}
	if !st.Owners["ops"] {
		t.Error("ops should now be an owner")
	}
}
