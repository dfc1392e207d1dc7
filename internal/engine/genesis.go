package engine

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/accrual"
	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/ledger"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/tax"
)

// Genesis describes the state committed when a store is empty.
type Genesis struct {
	Deployer      account.Account
	InitialSupply uint256.Int
	RewardFunding uint256.Int // moved from the deployer to the reward pool
	Owners        []account.Account
	Exempt        []account.Account

	System       model.SystemAccounts
	Params       model.PositionParams
	Tax          model.TaxPolicy
	FreezeWindow uint64

	PresalePrice         uint256.Int
	PresaleMaxPerAddress int
}

// NewGenesisState validates g and builds the initial state. Trading
// starts paused; the deployer is an owner and exempt.
func NewGenesisState(g Genesis) (*model.State, error) {
	if g.Deployer == "" {
		return nil, fmt.Errorf("%w: deployer is required", fault.ErrInvalidPolicy)
	}
	if err := validateSystem(g.System); err != nil {
		return nil, err
	}
	if _, err := accrual.FromParams(g.Params); err != nil {
		return nil, err
	}
	if err := tax.ValidatePolicy(g.Tax); err != nil {
		return nil, err
	}
	if g.Params.MaxSupply < 0 || g.Params.MaxPerAddress < 0 || g.PresaleMaxPerAddress < 0 {
		return nil, fmt.Errorf("%w: caps must not be negative", fault.ErrInvalidPolicy)
	}

	st := model.NewState()
	st.System = g.System
	st.Params = g.Params
	st.Tax = g.Tax
	st.Antibot.FreezeWindow = g.FreezeWindow
	st.Pause.TradingPaused = true
	st.Presale.Price = g.PresalePrice
	st.Presale.MaxPerAddress = g.PresaleMaxPerAddress

	st.Owners[g.Deployer] = true
	st.Pause.Exempt[g.Deployer] = true
	for _, o := range g.Owners {
		st.Owners[o] = true
		st.Pause.Exempt[o] = true
	}
	for _, a := range g.Exempt {
		st.Pause.Exempt[a] = true
	}

	led := ledger.New(st)
	if err := led.Issue(g.Deployer, g.InitialSupply); err != nil {
		return nil, err
	}
	if !g.RewardFunding.IsZero() {
		if err := led.Move(g.Deployer, g.System.RewardPool, g.RewardFunding); err != nil {
			return nil, fmt.Errorf("fund reward pool: %w", err)
		}
	}
	return st, nil
}

func validateSystem(s model.SystemAccounts) error {
	seen := make(map[account.Account]string)
	for name, a := range map[string]account.Account{
		"contract":    s.Contract,
		"reward pool": s.RewardPool,
		"escrow":      s.Escrow,
		"pool":        s.Pool,
	} {
		if a == "" {
			return fmt.Errorf("%w: %s account is required", fault.ErrInvalidPolicy, name)
		}
		if other, dup := seen[a]; dup {
			return fmt.Errorf("%w: %s and %s share account %s", fault.ErrInvalidPolicy, name, other, a)
		}
		seen[a] = name
	}
	return nil
}
