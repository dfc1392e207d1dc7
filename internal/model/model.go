// Package model defines the durable ledger state shared across the engine.
// All token amounts are base units held in uint256, never float64.
package model

import (
	"encoding/json"
	"time"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/account"
)

// Position is a non-fungible record of locked principal that accrues yield.
// Positions are never deleted; a transfer moves the whole record.
type Position struct {
	ID          uint64          `json:"id"`
	Owner       account.Account `json:"owner"`
	Principal   uint256.Int     `json:"principal"`
	Level       int             `json:"level"`
	LastAccrual int64           `json:"last_accrual"` // unix seconds of the last claim
	AccruedAt   int64           `json:"accrued_at"`   // start of the current accrual segment
	Pending     uint256.Int     `json:"pending"`      // settled at an earlier principal, not yet paid
	Claimed     uint256.Int     `json:"claimed"`      // informational running total
	Presale     bool            `json:"presale"`
	MintedAt    int64           `json:"minted_at"`
}

// FeeDestination receives WeightBps/10000 of every collected fee.
type FeeDestination struct {
	Account   account.Account `json:"account"`
	WeightBps uint32          `json:"weight_bps"`
}

// TaxPolicy prices buys and sells against the external pool.
// LaunchSellFeeBps replaces SellFeeBps for LaunchWindow seconds after
// trading is activated.
type TaxPolicy struct {
	BuyFeeBps        uint32           `json:"buy_fee_bps"`
	SellFeeBps       uint32           `json:"sell_fee_bps"`
	LaunchSellFeeBps uint32           `json:"launch_sell_fee_bps"`
	LaunchWindow     int64            `json:"launch_window"` // seconds
	Destinations     []FeeDestination `json:"destinations"`
}

// AntibotState tracks the launch freeze and flagged accounts. A flag is
// informational: enforcement compares the flag block with the window, so
// entries never need removal.
type AntibotState struct {
	Enabled         bool                       `json:"enabled"`
	ActivationBlock uint64                     `json:"activation_block"`
	FreezeWindow    uint64                     `json:"freeze_window"`
	Blacklist       map[account.Account]uint64 `json:"blacklist"`
}

// PauseState gates transfers until trading is activated. Activation is
// one-way: there is no transition back to paused.
type PauseState struct {
	TradingPaused bool                     `json:"trading_paused"`
	ActivatedAt   int64                    `json:"activated_at"` // unix seconds, 0 until activation
	MintPaused    bool                     `json:"mint_paused"`
	Exempt        map[account.Account]bool `json:"exempt"`
}

// PresaleState holds the base-currency presale of positions.
type PresaleState struct {
	Paused        bool                    `json:"paused"`
	Ended         bool                    `json:"ended"`
	Price         uint256.Int             `json:"price"` // base currency per position
	MaxPerAddress int                     `json:"max_per_address"`
	Proceeds      uint256.Int             `json:"proceeds"`
	Minted        map[account.Account]int `json:"minted"`
	Payouts       []ProceedsPayout        `json:"payouts,omitempty"`
}

// ProceedsPayout records one withdrawal of presale proceeds.
type ProceedsPayout struct {
	To     account.Account `json:"to"`
	Amount uint256.Int     `json:"amount"`
	Block  uint64          `json:"block"`
}

// LiquidityState records seeding of the external pool.
type LiquidityState struct {
	Seeded     bool        `json:"seeded"`
	InProgress bool        `json:"in_progress"`
	TokenTotal uint256.Int `json:"token_total"`
	BaseTotal  uint256.Int `json:"base_total"`
	Shares     uint256.Int `json:"shares"`
}

// PositionParams are the tokenomics of the position ledger.
// Thresholds[i] is the principal required for level i+1; APRBps has one
// entry per level including level 0.
type PositionParams struct {
	BasePrincipal uint256.Int   `json:"base_principal"`
	MintPrice     uint256.Int   `json:"mint_price"`
	MaxSupply     int           `json:"max_supply"`
	MaxPerAddress int           `json:"max_per_address"`
	Thresholds    []uint256.Int `json:"thresholds"`
	APRBps        []uint32      `json:"apr_bps"`
}

// SystemAccounts are the contract-owned balances.
type SystemAccounts struct {
	Contract   account.Account `json:"contract"`    // token contract, retains tax and seeds liquidity
	RewardPool account.Account `json:"reward_pool"` // pays position rewards
	Escrow     account.Account `json:"escrow"`      // backs position principal
	Pool       account.Account `json:"pool"`        // external liquidity pool counterparty
}

// State is the complete durable snapshot committed after every request.
type State struct {
	Balances       map[account.Account]*uint256.Int                     `json:"balances"`
	Allowances     map[account.Account]map[account.Account]*uint256.Int `json:"allowances"`
	TotalSupply    uint256.Int                                          `json:"total_supply"`
	Positions      map[uint64]*Position                                 `json:"positions"`
	NextPositionID uint64                                               `json:"next_position_id"`
	Minted         map[account.Account]int                              `json:"minted"`
	Owners         map[account.Account]bool                             `json:"owners"`

	System    SystemAccounts `json:"system"`
	Params    PositionParams `json:"params"`
	Tax       TaxPolicy      `json:"tax"`
	Antibot   AntibotState   `json:"antibot"`
	Pause     PauseState     `json:"pause"`
	Presale   PresaleState   `json:"presale"`
	Liquidity LiquidityState `json:"liquidity"`

	Version uint64 `json:"version"` // incremented on every commit
}

// NewState returns an empty state with all maps allocated.
func NewState() *State {
	s := &State{}
	s.ensureMaps()
	return s
}

func (s *State) ensureMaps() {
	if s.Balances == nil {
		s.Balances = make(map[account.Account]*uint256.Int)
	}
	if s.Allowances == nil {
		s.Allowances = make(map[account.Account]map[account.Account]*uint256.Int)
	}
	if s.Positions == nil {
		s.Positions = make(map[uint64]*Position)
	}
	if s.Minted == nil {
		s.Minted = make(map[account.Account]int)
	}
	if s.Owners == nil {
		s.Owners = make(map[account.Account]bool)
	}
	if s.Antibot.Blacklist == nil {
		s.Antibot.Blacklist = make(map[account.Account]uint64)
	}
	if s.Pause.Exempt == nil {
		s.Pause.Exempt = make(map[account.Account]bool)
	}
	if s.Presale.Minted == nil {
		s.Presale.Minted = make(map[account.Account]int)
	}
}

// Clone deep-copies the state. Requests run against a clone so a failure
// can be discarded without touching the committed snapshot.
func (s *State) Clone() *State {
	c := *s
	c.Balances = make(map[account.Account]*uint256.Int, len(s.Balances))
	for k, v := range s.Balances {
		c.Balances[k] = v.Clone()
	}
	c.Allowances = make(map[account.Account]map[account.Account]*uint256.Int, len(s.Allowances))
	for owner, spenders := range s.Allowances {
		m := make(map[account.Account]*uint256.Int, len(spenders))
		for sp, v := range spenders {
			m[sp] = v.Clone()
		}
		c.Allowances[owner] = m
	}
	c.Positions = make(map[uint64]*Position, len(s.Positions))
	for id, p := range s.Positions {
		cp := *p
		c.Positions[id] = &cp
	}
	c.Minted = copyMap(s.Minted)
	c.Owners = copyMap(s.Owners)
	c.Antibot.Blacklist = copyMap(s.Antibot.Blacklist)
	c.Pause.Exempt = copyMap(s.Pause.Exempt)
	c.Presale.Minted = copyMap(s.Presale.Minted)
	c.Presale.Payouts = append([]ProceedsPayout(nil), s.Presale.Payouts...)
	c.Tax.Destinations = append([]FeeDestination(nil), s.Tax.Destinations...)
	c.Params.Thresholds = append([]uint256.Int(nil), s.Params.Thresholds...)
	c.Params.APRBps = append([]uint32(nil), s.Params.APRBps...)
	c.ensureMaps()
	return &c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MarshalState encodes a snapshot for persistence.
func MarshalState(s *State) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState decodes a persisted snapshot.
func UnmarshalState(data []byte) (*State, error) {
	s := &State{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	s.ensureMaps()
	return s, nil
}

// JournalEntry is an immutable record of one committed request.
// Once created, entries are never modified or deleted.
type JournalEntry struct {
	ID        string          `json:"id" db:"id"`
	Op        string          `json:"op" db:"op"`
	Caller    account.Account `json:"caller" db:"caller"`
	Accounts  []string        `json:"accounts" db:"accounts"` // every account the request touched
	Block     uint64          `json:"block" db:"block"`
	Outcome   string          `json:"outcome" db:"outcome"` // "ok" or "intercepted"
	Params    json.RawMessage `json:"params" db:"params"`
	Version   uint64          `json:"version" db:"version"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Outcomes recorded in the journal.
const (
	OutcomeOK          = "ok"
	OutcomeIntercepted = "intercepted"
)
