// Package position is the position ledger: it mints, compounds, claims and
// transfers position records. Positions never hold tokens themselves;
// principal is an accounting figure backed by the escrow balance, and all
// value moves through the balance ledger.
package position

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/accrual"
	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/ledger"
	"github.com/slimefarm/ledger-engine/internal/model"
)

// Env is the environment a position request executes in.
type Env struct {
	Caller     account.Account
	Now        int64
	Privileged bool
	Exempt     bool        // caller bypasses the mint pause
	Paused     bool        // trading is paused for the caller
	Held       bool        // caller is held by the antibot gate
	Value      uint256.Int // base currency attached to the request
}

// Book operates on the positions of a state snapshot.
type Book struct {
	st      *model.State
	led     *ledger.Ledger
	table   *accrual.Table
	limiter *MintLimiter
}

// New wraps st. It fails if the stored level table is inconsistent.
func New(st *model.State) (*Book, error) {
	table, err := accrual.FromParams(st.Params)
	if err != nil {
		return nil, err
	}
	return &Book{
		st:      st,
		led:     ledger.New(st),
		table:   table,
		limiter: NewMintLimiter(st.Params.MaxSupply, st.Params.MaxPerAddress),
	}, nil
}

// Table exposes the level/APR table.
func (b *Book) Table() *accrual.Table {
	return b.table
}

// Get returns a copy of position id.
func (b *Book) Get(id uint64) (model.Position, error) {
	p, ok := b.st.Positions[id]
	if !ok {
		return model.Position{}, fmt.Errorf("%w: %d", fault.ErrInvalidPosition, id)
	}
	return *p, nil
}

// Owned returns the positions held by owner, ordered by id.
func (b *Book) Owned(owner account.Account) []model.Position {
	var out []model.Position
	for _, p := range b.st.Positions {
		if p.Owner == owner {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Supply returns the number of positions ever minted.
func (b *Book) Supply() int {
	return int(b.st.NextPositionID)
}

// Mint creates count positions for owner. The caller pays
// MintPrice × count tokens into escrow through its allowance to escrow.
func (b *Book) Mint(env Env, owner account.Account, count int) ([]model.Position, error) {
	if (b.st.Pause.MintPaused || b.st.Pause.TradingPaused) && !env.Privileged && !env.Exempt {
		return nil, fmt.Errorf("%w: %s may not mint yet", fault.ErrPaused, env.Caller)
	}
	if env.Held && !env.Privileged {
		return nil, fmt.Errorf("%w: %s", fault.ErrAntibotHold, env.Caller)
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: empty owner", fault.ErrInvalidAddress)
	}
	if err := b.limiter.CheckLimit(b.Supply(), b.st.Minted[owner], count); err != nil {
		return nil, err
	}

	price, err := b.mintCost(count)
	if err != nil {
		return nil, err
	}
	if !price.IsZero() {
		escrow := b.st.System.Escrow
		if err := b.led.TransferFrom(escrow, env.Caller, escrow, price); err != nil {
			return nil, err
		}
	}

	b.st.Minted[owner] += count
	return b.create(owner, count, env.Now, false), nil
}

// MintPresale creates count presale positions paid in base currency.
// The attached value must equal PresalePrice × count exactly.
func (b *Book) MintPresale(env Env, owner account.Account, count int) ([]model.Position, error) {
	ps := b.st.Presale
	if ps.Paused || ps.Ended {
		return nil, fault.ErrPresalePaused
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: empty owner", fault.ErrInvalidAddress)
	}
	limiter := NewMintLimiter(b.st.Params.MaxSupply, ps.MaxPerAddress)
	if err := limiter.CheckLimit(b.Supply(), ps.Minted[owner], count); err != nil {
		return nil, err
	}

	var due uint256.Int
	if _, overflow := due.MulOverflow(&ps.Price, uint256.NewInt(uint64(count))); overflow {
		return nil, fmt.Errorf("%w: presale price × %d", fault.ErrOverflow, count)
	}
	if !env.Value.Eq(&due) {
		return nil, fmt.Errorf("%w: attached %s, due %s", fault.ErrIncorrectPayment, env.Value.Dec(), due.Dec())
	}
	var proceeds uint256.Int
	if _, overflow := proceeds.AddOverflow(&ps.Proceeds, &due); overflow {
		return nil, fmt.Errorf("%w: presale proceeds", fault.ErrOverflow)
	}

	b.st.Presale.Proceeds = proceeds
	b.st.Presale.Minted[owner] += count
	return b.create(owner, count, env.Now, true), nil
}

// Reward returns the yield owed to position id at now: rewards settled at
// an earlier principal plus accrual since the current segment began.
func (b *Book) Reward(id uint64, now int64) (uint256.Int, error) {
	p, ok := b.st.Positions[id]
	if !ok {
		return uint256.Int{}, fmt.Errorf("%w: %d", fault.ErrInvalidPosition, id)
	}
	return b.owed(p, now)
}

// Claim pays the owed reward of id from the reward pool to its owner.
// A zero reward is a successful no-op so repeated claims never fail.
func (b *Book) Claim(env Env, id uint64) (uint256.Int, error) {
	p, err := b.owned(env.Caller, id)
	if err != nil {
		return uint256.Int{}, err
	}
	reward, err := b.owed(p, env.Now)
	if err != nil {
		return uint256.Int{}, err
	}
	if reward.IsZero() {
		return reward, nil
	}
	if err := b.payReward(p.Owner, reward); err != nil {
		return uint256.Int{}, err
	}
	p.Claimed.Add(&p.Claimed, &reward)
	p.Pending = uint256.Int{}
	p.LastAccrual = env.Now
	p.AccruedAt = env.Now
	return reward, nil
}

// ClaimAll claims every position the caller owns. The pool must cover the
// whole batch or nothing is paid.
func (b *Book) ClaimAll(env Env) (uint256.Int, []uint64, error) {
	var total uint256.Int
	var paid []uint64
	for _, p := range b.Owned(env.Caller) {
		reward, err := b.Claim(env, p.ID)
		if err != nil {
			return uint256.Int{}, nil, err
		}
		if !reward.IsZero() {
			total.Add(&total, &reward)
			paid = append(paid, p.ID)
		}
	}
	return total, paid, nil
}

// CompoundResult describes a compound.
type CompoundResult struct {
	Position model.Position `json:"position"`
	Absorbed uint256.Int    `json:"absorbed"`
	Refunded uint256.Int    `json:"refunded"`
}

// Compound locks amount more principal into id. Principal is capped at
// the max-level threshold and any excess is refunded to the caller.
//
// Reward already earned at the old principal is settled into Pending so
// the larger principal only applies from now on; LastAccrual (the last
// claim) is left untouched.
func (b *Book) Compound(env Env, id uint64, amount uint256.Int) (CompoundResult, error) {
	p, err := b.owned(env.Caller, id)
	if err != nil {
		return CompoundResult{}, err
	}
	if p.Level >= b.table.MaxLevel() {
		return CompoundResult{}, fmt.Errorf("%w: position %d is level %d", fault.ErrMaxLevelReached, id, p.Level)
	}
	if amount.IsZero() {
		return CompoundResult{}, fault.ErrInvalidAmount
	}
	if !env.Privileged {
		if env.Paused {
			return CompoundResult{}, fmt.Errorf("%w: %s may not compound yet", fault.ErrTradingPaused, env.Caller)
		}
		if env.Held {
			return CompoundResult{}, fmt.Errorf("%w: %s", fault.ErrAntibotHold, env.Caller)
		}
	}
	earned, err := b.table.Accrued(segment(p), env.Now)
	if err != nil {
		return CompoundResult{}, err
	}
	var pending uint256.Int
	if _, overflow := pending.AddOverflow(&p.Pending, &earned); overflow {
		return CompoundResult{}, fmt.Errorf("%w: pending reward", fault.ErrOverflow)
	}

	newPrincipal, absorbed, refund := b.table.Absorb(p.Principal, amount)
	escrow := b.st.System.Escrow
	if err := b.led.TransferFrom(escrow, env.Caller, escrow, amount); err != nil {
		return CompoundResult{}, err
	}
	if !refund.IsZero() {
		if err := b.led.Move(escrow, env.Caller, refund); err != nil {
			return CompoundResult{}, fmt.Errorf("%w: refund: %v", fault.ErrInvariant, err)
		}
	}

	p.Pending = pending
	p.AccruedAt = env.Now
	p.Principal = newPrincipal
	p.Level = b.table.LevelFor(newPrincipal)
	return CompoundResult{Position: *p, Absorbed: absorbed, Refunded: refund}, nil
}

// Transfer hands the whole record of id to a new owner.
func (b *Book) Transfer(env Env, id uint64, to account.Account) (model.Position, error) {
	p, err := b.owned(env.Caller, id)
	if err != nil {
		return model.Position{}, err
	}
	if to == "" {
		return model.Position{}, fmt.Errorf("%w: empty recipient", fault.ErrInvalidAddress)
	}
	p.Owner = to
	return *p, nil
}

func (b *Book) owned(caller account.Account, id uint64) (*model.Position, error) {
	p, ok := b.st.Positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", fault.ErrInvalidPosition, id)
	}
	if p.Owner != caller {
		return nil, fmt.Errorf("%w: %s does not own position %d", fault.ErrNotOwner, caller, id)
	}
	return p, nil
}

func (b *Book) owed(p *model.Position, now int64) (uint256.Int, error) {
	earned, err := b.table.Accrued(segment(p), now)
	if err != nil {
		return uint256.Int{}, err
	}
	var total uint256.Int
	if _, overflow := total.AddOverflow(&p.Pending, &earned); overflow {
		return uint256.Int{}, fmt.Errorf("%w: owed reward", fault.ErrOverflow)
	}
	return total, nil
}

func (b *Book) payReward(to account.Account, reward uint256.Int) error {
	pool := b.st.System.RewardPool
	have := b.led.BalanceOf(pool)
	if have.Lt(&reward) {
		return fmt.Errorf("%w: pool holds %s, owes %s", fault.ErrInsufficientRewardPool, have.Dec(), reward.Dec())
	}
	return b.led.Move(pool, to, reward)
}

func (b *Book) mintCost(count int) (uint256.Int, error) {
	var price uint256.Int
	if _, overflow := price.MulOverflow(&b.st.Params.MintPrice, uint256.NewInt(uint64(count))); overflow {
		return uint256.Int{}, fmt.Errorf("%w: mint price × %d", fault.ErrOverflow, count)
	}
	return price, nil
}

func (b *Book) create(owner account.Account, count int, now int64, presale bool) []model.Position {
	principal := b.st.Params.BasePrincipal
	level := b.table.LevelFor(principal)
	out := make([]model.Position, 0, count)
	for i := 0; i < count; i++ {
		p := &model.Position{
			ID:          b.st.NextPositionID,
			Owner:       owner,
			Principal:   principal,
			Level:       level,
			LastAccrual: now,
			AccruedAt:   now,
			Presale:     presale,
			MintedAt:    now,
		}
		b.st.Positions[p.ID] = p
		b.st.NextPositionID++
		out = append(out, *p)
	}
	return out
}

// segment views a position as accruing from AccruedAt.
func segment(p *model.Position) *model.Position {
	s := *p
	s.LastAccrual = p.AccruedAt
	return &s
}
