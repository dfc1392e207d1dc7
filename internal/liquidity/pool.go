// Package liquidity seeds the external token/base-currency pool and
// activates trading.
package liquidity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/account"
)

// Pool is the external automated market maker. The ledger only uses its
// address to classify buys and sells; it never reads pool internals for
// fee logic.
type Pool interface {
	Address() account.Account
	AddLiquidity(ctx context.Context, token, base uint256.Int) (uint256.Int, error)
	Reserves(ctx context.Context) (token, base uint256.Int, err error)
}

// ErrEmptyReserves is returned when quoting against an unseeded pool.
var ErrEmptyReserves = errors.New("liquidity: pool has no reserves")

// MemoryPool is a constant-product reserve book. Used by the dev server
// and in tests.
type MemoryPool struct {
	mu         sync.Mutex
	addr       account.Account
	tokenRes   uint256.Int
	baseRes    uint256.Int
	totalShare uint256.Int

	// OnAdd, if set, runs inside AddLiquidity before reserves change.
	// Tests use it to simulate a pool that calls back into the ledger.
	OnAdd func(ctx context.Context) error
}

// NewMemoryPool creates an empty pool at addr.
func NewMemoryPool(addr account.Account) *MemoryPool {
	return &MemoryPool{addr: addr}
}

func (p *MemoryPool) Address() account.Account { return p.addr }

// AddLiquidity deposits both sides and mints pool shares: sqrt(token×base)
// for the first deposit, then the smaller proportional share.
func (p *MemoryPool) AddLiquidity(ctx context.Context, token, base uint256.Int) (uint256.Int, error) {
	if p.OnAdd != nil {
		if err := p.OnAdd(ctx); err != nil {
			return uint256.Int{}, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if token.IsZero() || base.IsZero() {
		return uint256.Int{}, fmt.Errorf("liquidity: zero deposit")
	}

	var share uint256.Int
	if p.totalShare.IsZero() {
		var k uint256.Int
		if _, overflow := k.MulOverflow(&token, &base); overflow {
			return uint256.Int{}, fmt.Errorf("liquidity: deposit product overflows")
		}
		share.Sqrt(&k)
	} else {
		var byToken, byBase uint256.Int
		byToken.MulDivOverflow(&token, &p.totalShare, &p.tokenRes)
		byBase.MulDivOverflow(&base, &p.totalShare, &p.baseRes)
		share = byToken
		if byBase.Lt(&byToken) {
			share = byBase
		}
	}
	if share.IsZero() {
		return uint256.Int{}, fmt.Errorf("liquidity: deposit too small")
	}

	p.tokenRes.Add(&p.tokenRes, &token)
	p.baseRes.Add(&p.baseRes, &base)
	p.totalShare.Add(&p.totalShare, &share)
	return share, nil
}

func (p *MemoryPool) Reserves(_ context.Context) (uint256.Int, uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRes, p.baseRes, nil
}

// QuoteBuy returns the tokens out for baseIn at the current reserves,
// before any transfer tax: tokenRes×baseIn / (baseRes+baseIn).
func (p *MemoryPool) QuoteBuy(baseIn uint256.Int) (uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return quote(baseIn, p.baseRes, p.tokenRes)
}

// QuoteSell returns the base currency out for tokenIn.
func (p *MemoryPool) QuoteSell(tokenIn uint256.Int) (uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return quote(tokenIn, p.tokenRes, p.baseRes)
}

func quote(in, resIn, resOut uint256.Int) (uint256.Int, error) {
	if resIn.IsZero() || resOut.IsZero() {
		return uint256.Int{}, ErrEmptyReserves
	}
	var denom, out uint256.Int
	if _, overflow := denom.AddOverflow(&resIn, &in); overflow {
		return uint256.Int{}, fmt.Errorf("liquidity: reserve overflow")
	}
	if _, overflow := out.MulDivOverflow(&resOut, &in, &denom); overflow {
		return uint256.Int{}, fmt.Errorf("liquidity: quote overflow")
	}
	return out, nil
}
