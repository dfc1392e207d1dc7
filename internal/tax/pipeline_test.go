package tax

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/ledger"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/units"
)

const (
	deployer account.Account = "deployer"
	alice    account.Account = "alice"
	bob      account.Account = "bob"
	pool     account.Account = "pool"
	rewards  account.Account = "rewards"
	mkt      account.Account = "marketing"
	contract account.Account = "contract"
)

func tok(n uint64) uint256.Int { return units.Tokens(n) }

func newState(t testing.TB) *model.State {
	t.Helper()
	st := model.NewState()
	st.System = model.SystemAccounts{Contract: contract, RewardPool: rewards, Escrow: "escrow", Pool: pool}
	st.Pause.Exempt[deployer] = true
	st.Tax = model.TaxPolicy{
		BuyFeeBps:  500,
		SellFeeBps: 500,
		Destinations: []model.FeeDestination{
			{Account: rewards, WeightBps: 5000},
			{Account: mkt, WeightBps: 3000},
			{Account: contract, WeightBps: 2000},
		},
	}
	st.Antibot.FreezeWindow = 2
	led := ledger.New(st)
	require.NoError(t, led.Issue(deployer, tok(1_000_000)))
	return st
}

func balance(st *model.State, a account.Account) uint256.Int {
	return ledger.New(st).BalanceOf(a)
}

func TestPauseGate(t *testing.T) {
	st := newState(t)
	st.Pause.TradingPaused = true
	p := New(st)
	env := Env{Block: 1, Now: 1000}

	// Exempt deployer can distribute while paused.
	_, err := p.Transfer(env, deployer, alice, tok(100))
	require.NoError(t, err)

	// Two non-exempt accounts cannot.
	_, err = p.Transfer(env, alice, bob, tok(10))
	require.ErrorIs(t, err, fault.ErrTradingPaused)
	assert.Equal(t, fault.PolicyViolation, fault.KindOf(err))
	a := balance(st, alice)
	assert.True(t, a.Eq(ptr(tok(100))), "failed transfer must not move value")
}

func TestGate_JudgesPayerAlone(t *testing.T) {
	st := newState(t)
	st.Pause.TradingPaused = true
	p := New(st)
	env := Env{Block: 5}

	// A paused transfer into escrow passes CheckPause because escrow is
	// exempt; Gate still stops the payer.
	require.NoError(t, p.CheckPause(alice, "escrow"))
	assert.ErrorIs(t, p.Gate(env, alice), fault.ErrTradingPaused)
	assert.NoError(t, p.Gate(env, deployer))

	st.Pause.TradingPaused = false
	st.Antibot.Enabled = true
	st.Antibot.ActivationBlock = 5
	assert.True(t, p.Held(env, alice))
	assert.ErrorIs(t, p.Gate(env, alice), fault.ErrAntibotHold)
	assert.False(t, p.Held(env, deployer))

	// After the window only a recent flag holds.
	env.Block = 7
	assert.NoError(t, p.Gate(env, alice))
	st.Antibot.Blacklist[alice] = 6
	assert.ErrorIs(t, p.Gate(env, alice), fault.ErrAntibotHold)
	env.Block = 8
	assert.NoError(t, p.Gate(env, alice))
}

func TestPlainTransferHasNoFee(t *testing.T) {
	st := newState(t)
	p := New(st)
	rcpt, err := p.Transfer(Env{Block: 10}, deployer, alice, tok(100))
	require.NoError(t, err)
	assert.Equal(t, Plain, rcpt.Direction)
	assert.True(t, rcpt.Fee.IsZero())
	a := balance(st, alice)
	assert.True(t, a.Eq(ptr(tok(100))))
}

func TestSellFeeSplit(t *testing.T) {
	st := newState(t)
	p := New(st)
	env := Env{Block: 10, Now: 10_000}
	_, err := p.Transfer(env, deployer, alice, tok(100))
	require.NoError(t, err)

	rcpt, err := p.Transfer(env, alice, pool, tok(100))
	require.NoError(t, err)
	assert.Equal(t, Sell, rcpt.Direction)
	assert.True(t, rcpt.Fee.Eq(ptr(tok(5))), "fee = %s", rcpt.Fee.Dec())
	assert.True(t, rcpt.Net.Eq(ptr(tok(95))))

	r, m, c := balance(st, rewards), balance(st, mkt), balance(st, contract)
	assert.Equal(t, "2.5", units.FormatTokens(r))
	assert.Equal(t, "1.5", units.FormatTokens(m))
	assert.Equal(t, "1", units.FormatTokens(c))
	pl := balance(st, pool)
	assert.Equal(t, "95", units.FormatTokens(pl))
}

func TestBuyFee(t *testing.T) {
	st := newState(t)
	st.Tax.BuyFeeBps = 300
	p := New(st)
	env := Env{Block: 10}
	_, err := p.Transfer(env, deployer, pool, tok(1000))
	require.NoError(t, err)

	rcpt, err := p.Transfer(env, pool, alice, tok(200))
	require.NoError(t, err)
	assert.Equal(t, Buy, rcpt.Direction)
	assert.Equal(t, "6", units.FormatTokens(rcpt.Fee))
	a := balance(st, alice)
	assert.Equal(t, "194", units.FormatTokens(a))
}

func TestSplitFee_RemainderToFirst(t *testing.T) {
	dests := []model.FeeDestination{
		{Account: rewards, WeightBps: 3333},
		{Account: mkt, WeightBps: 3333},
		{Account: contract, WeightBps: 3334},
	}
	splits := SplitFee(*uint256.NewInt(10), dests)
	require.Len(t, splits, 3)
	// 10×3333/10000 = 3, 3, 10×3334/10000 = 3 → remainder 1 to the first.
	assert.Equal(t, uint64(4), splits[0].Amount.Uint64())
	assert.Equal(t, uint64(3), splits[1].Amount.Uint64())
	assert.Equal(t, uint64(3), splits[2].Amount.Uint64())
}

func TestLaunchSellFee(t *testing.T) {
	st := newState(t)
	st.Tax.SellFeeBps = 1000
	st.Tax.LaunchSellFeeBps = 2000
	st.Tax.LaunchWindow = 3600
	st.Pause.ActivatedAt = 1_000
	p := New(st)
	_, err := p.Transfer(Env{Block: 10, Now: 1_000}, deployer, alice, tok(200))
	require.NoError(t, err)

	rcpt, err := p.Transfer(Env{Block: 10, Now: 1_500}, alice, pool, tok(100))
	require.NoError(t, err)
	assert.Equal(t, "20", units.FormatTokens(rcpt.Fee), "launch window sell")

	rcpt, err = p.Transfer(Env{Block: 11, Now: 1_000 + 4_000}, alice, pool, tok(100))
	require.NoError(t, err)
	assert.Equal(t, "10", units.FormatTokens(rcpt.Fee), "after launch window")
}

func TestAntibot_InterceptsDuringWindow(t *testing.T) {
	st := newState(t)
	p := New(st)
	_, err := p.Transfer(Env{Block: 1}, deployer, alice, tok(100))
	require.NoError(t, err)

	st.Antibot.Enabled = true
	st.Antibot.ActivationBlock = 5

	rcpt, err := p.Transfer(Env{Block: 5}, alice, bob, tok(100))
	require.NoError(t, err, "interception is not an error")
	assert.True(t, rcpt.Intercepted)
	assert.ElementsMatch(t, []account.Account{alice, bob}, rcpt.Flagged)
	a := balance(st, alice)
	assert.True(t, a.Eq(ptr(tok(100))), "intercepted transfer must not move value")
	assert.True(t, IsBlacklisted(st.Antibot, alice))

	// Exempt deployer still distributes inside the window.
	rcpt, err = p.Transfer(Env{Block: 6}, deployer, "carol", tok(100))
	require.NoError(t, err)
	assert.False(t, rcpt.Intercepted)
}

func TestAntibot_FreezeExpires(t *testing.T) {
	st := newState(t)
	st.Antibot.FreezeWindow = 3
	p := New(st)
	_, err := p.Transfer(Env{Block: 1}, deployer, alice, tok(100))
	require.NoError(t, err)
	st.Antibot.Blacklist[alice] = 20 // flagged at block N = 20

	for block := uint64(20); block < 23; block++ {
		rcpt, err := p.Transfer(Env{Block: block}, alice, bob, tok(1))
		require.NoError(t, err)
		assert.True(t, rcpt.Intercepted, "block %d is inside the freeze", block)
	}
	assert.Equal(t, uint64(20), st.Antibot.Blacklist[alice], "frozen account is not re-flagged")

	rcpt, err := p.Transfer(Env{Block: 23}, alice, bob, tok(1))
	require.NoError(t, err)
	assert.False(t, rcpt.Intercepted, "N+freezeWindow transfers normally")
	b := balance(st, bob)
	assert.True(t, b.Eq(ptr(tok(1))))
}

func TestAntibot_BuyFlagsBuyerNotPool(t *testing.T) {
	st := newState(t)
	p := New(st)
	_, err := p.Transfer(Env{Block: 1}, deployer, pool, tok(100))
	require.NoError(t, err)
	st.Antibot.Enabled = true
	st.Antibot.ActivationBlock = 2

	rcpt, err := p.Transfer(Env{Block: 2}, pool, alice, tok(10))
	require.NoError(t, err)
	assert.True(t, rcpt.Intercepted)
	assert.Equal(t, []account.Account{alice}, rcpt.Flagged)
	assert.False(t, IsBlacklisted(st.Antibot, pool))
}

func TestTransferFrom_ConsumesAllowanceOnlyWhenMoved(t *testing.T) {
	st := newState(t)
	p := New(st)
	led := ledger.New(st)
	_, err := p.Transfer(Env{Block: 1}, deployer, alice, tok(100))
	require.NoError(t, err)
	led.Approve(alice, "router", tok(50))

	_, err = p.TransferFrom(Env{Block: 1}, "router", alice, pool, tok(60))
	require.ErrorIs(t, err, fault.ErrInsufficientAllowance)

	_, err = p.TransferFrom(Env{Block: 1}, "router", alice, pool, tok(50))
	require.NoError(t, err)
	allow := led.Allowance(alice, "router")
	assert.True(t, allow.IsZero())

	st.Antibot.Enabled = true
	st.Antibot.ActivationBlock = 3
	led.Approve(alice, "router", tok(10))
	rcpt, err := p.TransferFrom(Env{Block: 3}, "router", alice, pool, tok(10))
	require.NoError(t, err)
	assert.True(t, rcpt.Intercepted)
	allow = led.Allowance(alice, "router")
	assert.True(t, allow.Eq(ptr(tok(10))), "intercepted transfer keeps allowance")
}

func TestTransfer_RejectsZeroAndShortfall(t *testing.T) {
	st := newState(t)
	p := New(st)
	_, err := p.Transfer(Env{}, deployer, alice, uint256.Int{})
	assert.True(t, errors.Is(err, fault.ErrInvalidAmount))
	_, err = p.Transfer(Env{}, alice, bob, tok(1))
	assert.True(t, errors.Is(err, fault.ErrInsufficientBalance))
}

func TestValidatePolicy(t *testing.T) {
	good := newState(t).Tax
	require.NoError(t, ValidatePolicy(good))

	bad := good
	bad.BuyFeeBps = 10001
	assert.ErrorIs(t, ValidatePolicy(bad), fault.ErrInvalidPolicy)

	bad = good
	bad.Destinations = []model.FeeDestination{{Account: rewards, WeightBps: 9000}}
	assert.ErrorIs(t, ValidatePolicy(bad), fault.ErrInvalidPolicy)

	bad = good
	bad.Destinations = nil
	assert.ErrorIs(t, ValidatePolicy(bad), fault.ErrInvalidPolicy)

	bad = good
	bad.Destinations = []model.FeeDestination{{Account: rewards, WeightBps: 5000}, {Account: rewards, WeightBps: 5000}}
	assert.ErrorIs(t, ValidatePolicy(bad), fault.ErrInvalidPolicy)

	free := model.TaxPolicy{}
	assert.NoError(t, ValidatePolicy(free))
}

// Conservation: tax redistributes value, never creates or destroys it.
func TestTransfer_ConservesValue(t *testing.T) {
	holders := []account.Account{deployer, alice, bob, pool, "carol"}
	rapid.Check(t, func(rt *rapid.T) {
		st := newState(t)
		st.Tax.BuyFeeBps = rapid.Uint32Range(0, 3000).Draw(rt, "buyBps")
		st.Tax.SellFeeBps = rapid.Uint32Range(0, 3000).Draw(rt, "sellBps")
		p := New(st)
		led := ledger.New(st)
		before := led.Sum()

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			from := rapid.SampledFrom(holders).Draw(rt, "from")
			to := rapid.SampledFrom(holders).Draw(rt, "to")
			amount := rapid.Uint64Range(1, 500_000).Draw(rt, "amount")
			_, _ = p.Transfer(Env{Block: uint64(i)}, from, to, tok(amount))
		}
		after := led.Sum()
		if !after.Eq(&before) {
			rt.Fatalf("sum changed from %s to %s", before.Dec(), after.Dec())
		}
		if err := led.CheckInvariants(); err != nil {
			rt.Fatal(err)
		}
	})
}

func ptr(v uint256.Int) *uint256.Int { return &v }
