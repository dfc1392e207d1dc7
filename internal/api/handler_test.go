package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slimefarm/ledger-engine/internal/api"
	"github.com/slimefarm/ledger-engine/internal/chain"
	"github.com/slimefarm/ledger-engine/internal/engine"
	"github.com/slimefarm/ledger-engine/internal/liquidity"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/store"
	"github.com/slimefarm/ledger-engine/internal/units"
)

const t0 int64 = 1_700_000_000

func testGenesis() engine.Genesis {
	thresholds := make([]uint256.Int, 3)
	for i := range thresholds {
		thresholds[i] = units.Tokens(uint64(100 * (i + 1)))
	}
	return engine.Genesis{
		Deployer:      "deployer",
		InitialSupply: units.Tokens(1_000_000),
		RewardFunding: units.Tokens(10_000),
		System:        model.SystemAccounts{Contract: "contract", RewardPool: "rewards", Escrow: "escrow", Pool: "pool"},
		Params: model.PositionParams{
			BasePrincipal: units.Tokens(50),
			MintPrice:     units.Tokens(10),
			MaxSupply:     10,
			MaxPerAddress: 2,
			Thresholds:    thresholds,
			APRBps:        []uint32{1000, 2000, 3000, 4000},
		},
		Tax: model.TaxPolicy{
			BuyFeeBps:    500,
			SellFeeBps:   500,
			Destinations: []model.FeeDestination{{Account: "rewards", WeightBps: 10000}},
		},
		FreezeWindow:         2,
		PresalePrice:         *uint256.NewInt(1_000),
		PresaleMaxPerAddress: 1,
	}
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(context.Background(), engine.Deps{
		Store:  store.NewMemoryStore(),
		Clock:  chain.NewManualClock(t0, 1),
		Pool:   liquidity.NewMemoryPool("pool"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, testGenesis())
	require.NoError(t, err)
	return eng
}

func newRouter(t *testing.T, cfg api.RouterConfig) (*engine.Engine, chi.Router) {
	t.Helper()
	eng := newEngine(t)
	return eng, api.NewRouter(api.NewHandler(eng, slog.New(slog.NewTextHandler(io.Discard, nil))), cfg)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

type errBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Kind  string `json:"kind"`
}

func TestHealth(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{})
	w := do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestGetStatus(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{})
	w := do(t, r, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	st := decodeBody[api.StatusResponse](t, w)
	assert.Equal(t, "1000000", st.TotalSupply)
	assert.True(t, st.TradingPaused)
	assert.Equal(t, uint64(1), st.Version)
	assert.Equal(t, "pool", st.Pool)
}

func TestTransfer_PausedIsConflict(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{})
	w := do(t, r, http.MethodPost, "/api/v1/transfer", api.TransferRequest{Caller: "deployer", To: "alice", Amount: "100"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/v1/transfer", api.TransferRequest{Caller: "alice", To: "bob", Amount: "1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody[errBody](t, w)
	assert.Equal(t, "TradingPaused", body.Code)
	assert.Equal(t, "PolicyViolation", body.Kind)
}

func TestTransfer_BadInput(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{})

	w := do(t, r, http.MethodPost, "/api/v1/transfer", api.TransferRequest{Caller: "deployer", To: "alice", Amount: "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/transfer", api.TransferRequest{Caller: "Not An Account", To: "alice", Amount: "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfer", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransfer_InsufficientIsPaymentRequired(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{})
	w := do(t, r, http.MethodPost, "/api/v1/transfer", api.TransferRequest{Caller: "deployer", To: "alice", Amount: "2000000"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "InsufficientBalance", decodeBody[errBody](t, w).Code)
}

func TestAdmin_NotPrivilegedIsForbidden(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{})
	w := do(t, r, http.MethodPost, "/api/v1/admin/activate", api.ActivateRequest{Caller: "alice"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NotPrivileged", decodeBody[errBody](t, w).Code)
}

func TestMintFlow(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{})

	w := do(t, r, http.MethodPost, "/api/v1/admin/activate", api.ActivateRequest{Caller: "deployer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decodeBody[api.StatusResponse](t, w).TradingPaused)

	w = do(t, r, http.MethodPost, "/api/v1/transfer", api.TransferRequest{Caller: "deployer", To: "alice", Amount: "1000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/v1/approve", api.ApproveRequest{Caller: "alice", Spender: "escrow", Amount: "max"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "max", decodeBody[api.AllowanceResponse](t, w).Allowance)

	w = do(t, r, http.MethodPost, "/api/v1/positions/mint", api.MintRequest{Caller: "alice", Count: 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	minted := decodeBody[[]api.PositionResponse](t, w)
	require.Len(t, minted, 2)
	assert.Equal(t, "alice", minted[0].Owner)
	assert.Equal(t, "50", minted[0].Principal)

	w = do(t, r, http.MethodPost, "/api/v1/positions/mint", api.MintRequest{Caller: "alice", Count: 1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/accounts/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	acct := decodeBody[api.AccountResponse](t, w)
	assert.Equal(t, "980", acct.Balance)
	assert.Equal(t, 2, acct.Positions)

	w = do(t, r, http.MethodGet, "/api/v1/positions/1/reward", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", decodeBody[api.RewardResponse](t, w).Reward)

	w = do(t, r, http.MethodPost, "/api/v1/positions/1/claim", api.CallerRequest{Caller: "bob"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/positions/99", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidPosition", decodeBody[errBody](t, w).Code)
}

func TestCompoundOverHTTP(t *testing.T) {
	eng, r := newRouter(t, api.RouterConfig{})
	ctx := context.Background()
	require.NoError(t, eng.ActivateTrading(ctx, "deployer", false))
	_, err := eng.Transfer(ctx, "deployer", "alice", units.Tokens(500))
	require.NoError(t, err)
	require.NoError(t, eng.Approve(ctx, "alice", "escrow", units.Tokens(500)))
	_, err = eng.Mint(ctx, "alice", "alice", 1)
	require.NoError(t, err)

	w := do(t, r, http.MethodPost, "/api/v1/positions/0/compound", api.CompoundRequest{Caller: "alice", Amount: "100"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[api.CompoundResponse](t, w)
	assert.Equal(t, "150", res.Position.Principal)
	assert.Equal(t, 1, res.Position.Level)
	assert.Equal(t, "0", res.Refunded)
}

func TestJournal(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{})
	do(t, r, http.MethodPost, "/api/v1/transfer", api.TransferRequest{Caller: "deployer", To: "alice", Amount: "5"})

	w := do(t, r, http.MethodGet, "/api/v1/journal?after=0&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decodeBody[[]model.JournalEntry](t, w)
	require.Len(t, entries, 2)
	assert.Equal(t, "genesis", entries[0].Op)
	assert.Equal(t, "transfer", entries[1].Op)

	w = do(t, r, http.MethodGet, "/api/v1/accounts/alice/journal", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]model.JournalEntry](t, w), 1)

	w = do(t, r, http.MethodGet, "/api/v1/journal?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLevelsAndPolicy(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{})

	w := do(t, r, http.MethodGet, "/api/v1/levels", nil)
	require.Equal(t, http.StatusOK, w.Code)
	levels := decodeBody[[]api.LevelResponse](t, w)
	require.Len(t, levels, 4)
	assert.Equal(t, "300", levels[3].Threshold)
	assert.Equal(t, "40", levels[3].APRPercent)

	w = do(t, r, http.MethodPost, "/api/v1/admin/tax", api.TaxPolicyDTO{
		Caller:       "deployer",
		BuyFeeBps:    300,
		SellFeeBps:   700,
		Destinations: []api.DestinationDTO{{Account: "rewards", WeightBps: 6000}, {Account: "marketing", WeightBps: 4000}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/v1/tax", nil)
	policy := decodeBody[api.TaxPolicyDTO](t, w)
	assert.Equal(t, uint32(700), policy.SellFeeBps)
	assert.Len(t, policy.Destinations, 2)
}

func TestRateLimit(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{RateLimit: 0.001, Burst: 1})

	w := do(t, r, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodGet, "/api/v1/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestWSHub_BroadcastsCommits(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := api.NewWSHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	eng := newEngine(t)
	eng.OnCommit(hub.Publish)
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(eng, logger), api.RouterConfig{Hub: hub}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = eng.Transfer(context.Background(), "deployer", "alice", units.Tokens(1))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg api.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "commit", msg.Type)
	assert.Equal(t, "transfer", msg.Op)
	assert.Equal(t, uint64(2), msg.Version)
	assert.Contains(t, msg.Accounts, "alice")
}

func TestWSHub_AccountFilter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := api.NewWSHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	eng := newEngine(t)
	eng.OnCommit(hub.Publish)
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(eng, logger), api.RouterConfig{Hub: hub}))
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?account=Not%20Valid", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?account=bob", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = eng.Transfer(context.Background(), "deployer", "alice", units.Tokens(1))
	require.NoError(t, err)
	_, err = eng.Transfer(context.Background(), "deployer", "bob", units.Tokens(1))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg api.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, uint64(3), msg.Version, "the alice transfer is filtered out")
	assert.Contains(t, msg.Accounts, "bob")
}

func TestHolders(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{})

	w := do(t, r, http.MethodGet, "/api/v1/holders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []api.HolderResponse{
		{Account: "deployer", Balance: "990000"},
		{Account: "rewards", Balance: "10000"},
	}, decodeBody[[]api.HolderResponse](t, w))
}

func TestPresaleProceedsPayout(t *testing.T) {
	_, r := newRouter(t, api.RouterConfig{})

	w := do(t, r, http.MethodPost, "/api/v1/positions/presale", api.MintRequest{Caller: "bob", Count: 1, Value: "1000"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/v1/admin/presale/end", api.CallerRequest{Caller: "deployer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/v1/admin/presale/claim", api.ProceedsRequest{Caller: "deployer", To: "treasury"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, api.ProceedsResponse{To: "treasury", Paid: "1000", Block: 1}, decodeBody[api.ProceedsResponse](t, w))
}

func TestFundRewardPool_PausedPayerConflicts(t *testing.T) {
	eng, r := newRouter(t, api.RouterConfig{})
	_, err := eng.Transfer(context.Background(), "deployer", "alice", units.Tokens(100))
	require.NoError(t, err)

	w := do(t, r, http.MethodPost, "/api/v1/rewards/fund", api.FundRequest{Caller: "alice", Amount: "10"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "TradingPaused", decodeBody[errBody](t, w).Code)
	assert.Equal(t, units.Tokens(100), eng.BalanceOf("alice"))
}
