// Package api exposes the ledger engine over HTTP and WebSocket.
//
// Every mutating request names its caller in the JSON body; the engine
// decides privilege. Amounts travel as decimal strings, never JSON numbers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/engine"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/ledger"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/units"
)

const defaultJournalLimit = 100

// Handler serves the ledger API on top of an Engine.
type Handler struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// NewHandler creates a Handler. A nil logger uses slog.Default().
func NewHandler(eng *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{eng: eng, logger: logger}
}

// --- Token handlers ---

// Transfer handles POST /api/v1/transfer
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	caller, to, ok := parseAccounts(w, req.Caller, req.To)
	if !ok {
		return
	}
	amount, ok := parseTokens(w, "amount", req.Amount)
	if !ok {
		return
	}
	rcpt, err := h.eng.Transfer(r.Context(), caller[0], to, amount)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceipt(rcpt))
}

// TransferFrom handles POST /api/v1/transfer-from
func (h *Handler) TransferFrom(w http.ResponseWriter, r *http.Request) {
	var req TransferFromRequest
	if !decode(w, r, &req) {
		return
	}
	accts, to, ok := parseAccounts(w, req.Caller, req.From, req.To)
	if !ok {
		return
	}
	amount, ok := parseTokens(w, "amount", req.Amount)
	if !ok {
		return
	}
	rcpt, err := h.eng.TransferFrom(r.Context(), accts[0], accts[1], to, amount)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceipt(rcpt))
}

// Approve handles POST /api/v1/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !decode(w, r, &req) {
		return
	}
	caller, spender, ok := parseAccounts(w, req.Caller, req.Spender)
	if !ok {
		return
	}
	var amount uint256.Int
	if strings.EqualFold(req.Amount, "max") {
		amount = ledger.MaxAllowance
	} else if amount, ok = parseTokens(w, "amount", req.Amount); !ok {
		return
	}

	var err error
	switch req.Mode {
	case "", "set":
		err = h.eng.Approve(r.Context(), caller[0], spender, amount)
	case "increase":
		err = h.eng.IncreaseAllowance(r.Context(), caller[0], spender, amount)
	case "decrease":
		err = h.eng.DecreaseAllowance(r.Context(), caller[0], spender, amount)
	default:
		writeError(w, fmt.Sprintf("unknown mode %q", req.Mode), http.StatusBadRequest)
		return
	}
	if err != nil {
		writeFault(w, err)
		return
	}
	allowance := h.eng.Allowance(caller[0], spender)
	writeJSON(w, http.StatusOK, AllowanceResponse{
		Owner:     string(caller[0]),
		Spender:   string(spender),
		Allowance: allowanceText(allowance),
	})
}

// FundRewardPool handles POST /api/v1/rewards/fund
func (h *Handler) FundRewardPool(w http.ResponseWriter, r *http.Request) {
	var req FundRequest
	if !decode(w, r, &req) {
		return
	}
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return
	}
	amount, ok := parseTokens(w, "amount", req.Amount)
	if !ok {
		return
	}
	if err := h.eng.FundRewardPool(r.Context(), caller, amount); err != nil {
		writeFault(w, err)
		return
	}
	pool := h.eng.Status().System.RewardPool
	writeJSON(w, http.StatusOK, AccountResponse{Account: string(pool), Balance: tokens(h.eng.BalanceOf(pool))})
}

// --- Position handlers ---

// Mint handles POST /api/v1/positions/mint
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if !decode(w, r, &req) {
		return
	}
	caller, owner, ok := parseCallerOwner(w, req)
	if !ok {
		return
	}
	minted, err := h.eng.Mint(r.Context(), caller, owner, req.Count)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPositions(minted))
}

// MintPresale handles POST /api/v1/positions/presale
func (h *Handler) MintPresale(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if !decode(w, r, &req) {
		return
	}
	caller, owner, ok := parseCallerOwner(w, req)
	if !ok {
		return
	}
	value, ok := parseBaseUnits(w, "value", req.Value)
	if !ok {
		return
	}
	minted, err := h.eng.MintPresale(r.Context(), caller, owner, req.Count, value)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPositions(minted))
}

// GetPosition handles GET /api/v1/positions/{id}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}
	p, err := h.eng.Position(id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPosition(p))
}

// GetReward handles GET /api/v1/positions/{id}/reward
func (h *Handler) GetReward(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}
	owed, err := h.eng.RewardOf(id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RewardResponse{Position: id, Reward: tokens(owed)})
}

// Compound handles POST /api/v1/positions/{id}/compound
func (h *Handler) Compound(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}
	var req CompoundRequest
	if !decode(w, r, &req) {
		return
	}
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return
	}
	amount, ok := parseTokens(w, "amount", req.Amount)
	if !ok {
		return
	}
	res, err := h.eng.Compound(r.Context(), caller, id, amount)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompound(res))
}

// ClaimReward handles POST /api/v1/positions/{id}/claim
func (h *Handler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}
	var req CallerRequest
	if !decode(w, r, &req) {
		return
	}
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return
	}
	paid, err := h.eng.ClaimReward(r.Context(), caller, id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimResponse{Paid: tokens(paid)})
}

// ClaimAll handles POST /api/v1/positions/claim-all
func (h *Handler) ClaimAll(w http.ResponseWriter, r *http.Request) {
	var req CallerRequest
	if !decode(w, r, &req) {
		return
	}
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return
	}
	res, err := h.eng.ClaimAll(r.Context(), caller)
	if err != nil {
		writeFault(w, err)
		return
	}
	ids := res.Positions
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, ClaimAllResponse{Total: tokens(res.Total), Positions: ids})
}

// TransferPosition handles POST /api/v1/positions/{id}/transfer
func (h *Handler) TransferPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}
	var req PositionTransferRequest
	if !decode(w, r, &req) {
		return
	}
	caller, to, ok := parseAccounts(w, req.Caller, req.To)
	if !ok {
		return
	}
	p, err := h.eng.TransferPosition(r.Context(), caller[0], id, to)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPosition(p))
}

// --- Account queries ---

// GetAccount handles GET /api/v1/accounts/{account}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, ok := parseAccount(w, "account", chi.URLParam(r, "account"))
	if !ok {
		return
	}
	owned, err := h.eng.PositionsOf(acct)
	if err != nil {
		writeFault(w, err)
		return
	}
	bl := h.eng.IsBlacklisted(acct)
	writeJSON(w, http.StatusOK, AccountResponse{
		Account:     string(acct),
		Balance:     tokens(h.eng.BalanceOf(acct)),
		Positions:   len(owned),
		Blacklisted: bl.Flagged,
		Frozen:      bl.Frozen,
		FlaggedAt:   bl.FlaggedAt,
	})
}

// GetAccountPositions handles GET /api/v1/accounts/{account}/positions
func (h *Handler) GetAccountPositions(w http.ResponseWriter, r *http.Request) {
	acct, ok := parseAccount(w, "account", chi.URLParam(r, "account"))
	if !ok {
		return
	}
	owned, err := h.eng.PositionsOf(acct)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositions(owned))
}

// GetHolders handles GET /api/v1/holders
func (h *Handler) GetHolders(w http.ResponseWriter, _ *http.Request) {
	holders := h.eng.Holders()
	out := make([]HolderResponse, 0, len(holders))
	for _, hd := range holders {
		out = append(out, HolderResponse{Account: string(hd.Account), Balance: units.FormatTokens(hd.Balance)})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAllowance handles GET /api/v1/accounts/{account}/allowances/{spender}
func (h *Handler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseAccount(w, "account", chi.URLParam(r, "account"))
	if !ok {
		return
	}
	spender, ok := parseAccount(w, "spender", chi.URLParam(r, "spender"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, AllowanceResponse{
		Owner:     string(owner),
		Spender:   string(spender),
		Allowance: allowanceText(h.eng.Allowance(owner, spender)),
	})
}

// GetAccountJournal handles GET /api/v1/accounts/{account}/journal
func (h *Handler) GetAccountJournal(w http.ResponseWriter, r *http.Request) {
	acct, ok := parseAccount(w, "account", chi.URLParam(r, "account"))
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", defaultJournalLimit)
	if !ok {
		return
	}
	entries, err := h.eng.JournalOf(r.Context(), acct, limit)
	if err != nil {
		h.logger.Error("journal query failed", "account", acct, "err", err)
		writeError(w, "failed to load journal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// --- Ledger queries ---

// GetStatus handles GET /api/v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStatus(h.eng.Status()))
}

// GetPolicy handles GET /api/v1/tax
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toPolicy(h.eng.Policy()))
}

// GetLevels handles GET /api/v1/levels
func (h *Handler) GetLevels(w http.ResponseWriter, r *http.Request) {
	rows, err := h.eng.APRTable()
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLevels(rows))
}

// GetJournal handles GET /api/v1/journal?after=&limit=
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	after, ok := queryInt(w, r, "after", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", defaultJournalLimit)
	if !ok {
		return
	}
	entries, err := h.eng.Journal(r.Context(), uint64(after), limit)
	if err != nil {
		h.logger.Error("journal query failed", "err", err)
		writeError(w, "failed to load journal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// --- Liquidity and admin handlers ---

// AddLiquidity handles POST /api/v1/liquidity
func (h *Handler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	h.addLiquidity(w, r, false)
}

// AddInitialLiquidity handles POST /api/v1/liquidity/initial
func (h *Handler) AddInitialLiquidity(w http.ResponseWriter, r *http.Request) {
	h.addLiquidity(w, r, true)
}

func (h *Handler) addLiquidity(w http.ResponseWriter, r *http.Request, initial bool) {
	var req LiquidityRequest
	if !decode(w, r, &req) {
		return
	}
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return
	}
	token, ok := parseTokens(w, "token", req.Token)
	if !ok {
		return
	}
	base, ok := parseBaseUnits(w, "base", req.Base)
	if !ok {
		return
	}
	var err error
	var res LiquidityResponse
	if initial {
		out, e := h.eng.AddInitialLiquidity(r.Context(), caller, token, base, req.Antibot)
		res, err = toLiquidity(out), e
	} else {
		out, e := h.eng.AddLiquidity(r.Context(), caller, token, base)
		res, err = toLiquidity(out), e
	}
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Activate handles POST /api/v1/admin/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if !decode(w, r, &req) {
		return
	}
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return
	}
	if err := h.eng.ActivateTrading(r.Context(), caller, req.Antibot); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(h.eng.Status()))
}

// SetTaxPolicy handles POST /api/v1/admin/tax
func (h *Handler) SetTaxPolicy(w http.ResponseWriter, r *http.Request) {
	var req TaxPolicyDTO
	if !decode(w, r, &req) {
		return
	}
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return
	}
	dests, ok := parseDestinations(w, req.Destinations)
	if !ok {
		return
	}
	p := model.TaxPolicy{
		BuyFeeBps:        req.BuyFeeBps,
		SellFeeBps:       req.SellFeeBps,
		LaunchSellFeeBps: req.LaunchSellFeeBps,
		LaunchWindow:     req.LaunchWindow,
		Destinations:     dests,
	}
	if err := h.eng.SetTaxPolicy(r.Context(), caller, p); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicy(h.eng.Policy()))
}

// SetTaxDestinations handles POST /api/v1/admin/tax/destinations
func (h *Handler) SetTaxDestinations(w http.ResponseWriter, r *http.Request) {
	var req DestinationsRequest
	if !decode(w, r, &req) {
		return
	}
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return
	}
	dests, ok := parseDestinations(w, req.Destinations)
	if !ok {
		return
	}
	if err := h.eng.SetTaxDestinations(r.Context(), caller, dests); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicy(h.eng.Policy()))
}

// SetExempt handles POST /api/v1/admin/exempt
func (h *Handler) SetExempt(w http.ResponseWriter, r *http.Request) {
	var req ExemptRequest
	if !decode(w, r, &req) {
		return
	}
	caller, acct, ok := parseAccounts(w, req.Caller, req.Account)
	if !ok {
		return
	}
	if err := h.eng.SetExempt(r.Context(), caller[0], acct, req.Exempt); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": acct, "exempt": req.Exempt})
}

// SetMintPaused handles POST /api/v1/admin/mint-paused
func (h *Handler) SetMintPaused(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if !decode(w, r, &req) {
		return
	}
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return
	}
	if err := h.eng.SetMintPaused(r.Context(), caller, req.Paused); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(h.eng.Status()))
}

// SetPresalePaused handles POST /api/v1/admin/presale
func (h *Handler) SetPresalePaused(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if !decode(w, r, &req) {
		return
	}
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return
	}
	if err := h.eng.SetPresalePaused(r.Context(), caller, req.Paused); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(h.eng.Status()))
}

// EndPresale handles POST /api/v1/admin/presale/end
func (h *Handler) EndPresale(w http.ResponseWriter, r *http.Request) {
	var req CallerRequest
	if !decode(w, r, &req) {
		return
	}
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return
	}
	if err := h.eng.SetPresaleEnded(r.Context(), caller); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatus(h.eng.Status()))
}

// ClaimPresaleProceeds handles POST /api/v1/admin/presale/claim
func (h *Handler) ClaimPresaleProceeds(w http.ResponseWriter, r *http.Request) {
	var req ProceedsRequest
	if !decode(w, r, &req) {
		return
	}
	caller, to, ok := parseAccounts(w, req.Caller, req.To)
	if !ok {
		return
	}
	payout, err := h.eng.ClaimPresaleProceeds(r.Context(), caller[0], to)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProceedsResponse{To: string(payout.To), Paid: payout.Amount.Dec(), Block: payout.Block})
}

// AddOwner handles POST /api/v1/admin/owners
func (h *Handler) AddOwner(w http.ResponseWriter, r *http.Request) {
	var req OwnerRequest
	if !decode(w, r, &req) {
		return
	}
	caller, owner, ok := parseAccounts(w, req.Caller, req.Owner)
	if !ok {
		return
	}
	if err := h.eng.AddOwner(r.Context(), caller[0], owner); err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner})
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func parseAccount(w http.ResponseWriter, field, s string) (account.Account, bool) {
	a, err := account.Parse(s)
	if err != nil {
		writeError(w, fmt.Sprintf("%s: %v", field, err), http.StatusBadRequest)
		return "", false
	}
	return a, true
}

// parseAccounts parses every raw account; the last one is returned
// separately since it is usually the counterparty.
func parseAccounts(w http.ResponseWriter, raw ...string) ([]account.Account, account.Account, bool) {
	out := make([]account.Account, 0, len(raw))
	for _, s := range raw {
		a, ok := parseAccount(w, "account", s)
		if !ok {
			return nil, "", false
		}
		out = append(out, a)
	}
	return out, out[len(out)-1], true
}

func parseCallerOwner(w http.ResponseWriter, req MintRequest) (account.Account, account.Account, bool) {
	caller, ok := parseAccount(w, "caller", req.Caller)
	if !ok {
		return "", "", false
	}
	if req.Owner == "" {
		return caller, caller, true
	}
	owner, ok := parseAccount(w, "owner", req.Owner)
	return caller, owner, ok
}

func parseTokens(w http.ResponseWriter, field, s string) (uint256.Int, bool) {
	v, err := units.ParseTokens(s)
	if err != nil {
		writeError(w, fmt.Sprintf("%s: %v", field, err), http.StatusBadRequest)
		return uint256.Int{}, false
	}
	return v, true
}

func parseBaseUnits(w http.ResponseWriter, field, s string) (uint256.Int, bool) {
	if s == "" {
		return uint256.Int{}, true
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		writeError(w, fmt.Sprintf("%s: %q is not a base-unit integer", field, s), http.StatusBadRequest)
		return uint256.Int{}, false
	}
	return *v, true
}

func parseDestinations(w http.ResponseWriter, in []DestinationDTO) ([]model.FeeDestination, bool) {
	out := make([]model.FeeDestination, 0, len(in))
	for _, d := range in {
		a, ok := parseAccount(w, "destination", d.Account)
		if !ok {
			return nil, false
		}
		out = append(out, model.FeeDestination{Account: a, WeightBps: d.WeightBps})
	}
	return out, true
}

func positionID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, "invalid position id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, fmt.Sprintf("invalid %s", name), http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func allowanceText(v uint256.Int) string {
	if v.Eq(&ledger.MaxAllowance) {
		return "max"
	}
	return tokens(v)
}

func nonNil(entries []model.JournalEntry) []model.JournalEntry {
	if entries == nil {
		return []model.JournalEntry{}
	}
	return entries
}

// statusFor maps a fault kind to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, fault.ErrNotOwner) || errors.Is(err, fault.ErrNotPrivileged) {
		return http.StatusForbidden
	}
	switch fault.KindOf(err) {
	case fault.Validation:
		return http.StatusBadRequest
	case fault.InsufficientFunds:
		return http.StatusPaymentRequired
	case fault.PolicyViolation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// writeFault writes a classified engine error.
func writeFault(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal ledger error"
	}
	writeJSON(w, status, errorResponse{
		Error: msg,
		Code:  fault.CodeOf(err),
		Kind:  fault.KindOf(err).String(),
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
