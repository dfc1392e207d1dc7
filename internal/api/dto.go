package api

import (
	"github.com/holiman/uint256"

	"github.com/slimefarm/ledger-engine/internal/engine"
	"github.com/slimefarm/ledger-engine/internal/liquidity"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/position"
	"github.com/slimefarm/ledger-engine/internal/tax"
	"github.com/slimefarm/ledger-engine/internal/units"
)

// --- Request types ---
//
// Token amounts are decimal token strings ("12.5"). Base-currency values
// (presale payments, liquidity base) are integer strings in base units.

// TransferRequest is the JSON body for POST /transfer.
type TransferRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// TransferFromRequest is the JSON body for POST /transfer-from.
type TransferFromRequest struct {
	Caller string `json:"caller"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// ApproveRequest is the JSON body for POST /approve. Mode is "set"
// (default), "increase" or "decrease"; Amount "max" sets the unlimited
// allowance.
type ApproveRequest struct {
	Caller  string `json:"caller"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
	Mode    string `json:"mode,omitempty"`
}

// MintRequest is the JSON body for POST /positions/mint and
// /positions/presale. Owner defaults to the caller.
type MintRequest struct {
	Caller string `json:"caller"`
	Owner  string `json:"owner,omitempty"`
	Count  int    `json:"count"`
	Value  string `json:"value,omitempty"` // presale only
}

// CompoundRequest is the JSON body for POST /positions/{id}/compound.
type CompoundRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

// CallerRequest carries only the caller.
type CallerRequest struct {
	Caller string `json:"caller"`
}

// PositionTransferRequest is the JSON body for POST /positions/{id}/transfer.
type PositionTransferRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
}

// LiquidityRequest is the JSON body for POST /liquidity and /liquidity/initial.
type LiquidityRequest struct {
	Caller  string `json:"caller"`
	Token   string `json:"token"`
	Base    string `json:"base"`
	Antibot bool   `json:"antibot,omitempty"` // initial only
}

// ActivateRequest is the JSON body for POST /admin/activate.
type ActivateRequest struct {
	Caller  string `json:"caller"`
	Antibot bool   `json:"antibot"`
}

// DestinationDTO is one fee destination.
type DestinationDTO struct {
	Account   string `json:"account"`
	WeightBps uint32 `json:"weight_bps"`
}

// TaxPolicyDTO is the JSON form of the tax policy. LaunchWindow is seconds.
type TaxPolicyDTO struct {
	Caller           string           `json:"caller,omitempty"`
	BuyFeeBps        uint32           `json:"buy_fee_bps"`
	SellFeeBps       uint32           `json:"sell_fee_bps"`
	LaunchSellFeeBps uint32           `json:"launch_sell_fee_bps"`
	LaunchWindow     int64            `json:"launch_window"`
	Destinations     []DestinationDTO `json:"destinations"`
}

// DestinationsRequest is the JSON body for POST /admin/tax/destinations.
type DestinationsRequest struct {
	Caller       string           `json:"caller"`
	Destinations []DestinationDTO `json:"destinations"`
}

// ExemptRequest is the JSON body for POST /admin/exempt.
type ExemptRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Exempt  bool   `json:"exempt"`
}

// PauseRequest is the JSON body for POST /admin/mint-paused and /admin/presale.
type PauseRequest struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

// ProceedsRequest is the JSON body for POST /admin/presale/claim.
type ProceedsRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
}

// OwnerRequest is the JSON body for POST /admin/owners.
type OwnerRequest struct {
	Caller string `json:"caller"`
	Owner  string `json:"owner"`
}

// FundRequest is the JSON body for POST /rewards/fund.
type FundRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

// --- Response types ---

// SplitDTO is one fee credit.
type SplitDTO struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// ReceiptResponse reports a transfer.
type ReceiptResponse struct {
	From        string     `json:"from"`
	To          string     `json:"to"`
	Amount      string     `json:"amount"`
	Direction   string     `json:"direction,omitempty"`
	FeeBps      uint32     `json:"fee_bps"`
	Fee         string     `json:"fee"`
	Net         string     `json:"net"`
	Splits      []SplitDTO `json:"splits,omitempty"`
	Intercepted bool       `json:"intercepted"`
	Flagged     []string   `json:"flagged,omitempty"`
}

// PositionResponse is the JSON form of a position.
type PositionResponse struct {
	ID          uint64 `json:"id"`
	Owner       string `json:"owner"`
	Principal   string `json:"principal"`
	Level       int    `json:"level"`
	LastAccrual int64  `json:"last_accrual"`
	AccruedAt   int64  `json:"accrued_at"`
	Pending     string `json:"pending"`
	Claimed     string `json:"claimed"`
	Presale     bool   `json:"presale"`
	MintedAt    int64  `json:"minted_at"`
}

// CompoundResponse reports a compound.
type CompoundResponse struct {
	Position PositionResponse `json:"position"`
	Absorbed string           `json:"absorbed"`
	Refunded string           `json:"refunded"`
}

// ClaimResponse reports a single reward claim.
type ClaimResponse struct {
	Paid string `json:"paid"`
}

// ProceedsResponse reports a presale proceeds payout.
type ProceedsResponse struct {
	To    string `json:"to"`
	Paid  string `json:"paid"`
	Block uint64 `json:"block"`
}

// ClaimAllResponse reports a batch claim.
type ClaimAllResponse struct {
	Total     string   `json:"total"`
	Positions []uint64 `json:"positions"`
}

// RewardResponse reports the reward a position would pay now.
type RewardResponse struct {
	Position uint64 `json:"position"`
	Reward   string `json:"reward"`
}

// LiquidityResponse reports a pool deposit.
type LiquidityResponse struct {
	Token     string `json:"token"`
	Base      string `json:"base"`
	Share     string `json:"share"`
	Activated bool   `json:"activated"`
}

// AccountResponse is the JSON body of GET /accounts/{account}.
type AccountResponse struct {
	Account     string `json:"account"`
	Balance     string `json:"balance"`
	Positions   int    `json:"positions"`
	Blacklisted bool   `json:"blacklisted"`
	Frozen      bool   `json:"frozen"`
	FlaggedAt   uint64 `json:"flagged_at,omitempty"`
}

// HolderResponse is one entry of GET /holders.
type HolderResponse struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// AllowanceResponse is the JSON body of GET /accounts/{account}/allowances/{spender}.
type AllowanceResponse struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

// LevelResponse is one row of GET /levels.
type LevelResponse struct {
	Level      int    `json:"level"`
	Threshold  string `json:"threshold"`
	APRBps     uint32 `json:"apr_bps"`
	APRPercent string `json:"apr_percent"`
}

// StatusResponse is the JSON body of GET /status.
type StatusResponse struct {
	Version         uint64 `json:"version"`
	Block           uint64 `json:"block"`
	Now             int64  `json:"now"`
	TotalSupply     string `json:"total_supply"`
	Positions       int    `json:"positions"`
	TradingPaused   bool   `json:"trading_paused"`
	ActivatedAt     int64  `json:"activated_at"`
	InLaunchWindow  bool   `json:"in_launch_window"`
	MintPaused      bool   `json:"mint_paused"`
	AntibotEnabled  bool   `json:"antibot_enabled"`
	AntibotActive   bool   `json:"antibot_active"`
	ActivationBlock uint64 `json:"activation_block"`
	FreezeWindow    uint64 `json:"freeze_window"`
	PresalePaused   bool   `json:"presale_paused"`
	PresaleEnded    bool   `json:"presale_ended"`
	PresaleProceeds string `json:"presale_proceeds"`
	LiquiditySeeded bool   `json:"liquidity_seeded"`
	LiquidityToken  string `json:"liquidity_token"`
	LiquidityBase   string `json:"liquidity_base"`
	LiquidityShares string `json:"liquidity_shares"`
	Contract        string `json:"contract"`
	RewardPool      string `json:"reward_pool"`
	Escrow          string `json:"escrow"`
	Pool            string `json:"pool"`
}

// --- Conversions ---

func tokens(v uint256.Int) string { return units.FormatTokens(v) }

func toReceipt(r tax.Receipt) ReceiptResponse {
	out := ReceiptResponse{
		From:        string(r.From),
		To:          string(r.To),
		Amount:      tokens(r.Amount),
		Direction:   string(r.Direction),
		FeeBps:      r.FeeBps,
		Fee:         tokens(r.Fee),
		Net:         tokens(r.Net),
		Intercepted: r.Intercepted,
	}
	for _, s := range r.Splits {
		out.Splits = append(out.Splits, SplitDTO{Account: string(s.Account), Amount: tokens(s.Amount)})
	}
	for _, a := range r.Flagged {
		out.Flagged = append(out.Flagged, string(a))
	}
	return out
}

func toPosition(p model.Position) PositionResponse {
	return PositionResponse{
		ID:          p.ID,
		Owner:       string(p.Owner),
		Principal:   tokens(p.Principal),
		Level:       p.Level,
		LastAccrual: p.LastAccrual,
		AccruedAt:   p.AccruedAt,
		Pending:     tokens(p.Pending),
		Claimed:     tokens(p.Claimed),
		Presale:     p.Presale,
		MintedAt:    p.MintedAt,
	}
}

func toPositions(ps []model.Position) []PositionResponse {
	out := make([]PositionResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPosition(p))
	}
	return out
}

func toCompound(r position.CompoundResult) CompoundResponse {
	return CompoundResponse{
		Position: toPosition(r.Position),
		Absorbed: tokens(r.Absorbed),
		Refunded: tokens(r.Refunded),
	}
}

func toLiquidity(r liquidity.Result) LiquidityResponse {
	return LiquidityResponse{
		Token:     tokens(r.Token),
		Base:      r.Base.Dec(),
		Share:     r.Share.Dec(),
		Activated: r.Activated,
	}
}

func toPolicy(p model.TaxPolicy) TaxPolicyDTO {
	out := TaxPolicyDTO{
		BuyFeeBps:        p.BuyFeeBps,
		SellFeeBps:       p.SellFeeBps,
		LaunchSellFeeBps: p.LaunchSellFeeBps,
		LaunchWindow:     p.LaunchWindow,
		Destinations:     make([]DestinationDTO, 0, len(p.Destinations)),
	}
	for _, d := range p.Destinations {
		out.Destinations = append(out.Destinations, DestinationDTO{Account: string(d.Account), WeightBps: d.WeightBps})
	}
	return out
}

func toLevels(rows []engine.LevelInfo) []LevelResponse {
	out := make([]LevelResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, LevelResponse{
			Level:      r.Level,
			Threshold:  tokens(r.Threshold),
			APRBps:     r.APRBps,
			APRPercent: r.APR.String(),
		})
	}
	return out
}

func toStatus(s engine.Status) StatusResponse {
	return StatusResponse{
		Version:         s.Version,
		Block:           s.Block,
		Now:             s.Now,
		TotalSupply:     tokens(s.TotalSupply),
		Positions:       s.Positions,
		TradingPaused:   s.TradingPaused,
		ActivatedAt:     s.ActivatedAt,
		InLaunchWindow:  s.InLaunchWindow,
		MintPaused:      s.MintPaused,
		AntibotEnabled:  s.AntibotEnabled,
		AntibotActive:   s.AntibotActive,
		ActivationBlock: s.ActivationBlock,
		FreezeWindow:    s.FreezeWindow,
		PresalePaused:   s.PresalePaused,
		PresaleEnded:    s.PresaleEnded,
		PresaleProceeds: s.Proceeds.Dec(),
		LiquiditySeeded: s.Liquidity.Seeded,
		LiquidityToken:  tokens(s.Liquidity.TokenTotal),
		LiquidityBase:   s.Liquidity.BaseTotal.Dec(),
		LiquidityShares: s.Liquidity.Shares.Dec(),
		Contract:        string(s.System.Contract),
		RewardPool:      string(s.System.RewardPool),
		Escrow:          string(s.System.Escrow),
		Pool:            string(s.System.Pool),
	}
}
