package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/slimefarm/ledger-engine/internal/metrics"
)

// RouterConfig tunes the HTTP surface.
type RouterConfig struct {
	RateLimit float64 // requests per second per client; 0 disables limiting
	Burst     int
	Timeout   time.Duration
	Hub       *WSHub // nil disables /api/v1/ws
	Service   string
}

// NewRouter wires h into a chi router with the standard middleware stack.
func NewRouter(h *Handler, cfg RouterConfig) chi.Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Service == "" {
		cfg.Service = "ledger-engine"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors)

	health := []byte(`{"status":"ok","service":"` + cfg.Service + `"}`)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(health)
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Hub != nil {
			// Outside the timeout: the connection is long-lived.
			r.Get("/ws", cfg.Hub.HandleWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Timeout))
			if cfg.RateLimit > 0 {
				r.Use(NewRateLimiter(cfg.RateLimit, cfg.Burst).Middleware)
			}

			// Token.
			r.Post("/transfer", h.Transfer)
			r.Post("/transfer-from", h.TransferFrom)
			r.Post("/approve", h.Approve)
			r.Post("/rewards/fund", h.FundRewardPool)

			// Positions.
			r.Post("/positions/mint", h.Mint)
			r.Post("/positions/presale", h.MintPresale)
			r.Post("/positions/claim-all", h.ClaimAll)
			r.Get("/positions/{id}", h.GetPosition)
			r.Get("/positions/{id}/reward", h.GetReward)
			r.Post("/positions/{id}/compound", h.Compound)
			r.Post("/positions/{id}/claim", h.ClaimReward)
			r.Post("/positions/{id}/transfer", h.TransferPosition)

			// Accounts and ledger queries.
			r.Get("/accounts/{account}", h.GetAccount)
			r.Get("/accounts/{account}/positions", h.GetAccountPositions)
			r.Get("/accounts/{account}/allowances/{spender}", h.GetAllowance)
			r.Get("/accounts/{account}/journal", h.GetAccountJournal)
			r.Get("/holders", h.GetHolders)
			r.Get("/status", h.GetStatus)
			r.Get("/tax", h.GetPolicy)
			r.Get("/levels", h.GetLevels)
			r.Get("/journal", h.GetJournal)

			// Liquidity and administration.
			r.Post("/liquidity", h.AddLiquidity)
			r.Post("/liquidity/initial", h.AddInitialLiquidity)
			r.Post("/admin/activate", h.Activate)
			r.Post("/admin/tax", h.SetTaxPolicy)
			r.Post("/admin/tax/destinations", h.SetTaxDestinations)
			r.Post("/admin/exempt", h.SetExempt)
			r.Post("/admin/mint-paused", h.SetMintPaused)
			r.Post("/admin/presale", h.SetPresalePaused)
			r.Post("/admin/presale/end", h.EndPresale)
			r.Post("/admin/presale/claim", h.ClaimPresaleProceeds)
			r.Post("/admin/owners", h.AddOwner)
		})
	})
	return r
}

// cors allows browser clients from any origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
