package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/engine"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/store"
	"github.com/slimefarm/ledger-engine/internal/units"
)

// StateOptions holds flags for the state command.
type StateOptions struct {
	*RootOptions
	Owner string
}

// StateReport is the JSON form of the state command output.
type StateReport struct {
	Version     uint64            `json:"version"`
	Genesis     bool              `json:"genesis"` // true when nothing is committed yet
	TotalSupply string            `json:"total_supply"`
	Balances    []BalanceRow      `json:"balances"`
	Positions   []PositionSummary `json:"positions"`
}

// BalanceRow is one holder balance.
type BalanceRow struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// PositionSummary is one position.
type PositionSummary struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner"`
	Principal string `json:"principal"`
	Level     int    `json:"level"`
	Claimed   string `json:"claimed"`
	Presale   bool   `json:"presale"`
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print balances and positions from the configured store",
		Long: `Reads the committed snapshot without starting the service. With an
empty store the genesis state the service would create is shown instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "only show this account and its positions")

	return cmd
}

func runState(cmd *cobra.Command, opts *StateOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	var filter account.Account
	if opts.Owner != "" {
		if filter, err = account.Parse(opts.Owner); err != nil {
			return err
		}
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	st, closeStore, err := openStore(cmd.Context(), cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	snap, err := st.LoadState(cmd.Context())
	genesis := false
	if errors.Is(err, store.ErrNotFound) {
		g, gerr := cfg.Tokenomics()
		if gerr != nil {
			return gerr
		}
		if snap, err = engine.NewGenesisState(g); err != nil {
			return err
		}
		genesis = true
	} else if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	report := buildStateReport(snap, filter)
	report.Genesis = genesis
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), report)
	}
	return renderState(cmd.OutOrStdout(), report)
}

func buildStateReport(st *model.State, filter account.Account) StateReport {
	r := StateReport{
		Version:     st.Version,
		TotalSupply: units.FormatTokens(st.TotalSupply),
		Balances:    []BalanceRow{},
		Positions:   []PositionSummary{},
	}

	holders := make([]account.Account, 0, len(st.Balances))
	for a, bal := range st.Balances {
		if bal.IsZero() || (filter != "" && a != filter) {
			continue
		}
		holders = append(holders, a)
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i] < holders[j] })
	for _, a := range holders {
		r.Balances = append(r.Balances, BalanceRow{Account: string(a), Balance: units.FormatTokens(*st.Balances[a])})
	}

	ids := make([]uint64, 0, len(st.Positions))
	for id, p := range st.Positions {
		if filter != "" && p.Owner != filter {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		p := st.Positions[id]
		r.Positions = append(r.Positions, PositionSummary{
			ID:        p.ID,
			Owner:     string(p.Owner),
			Principal: units.FormatTokens(p.Principal),
			Level:     p.Level,
			Claimed:   units.FormatTokens(p.Claimed),
			Presale:   p.Presale,
		})
	}
	return r
}

func renderState(w io.Writer, r StateReport) error {
	label := fmt.Sprintf("version %d", r.Version)
	if r.Genesis {
		label = "genesis preview (nothing committed)"
	}
	fmt.Fprintf(w, "State: %s, total supply %s\n\n", label, r.TotalSupply)

	balances := tablewriter.NewWriter(w)
	balances.Header("Account", "Balance")
	for _, b := range r.Balances {
		balances.Append(b.Account, b.Balance)
	}
	if err := balances.Render(); err != nil {
		return err
	}

	if len(r.Positions) == 0 {
		fmt.Fprintln(w, "\nNo positions.")
		return nil
	}
	fmt.Fprintln(w)
	positions := tablewriter.NewWriter(w)
	positions.Header("ID", "Owner", "Principal", "Level", "Claimed", "Presale")
	for _, p := range r.Positions {
		positions.Append(
			strconv.FormatUint(p.ID, 10),
			p.Owner,
			p.Principal,
			strconv.Itoa(p.Level),
			p.Claimed,
			strconv.FormatBool(p.Presale),
		)
	}
	return positions.Render()
}
