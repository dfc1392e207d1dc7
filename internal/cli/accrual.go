package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/slimefarm/ledger-engine/internal/accrual"
	"github.com/slimefarm/ledger-engine/internal/units"
)

// AccrualOptions holds flags for the accrual command.
type AccrualOptions struct {
	*RootOptions
	Principal string
	Duration  time.Duration
}

// AccrualQuote is the JSON form of a reward quote.
type AccrualQuote struct {
	Principal       string `json:"principal"`
	Level           int    `json:"level"`
	APRBps          uint32 `json:"apr_bps"`
	APRPercent      string `json:"apr_percent"`
	DurationSeconds int64  `json:"duration_seconds"`
	Reward          string `json:"reward"`
}

// LevelRow is one row of the APR schedule.
type LevelRow struct {
	Level      int    `json:"level"`
	Threshold  string `json:"threshold"`
	APRBps     uint32 `json:"apr_bps"`
	APRPercent string `json:"apr_percent"`
}

// NewAccrualCommand creates the accrual command.
func NewAccrualCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccrualOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "accrual",
		Short: "Show the APR schedule or quote the reward of a principal",
		Long: `Without --principal, prints the level thresholds and APRs of the
configured schedule. With --principal, quotes the reward a position of that
principal earns over --duration.`,
		Example: `  ledgerd accrual
  ledgerd accrual --principal 100 --duration 720h --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccrual(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Principal, "principal", "", "position principal in tokens")
	cmd.Flags().DurationVarP(&opts.Duration, "duration", "d", 365*24*time.Hour, "accrual duration")

	return cmd
}

func runAccrual(w io.Writer, opts *AccrualOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	g, err := cfg.Tokenomics()
	if err != nil {
		return err
	}
	tbl, err := accrual.FromParams(g.Params)
	if err != nil {
		return err
	}

	if opts.Principal == "" {
		return renderSchedule(w, opts.Format, tbl)
	}

	principal, err := units.ParseTokens(opts.Principal)
	if err != nil {
		return err
	}
	if opts.Duration < 0 {
		return fmt.Errorf("duration must not be negative: %s", opts.Duration)
	}
	level := tbl.LevelFor(principal)
	elapsed := int64(opts.Duration / time.Second)
	reward, err := accrual.Reward(principal, tbl.APR(level), elapsed)
	if err != nil {
		return err
	}

	q := AccrualQuote{
		Principal:       units.FormatTokens(principal),
		Level:           level,
		APRBps:          tbl.APR(level),
		APRPercent:      tbl.ApproxAPR(level).String(),
		DurationSeconds: elapsed,
		Reward:          units.FormatTokens(reward),
	}
	if opts.Format == "json" {
		return writeJSON(w, q)
	}
	fmt.Fprintf(w, "Principal %s tokens is level %d at %s%% APR.\n", q.Principal, q.Level, q.APRPercent)
	fmt.Fprintf(w, "Reward over %s: %s tokens\n", opts.Duration, q.Reward)
	return nil
}

func renderSchedule(w io.Writer, format string, tbl *accrual.Table) error {
	rows := make([]LevelRow, 0, tbl.MaxLevel()+1)
	for lvl := 0; lvl <= tbl.MaxLevel(); lvl++ {
		rows = append(rows, LevelRow{
			Level:      lvl,
			Threshold:  units.FormatTokens(tbl.Threshold(lvl)),
			APRBps:     tbl.APR(lvl),
			APRPercent: tbl.ApproxAPR(lvl).String(),
		})
	}
	if format == "json" {
		return writeJSON(w, rows)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Level", "Threshold", "APR bps", "APR %")
	for _, r := range rows {
		table.Append(strconv.Itoa(r.Level), r.Threshold, strconv.FormatUint(uint64(r.APRBps), 10), r.APRPercent)
	}
	return table.Render()
}
