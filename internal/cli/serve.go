package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/slimefarm/ledger-engine/internal/api"
	"github.com/slimefarm/ledger-engine/internal/chain"
	"github.com/slimefarm/ledger-engine/internal/config"
	"github.com/slimefarm/ledger-engine/internal/engine"
	"github.com/slimefarm/ledger-engine/internal/liquidity"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ledger HTTP and WebSocket service",
		Long: `Loads (or creates) the ledger state, starts the block producer and
serves the HTTP API until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if opts.Port != "" {
				cfg.Server.Port = opts.Port
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.Port, "port", "p", "", "listen port (overrides config and PORT)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := config.NewLogger(cfg.Log, os.Stdout)

	genesis, err := cfg.Tokenomics()
	if err != nil {
		return fmt.Errorf("tokenomics: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	height, err := lastBlock(ctx, st)
	if err != nil {
		return fmt.Errorf("resume block height: %w", err)
	}
	clock := chain.NewBlockClockAt(height)
	producer, err := chain.NewProducer(clock, cfg.Chain.BlockInterval, logger)
	if err != nil {
		return err
	}

	eng, err := engine.New(ctx, engine.Deps{
		Store:  st,
		Clock:  clock,
		Pool:   liquidity.NewMemoryPool(genesis.System.Pool),
		Logger: logger,
	}, genesis)
	if err != nil {
		return err
	}

	var hub *api.WSHub
	if !cfg.Server.DisableWebSocket {
		hub = api.NewWSHub(logger)
		go hub.Run(ctx)
		eng.OnCommit(hub.Publish)
	}

	router := api.NewRouter(api.NewHandler(eng, logger), api.RouterConfig{
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
		Hub:       hub,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	producer.Start()
	defer producer.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger-engine listening", "port", cfg.Server.Port, "block", clock.Block())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down ledger-engine")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	logger.Info("ledger-engine stopped", "version", eng.Status().Version)
	return nil
}
