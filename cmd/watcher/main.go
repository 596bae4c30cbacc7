// Package main follows a deployed exchange program.
//
// Modes:
//   - live: index exchange events from logsSubscribe notifications
//   - backfill: index events from transaction history since the stored cursor
//   - state: print the configuration record and vault balances as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"swap-authority/internal/address"
	"swap-authority/internal/chain"
	"swap-authority/internal/config"
	"swap-authority/internal/logging"
	"swap-authority/internal/observability"
	"swap-authority/internal/solana"
	"swap-authority/internal/storage"
	chstore "swap-authority/internal/storage/clickhouse"
	"swap-authority/internal/storage/memory"
	"swap-authority/internal/storage/migrations"
	pgstore "swap-authority/internal/storage/postgres"
)

// indexStores holds where indexed events and the backfill cursor go.
type indexStores struct {
	events  storage.ExchangeEventStore
	cursors storage.CursorStore
	sink    storage.ExchangeEventStore // nil without ClickHouse
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	mode := flag.String("mode", "live", "Mode: live, backfill, or state")
	configPath := flag.String("config", os.Getenv("SWAP_CONFIG"), "YAML configuration file")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", "", "Solana WebSocket endpoint")
	programID := flag.String("program-id", "", "Deployed program id")
	backend := flag.String("storage", "", "Event storage: memory or postgres")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	override(&cfg.Solana.RPCEndpoint, *rpcEndpoint)
	override(&cfg.Solana.WSEndpoint, *wsEndpoint)
	override(&cfg.Program.ID, *programID)
	override(&cfg.Storage.Backend, *backend)
	override(&cfg.Storage.PostgresDSN, *postgresDSN)
	override(&cfg.Storage.ClickhouseDSN, *clickhouseDSN)

	logger := logging.New(cfg.Log.Level, cfg.Log.Format).With().
		Str("service", "watcher").
		Str("mode", *mode).
		Logger()

	switch *mode {
	case "live", "backfill", "state":
	default:
		logger.Fatal().Msgf("unknown mode %q (use live, backfill, or state)", *mode)
	}
	if err := errors.Join(cfg.Validate(), cfg.ValidateChain(*mode == "live")); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	pid, _ := cfg.ProgramID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals; a second signal forces exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(cfg.Server.ShutdownTimeout):
			logger.Error().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		}
	}()

	rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint,
		solana.WithCommitment(cfg.Solana.Commitment),
		solana.WithLogger(logger),
	)

	if *mode == "state" {
		if err := printState(ctx, rpc, pid); err != nil {
			logger.Fatal().Err(err).Msg("read state")
		}
		return
	}

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	st, cleanup, err := openIndexStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer cleanup()

	switch *mode {
	case "backfill":
		err = runBackfill(ctx, cfg, rpc, pid, st, logger)
	case "live":
		err = runLive(ctx, cfg, pid, st, logger)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("watcher stopped")
		cleanup()
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func printState(ctx context.Context, rpc solana.RPCClient, programID address.Pubkey) error {
	reader, err := chain.NewStateReader(rpc, programID)
	if err != nil {
		return err
	}
	snap, err := reader.Snapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func runBackfill(ctx context.Context, cfg *config.Config, rpc solana.RPCClient, programID address.Pubkey, st *indexStores, logger zerolog.Logger) error {
	res, err := chain.NewBackfiller(chain.BackfillOptions{
		RPC:       rpc,
		ProgramID: programID,
		Store:     st.events,
		Sink:      st.sink,
		Cursors:   st.cursors,
		PageSize:  cfg.Solana.PageSize,
		Logger:    logger,
	}).Run(ctx)
	if err != nil {
		return err
	}

	ev := logger.Info().
		Int("transactions", res.Transactions).
		Int("events", res.Events).
		Int("duplicates", res.Duplicates).
		Int("skipped", res.Skipped).
		Dur("duration", res.Duration)
	if res.Cursor != nil {
		ev = ev.Int64("cursor_slot", res.Cursor.Slot).Str("cursor_signature", res.Cursor.Signature)
	}
	ev.Msg("backfill complete")
	return nil
}

func runLive(ctx context.Context, cfg *config.Config, programID address.Pubkey, st *indexStores, logger zerolog.Logger) error {
	wsCfg := solana.DefaultWSConfig()
	wsCfg.Commitment = cfg.Solana.Commitment
	wsCfg.Logger = logger

	ws, err := solana.NewWSClient(ctx, cfg.Solana.WSEndpoint, &wsCfg)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	return chain.NewWatcher(chain.WatcherOptions{
		WS:        ws,
		ProgramID: programID,
		Store:     st.events,
		Sink:      st.sink,
		Logger:    logger,
	}).Run(ctx)
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Info().Str("addr", addr).Msg("starting metrics server")
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func openIndexStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*indexStores, func(), error) {
	var st indexStores
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)

		applied, err := migrations.ApplyPostgres(ctx, pool)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Info().Strs("applied", applied).Msg("postgres schema up to date")
		st.events = pgstore.NewExchangeEventStore(pool)
		st.cursors = pgstore.NewCursorStore(pool)

	default:
		st.events = memory.NewExchangeEventStore()
		st.cursors = memory.NewCursorStore()
		logger.Warn().Msg("using in-memory storage; indexed events and cursor are lost on exit")
	}

	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := chstore.Open(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })

		if _, err := migrations.ApplyClickhouse(ctx, conn); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		st.sink = chstore.NewExchangeEventStore(conn)
	}

	return &st, cleanup, nil
}
