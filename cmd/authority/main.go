// Package main runs the exchange authority: it opens the ledger, applies the
// genesis accounts and serves the HTTP API until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"swap-authority/internal/api"
	"swap-authority/internal/authority"
	"swap-authority/internal/config"
	"swap-authority/internal/genesis"
	"swap-authority/internal/logging"
	"swap-authority/internal/storage"
	chstore "swap-authority/internal/storage/clickhouse"
	"swap-authority/internal/storage/memory"
	"swap-authority/internal/storage/migrations"
	pgstore "swap-authority/internal/storage/postgres"
)

// stores holds the storage selected by configuration.
type stores struct {
	ledger storage.LedgerStore
	events storage.ExchangeEventStore
	volume storage.VolumeStore
	sink   storage.ExchangeEventStore // nil without ClickHouse
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	// Flags override the file and the environment when set.
	configPath := flag.String("config", os.Getenv("SWAP_CONFIG"), "YAML configuration file")
	httpAddr := flag.String("http-addr", "", "HTTP listen address")
	backend := flag.String("storage", "", "Ledger backend: memory or postgres")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for the analytics copy of events")
	programID := flag.String("program-id", "", "Program identity the configuration record is derived from")
	logLevel := flag.String("log-level", "", "Log level")

	flag.Parse()

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	override(&cfg.Server.Addr, *httpAddr)
	override(&cfg.Storage.Backend, *backend)
	override(&cfg.Storage.PostgresDSN, *postgresDSN)
	override(&cfg.Storage.ClickhouseDSN, *clickhouseDSN)
	override(&cfg.Program.ID, *programID)
	override(&cfg.Log.Level, *logLevel)

	logger := logging.New(cfg.Log.Level, cfg.Log.Format).With().Str("service", "authority").Logger()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	pid, _ := cfg.ProgramID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer cleanup()

	opts := []authority.Option{authority.WithLogger(logger)}
	if st.sink != nil {
		opts = append(opts, authority.WithEventSink(st.sink))
	}
	prog, err := authority.New(pid, st.ledger, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create program")
	}

	res, err := genesis.Apply(ctx, st.ledger, pid, cfg.Genesis, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to apply genesis accounts")
	}

	logger.Info().
		Str("program", pid.String()).
		Str("config_address", prog.ConfigAddress().String()).
		Str("storage", cfg.Storage.Backend).
		Bool("analytics", st.sink != nil).
		Int("mints_created", res.MintsCreated).
		Int("accounts_created", res.AccountsCreated).
		Msg("authority ready")

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.New(prog, st.events, st.volume, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go pruneRequests(ctx, prog, logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// A second signal skips the graceful shutdown.
	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("forcing immediate shutdown")
			os.Exit(1)
		case <-shutdownCtx.Done():
		}
	}()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("shutdown complete")
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// pruneRequests drops expired request digests until ctx is done.
func pruneRequests(ctx context.Context, prog *authority.Program, logger zerolog.Logger) {
	ticker := time.NewTicker(authority.MaxRequestLifetime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := prog.PruneRequests(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("prune consumed requests failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int("pruned", n).Msg("pruned consumed requests")
			}
		}
	}
}

// openStores opens the configured ledger and, when configured, the ClickHouse
// analytics copy that then also serves volume queries.
func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, func(), error) {
	var st stores
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
		events := pgstore.NewExchangeEventStore(pool)
		st.ledger, st.events, st.volume = pgstore.NewLedger(pool), events, events
		logger.Info().Msg("using postgres ledger")

	default:
		ledger := memory.NewLedger()
		st.ledger, st.events, st.volume = ledger, ledger.Events(), ledger.Events()
		logger.Warn().Msg("using in-memory ledger; state is lost on exit")
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

		sink := chstore.NewExchangeEventStore(conn)
		st.sink, st.volume = sink, sink
		logger.Info().Msg("mirroring exchange events to clickhouse")
	}

	return &st, cleanup, nil
}
