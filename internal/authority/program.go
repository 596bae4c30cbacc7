// Package authority implements the exchange authority: a controller-configured
// program that takes an old asset into custody and pays out a new asset at a
// rational rate, signing for its own vault with a self-derived identity.
package authority

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/observability"
	"swap-authority/internal/storage"
)

// Program executes exchange authority operations against a ledger.
// All operations on a Program are safe for concurrent use; the ledger
// serializes their transactions.
type Program struct {
	programID  address.Pubkey
	configAddr address.Pubkey
	bump       uint8

	ledger storage.LedgerStore
	sink   storage.ExchangeEventStore

	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a Program.
type Option func(*Program)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Program) {
		p.logger = logger
	}
}

// WithClock sets the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Program) {
		p.now = now
	}
}

// WithEventSink mirrors committed exchange events to an additional store,
// such as an analytics database. Sink failures are logged, not returned.
func WithEventSink(sink storage.ExchangeEventStore) Option {
	return func(p *Program) {
		p.sink = sink
	}
}

// WithIDGenerator sets the generator for exchange event IDs.
func WithIDGenerator(newID func() string) Option {
	return func(p *Program) {
		p.newID = newID
	}
}

// New creates a Program for programID backed by ledger.
func New(programID address.Pubkey, ledger storage.LedgerStore, opts ...Option) (*Program, error) {
	if ledger == nil {
		return nil, errors.New("authority: ledger is required")
	}
	configAddr, bump, err := domain.ConfigAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("derive config address: %w", err)
	}

	p := &Program{
		programID:  programID,
		configAddr: configAddr,
		bump:       bump,
		ledger:     ledger,
		logger:     zerolog.Nop(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("program", programID.String()).Logger()
	return p, nil
}

// ProgramID returns the program identity.
func (p *Program) ProgramID() address.Pubkey {
	return p.programID
}

// ConfigAddress returns the derived configuration record address, which is
// also the program's signing identity for the new-asset vault.
func (p *Program) ConfigAddress() address.Pubkey {
	return p.configAddr
}

// Bump returns the bump seed of the configuration record address.
func (p *Program) Bump() uint8 {
	return p.bump
}

// State returns the configuration record.
func (p *Program) State(ctx context.Context) (*domain.ConfigRecord, error) {
	cfg, err := p.ledger.GetConfig(ctx, p.configAddr)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("get config: %w", err)
	}
	return cfg, nil
}

// Snapshot returns the configuration record and both vault balances.
func (p *Program) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	cfg, err := p.State(ctx)
	if err != nil {
		return nil, err
	}
	oldVault, err := p.ledger.GetCustody(ctx, cfg.OldVault)
	if err != nil {
		return nil, fmt.Errorf("get old vault: %w", err)
	}
	newVault, err := p.ledger.GetCustody(ctx, cfg.NewVault)
	if err != nil {
		return nil, fmt.Errorf("get new vault: %w", err)
	}
	return &domain.Snapshot{Config: cfg, OldVault: oldVault, NewVault: newVault}, nil
}

// loadConfig reads the configuration record inside tx after checking that
// the caller named the derived address.
func (p *Program) loadConfig(ctx context.Context, tx storage.LedgerTx, state address.Pubkey) (*domain.ConfigRecord, error) {
	if state != p.configAddr {
		return nil, fail(ErrAccountMismatch, "state %s is not the derived config address %s", state, p.configAddr)
	}
	cfg, err := tx.Config(ctx, p.configAddr)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// record logs and counts the outcome of op.
func (p *Program) record(op domain.Op, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if e, ok := CodeOf(err); ok {
			result = e.Name
		}
		p.logger.Debug().Err(err).Str("op", op.String()).Str("result", result).Msg("operation rejected")
	}
	observability.RecordOperation(op.String(), result, time.Since(start).Seconds())
}
