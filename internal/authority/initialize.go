package authority

import (
	"context"
	"errors"
	"time"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/observability"
	"swap-authority/internal/storage"
	"swap-authority/internal/token"
)

// InitializeAccounts names the accounts bound by Initialize.
type InitializeAccounts struct {
	State      address.Pubkey
	Controller token.Signer
	OldMint    address.Pubkey
	NewMint    address.Pubkey
	OldVault   address.Pubkey // must hold OldMint and be owned by Controller
	NewVault   address.Pubkey // must hold NewMint and be owned by the config address
}

// Initialize creates the configuration record with a 1:1 rate and a zero
// total. It can succeed at most once per program.
func (p *Program) Initialize(ctx context.Context, accts InitializeAccounts) (cfg *domain.ConfigRecord, err error) {
	defer func(start time.Time) { p.record(domain.OpInitialize, start, err) }(time.Now())

	controller := accts.Controller.Key()
	if controller.IsZero() {
		return nil, fail(ErrAuthorization, "initialize requires a controller signature")
	}

	err = p.ledger.Atomic(ctx, func(tx storage.LedgerTx) error {
		if accts.State != p.configAddr {
			return fail(ErrAccountMismatch, "state %s is not the derived config address %s", accts.State, p.configAddr)
		}
		if _, err := tx.Config(ctx, p.configAddr); err == nil {
			return ErrAlreadyInitialized
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if _, err := tx.Mint(ctx, accts.OldMint); err != nil {
			return lookupError("old mint", err)
		}
		if _, err := tx.Mint(ctx, accts.NewMint); err != nil {
			return lookupError("new mint", err)
		}

		oldVault, err := tx.Custody(ctx, accts.OldVault)
		if err != nil {
			return lookupError("old vault", err)
		}
		if oldVault.Mint != accts.OldMint {
			return fail(ErrAccountMismatch, "old vault %s holds %s, want %s", oldVault.Address, oldVault.Mint, accts.OldMint)
		}
		if oldVault.Owner != controller {
			return fail(ErrAccountMismatch, "old vault %s is owned by %s, want controller %s", oldVault.Address, oldVault.Owner, controller)
		}

		newVault, err := tx.Custody(ctx, accts.NewVault)
		if err != nil {
			return lookupError("new vault", err)
		}
		if newVault.Mint != accts.NewMint {
			return fail(ErrAccountMismatch, "new vault %s holds %s, want %s", newVault.Address, newVault.Mint, accts.NewMint)
		}
		if newVault.Owner != p.configAddr {
			return fail(ErrAccountMismatch, "new vault %s is owned by %s, want %s", newVault.Address, newVault.Owner, p.configAddr)
		}
		if oldVault.Address == newVault.Address {
			return fail(ErrAccountMismatch, "old and new vault are the same account")
		}

		rec := &domain.ConfigRecord{
			Address:         p.configAddr,
			Controller:      controller,
			OldMint:         accts.OldMint,
			NewMint:         accts.NewMint,
			OldVault:        accts.OldVault,
			NewVault:        accts.NewVault,
			Bump:            p.bump,
			RateNumerator:   1,
			RateDenominator: 1,
		}
		if err := tx.CreateConfig(ctx, rec); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return ErrAlreadyInitialized
			}
			return err
		}
		cfg = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.SetRate(cfg.RateNumerator, cfg.RateDenominator)
	p.logger.Info().
		Str("config", cfg.Address.String()).
		Str("controller", cfg.Controller.String()).
		Str("old_mint", cfg.OldMint.String()).
		Str("new_mint", cfg.NewMint.String()).
		Msg("exchange initialized")
	return cfg, nil
}
