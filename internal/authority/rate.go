package authority

import (
	"context"
	"time"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/observability"
	"swap-authority/internal/storage"
	"swap-authority/internal/token"
)

// UpdateRateAccounts names the accounts used by UpdateRate.
type UpdateRateAccounts struct {
	State      address.Pubkey
	Controller token.Signer
}

// UpdateRate replaces the exchange rate. Past exchanges and the running
// total are unaffected.
func (p *Program) UpdateRate(ctx context.Context, accts UpdateRateAccounts, numerator, denominator uint64) (cfg *domain.ConfigRecord, err error) {
	defer func(start time.Time) { p.record(domain.OpUpdateRate, start, err) }(time.Now())

	err = p.ledger.Atomic(ctx, func(tx storage.LedgerTx) error {
		current, err := p.loadConfig(ctx, tx, accts.State)
		if err != nil {
			return err
		}
		if err := requireController(current, accts.Controller); err != nil {
			return err
		}
		if numerator == 0 || denominator == 0 {
			return fail(ErrInvalidRatio, "rate %d:%d", numerator, denominator)
		}

		current.RateNumerator = numerator
		current.RateDenominator = denominator
		if err := tx.UpdateConfig(ctx, current); err != nil {
			return err
		}
		cfg = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.SetRate(numerator, denominator)
	p.logger.Info().Uint64("numerator", numerator).Uint64("denominator", denominator).Msg("rate updated")
	return cfg, nil
}

// requireController checks that signer is the controller stored in cfg.
func requireController(cfg *domain.ConfigRecord, signer token.Signer) error {
	key := signer.Key()
	if key.IsZero() || key != cfg.Controller {
		return fail(ErrAuthorization, "signer %s is not the controller", key)
	}
	return nil
}
