package authority

import (
	"context"
	"time"

	"swap-authority/internal/address"
	"swap-authority/internal/checked"
	"swap-authority/internal/domain"
	"swap-authority/internal/observability"
	"swap-authority/internal/storage"
	"swap-authority/internal/token"
)

// ExchangeAccounts names the accounts touched by Exchange.
type ExchangeAccounts struct {
	State          address.Pubkey
	User           token.Signer
	UserOldAccount address.Pubkey // debited, owned by User
	UserNewAccount address.Pubkey // credited
	OldVault       address.Pubkey
	NewVault       address.Pubkey
	OldMint        address.Pubkey
	NewMint        address.Pubkey
}

// ExchangeResult describes a committed exchange.
type ExchangeResult struct {
	OldAmount      uint64                `json:"old_amount"`
	NewAmount      uint64                `json:"new_amount"`
	TotalExchanged uint64                `json:"total_exchanged"`
	Event          *domain.ExchangeEvent `json:"event"`
}

// Exchange takes amount of the old asset from the user into the old vault
// and pays floor(amount * numerator / denominator) of the new asset from
// the new vault. Both legs, the running total and the event commit together
// or not at all.
func (p *Program) Exchange(ctx context.Context, accts ExchangeAccounts, amount uint64) (res *ExchangeResult, err error) {
	defer func(start time.Time) { p.record(domain.OpExchange, start, err) }(time.Now())

	if amount == 0 {
		return nil, fail(ErrInvalidAmount, "amount must be positive")
	}
	user := accts.User.Key()
	if user.IsZero() {
		return nil, fail(ErrAuthorization, "exchange requires a user signature")
	}
	if err := distinct(accts.UserOldAccount, accts.UserNewAccount, accts.OldVault, accts.NewVault); err != nil {
		return nil, err
	}

	err = p.ledger.Atomic(ctx, func(tx storage.LedgerTx) error {
		cfg, err := p.loadConfig(ctx, tx, accts.State)
		if err != nil {
			return err
		}
		if err := matchConfig(cfg, accts.OldVault, accts.NewVault, accts.OldMint, accts.NewMint); err != nil {
			return err
		}

		userOld, err := tx.Custody(ctx, accts.UserOldAccount)
		if err != nil {
			return lookupError("user old-asset account", err)
		}
		userNew, err := tx.Custody(ctx, accts.UserNewAccount)
		if err != nil {
			return lookupError("user new-asset account", err)
		}
		if userOld.Mint != cfg.OldMint {
			return fail(ErrAccountMismatch, "user account %s holds %s, want %s", userOld.Address, userOld.Mint, cfg.OldMint)
		}
		if userOld.Owner != user {
			return fail(ErrAccountMismatch, "user account %s is owned by %s, not %s", userOld.Address, userOld.Owner, user)
		}
		if userNew.Mint != cfg.NewMint {
			return fail(ErrAccountMismatch, "user account %s holds %s, want %s", userNew.Address, userNew.Mint, cfg.NewMint)
		}
		oldVault, err := tx.Custody(ctx, cfg.OldVault)
		if err != nil {
			return lookupError("old vault", err)
		}
		newVault, err := tx.Custody(ctx, cfg.NewVault)
		if err != nil {
			return lookupError("new vault", err)
		}
		newMint, err := tx.Mint(ctx, cfg.NewMint)
		if err != nil {
			return lookupError("new mint", err)
		}

		payout, err := checked.MulDiv(amount, cfg.RateNumerator, cfg.RateDenominator)
		if err != nil {
			return fail(ErrOverflow, "%d * %d / %d", amount, cfg.RateNumerator, cfg.RateDenominator)
		}
		if payout == 0 {
			return fail(ErrInvalidAmount, "amount %d pays out zero at rate %d:%d", amount, cfg.RateNumerator, cfg.RateDenominator)
		}
		total, ok := checked.AddUint64(cfg.TotalExchanged, amount)
		if !ok {
			return fail(ErrOverflow, "total exchanged %d + %d", cfg.TotalExchanged, amount)
		}

		if err := token.Transfer(userOld, oldVault, accts.User, amount); err != nil {
			return transferError("old-asset leg", err)
		}
		signer, err := token.NewProgramSigner(p.programID, cfg.SignerSeeds()...)
		if err != nil {
			return err
		}
		if err := token.TransferChecked(newVault, userNew, newMint, signer, payout, newMint.Decimals); err != nil {
			return transferError("new-asset leg", err)
		}

		for _, r := range []*domain.CustodyRecord{userOld, oldVault, newVault, userNew} {
			if err := tx.UpdateCustody(ctx, r); err != nil {
				return err
			}
		}
		cfg.TotalExchanged = total
		if err := tx.UpdateConfig(ctx, cfg); err != nil {
			return err
		}

		event := &domain.ExchangeEvent{
			ID:        p.newID(),
			Caller:    user,
			OldAmount: amount,
			NewAmount: payout,
			Timestamp: p.now().Unix(),
		}
		if err := tx.AppendEvent(ctx, event); err != nil {
			return err
		}

		res = &ExchangeResult{OldAmount: amount, NewAmount: payout, TotalExchanged: total, Event: event}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordExchange(res.OldAmount, res.NewAmount, res.TotalExchanged)
	p.logger.Info().
		Str("caller", user.String()).
		Uint64("old_amount", res.OldAmount).
		Uint64("new_amount", res.NewAmount).
		Uint64("total_exchanged", res.TotalExchanged).
		Msg("exchange")

	if p.sink != nil {
		if err := p.sink.Insert(ctx, res.Event); err != nil {
			p.logger.Warn().Err(err).Str("event", res.Event.ID).Msg("failed to mirror exchange event")
		}
	}
	return res, nil
}

// matchConfig rejects accounts that do not match the addresses bound at
// initialization.
func matchConfig(cfg *domain.ConfigRecord, oldVault, newVault, oldMint, newMint address.Pubkey) error {
	switch {
	case oldVault != cfg.OldVault:
		return fail(ErrAccountMismatch, "old vault %s, want %s", oldVault, cfg.OldVault)
	case newVault != cfg.NewVault:
		return fail(ErrAccountMismatch, "new vault %s, want %s", newVault, cfg.NewVault)
	case oldMint != cfg.OldMint:
		return fail(ErrAccountMismatch, "old mint %s, want %s", oldMint, cfg.OldMint)
	case newMint != cfg.NewMint:
		return fail(ErrAccountMismatch, "new mint %s, want %s", newMint, cfg.NewMint)
	}
	return nil
}

// distinct rejects a request that names the same custody record in two roles.
func distinct(keys ...address.Pubkey) error {
	seen := make(map[address.Pubkey]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			return fail(ErrAccountMismatch, "account %s is passed more than once", k)
		}
		seen[k] = struct{}{}
	}
	return nil
}
