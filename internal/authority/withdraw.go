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

// WithdrawAccounts names the accounts used by Withdraw.
type WithdrawAccounts struct {
	State       address.Pubkey
	Controller  token.Signer
	Vault       address.Pubkey // the selected vault
	Destination address.Pubkey // controller-designated, same asset as Vault
	Mint        address.Pubkey // the selected vault's asset
}

// WithdrawResult describes a committed withdrawal.
type WithdrawResult struct {
	Vault        address.Pubkey `json:"vault"`
	Destination  address.Pubkey `json:"destination"`
	Amount       uint64         `json:"amount"`
	VaultBalance uint64         `json:"vault_balance"`
}

// Withdraw moves amount from the selected vault to a destination of the
// controller's choosing. The amount is not capped against the running total;
// only the transfer primitive's balance check applies.
//
// The new-asset vault is debited under the program's derived identity. The
// old-asset vault is bound to the controller at initialization, so it is
// debited under the controller's signature unless its owner is the derived
// identity.
//
// The deployed program signs both vaults with the derived identity, so its
// old-vault withdrawal fails the owner check whenever initialization bound
// the old vault to the controller.
func (p *Program) Withdraw(ctx context.Context, accts WithdrawAccounts, amount uint64, withdrawOld bool) (res *WithdrawResult, err error) {
	defer func(start time.Time) { p.record(domain.OpWithdraw, start, err) }(time.Now())

	if accts.Vault == accts.Destination {
		return nil, fail(ErrAccountMismatch, "destination is the vault itself")
	}

	err = p.ledger.Atomic(ctx, func(tx storage.LedgerTx) error {
		cfg, err := p.loadConfig(ctx, tx, accts.State)
		if err != nil {
			return err
		}
		if err := requireController(cfg, accts.Controller); err != nil {
			return err
		}

		vaultAddr, mintAddr := cfg.NewVault, cfg.NewMint
		if withdrawOld {
			vaultAddr, mintAddr = cfg.OldVault, cfg.OldMint
		}
		if accts.Vault != vaultAddr {
			return fail(ErrAccountMismatch, "vault %s, want %s", accts.Vault, vaultAddr)
		}
		if accts.Mint != mintAddr {
			return fail(ErrAccountMismatch, "mint %s, want %s", accts.Mint, mintAddr)
		}

		vault, err := tx.Custody(ctx, vaultAddr)
		if err != nil {
			return lookupError("vault", err)
		}
		dest, err := tx.Custody(ctx, accts.Destination)
		if err != nil {
			return lookupError("destination", err)
		}

		var auth token.Authority = accts.Controller
		if vault.Owner != cfg.Controller {
			signer, err := token.NewProgramSigner(p.programID, cfg.SignerSeeds()...)
			if err != nil {
				return err
			}
			auth = signer
		}

		if withdrawOld {
			err = token.Transfer(vault, dest, auth, amount)
		} else {
			mint, merr := tx.Mint(ctx, mintAddr)
			if merr != nil {
				return lookupError("mint", merr)
			}
			err = token.TransferChecked(vault, dest, mint, auth, amount, mint.Decimals)
		}
		if err != nil {
			return transferError("withdraw", err)
		}

		if err := tx.UpdateCustody(ctx, vault); err != nil {
			return err
		}
		if err := tx.UpdateCustody(ctx, dest); err != nil {
			return err
		}
		res = &WithdrawResult{Vault: vault.Address, Destination: dest.Address, Amount: amount, VaultBalance: vault.Amount}
		return nil
	})
	if err != nil {
		return nil, err
	}

	selector := "new"
	if withdrawOld {
		selector = "old"
	}
	observability.RecordWithdrawal(selector, amount)
	p.logger.Warn().
		Str("vault", res.Vault.String()).
		Str("destination", res.Destination.String()).
		Uint64("amount", amount).
		Uint64("vault_balance", res.VaultBalance).
		Msg("vault withdrawal")
	return res, nil
}
