package authority

import (
	"context"
	"fmt"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/token"
)

// Positional account counts per instruction.
const (
	initializeAccountCount = 6 // state, controller, old_mint, new_mint, old_vault, new_vault
	exchangeAccountCount   = 8 // state, user, user_old, user_new, old_vault, new_vault, old_mint, new_mint
	updateRateAccountCount = 2 // state, controller
	withdrawAccountCount   = 5 // state, controller, vault, destination, mint
)

// Result is the outcome of an executed instruction. Exactly one of the
// operation-specific fields is set.
type Result struct {
	Op       domain.Op            `json:"op"`
	Config   *domain.ConfigRecord `json:"config,omitempty"`
	Exchange *ExchangeResult      `json:"exchange,omitempty"`
	Withdraw *WithdrawResult      `json:"withdraw,omitempty"`
}

// Execute decodes data and runs the instruction against positional accounts.
// signers holds the identities whose signatures the caller verified.
func (p *Program) Execute(ctx context.Context, data []byte, accounts []address.Pubkey, signers token.SignerSet) (*Result, error) {
	var ix domain.Instruction
	if err := ix.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInstruction, err)
	}
	return p.Dispatch(ctx, &ix, accounts, signers)
}

// Dispatch runs a decoded instruction against positional accounts.
func (p *Program) Dispatch(ctx context.Context, ix *domain.Instruction, accounts []address.Pubkey, signers token.SignerSet) (*Result, error) {
	switch ix.Op {
	case domain.OpInitialize:
		if err := requireAccounts(ix.Op, accounts, initializeAccountCount); err != nil {
			return nil, err
		}
		controller, err := signerAt(signers, accounts, 1)
		if err != nil {
			return nil, err
		}
		cfg, err := p.Initialize(ctx, InitializeAccounts{
			State:      accounts[0],
			Controller: controller,
			OldMint:    accounts[2],
			NewMint:    accounts[3],
			OldVault:   accounts[4],
			NewVault:   accounts[5],
		})
		if err != nil {
			return nil, err
		}
		return &Result{Op: ix.Op, Config: cfg}, nil

	case domain.OpExchange:
		if err := requireAccounts(ix.Op, accounts, exchangeAccountCount); err != nil {
			return nil, err
		}
		user, err := signerAt(signers, accounts, 1)
		if err != nil {
			return nil, err
		}
		res, err := p.Exchange(ctx, ExchangeAccounts{
			State:          accounts[0],
			User:           user,
			UserOldAccount: accounts[2],
			UserNewAccount: accounts[3],
			OldVault:       accounts[4],
			NewVault:       accounts[5],
			OldMint:        accounts[6],
			NewMint:        accounts[7],
		}, ix.Amount)
		if err != nil {
			return nil, err
		}
		return &Result{Op: ix.Op, Exchange: res}, nil

	case domain.OpUpdateRate:
		if err := requireAccounts(ix.Op, accounts, updateRateAccountCount); err != nil {
			return nil, err
		}
		controller, err := signerAt(signers, accounts, 1)
		if err != nil {
			return nil, err
		}
		cfg, err := p.UpdateRate(ctx, UpdateRateAccounts{State: accounts[0], Controller: controller}, ix.Numerator, ix.Denominator)
		if err != nil {
			return nil, err
		}
		return &Result{Op: ix.Op, Config: cfg}, nil

	case domain.OpWithdraw:
		if err := requireAccounts(ix.Op, accounts, withdrawAccountCount); err != nil {
			return nil, err
		}
		controller, err := signerAt(signers, accounts, 1)
		if err != nil {
			return nil, err
		}
		res, err := p.Withdraw(ctx, WithdrawAccounts{
			State:       accounts[0],
			Controller:  controller,
			Vault:       accounts[2],
			Destination: accounts[3],
			Mint:        accounts[4],
		}, ix.Amount, ix.WithdrawOld)
		if err != nil {
			return nil, err
		}
		return &Result{Op: ix.Op, Withdraw: res}, nil
	}
	return nil, fail(ErrInvalidInstruction, "unknown op %q", ix.Op)
}

func requireAccounts(op domain.Op, accounts []address.Pubkey, want int) error {
	if len(accounts) < want {
		return fail(ErrAccountMismatch, "%s expects %d accounts, got %d", op, want, len(accounts))
	}
	return nil
}

func signerAt(signers token.SignerSet, accounts []address.Pubkey, i int) (token.Signer, error) {
	s, ok := signers.Signer(accounts[i])
	if !ok {
		return token.Signer{}, fail(ErrAuthorization, "account %s did not sign", accounts[i])
	}
	return s, nil
}
