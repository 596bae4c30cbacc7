package token

import (
	"errors"
	"fmt"

	"swap-authority/internal/checked"
	"swap-authority/internal/domain"
)

// Transfer errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOwnerMismatch     = errors.New("owner does not match")
	ErrMintMismatch      = errors.New("account not associated with this mint")
	ErrDecimalsMismatch  = errors.New("mint decimals mismatch")
	ErrMissingAuthority  = errors.New("missing transfer authority")
)

// Transfer moves amount from one custody record to another, authorized by
// auth. Both records are validated before either is modified, so a failed
// transfer leaves them untouched.
func Transfer(from, to *domain.CustodyRecord, auth Authority, amount uint64) error {
	if from == nil || to == nil {
		return fmt.Errorf("transfer: %w", ErrMissingAuthority)
	}
	if from.Mint != to.Mint {
		return fmt.Errorf("transfer %s -> %s: %w", from.Address, to.Address, ErrMintMismatch)
	}
	if err := authorize(from, auth); err != nil {
		return err
	}
	if from.Address == to.Address {
		if from.Amount < amount {
			return fmt.Errorf("transfer %d from %s: %w", amount, from.Address, ErrInsufficientFunds)
		}
		return nil
	}

	debited, ok := checked.SubUint64(from.Amount, amount)
	if !ok {
		return fmt.Errorf("transfer %d from %s (balance %d): %w", amount, from.Address, from.Amount, ErrInsufficientFunds)
	}
	credited, ok := checked.AddUint64(to.Amount, amount)
	if !ok {
		return fmt.Errorf("credit %s: %w", to.Address, checked.ErrOverflow)
	}

	from.Amount = debited
	to.Amount = credited
	return nil
}

// TransferChecked is Transfer that also requires the caller to state the
// mint and its decimal precision, failing if either does not match.
func TransferChecked(from, to *domain.CustodyRecord, mint *domain.Mint, auth Authority, amount uint64, decimals uint8) error {
	if mint == nil {
		return fmt.Errorf("transfer checked: %w", ErrMintMismatch)
	}
	if from != nil && from.Mint != mint.Address {
		return fmt.Errorf("transfer checked from %s: %w", from.Address, ErrMintMismatch)
	}
	if mint.Decimals != decimals {
		return fmt.Errorf("transfer checked: %w: mint has %d, got %d", ErrDecimalsMismatch, mint.Decimals, decimals)
	}
	return Transfer(from, to, auth, amount)
}

func authorize(from *domain.CustodyRecord, auth Authority) error {
	if auth == nil || auth.Key().IsZero() {
		return ErrMissingAuthority
	}
	if auth.Key() != from.Owner {
		return fmt.Errorf("debit %s by %s: %w", from.Address, auth.Key(), ErrOwnerMismatch)
	}
	return nil
}
