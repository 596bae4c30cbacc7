package authority

import (
	"errors"
	"fmt"

	"swap-authority/internal/checked"
	"swap-authority/internal/storage"
	"swap-authority/internal/token"
)

// Error is a failure surfaced to callers with a stable numeric code.
type Error struct {
	Code uint32
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

// Program errors.
var (
	ErrInvalidRatio  = &Error{Code: 6000, Name: "InvalidRatio", Msg: "Invalid swap ratio"}
	ErrInvalidAmount = &Error{Code: 6001, Name: "InvalidAmount", Msg: "Invalid amount"}
	ErrOverflow      = &Error{Code: 6002, Name: "Overflow", Msg: "Arithmetic overflow"}
)

// Runtime errors raised while validating signers and accounts.
var (
	ErrInsufficientBalance = &Error{Code: 1, Name: "InsufficientBalance", Msg: "insufficient funds"}
	ErrInvalidInstruction  = &Error{Code: 102, Name: "InvalidInstruction", Msg: "instruction could not be decoded"}
	ErrAuthorization       = &Error{Code: 2001, Name: "AuthorizationFailure", Msg: "signer is not authorized for this operation"}
	ErrAccountMismatch     = &Error{Code: 2012, Name: "AccountMismatch", Msg: "account does not match the configuration record"}
	ErrAlreadyInitialized  = &Error{Code: 2100, Name: "AlreadyInitialized", Msg: "configuration record already exists"}
	ErrNotInitialized      = &Error{Code: 3012, Name: "NotInitialized", Msg: "configuration record does not exist"}
)

// CodeOf returns the code of the Error wrapped by err.
func CodeOf(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func fail(base *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}

// transferError maps transfer primitive failures onto the error taxonomy,
// keeping the cause in the chain.
func transferError(leg string, err error) error {
	switch {
	case errors.Is(err, token.ErrInsufficientFunds):
		return fmt.Errorf("%w: %s: %w", ErrInsufficientBalance, leg, err)
	case errors.Is(err, token.ErrOwnerMismatch), errors.Is(err, token.ErrMissingAuthority):
		return fmt.Errorf("%w: %s: %w", ErrAuthorization, leg, err)
	case errors.Is(err, token.ErrMintMismatch), errors.Is(err, token.ErrDecimalsMismatch):
		return fmt.Errorf("%w: %s: %w", ErrAccountMismatch, leg, err)
	case errors.Is(err, checked.ErrOverflow):
		return fmt.Errorf("%w: %s: %w", ErrOverflow, leg, err)
	default:
		return fmt.Errorf("%s: %w", leg, err)
	}
}

// lookupError maps a missing caller-supplied account to AccountMismatch.
func lookupError(role string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s not found", ErrAccountMismatch, role)
	}
	return fmt.Errorf("load %s: %w", role, err)
}
