package chain

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/solana"
)

var (
	// ErrAccountNotFound is returned when an account does not exist on chain.
	ErrAccountNotFound = errors.New("account not found")

	// ErrUnexpectedOwner is returned when an account is owned by another program.
	ErrUnexpectedOwner = errors.New("unexpected account owner")
)

// StateReader fetches the configuration record and vault balances of a
// deployed exchange program.
type StateReader struct {
	rpc        solana.RPCClient
	programID  address.Pubkey
	configAddr address.Pubkey
}

// NewStateReader derives the configuration record address of programID.
func NewStateReader(rpc solana.RPCClient, programID address.Pubkey) (*StateReader, error) {
	configAddr, _, err := domain.ConfigAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("derive config address: %w", err)
	}
	return &StateReader{rpc: rpc, programID: programID, configAddr: configAddr}, nil
}

// ConfigAddress returns the derived configuration record address.
func (r *StateReader) ConfigAddress() address.Pubkey {
	return r.configAddr
}

// Config reads and decodes the configuration record.
func (r *StateReader) Config(ctx context.Context) (*domain.ConfigRecord, error) {
	data, err := r.account(ctx, r.configAddr, r.programID.String())
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", r.configAddr, err)
	}

	cfg := &domain.ConfigRecord{Address: r.configAddr}
	if err := cfg.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// TokenAccount reads a token account as a custody record.
func (r *StateReader) TokenAccount(ctx context.Context, addr address.Pubkey) (*domain.CustodyRecord, error) {
	data, err := r.account(ctx, addr, tokenOwners...)
	if err != nil {
		return nil, fmt.Errorf("token account %s: %w", addr, err)
	}
	return domain.DecodeTokenAccount(addr, data)
}

// Mint reads a mint account.
func (r *StateReader) Mint(ctx context.Context, addr address.Pubkey) (*domain.Mint, error) {
	data, err := r.account(ctx, addr, tokenOwners...)
	if err != nil {
		return nil, fmt.Errorf("mint %s: %w", addr, err)
	}
	return domain.DecodeMint(addr, data)
}

// Snapshot reads the configuration record and both vaults.
func (r *StateReader) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	cfg, err := r.Config(ctx)
	if err != nil {
		return nil, err
	}

	oldVault, err := r.TokenAccount(ctx, cfg.OldVault)
	if err != nil {
		return nil, err
	}
	newVault, err := r.TokenAccount(ctx, cfg.NewVault)
	if err != nil {
		return nil, err
	}

	return &domain.Snapshot{Config: cfg, OldVault: oldVault, NewVault: newVault}, nil
}

// tokenOwners are the token programs a vault or mint may live under. The old
// asset uses the classic program and the new one Token-2022.
var tokenOwners = []string{address.TokenProgramID.String(), address.Token2022ProgramID.String()}

// account fetches addr and checks it is owned by one of owners.
func (r *StateReader) account(ctx context.Context, addr address.Pubkey, owners ...string) ([]byte, error) {
	info, err := r.rpc.GetAccountInfo(ctx, addr.String())
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrAccountNotFound
	}
	if !slices.Contains(owners, info.Owner) {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedOwner, info.Owner)
	}
	return info.Data, nil
}
