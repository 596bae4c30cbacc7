// Package genesis seeds a ledger with the mints and custody records an
// exchange authority needs before it can be initialized.
package genesis

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/storage"
)

// ProgramOwner as an account owner binds the account to the configuration
// record's derived identity.
const ProgramOwner = "program"

// Token program names accepted in AccountSpec.TokenProgram.
const (
	TokenProgram     = "token"
	Token2022Program = "token-2022"
)

// Config lists what to create.
type Config struct {
	Mints    []MintSpec    `yaml:"mints"`
	Accounts []AccountSpec `yaml:"accounts"`
}

// MintSpec describes one mint.
type MintSpec struct {
	Address       string `yaml:"address"`
	Decimals      uint8  `yaml:"decimals"`
	Supply        uint64 `yaml:"supply"`
	MintAuthority string `yaml:"mint_authority"`
}

// AccountSpec describes one custody record. An empty Address defaults to
// the associated token address of Owner and Mint.
type AccountSpec struct {
	Address      string `yaml:"address"`
	Mint         string `yaml:"mint"`
	Owner        string `yaml:"owner"`
	Amount       uint64 `yaml:"amount"`
	TokenProgram string `yaml:"token_program"`
}

// Result reports what Apply did.
type Result struct {
	MintsCreated    int
	AccountsCreated int
	Existing        int
	// Accounts are the resolved custody addresses in configuration order.
	Accounts []address.Pubkey
}

// Validate checks every address without touching a ledger.
func (c *Config) Validate() error {
	var errs []error
	for i, m := range c.Mints {
		if _, err := address.ParsePubkey(m.Address); err != nil {
			errs = append(errs, fmt.Errorf("genesis mint %d address: %w", i, err))
		}
		if m.MintAuthority != "" {
			if _, err := address.ParsePubkey(m.MintAuthority); err != nil {
				errs = append(errs, fmt.Errorf("genesis mint %d authority: %w", i, err))
			}
		}
	}
	for i, a := range c.Accounts {
		if _, err := a.resolve(address.Pubkey{}); err != nil {
			errs = append(errs, fmt.Errorf("genesis account %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Apply creates the configured mints and custody records that do not exist
// yet. Existing records are left untouched, so Apply can run on every start.
func Apply(ctx context.Context, store storage.LedgerStore, programID address.Pubkey, cfg Config, logger zerolog.Logger) (*Result, error) {
	configAddr, _, err := domain.ConfigAddress(programID)
	if err != nil {
		return nil, fmt.Errorf("derive config address: %w", err)
	}

	result := &Result{}

	for _, mc := range cfg.Mints {
		m, err := mc.mint()
		if err != nil {
			return result, err
		}
		switch err := store.CreateMint(ctx, m); {
		case errors.Is(err, storage.ErrDuplicateKey):
			result.Existing++
		case err != nil:
			return result, fmt.Errorf("create mint %s: %w", m.Address, err)
		default:
			result.MintsCreated++
			logger.Info().Stringer("mint", m.Address).Uint8("decimals", m.Decimals).Msg("genesis mint created")
		}
	}

	for _, ac := range cfg.Accounts {
		r, err := ac.resolve(configAddr)
		if err != nil {
			return result, err
		}
		result.Accounts = append(result.Accounts, r.Address)

		switch err := store.CreateCustody(ctx, r); {
		case errors.Is(err, storage.ErrDuplicateKey):
			result.Existing++
		case err != nil:
			return result, fmt.Errorf("create custody %s: %w", r.Address, err)
		default:
			result.AccountsCreated++
			logger.Info().
				Stringer("account", r.Address).
				Stringer("mint", r.Mint).
				Stringer("owner", r.Owner).
				Uint64("amount", r.Amount).
				Msg("genesis account created")
		}
	}

	return result, nil
}

func (s MintSpec) mint() (*domain.Mint, error) {
	addr, err := address.ParsePubkey(s.Address)
	if err != nil {
		return nil, fmt.Errorf("mint address: %w", err)
	}
	m := &domain.Mint{Address: addr, Decimals: s.Decimals, Supply: s.Supply}
	if s.MintAuthority != "" {
		if m.MintAuthority, err = address.ParsePubkey(s.MintAuthority); err != nil {
			return nil, fmt.Errorf("mint authority: %w", err)
		}
	}
	return m, nil
}

// resolve builds the custody record, substituting configAddr for ProgramOwner.
func (s AccountSpec) resolve(configAddr address.Pubkey) (*domain.CustodyRecord, error) {
	mint, err := address.ParsePubkey(s.Mint)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}

	var owner address.Pubkey
	if s.Owner == ProgramOwner {
		owner = configAddr
	} else if owner, err = address.ParsePubkey(s.Owner); err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}

	var tokenProgram address.Pubkey
	switch s.TokenProgram {
	case "", TokenProgram:
		tokenProgram = address.TokenProgramID
	case Token2022Program:
		tokenProgram = address.Token2022ProgramID
	default:
		return nil, fmt.Errorf("unknown token program %q", s.TokenProgram)
	}

	r := &domain.CustodyRecord{Mint: mint, Owner: owner, Amount: s.Amount}
	if s.Address != "" {
		if r.Address, err = address.ParsePubkey(s.Address); err != nil {
			return nil, fmt.Errorf("address: %w", err)
		}
		return r, nil
	}

	if r.Address, err = address.FindAssociatedTokenAddress(owner, mint, tokenProgram); err != nil {
		return nil, fmt.Errorf("derive associated address: %w", err)
	}
	return r, nil
}
