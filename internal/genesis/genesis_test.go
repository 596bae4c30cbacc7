package genesis

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/storage/memory"
)

func key(b byte) address.Pubkey {
	var k address.Pubkey
	for i := range k {
		k[i] = b
	}
	return k
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	programID := key(0xAA)
	configAddr, _, err := domain.ConfigAddress(programID)
	require.NoError(t, err)

	oldMint, newMint, controller := key(1), key(2), key(3)
	cfg := Config{
		Mints: []MintSpec{
			{Address: oldMint.String(), Decimals: 9, Supply: 1_000_000},
			{Address: newMint.String(), Decimals: 6, MintAuthority: controller.String()},
		},
		Accounts: []AccountSpec{
			{Mint: oldMint.String(), Owner: controller.String()},
			{Mint: newMint.String(), Owner: ProgramOwner, Amount: 500, TokenProgram: Token2022Program},
			{Address: key(9).String(), Mint: oldMint.String(), Owner: key(4).String(), Amount: 42},
		},
	}
	require.NoError(t, cfg.Validate())

	result, err := Apply(ctx, ledger, programID, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, result.MintsCreated)
	assert.Equal(t, 3, result.AccountsCreated)
	require.Len(t, result.Accounts, 3)

	oldATA, err := address.FindAssociatedTokenAddress(controller, oldMint, address.TokenProgramID)
	require.NoError(t, err)
	newATA, err := address.FindAssociatedTokenAddress(configAddr, newMint, address.Token2022ProgramID)
	require.NoError(t, err)
	assert.Equal(t, []address.Pubkey{oldATA, newATA, key(9)}, result.Accounts)

	vault, err := ledger.GetCustody(ctx, newATA)
	require.NoError(t, err)
	assert.Equal(t, configAddr, vault.Owner, "program owner resolves to the config address")
	assert.Equal(t, uint64(500), vault.Amount)

	m, err := ledger.GetMint(ctx, newMint)
	require.NoError(t, err)
	assert.Equal(t, controller, m.MintAuthority)

	// Reapplying leaves existing records alone.
	result, err = Apply(ctx, ledger, programID, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Zero(t, result.MintsCreated)
	assert.Zero(t, result.AccountsCreated)
	assert.Equal(t, 5, result.Existing)
}

func TestApply_UnknownMint(t *testing.T) {
	cfg := Config{Accounts: []AccountSpec{{Mint: key(1).String(), Owner: key(2).String()}}}
	_, err := Apply(context.Background(), memory.NewLedger(), key(0xAA), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad mint address", Config{Mints: []MintSpec{{Address: "not-a-key"}}}},
		{"bad mint authority", Config{Mints: []MintSpec{{Address: key(1).String(), MintAuthority: "0OIl"}}}},
		{"bad account mint", Config{Accounts: []AccountSpec{{Mint: "", Owner: key(1).String()}}}},
		{"bad owner", Config{Accounts: []AccountSpec{{Mint: key(1).String(), Owner: "nobody"}}}},
		{"bad token program", Config{Accounts: []AccountSpec{{Mint: key(1).String(), Owner: ProgramOwner, TokenProgram: "spl"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}

	assert.NoError(t, (&Config{}).Validate())
}
