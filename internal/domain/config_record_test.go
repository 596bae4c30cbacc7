package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-authority/internal/address"
)

func key(b byte) address.Pubkey {
	var pk address.Pubkey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

func TestConfigRecord_Layout(t *testing.T) {
	rec := &ConfigRecord{
		Controller:      key(1),
		OldMint:         key(2),
		NewMint:         key(3),
		OldVault:        key(4),
		NewVault:        key(5),
		Bump:            254,
		RateNumerator:   3,
		RateDenominator: 2,
		TotalExchanged:  1_000_000,
	}

	data, err := rec.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, 193)
	assert.Equal(t, ConfigDiscriminator[:], data[:8])
	assert.Equal(t, byte(1), data[8])
	assert.Equal(t, byte(5), data[8+4*32])
	assert.Equal(t, byte(254), data[168])
	assert.Equal(t, byte(3), data[169])
	assert.Equal(t, byte(2), data[177])

	var out ConfigRecord
	require.NoError(t, out.UnmarshalBinary(append(data, 0, 0, 0)))
	assert.Equal(t, *rec, out)
}

func TestConfigRecord_UnmarshalRejects(t *testing.T) {
	var rec ConfigRecord
	assert.True(t, errors.Is(rec.UnmarshalBinary(make([]byte, 10)), ErrInvalidRecord))

	bad := make([]byte, ConfigRecordSize)
	assert.True(t, errors.Is(rec.UnmarshalBinary(bad), ErrInvalidRecord))
}

func TestConfigRecord_Validate(t *testing.T) {
	rec := &ConfigRecord{RateNumerator: 1, RateDenominator: 1}
	assert.NoError(t, rec.Validate())

	rec.RateDenominator = 0
	assert.Error(t, rec.Validate())
}

func TestConfigAddress_IsDeterministic(t *testing.T) {
	program := key(9)
	a, bumpA, err := ConfigAddress(program)
	require.NoError(t, err)
	b, bumpB, err := ConfigAddress(program)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, bumpA, bumpB)

	rec := &ConfigRecord{Bump: bumpA}
	derived, err := address.CreateProgramAddress(rec.SignerSeeds(), program)
	require.NoError(t, err)
	assert.Equal(t, a, derived)
}

func TestExchangeEvent_Payload(t *testing.T) {
	ev := &ExchangeEvent{Caller: key(7), OldAmount: 10, NewAmount: 15, Timestamp: 1_700_000_000}
	data, err := ev.MarshalBinary()
	require.NoError(t, err)

	var out ExchangeEvent
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, *ev, out)

	cfg, err := (&ConfigRecord{}).MarshalBinary()
	require.NoError(t, err)
	assert.ErrorIs(t, out.UnmarshalBinary(cfg), ErrNotExchangeEvent)
}

func TestInstruction_Encoding(t *testing.T) {
	tests := []struct {
		name string
		ix   Instruction
		size int
	}{
		{"initialize", Instruction{Op: OpInitialize}, 8},
		{"exchange", Instruction{Op: OpExchange, Amount: 42}, 16},
		{"update rate", Instruction{Op: OpUpdateRate, Numerator: 3, Denominator: 2}, 24},
		{"withdraw old", Instruction{Op: OpWithdraw, Amount: 5, WithdrawOld: true}, 17},
		{"withdraw new", Instruction{Op: OpWithdraw, Amount: 5}, 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.ix.MarshalBinary()
			require.NoError(t, err)
			assert.Len(t, data, tt.size)

			var out Instruction
			require.NoError(t, out.UnmarshalBinary(data))
			assert.Equal(t, tt.ix, out)
		})
	}
}

func TestInstruction_Invalid(t *testing.T) {
	var ix Instruction
	assert.ErrorIs(t, ix.UnmarshalBinary([]byte{1, 2}), ErrInvalidInstruction)
	assert.ErrorIs(t, ix.UnmarshalBinary(make([]byte, 16)), ErrInvalidInstruction)

	d := Discriminator("global", string(OpUpdateRate))
	assert.ErrorIs(t, ix.UnmarshalBinary(d[:]), ErrInvalidInstruction)

	_, err := (&Instruction{Op: "nope"}).MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidInstruction)
}

func TestDecodeTokenAccount(t *testing.T) {
	data := make([]byte, 165)
	copy(data[0:32], key(2).Bytes())
	copy(data[32:64], key(3).Bytes())
	data[64] = 0x10

	rec, err := DecodeTokenAccount(key(1), data)
	require.NoError(t, err)
	assert.Equal(t, key(2), rec.Mint)
	assert.Equal(t, key(3), rec.Owner)
	assert.Equal(t, uint64(16), rec.Amount)

	_, err = DecodeTokenAccount(key(1), data[:40])
	assert.Error(t, err)
}

func TestDecodeMint(t *testing.T) {
	data := make([]byte, 82)
	data[0] = 1
	copy(data[4:36], key(8).Bytes())
	data[36] = 100
	data[44] = 6

	m, err := DecodeMint(key(1), data)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), m.Decimals)
	assert.Equal(t, uint64(100), m.Supply)
	assert.Equal(t, key(8), m.MintAuthority)
}
