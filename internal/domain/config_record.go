package domain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"swap-authority/internal/address"
)

// ConfigSeed is the fixed label the configuration record address is derived from.
const ConfigSeed = "swap_state"

// ConfigRecordSize is the fixed on-ledger size of a configuration record,
// discriminator included.
const ConfigRecordSize = DiscriminatorSize + 5*address.PubkeySize + 1 + 3*8

// ConfigDiscriminator tags serialized configuration records.
var ConfigDiscriminator = Discriminator("account", "SwapState")

// ErrInvalidRecord is returned when bytes do not hold a configuration record.
var ErrInvalidRecord = errors.New("invalid configuration record")

// ConfigRecord is the single global state of the exchange authority.
type ConfigRecord struct {
	Address         address.Pubkey `json:"address"`    // derived from ConfigSeed; not part of the layout
	Controller      address.Pubkey `json:"controller"` // may update the rate and withdraw
	OldMint         address.Pubkey `json:"old_mint"`
	NewMint         address.Pubkey `json:"new_mint"`
	OldVault        address.Pubkey `json:"old_vault"`
	NewVault        address.Pubkey `json:"new_vault"`
	Bump            uint8          `json:"bump"` // re-derives the record's signing identity
	RateNumerator   uint64         `json:"rate_numerator"`
	RateDenominator uint64         `json:"rate_denominator"`
	TotalExchanged  uint64         `json:"total_exchanged"`
}

// ConfigAddress derives the configuration record address and its bump for a program.
func ConfigAddress(programID address.Pubkey) (address.Pubkey, uint8, error) {
	return address.FindProgramAddress([][]byte{[]byte(ConfigSeed)}, programID)
}

// SignerSeeds returns the seeds that re-derive the record's own identity.
func (c *ConfigRecord) SignerSeeds() [][]byte {
	return [][]byte{[]byte(ConfigSeed), {c.Bump}}
}

// Validate checks the rate invariants of an active record.
func (c *ConfigRecord) Validate() error {
	if c.RateNumerator == 0 || c.RateDenominator == 0 {
		return fmt.Errorf("%w: rate %d:%d", ErrInvalidRecord, c.RateNumerator, c.RateDenominator)
	}
	return nil
}

// Clone returns a copy of the record.
func (c *ConfigRecord) Clone() *ConfigRecord {
	cp := *c
	return &cp
}

// MarshalBinary encodes the record in its fixed layout:
// discriminator | controller | old_mint | new_mint | old_vault | new_vault | bump | num | den | total.
func (c *ConfigRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ConfigRecordSize)
	off := copy(buf, ConfigDiscriminator[:])
	for _, pk := range []address.Pubkey{c.Controller, c.OldMint, c.NewMint, c.OldVault, c.NewVault} {
		off += copy(buf[off:], pk[:])
	}
	buf[off] = c.Bump
	off++
	binary.LittleEndian.PutUint64(buf[off:], c.RateNumerator)
	binary.LittleEndian.PutUint64(buf[off+8:], c.RateDenominator)
	binary.LittleEndian.PutUint64(buf[off+16:], c.TotalExchanged)
	return buf, nil
}

// UnmarshalBinary decodes the fixed layout. Trailing bytes are ignored so
// that records read from accounts with padding still decode.
func (c *ConfigRecord) UnmarshalBinary(data []byte) error {
	if len(data) < ConfigRecordSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrInvalidRecord, len(data), ConfigRecordSize)
	}
	if [DiscriminatorSize]byte(data[:DiscriminatorSize]) != ConfigDiscriminator {
		return fmt.Errorf("%w: discriminator mismatch", ErrInvalidRecord)
	}

	off := DiscriminatorSize
	for _, dst := range []*address.Pubkey{&c.Controller, &c.OldMint, &c.NewMint, &c.OldVault, &c.NewVault} {
		copy(dst[:], data[off:off+address.PubkeySize])
		off += address.PubkeySize
	}
	c.Bump = data[off]
	off++
	c.RateNumerator = binary.LittleEndian.Uint64(data[off:])
	c.RateDenominator = binary.LittleEndian.Uint64(data[off+8:])
	c.TotalExchanged = binary.LittleEndian.Uint64(data[off+16:])
	return nil
}
