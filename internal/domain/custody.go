package domain

import (
	"encoding/binary"
	"fmt"

	"swap-authority/internal/address"
)

// Mint describes a fungible asset type.
type Mint struct {
	Address       address.Pubkey `json:"address"`
	Decimals      uint8          `json:"decimals"`
	Supply        uint64         `json:"supply"`
	MintAuthority address.Pubkey `json:"mint_authority"`
}

// CustodyRecord holds a balance of one asset type and the authority
// allowed to debit it.
type CustodyRecord struct {
	Address address.Pubkey `json:"address"`
	Mint    address.Pubkey `json:"mint"`
	Owner   address.Pubkey `json:"owner"`
	Amount  uint64         `json:"amount"`
}

// Clone returns a copy of the record.
func (r *CustodyRecord) Clone() *CustodyRecord {
	cp := *r
	return &cp
}

// Clone returns a copy of the mint.
func (m *Mint) Clone() *Mint {
	cp := *m
	return &cp
}

// Token account layout: mint(32) | owner(32) | amount(8) | ...
const tokenAccountMinSize = 2*address.PubkeySize + 8

// Mint account layout: COption<authority>(4+32) | supply(8) | decimals(1) | ...
const (
	mintAuthorityOffset = 4
	mintSupplyOffset    = 36
	mintDecimalsOffset  = 44
	mintMinSize         = 82
)

// DecodeTokenAccount parses the leading fields of a token account.
func DecodeTokenAccount(addr address.Pubkey, data []byte) (*CustodyRecord, error) {
	if len(data) < tokenAccountMinSize {
		return nil, fmt.Errorf("token account data too short: %d", len(data))
	}
	rec := &CustodyRecord{Address: addr}
	copy(rec.Mint[:], data[0:32])
	copy(rec.Owner[:], data[32:64])
	rec.Amount = binary.LittleEndian.Uint64(data[64:72])
	return rec, nil
}

// DecodeMint parses supply, decimals and mint authority from a mint account.
func DecodeMint(addr address.Pubkey, data []byte) (*Mint, error) {
	if len(data) < mintMinSize {
		return nil, fmt.Errorf("mint data too short: %d", len(data))
	}
	m := &Mint{
		Address:  addr,
		Supply:   binary.LittleEndian.Uint64(data[mintSupplyOffset : mintSupplyOffset+8]),
		Decimals: data[mintDecimalsOffset],
	}
	if binary.LittleEndian.Uint32(data[0:4]) == 1 {
		copy(m.MintAuthority[:], data[mintAuthorityOffset:mintAuthorityOffset+32])
	}
	return m, nil
}
