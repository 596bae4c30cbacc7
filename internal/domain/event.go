package domain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"swap-authority/internal/address"
)

// EventDiscriminator tags serialized exchange events.
var EventDiscriminator = Discriminator("event", "SwapEvent")

// exchangeEventSize is discriminator | user(32) | old(8) | new(8) | timestamp(8).
const exchangeEventSize = DiscriminatorSize + address.PubkeySize + 3*8

// ErrNotExchangeEvent is returned when a payload carries another event type.
var ErrNotExchangeEvent = errors.New("not an exchange event")

// ExchangeEvent is the immutable record of one successful exchange.
type ExchangeEvent struct {
	ID        string         `json:"id"`
	Caller    address.Pubkey `json:"caller"`
	OldAmount uint64         `json:"old_amount"`
	NewAmount uint64         `json:"new_amount"`
	Timestamp int64          `json:"timestamp"` // unix seconds

	// Set only for events indexed from a deployed program.
	Signature string `json:"signature,omitempty"`
	Slot      int64  `json:"slot,omitempty"`
}

// DailyVolume aggregates exchanged amounts per UTC day.
type DailyVolume struct {
	Day       string `json:"day"` // YYYY-MM-DD
	Exchanges uint64 `json:"exchanges"`
	OldAmount uint64 `json:"old_amount"`
	NewAmount uint64 `json:"new_amount"`
}

// MarshalBinary encodes the event payload as emitted by the program.
func (e *ExchangeEvent) MarshalBinary() ([]byte, error) {
	buf := make([]byte, exchangeEventSize)
	off := copy(buf, EventDiscriminator[:])
	off += copy(buf[off:], e.Caller[:])
	binary.LittleEndian.PutUint64(buf[off:], e.OldAmount)
	binary.LittleEndian.PutUint64(buf[off+8:], e.NewAmount)
	binary.LittleEndian.PutUint64(buf[off+16:], uint64(e.Timestamp))
	return buf, nil
}

// UnmarshalBinary decodes an event payload. ID, Signature and Slot are left untouched.
func (e *ExchangeEvent) UnmarshalBinary(data []byte) error {
	if len(data) < DiscriminatorSize || [DiscriminatorSize]byte(data[:DiscriminatorSize]) != EventDiscriminator {
		return ErrNotExchangeEvent
	}
	if len(data) < exchangeEventSize {
		return fmt.Errorf("exchange event too short: %d", len(data))
	}
	off := DiscriminatorSize
	copy(e.Caller[:], data[off:off+address.PubkeySize])
	off += address.PubkeySize
	e.OldAmount = binary.LittleEndian.Uint64(data[off:])
	e.NewAmount = binary.LittleEndian.Uint64(data[off+8:])
	e.Timestamp = int64(binary.LittleEndian.Uint64(data[off+16:]))
	return nil
}
