package domain

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Op names one of the four callable operations.
type Op string

const (
	OpInitialize Op = "initialize"
	OpExchange   Op = "swap_tokens"
	OpUpdateRate Op = "update_swap_ratio"
	OpWithdraw   Op = "withdraw_tokens"
)

// String returns the string representation of Op.
func (o Op) String() string {
	return string(o)
}

// IsValid checks if the op is a known operation.
func (o Op) IsValid() bool {
	switch o {
	case OpInitialize, OpExchange, OpUpdateRate, OpWithdraw:
		return true
	}
	return false
}

// ErrInvalidInstruction is returned for unknown discriminators or short argument data.
var ErrInvalidInstruction = errors.New("invalid instruction data")

var opByDiscriminator = map[[DiscriminatorSize]byte]Op{
	Discriminator("global", string(OpInitialize)): OpInitialize,
	Discriminator("global", string(OpExchange)):   OpExchange,
	Discriminator("global", string(OpUpdateRate)): OpUpdateRate,
	Discriminator("global", string(OpWithdraw)):   OpWithdraw,
}

// Instruction is a decoded operation with its arguments.
// Only the fields relevant to Op are encoded.
type Instruction struct {
	Op          Op     `json:"op"`
	Amount      uint64 `json:"amount,omitempty"`
	Numerator   uint64 `json:"numerator,omitempty"`
	Denominator uint64 `json:"denominator,omitempty"`
	WithdrawOld bool   `json:"withdraw_old,omitempty"`
}

// MarshalBinary encodes discriminator followed by little-endian arguments.
func (ix *Instruction) MarshalBinary() ([]byte, error) {
	if !ix.Op.IsValid() {
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidInstruction, ix.Op)
	}
	d := Discriminator("global", string(ix.Op))
	buf := append([]byte{}, d[:]...)

	switch ix.Op {
	case OpExchange:
		buf = binary.LittleEndian.AppendUint64(buf, ix.Amount)
	case OpUpdateRate:
		buf = binary.LittleEndian.AppendUint64(buf, ix.Numerator)
		buf = binary.LittleEndian.AppendUint64(buf, ix.Denominator)
	case OpWithdraw:
		buf = binary.LittleEndian.AppendUint64(buf, ix.Amount)
		if ix.WithdrawOld {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf, nil
}

// UnmarshalBinary decodes instruction data produced by MarshalBinary.
func (ix *Instruction) UnmarshalBinary(data []byte) error {
	if len(data) < DiscriminatorSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidInstruction, len(data))
	}
	op, ok := opByDiscriminator[[DiscriminatorSize]byte(data[:DiscriminatorSize])]
	if !ok {
		return fmt.Errorf("%w: unknown discriminator %x", ErrInvalidInstruction, data[:DiscriminatorSize])
	}

	args := data[DiscriminatorSize:]
	out := Instruction{Op: op}

	switch op {
	case OpExchange:
		if len(args) < 8 {
			return fmt.Errorf("%w: %s needs 8 argument bytes", ErrInvalidInstruction, op)
		}
		out.Amount = binary.LittleEndian.Uint64(args)
	case OpUpdateRate:
		if len(args) < 16 {
			return fmt.Errorf("%w: %s needs 16 argument bytes", ErrInvalidInstruction, op)
		}
		out.Numerator = binary.LittleEndian.Uint64(args)
		out.Denominator = binary.LittleEndian.Uint64(args[8:])
	case OpWithdraw:
		if len(args) < 9 {
			return fmt.Errorf("%w: %s needs 9 argument bytes", ErrInvalidInstruction, op)
		}
		out.Amount = binary.LittleEndian.Uint64(args)
		switch args[8] {
		case 0:
		case 1:
			out.WithdrawOld = true
		default:
			return fmt.Errorf("%w: invalid bool %d", ErrInvalidInstruction, args[8])
		}
	}

	*ix = out
	return nil
}
