// Package token implements the asset transfer primitive and the
// authorization capabilities it accepts.
package token

import (
	"fmt"

	"swap-authority/internal/address"
)

// Authority is a capability proving control over an identity.
// The transfer primitive only moves funds out of a custody record whose
// owner equals the authority's key.
type Authority interface {
	Key() address.Pubkey
}

// Signer is an identity whose signature the runtime has verified.
// Construct it only after signature verification succeeded.
type Signer struct {
	key address.Pubkey
}

// NewSigner wraps a verified signer identity.
func NewSigner(key address.Pubkey) Signer {
	return Signer{key: key}
}

// Key returns the signer identity.
func (s Signer) Key() address.Pubkey {
	return s.key
}

// SignerSet is the set of identities that signed a request.
type SignerSet map[address.Pubkey]struct{}

// NewSignerSet builds a set from verified keys.
func NewSignerSet(keys ...address.Pubkey) SignerSet {
	set := make(SignerSet, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// Signer returns the capability for key if it signed.
func (s SignerSet) Signer(key address.Pubkey) (Signer, bool) {
	if _, ok := s[key]; !ok || key.IsZero() {
		return Signer{}, false
	}
	return NewSigner(key), true
}

// ProgramSigner is a self-derived identity: the program proves control by
// re-deriving the address from its seeds instead of holding a private key.
type ProgramSigner struct {
	key       address.Pubkey
	programID address.Pubkey
}

// NewProgramSigner derives the identity for seeds under programID.
func NewProgramSigner(programID address.Pubkey, seeds ...[]byte) (ProgramSigner, error) {
	key, err := address.CreateProgramAddress(seeds, programID)
	if err != nil {
		return ProgramSigner{}, fmt.Errorf("derive program signer: %w", err)
	}
	return ProgramSigner{key: key, programID: programID}, nil
}

// Key returns the derived identity.
func (p ProgramSigner) Key() address.Pubkey {
	return p.key
}

// ProgramID returns the program the identity was derived under.
func (p ProgramSigner) ProgramID() address.Pubkey {
	return p.programID
}
