package domain

import "crypto/sha256"

// DiscriminatorSize is the length of the type tag prefixed to accounts,
// events and instructions.
const DiscriminatorSize = 8

// Discriminator returns sha256("<namespace>:<name>")[:8], the tag the
// deployed program uses to identify account, event and instruction layouts.
func Discriminator(namespace, name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}
