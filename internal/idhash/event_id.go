package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// EventID computes a deterministic id for an exchange event indexed from chain.
// Formula: SHA256(signature|event_index)
// Returns hex-encoded hash (64 characters).
//
// eventIndex is the position of the event among the exchange events emitted
// by the transaction, so re-indexing the same transaction yields the same ids.
func EventID(signature string, eventIndex int) string {
	data := fmt.Sprintf("%s|%d", signature, eventIndex)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
