package solana

import "context"

// Commitment levels accepted by the RPC node.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// RPCClient is the subset of the Solana JSON-RPC API used to read a deployed
// exchange program.
type RPCClient interface {
	// GetAccountInfo returns nil, nil when the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTransaction returns nil, nil when the transaction is unknown.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress pages signatures newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	GetSlot(ctx context.Context) (int64, error)
}

// AccountInfo is a decoded account as returned by getAccountInfo.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte
	Executable bool
}

// Transaction is a confirmed transaction with its logs.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // unix seconds, 0 if unknown
	Err       interface{}
	Logs      []string
}

// Failed reports whether the transaction was rejected by the runtime.
func (t *Transaction) Failed() bool {
	return t.Err != nil
}

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // start searching backwards from this signature
	Until  string // stop at this signature (exclusive)
	Limit  int
}
