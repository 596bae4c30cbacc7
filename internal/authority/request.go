package authority

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"swap-authority/internal/address"
	"swap-authority/internal/storage"
	"swap-authority/internal/token"
)

// MaxRequestLifetime bounds how far past the current time a signed request
// may set its expiry.
const MaxRequestLifetime = 5 * time.Minute

// Request identifies one signed submission of an instruction.
type Request struct {
	Digest    [32]byte // hash of the signed message
	ExpiresAt int64    // unix seconds
}

// ExecuteOnce runs Execute and consumes req.Digest in the same ledger
// transaction as the operation. An expired request, or one whose digest has
// already executed, fails with ErrAuthorization and changes nothing. A
// request whose operation fails leaves its digest unused.
func (p *Program) ExecuteOnce(ctx context.Context, req Request, data []byte, accounts []address.Pubkey, signers token.SignerSet) (*Result, error) {
	now := p.now()
	switch exp := time.Unix(req.ExpiresAt, 0); {
	case exp.Before(now):
		return nil, fail(ErrAuthorization, "request expired at %d", req.ExpiresAt)
	case exp.After(now.Add(MaxRequestLifetime)):
		return nil, fail(ErrAuthorization, "request expiry %d is more than %s ahead", req.ExpiresAt, MaxRequestLifetime)
	}

	once := *p
	once.ledger = &onceLedger{
		LedgerStore: p.ledger,
		digest:      hex.EncodeToString(req.Digest[:]),
		expiresAt:   req.ExpiresAt,
	}
	return once.Execute(ctx, data, accounts, signers)
}

// PruneRequests forgets executed requests whose expiry has passed. Those
// requests are rejected as expired before their digest is consulted.
func (p *Program) PruneRequests(ctx context.Context) (int, error) {
	n, err := p.ledger.PruneRequests(ctx, p.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("prune requests: %w", err)
	}
	return n, nil
}

// onceLedger consumes a request digest at the start of every transaction.
type onceLedger struct {
	storage.LedgerStore
	digest    string
	expiresAt int64
}

func (l *onceLedger) Atomic(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	return l.LedgerStore.Atomic(ctx, func(tx storage.LedgerTx) error {
		err := tx.ConsumeRequest(ctx, l.digest, l.expiresAt)
		if errors.Is(err, storage.ErrDuplicateKey) {
			return fail(ErrAuthorization, "request %s already executed", l.digest)
		}
		if err != nil {
			return fmt.Errorf("consume request: %w", err)
		}
		return fn(tx)
	})
}
