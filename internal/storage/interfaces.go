package storage

import (
	"context"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
)

// LedgerStore hosts the accounts the exchange authority operates on.
type LedgerStore interface {
	// Atomic runs fn against a transactional view of the ledger. Every mutation
	// made through tx commits if fn returns nil and is discarded otherwise.
	// Transactions are serialized with respect to each other.
	Atomic(ctx context.Context, fn func(tx LedgerTx) error) error

	// GetConfig retrieves a configuration record. Returns ErrNotFound if not exists.
	GetConfig(ctx context.Context, addr address.Pubkey) (*domain.ConfigRecord, error)

	// GetCustody retrieves a custody record. Returns ErrNotFound if not exists.
	GetCustody(ctx context.Context, addr address.Pubkey) (*domain.CustodyRecord, error)

	// GetMint retrieves a mint. Returns ErrNotFound if not exists.
	GetMint(ctx context.Context, addr address.Pubkey) (*domain.Mint, error)

	// CreateMint adds a new mint. Returns ErrDuplicateKey if address exists.
	CreateMint(ctx context.Context, m *domain.Mint) error

	// CreateCustody adds a new custody record. Returns ErrDuplicateKey if address
	// exists and ErrNotFound if its mint does not.
	CreateCustody(ctx context.Context, r *domain.CustodyRecord) error

	// PruneRequests forgets consumed request digests that expired before the
	// given unix time. Returns the number removed.
	PruneRequests(ctx context.Context, before int64) (int, error)
}

// LedgerTx is the transactional view passed to LedgerStore.Atomic.
// Returned records are copies; changes are applied with the Update methods.
type LedgerTx interface {
	// Config retrieves the configuration record. Returns ErrNotFound if not exists.
	Config(ctx context.Context, addr address.Pubkey) (*domain.ConfigRecord, error)

	// CreateConfig allocates the configuration record if absent.
	// Returns ErrDuplicateKey if a record already exists at the address.
	CreateConfig(ctx context.Context, c *domain.ConfigRecord) error

	// UpdateConfig overwrites an existing record. Returns ErrNotFound if not exists.
	UpdateConfig(ctx context.Context, c *domain.ConfigRecord) error

	// Custody retrieves a custody record. Returns ErrNotFound if not exists.
	Custody(ctx context.Context, addr address.Pubkey) (*domain.CustodyRecord, error)

	// UpdateCustody overwrites the balance of an existing record.
	// Returns ErrNotFound if not exists.
	UpdateCustody(ctx context.Context, r *domain.CustodyRecord) error

	// Mint retrieves a mint. Returns ErrNotFound if not exists.
	Mint(ctx context.Context, addr address.Pubkey) (*domain.Mint, error)

	// AppendEvent records an emitted event. Returns ErrDuplicateKey if the ID exists.
	AppendEvent(ctx context.Context, e *domain.ExchangeEvent) error

	// ConsumeRequest reserves a signed request digest until expiresAt (unix
	// seconds). Returns ErrDuplicateKey if the digest was already consumed.
	ConsumeRequest(ctx context.Context, digest string, expiresAt int64) error
}

// ExchangeEventStore provides access to exchange event history.
type ExchangeEventStore interface {
	// Insert adds a new event. Returns ErrDuplicateKey if the event ID exists.
	Insert(ctx context.Context, e *domain.ExchangeEvent) error

	// GetByCaller retrieves all events for a caller, ordered by timestamp ASC.
	GetByCaller(ctx context.Context, caller address.Pubkey) ([]*domain.ExchangeEvent, error)

	// GetByTimeRange retrieves events within [start, end] (inclusive, unix seconds).
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ExchangeEvent, error)
}

// VolumeStore aggregates exchange events per UTC day.
type VolumeStore interface {
	// DailyVolume returns per-day totals for events within [start, end], ordered by day.
	DailyVolume(ctx context.Context, start, end int64) ([]*domain.DailyVolume, error)
}
