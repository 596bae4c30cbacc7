package memory

import (
	"context"
	"sync"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/storage"
)

// Ledger is an in-memory implementation of storage.LedgerStore.
// Transactions run one at a time; their writes are staged and only
// published when the transaction function succeeds.
type Ledger struct {
	txMu sync.Mutex   // serializes Atomic calls
	mu   sync.RWMutex // guards the committed maps

	configs map[address.Pubkey]*domain.ConfigRecord
	custody map[address.Pubkey]*domain.CustodyRecord
	mints   map[address.Pubkey]*domain.Mint
	events  *ExchangeEventStore

	requests map[string]int64 // digest -> expires_at
}

// NewLedger creates a new in-memory ledger. Events appended by committed
// transactions are recorded in the ledger's event store.
func NewLedger() *Ledger {
	return &Ledger{
		configs: make(map[address.Pubkey]*domain.ConfigRecord),
		custody: make(map[address.Pubkey]*domain.CustodyRecord),
		mints:   make(map[address.Pubkey]*domain.Mint),
		events:  NewExchangeEventStore(),

		requests: make(map[string]int64),
	}
}

// Events returns the store holding events emitted by committed transactions.
func (l *Ledger) Events() *ExchangeEventStore {
	return l.events
}

// Atomic runs fn against a staged view and commits it if fn returns nil.
func (l *Ledger) Atomic(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	tx := &ledgerTx{
		ledger:  l,
		configs: make(map[address.Pubkey]*domain.ConfigRecord),
		custody: make(map[address.Pubkey]*domain.CustodyRecord),

		requests: make(map[string]int64),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return l.commit(ctx, tx)
}

func (l *Ledger) commit(ctx context.Context, tx *ledgerTx) error {
	// Events are checked first so a duplicate ID aborts before any state is published.
	if err := l.events.InsertBulk(ctx, tx.events); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for addr, c := range tx.configs {
		l.configs[addr] = c
	}
	for addr, r := range tx.custody {
		l.custody[addr] = r
	}
	for digest, exp := range tx.requests {
		l.requests[digest] = exp
	}
	return nil
}

// PruneRequests forgets consumed request digests that expired before before.
func (l *Ledger) PruneRequests(_ context.Context, before int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for digest, exp := range l.requests {
		if exp < before {
			delete(l.requests, digest)
			n++
		}
	}
	return n, nil
}

// GetConfig retrieves a configuration record.
func (l *Ledger) GetConfig(_ context.Context, addr address.Pubkey) (*domain.ConfigRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.configs[addr]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return c.Clone(), nil
}

// GetCustody retrieves a custody record.
func (l *Ledger) GetCustody(_ context.Context, addr address.Pubkey) (*domain.CustodyRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	r, ok := l.custody[addr]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r.Clone(), nil
}

// GetMint retrieves a mint.
func (l *Ledger) GetMint(_ context.Context, addr address.Pubkey) (*domain.Mint, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.mints[addr]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return m.Clone(), nil
}

// CreateMint adds a new mint. Returns ErrDuplicateKey if exists.
func (l *Ledger) CreateMint(_ context.Context, m *domain.Mint) error {
	if m == nil || m.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.mints[m.Address]; exists {
		return storage.ErrDuplicateKey
	}
	l.mints[m.Address] = m.Clone()
	return nil
}

// CreateCustody adds a new custody record. Returns ErrDuplicateKey if exists.
func (l *Ledger) CreateCustody(_ context.Context, r *domain.CustodyRecord) error {
	if r == nil || r.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.mints[r.Mint]; !ok {
		return storage.ErrNotFound
	}
	if _, exists := l.custody[r.Address]; exists {
		return storage.ErrDuplicateKey
	}
	l.custody[r.Address] = r.Clone()
	return nil
}

// ledgerTx stages writes on top of the committed ledger state.
type ledgerTx struct {
	ledger  *Ledger
	configs map[address.Pubkey]*domain.ConfigRecord
	custody map[address.Pubkey]*domain.CustodyRecord
	events  []*domain.ExchangeEvent

	requests map[string]int64
}

func (tx *ledgerTx) Config(ctx context.Context, addr address.Pubkey) (*domain.ConfigRecord, error) {
	if c, ok := tx.configs[addr]; ok {
		return c.Clone(), nil
	}
	return tx.ledger.GetConfig(ctx, addr)
}

func (tx *ledgerTx) CreateConfig(ctx context.Context, c *domain.ConfigRecord) error {
	if c == nil || c.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	if _, err := tx.Config(ctx, c.Address); err == nil {
		return storage.ErrDuplicateKey
	}
	tx.configs[c.Address] = c.Clone()
	return nil
}

func (tx *ledgerTx) UpdateConfig(ctx context.Context, c *domain.ConfigRecord) error {
	if c == nil {
		return storage.ErrInvalidInput
	}
	if _, err := tx.Config(ctx, c.Address); err != nil {
		return err
	}
	tx.configs[c.Address] = c.Clone()
	return nil
}

func (tx *ledgerTx) Custody(ctx context.Context, addr address.Pubkey) (*domain.CustodyRecord, error) {
	if r, ok := tx.custody[addr]; ok {
		return r.Clone(), nil
	}
	return tx.ledger.GetCustody(ctx, addr)
}

func (tx *ledgerTx) UpdateCustody(ctx context.Context, r *domain.CustodyRecord) error {
	if r == nil {
		return storage.ErrInvalidInput
	}
	current, err := tx.Custody(ctx, r.Address)
	if err != nil {
		return err
	}
	current.Amount = r.Amount
	tx.custody[r.Address] = current
	return nil
}

func (tx *ledgerTx) Mint(ctx context.Context, addr address.Pubkey) (*domain.Mint, error) {
	return tx.ledger.GetMint(ctx, addr)
}

func (tx *ledgerTx) AppendEvent(_ context.Context, e *domain.ExchangeEvent) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}
	for _, staged := range tx.events {
		if staged.ID == e.ID {
			return storage.ErrDuplicateKey
		}
	}
	cp := *e
	tx.events = append(tx.events, &cp)
	return nil
}

func (tx *ledgerTx) ConsumeRequest(_ context.Context, digest string, expiresAt int64) error {
	if digest == "" {
		return storage.ErrInvalidInput
	}
	if _, ok := tx.requests[digest]; ok {
		return storage.ErrDuplicateKey
	}

	tx.ledger.mu.RLock()
	_, consumed := tx.ledger.requests[digest]
	tx.ledger.mu.RUnlock()
	if consumed {
		return storage.ErrDuplicateKey
	}

	tx.requests[digest] = expiresAt
	return nil
}

var _ storage.LedgerStore = (*Ledger)(nil)
