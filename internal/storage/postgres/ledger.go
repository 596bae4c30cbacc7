package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/observability"
	"swap-authority/internal/storage"
)

// Ledger implements storage.LedgerStore using PostgreSQL.
// Each Atomic call runs in one database transaction; rows read through the
// transaction are locked with SELECT ... FOR UPDATE so concurrent operations
// on the same records serialize.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new Ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*Ledger)(nil)

// Atomic runs fn inside a database transaction. The transaction commits if
// fn returns nil and rolls back otherwise.
func (l *Ledger) Atomic(ctx context.Context, fn func(tx storage.LedgerTx) error) error {
	start := time.Now()
	err := pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		return fn(&ledgerTx{tx: tx})
	})
	observability.RecordDBQuery("postgres", "ledger_atomic", time.Since(start).Seconds(), err)
	return err
}

// GetConfig retrieves a configuration record.
func (l *Ledger) GetConfig(ctx context.Context, addr address.Pubkey) (*domain.ConfigRecord, error) {
	return getConfig(ctx, l.pool, addr, false)
}

// GetCustody retrieves a custody record.
func (l *Ledger) GetCustody(ctx context.Context, addr address.Pubkey) (*domain.CustodyRecord, error) {
	return getCustody(ctx, l.pool, addr, false)
}

// GetMint retrieves a mint.
func (l *Ledger) GetMint(ctx context.Context, addr address.Pubkey) (*domain.Mint, error) {
	return getMint(ctx, l.pool, addr)
}

// CreateMint adds a new mint. Returns ErrDuplicateKey if address exists.
func (l *Ledger) CreateMint(ctx context.Context, m *domain.Mint) error {
	if m == nil || m.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO mints (address, decimals, supply, mint_authority)
		VALUES ($1, $2, $3, $4)
	`

	_, err := l.pool.Exec(ctx, query,
		m.Address.String(),
		int16(m.Decimals),
		numeric(m.Supply),
		keyString(m.MintAuthority),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert mint: %w", err)
	}
	return nil
}

// CreateCustody adds a new custody record. Returns ErrDuplicateKey if address
// exists and ErrNotFound if its mint does not.
func (l *Ledger) CreateCustody(ctx context.Context, r *domain.CustodyRecord) error {
	if r == nil || r.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO custody_records (address, mint, owner, amount)
		VALUES ($1, $2, $3, $4)
	`

	_, err := l.pool.Exec(ctx, query,
		r.Address.String(),
		r.Mint.String(),
		keyString(r.Owner),
		numeric(r.Amount),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert custody record: %w", err)
	}
	return nil
}

// PruneRequests deletes consumed request digests that expired before before.
func (l *Ledger) PruneRequests(ctx context.Context, before int64) (int, error) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM consumed_requests WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune consumed requests: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ledgerTx implements storage.LedgerTx on a pgx transaction.
type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) Config(ctx context.Context, addr address.Pubkey) (*domain.ConfigRecord, error) {
	return getConfig(ctx, t.tx, addr, true)
}

// CreateConfig inserts the record if absent. A concurrent creator blocks on
// the primary key until the first transaction finishes.
func (t *ledgerTx) CreateConfig(ctx context.Context, c *domain.ConfigRecord) error {
	if c == nil || c.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	data, err := c.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tag, err := t.tx.Exec(ctx, `
		INSERT INTO exchange_configs (address, data)
		VALUES ($1, $2)
		ON CONFLICT (address) DO NOTHING
	`, c.Address.String(), data)
	if err != nil {
		return fmt.Errorf("insert config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

func (t *ledgerTx) UpdateConfig(ctx context.Context, c *domain.ConfigRecord) error {
	if c == nil {
		return storage.ErrInvalidInput
	}
	data, err := c.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE exchange_configs
		SET data = $2, updated_at = NOW()
		WHERE address = $1
	`, c.Address.String(), data)
	if err != nil {
		return fmt.Errorf("update config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) Custody(ctx context.Context, addr address.Pubkey) (*domain.CustodyRecord, error) {
	return getCustody(ctx, t.tx, addr, true)
}

func (t *ledgerTx) UpdateCustody(ctx context.Context, r *domain.CustodyRecord) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE custody_records
		SET amount = $2, updated_at = NOW()
		WHERE address = $1
	`, r.Address.String(), numeric(r.Amount))
	if err != nil {
		return fmt.Errorf("update custody record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) Mint(ctx context.Context, addr address.Pubkey) (*domain.Mint, error) {
	return getMint(ctx, t.tx, addr)
}

func (t *ledgerTx) AppendEvent(ctx context.Context, e *domain.ExchangeEvent) error {
	return insertEvent(ctx, t.tx, e)
}

// ConsumeRequest inserts the digest. A concurrent transaction holding the
// same digest blocks this insert until it commits or rolls back.
func (t *ledgerTx) ConsumeRequest(ctx context.Context, digest string, expiresAt int64) error {
	if digest == "" {
		return storage.ErrInvalidInput
	}

	tag, err := t.tx.Exec(ctx, `
		INSERT INTO consumed_requests (digest, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (digest) DO NOTHING
	`, digest, expiresAt)
	if err != nil {
		return fmt.Errorf("insert consumed request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// querier is satisfied by both *Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getConfig(ctx context.Context, q querier, addr address.Pubkey, lock bool) (*domain.ConfigRecord, error) {
	query := `SELECT data FROM exchange_configs WHERE address = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var data []byte
	if err := q.QueryRow(ctx, query, addr.String()).Scan(&data); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get config: %w", err)
	}

	c := &domain.ConfigRecord{Address: addr}
	if err := c.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", addr, err)
	}
	return c, nil
}

func getCustody(ctx context.Context, q querier, addr address.Pubkey, lock bool) (*domain.CustodyRecord, error) {
	query := `SELECT mint, owner, amount FROM custody_records WHERE address = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var (
		mint, owner string
		amount      pgtype.Numeric
	)
	if err := q.QueryRow(ctx, query, addr.String()).Scan(&mint, &owner, &amount); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get custody record: %w", err)
	}

	r := &domain.CustodyRecord{Address: addr}
	var err error
	if r.Mint, err = parseKey("mint", mint); err != nil {
		return nil, err
	}
	if r.Owner, err = parseKey("owner", owner); err != nil {
		return nil, err
	}
	if r.Amount, err = uint64FromNumeric(amount); err != nil {
		return nil, fmt.Errorf("custody %s amount: %w", addr, err)
	}
	return r, nil
}

func getMint(ctx context.Context, q querier, addr address.Pubkey) (*domain.Mint, error) {
	var (
		decimals  int16
		supply    pgtype.Numeric
		authority string
	)
	err := q.QueryRow(ctx, `
		SELECT decimals, supply, mint_authority
		FROM mints
		WHERE address = $1
	`, addr.String()).Scan(&decimals, &supply, &authority)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get mint: %w", err)
	}

	m := &domain.Mint{Address: addr, Decimals: uint8(decimals)}
	if m.Supply, err = uint64FromNumeric(supply); err != nil {
		return nil, fmt.Errorf("mint %s supply: %w", addr, err)
	}
	if m.MintAuthority, err = parseKey("mint_authority", authority); err != nil {
		return nil, err
	}
	return m, nil
}
