package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/storage"
)

// ExchangeEventStore implements storage.ExchangeEventStore and
// storage.VolumeStore using PostgreSQL.
type ExchangeEventStore struct {
	pool *Pool
}

// NewExchangeEventStore creates a new ExchangeEventStore.
func NewExchangeEventStore(pool *Pool) *ExchangeEventStore {
	return &ExchangeEventStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.ExchangeEventStore = (*ExchangeEventStore)(nil)
	_ storage.VolumeStore        = (*ExchangeEventStore)(nil)
)

const insertEventQuery = `
	INSERT INTO exchange_events (
		id, caller, old_amount, new_amount, timestamp, signature, slot
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
`

func insertEvent(ctx context.Context, q querier, e *domain.ExchangeEvent) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := q.Exec(ctx, insertEventQuery,
		e.ID,
		e.Caller.String(),
		numeric(e.OldAmount),
		numeric(e.NewAmount),
		e.Timestamp,
		e.Signature,
		e.Slot,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert exchange event: %w", err)
	}
	return nil
}

// Insert adds a new event. Returns ErrDuplicateKey if the ID exists.
func (s *ExchangeEventStore) Insert(ctx context.Context, e *domain.ExchangeEvent) error {
	return insertEvent(ctx, s.pool, e)
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *ExchangeEventStore) InsertBulk(ctx context.Context, events []*domain.ExchangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		if err := insertEvent(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByCaller retrieves all events for a caller, ordered by timestamp ASC.
func (s *ExchangeEventStore) GetByCaller(ctx context.Context, caller address.Pubkey) ([]*domain.ExchangeEvent, error) {
	query := `
		SELECT id, caller, old_amount, new_amount, timestamp, signature, slot
		FROM exchange_events
		WHERE caller = $1
		ORDER BY timestamp ASC, slot ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, caller.String())
	if err != nil {
		return nil, fmt.Errorf("get exchange events by caller: %w", err)
	}
	defer rows.Close()

	return scanExchangeEvents(rows)
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *ExchangeEventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ExchangeEvent, error) {
	query := `
		SELECT id, caller, old_amount, new_amount, timestamp, signature, slot
		FROM exchange_events
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC, slot ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get exchange events by time range: %w", err)
	}
	defer rows.Close()

	return scanExchangeEvents(rows)
}

// DailyVolume returns per-UTC-day totals for events within [start, end].
// Sums that exceed the uint64 range saturate.
func (s *ExchangeEventStore) DailyVolume(ctx context.Context, start, end int64) ([]*domain.DailyVolume, error) {
	query := `
		SELECT
			to_char(to_timestamp(timestamp) AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			COUNT(*),
			LEAST(SUM(old_amount), 18446744073709551615),
			LEAST(SUM(new_amount), 18446744073709551615)
		FROM exchange_events
		WHERE timestamp >= $1 AND timestamp <= $2
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get daily volume: %w", err)
	}
	defer rows.Close()

	var result []*domain.DailyVolume
	for rows.Next() {
		var (
			v              domain.DailyVolume
			count          int64
			oldSum, newSum pgtype.Numeric
		)
		if err := rows.Scan(&v.Day, &count, &oldSum, &newSum); err != nil {
			return nil, fmt.Errorf("scan daily volume row: %w", err)
		}
		v.Exchanges = uint64(count)
		if v.OldAmount, err = uint64FromNumeric(oldSum); err != nil {
			return nil, fmt.Errorf("daily volume old amount: %w", err)
		}
		if v.NewAmount, err = uint64FromNumeric(newSum); err != nil {
			return nil, fmt.Errorf("daily volume new amount: %w", err)
		}
		result = append(result, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily volume rows: %w", err)
	}

	return result, nil
}

// scanExchangeEvents scans multiple rows into a slice of ExchangeEvent.
func scanExchangeEvents(rows pgx.Rows) ([]*domain.ExchangeEvent, error) {
	var events []*domain.ExchangeEvent

	for rows.Next() {
		var (
			e              domain.ExchangeEvent
			caller         string
			oldAmt, newAmt pgtype.Numeric
		)

		err := rows.Scan(
			&e.ID,
			&caller,
			&oldAmt,
			&newAmt,
			&e.Timestamp,
			&e.Signature,
			&e.Slot,
		)
		if err != nil {
			return nil, fmt.Errorf("scan exchange event row: %w", err)
		}

		if e.Caller, err = parseKey("caller", caller); err != nil {
			return nil, err
		}
		if e.OldAmount, err = uint64FromNumeric(oldAmt); err != nil {
			return nil, fmt.Errorf("event %s old amount: %w", e.ID, err)
		}
		if e.NewAmount, err = uint64FromNumeric(newAmt); err != nil {
			return nil, fmt.Errorf("event %s new amount: %w", e.ID, err)
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange event rows: %w", err)
	}

	return events, nil
}
