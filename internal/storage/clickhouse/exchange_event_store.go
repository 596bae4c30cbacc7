package clickhouse

import (
	"context"
	"fmt"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/storage"
)

// ExchangeEventStore implements storage.ExchangeEventStore and
// storage.VolumeStore using ClickHouse. It holds the analytics copy of
// exchange events; the ledger remains the source of truth.
type ExchangeEventStore struct {
	conn *Conn
}

// NewExchangeEventStore creates a new ExchangeEventStore.
func NewExchangeEventStore(conn *Conn) *ExchangeEventStore {
	return &ExchangeEventStore{conn: conn}
}

// Compile-time interface checks.
var (
	_ storage.ExchangeEventStore = (*ExchangeEventStore)(nil)
	_ storage.VolumeStore        = (*ExchangeEventStore)(nil)
)

// Insert adds a new event. Returns ErrDuplicateKey if the ID exists.
func (s *ExchangeEventStore) Insert(ctx context.Context, e *domain.ExchangeEvent) error {
	return s.InsertBulk(ctx, []*domain.ExchangeEvent{e})
}

// InsertBulk adds multiple events. Fails entire batch on duplicate.
// MergeTree does not enforce uniqueness, so IDs are checked before the batch
// is sent.
func (s *ExchangeEventStore) InsertBulk(ctx context.Context, events []*domain.ExchangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.ID] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, e := range events {
		exists, err := s.exists(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO exchange_events (
			id, caller, old_amount, new_amount, timestamp, signature, slot
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.ID, e.Caller.String(), e.OldAmount, e.NewAmount,
			e.Timestamp, e.Signature, e.Slot,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByCaller retrieves all events for a caller, ordered by timestamp ASC.
func (s *ExchangeEventStore) GetByCaller(ctx context.Context, caller address.Pubkey) ([]*domain.ExchangeEvent, error) {
	query := `
		SELECT id, caller, old_amount, new_amount, timestamp, signature, slot
		FROM exchange_events FINAL
		WHERE caller = ?
		ORDER BY timestamp ASC, slot ASC, id ASC
	`

	rows, err := s.conn.Query(ctx, query, caller.String())
	if err != nil {
		return nil, fmt.Errorf("query by caller: %w", err)
	}
	defer rows.Close()

	return scanExchangeEvents(rows)
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *ExchangeEventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ExchangeEvent, error) {
	query := `
		SELECT id, caller, old_amount, new_amount, timestamp, signature, slot
		FROM exchange_events FINAL
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, slot ASC, id ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanExchangeEvents(rows)
}

// DailyVolume returns per-UTC-day totals for events within [start, end].
// Sums are computed in UInt256 and saturate at the uint64 maximum.
func (s *ExchangeEventStore) DailyVolume(ctx context.Context, start, end int64) ([]*domain.DailyVolume, error) {
	query := `
		SELECT
			toString(toDate(toDateTime(timestamp, 'UTC'))) AS day,
			count() AS exchanges,
			toUInt64(least(sum(toUInt256(old_amount)), toUInt256(18446744073709551615))) AS old_total,
			toUInt64(least(sum(toUInt256(new_amount)), toUInt256(18446744073709551615))) AS new_total
		FROM exchange_events FINAL
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query daily volume: %w", err)
	}
	defer rows.Close()

	var result []*domain.DailyVolume
	for rows.Next() {
		var v domain.DailyVolume
		if err := rows.Scan(&v.Day, &v.Exchanges, &v.OldAmount, &v.NewAmount); err != nil {
			return nil, fmt.Errorf("scan daily volume row: %w", err)
		}
		result = append(result, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily volume rows: %w", err)
	}

	return result, nil
}

// exists checks if an event with the given ID exists.
func (s *ExchangeEventStore) exists(ctx context.Context, id string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM exchange_events WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanExchangeEvents scans multiple rows.
func scanExchangeEvents(rows chRows) ([]*domain.ExchangeEvent, error) {
	var events []*domain.ExchangeEvent

	for rows.Next() {
		var (
			e      domain.ExchangeEvent
			caller string
		)

		err := rows.Scan(
			&e.ID, &caller, &e.OldAmount, &e.NewAmount,
			&e.Timestamp, &e.Signature, &e.Slot,
		)
		if err != nil {
			return nil, fmt.Errorf("scan exchange event row: %w", err)
		}

		if e.Caller, err = address.ParsePubkey(caller); err != nil {
			return nil, fmt.Errorf("parse caller: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchange event rows: %w", err)
	}

	return events, nil
}
