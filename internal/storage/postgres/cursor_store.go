package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"swap-authority/internal/storage"
)

// CursorStore is a PostgreSQL implementation of storage.CursorStore.
// One row per program in index_cursors.
type CursorStore struct {
	pool *Pool
}

// NewCursorStore creates a new PostgreSQL cursor store.
func NewCursorStore(pool *Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

var _ storage.CursorStore = (*CursorStore)(nil)

// GetCursor returns the last indexed slot and signature for programID.
func (s *CursorStore) GetCursor(ctx context.Context, programID string) (*storage.Cursor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT slot, signature
		FROM index_cursors
		WHERE program_id = $1
	`, programID)

	var cursor storage.Cursor
	err := row.Scan(&cursor.Slot, &cursor.Signature)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return &cursor, nil
}

// SetCursor saves the last indexed slot and signature.
// Uses upsert to handle initial insert and subsequent updates.
func (s *CursorStore) SetCursor(ctx context.Context, programID string, cursor *storage.Cursor) error {
	if programID == "" || cursor == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO index_cursors (program_id, slot, signature, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (program_id) DO UPDATE
		SET slot = EXCLUDED.slot,
		    signature = EXCLUDED.signature,
		    updated_at = NOW()
	`, programID, cursor.Slot, cursor.Signature)

	return err
}
