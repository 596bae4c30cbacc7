package storage

import "context"

// Cursor represents the newest indexed position of a program's history.
type Cursor struct {
	Slot      int64  // slot of the newest indexed transaction
	Signature string // signature of the newest indexed transaction
}

// CursorStore persists indexing progress per program.
// This enables backfills to stop where the previous run ended instead of
// walking the whole history again.
type CursorStore interface {
	// GetCursor returns the stored cursor for a program.
	// Returns ErrNotFound if no progress has been saved yet.
	GetCursor(ctx context.Context, programID string) (*Cursor, error)

	// SetCursor saves the cursor for a program.
	SetCursor(ctx context.Context, programID string, cursor *Cursor) error
}
