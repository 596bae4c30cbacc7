package memory

import (
	"context"
	"sync"

	"swap-authority/internal/storage"
)

// CursorStore is an in-memory implementation of storage.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]storage.Cursor
}

// NewCursorStore creates a new in-memory cursor store.
func NewCursorStore() *CursorStore {
	return &CursorStore{
		cursors: make(map[string]storage.Cursor),
	}
}

// GetCursor returns the stored cursor for a program.
func (s *CursorStore) GetCursor(_ context.Context, programID string) (*storage.Cursor, error) {
	if programID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cursors[programID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

// SetCursor saves the cursor for a program.
func (s *CursorStore) SetCursor(_ context.Context, programID string, cursor *storage.Cursor) error {
	if programID == "" || cursor == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[programID] = *cursor
	return nil
}

var _ storage.CursorStore = (*CursorStore)(nil)
