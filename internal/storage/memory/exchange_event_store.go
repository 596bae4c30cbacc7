package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"swap-authority/internal/address"
	"swap-authority/internal/checked"
	"swap-authority/internal/domain"
	"swap-authority/internal/storage"
)

// ExchangeEventStore is an in-memory implementation of storage.ExchangeEventStore
// and storage.VolumeStore.
type ExchangeEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExchangeEvent // keyed by event ID
}

// NewExchangeEventStore creates a new in-memory exchange event store.
func NewExchangeEventStore() *ExchangeEventStore {
	return &ExchangeEventStore{
		data: make(map[string]*domain.ExchangeEvent),
	}
}

// Insert adds a new event. Returns ErrDuplicateKey if exists.
func (s *ExchangeEventStore) Insert(_ context.Context, e *domain.ExchangeEvent) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *e
	s.data[e.ID] = &cp
	return nil
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *ExchangeEventStore) InsertBulk(_ context.Context, events []*domain.ExchangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.ID] = struct{}{}
	}

	for _, e := range events {
		copy := *e
		s.data[e.ID] = &copy
	}
	return nil
}

// GetByCaller retrieves all events for a caller, ordered by timestamp ASC.
func (s *ExchangeEventStore) GetByCaller(_ context.Context, caller address.Pubkey) ([]*domain.ExchangeEvent, error) {
	return s.filter(func(e *domain.ExchangeEvent) bool {
		return e.Caller == caller
	}), nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *ExchangeEventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.ExchangeEvent, error) {
	return s.filter(func(e *domain.ExchangeEvent) bool {
		return e.Timestamp >= start && e.Timestamp <= end
	}), nil
}

// DailyVolume returns per-day totals for events within [start, end].
// Sums that would overflow saturate at the maximum uint64 value.
func (s *ExchangeEventStore) DailyVolume(ctx context.Context, start, end int64) ([]*domain.DailyVolume, error) {
	events, err := s.GetByTimeRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*domain.DailyVolume)
	for _, e := range events {
		day := time.Unix(e.Timestamp, 0).UTC().Format(time.DateOnly)
		v, ok := byDay[day]
		if !ok {
			v = &domain.DailyVolume{Day: day}
			byDay[day] = v
		}
		v.Exchanges++
		v.OldAmount = saturatingAdd(v.OldAmount, e.OldAmount)
		v.NewAmount = saturatingAdd(v.NewAmount, e.NewAmount)
	}

	result := make([]*domain.DailyVolume, 0, len(byDay))
	for _, v := range byDay {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Day < result[j].Day
	})
	return result, nil
}

func (s *ExchangeEventStore) filter(keep func(*domain.ExchangeEvent) bool) []*domain.ExchangeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExchangeEvent
	for _, e := range s.data {
		if keep(e) {
			copy := *e
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func saturatingAdd(a, b uint64) uint64 {
	sum, ok := checked.AddUint64(a, b)
	if !ok {
		return ^uint64(0)
	}
	return sum
}

var (
	_ storage.ExchangeEventStore = (*ExchangeEventStore)(nil)
	_ storage.VolumeStore        = (*ExchangeEventStore)(nil)
)
