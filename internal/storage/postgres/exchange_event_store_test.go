package postgres

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-authority/internal/domain"
	"swap-authority/internal/storage"
)

func TestExchangeEventStore_InsertAndQuery(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExchangeEventStore(pool)

	events := []*domain.ExchangeEvent{
		{ID: "a", Caller: testKey(1), OldAmount: 100, NewAmount: 100, Timestamp: 1704067200, Signature: "sigA", Slot: 10},
		{ID: "b", Caller: testKey(2), OldAmount: 10, NewAmount: 15, Timestamp: 1704067300},
		{ID: "c", Caller: testKey(1), OldAmount: math.MaxUint64, NewAmount: 5, Timestamp: 1704153600},
	}
	require.NoError(t, store.InsertBulk(ctx, events))

	byCaller, err := store.GetByCaller(ctx, testKey(1))
	require.NoError(t, err)
	require.Len(t, byCaller, 2)
	assert.Equal(t, events[0], byCaller[0])
	assert.Equal(t, uint64(math.MaxUint64), byCaller[1].OldAmount)

	inRange, err := store.GetByTimeRange(ctx, 1704067200, 1704067300)
	require.NoError(t, err)
	require.Len(t, inRange, 2, "range is inclusive on both ends")
	assert.Equal(t, "a", inRange[0].ID)
	assert.Equal(t, "b", inRange[1].ID)
}

func TestExchangeEventStore_Duplicates(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExchangeEventStore(pool)

	require.NoError(t, store.Insert(ctx, &domain.ExchangeEvent{ID: "a", Caller: testKey(1), Timestamp: 1}))
	assert.ErrorIs(t, store.Insert(ctx, &domain.ExchangeEvent{ID: "a", Caller: testKey(1), Timestamp: 1}), storage.ErrDuplicateKey)

	// A batch containing a duplicate is rejected as a whole.
	err := store.InsertBulk(ctx, []*domain.ExchangeEvent{
		{ID: "b", Caller: testKey(1), Timestamp: 2},
		{ID: "a", Caller: testKey(1), Timestamp: 1},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	all, err := store.GetByTimeRange(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, store.Insert(ctx, &domain.ExchangeEvent{}), storage.ErrInvalidInput)
}

func TestExchangeEventStore_DailyVolume(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExchangeEventStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.ExchangeEvent{
		{ID: "a", Caller: testKey(1), OldAmount: 100, NewAmount: 100, Timestamp: 1704067200}, // 2024-01-01 00:00
		{ID: "b", Caller: testKey(2), OldAmount: 10, NewAmount: 15, Timestamp: 1704153599},   // 2024-01-01 23:59:59
		{ID: "c", Caller: testKey(1), OldAmount: 5, NewAmount: 5, Timestamp: 1704153600},     // 2024-01-02 00:00
		{ID: "d", Caller: testKey(3), OldAmount: 1, NewAmount: 1, Timestamp: 1704240000},     // outside range
	}))

	volume, err := store.DailyVolume(ctx, 1704067200, 1704239999)
	require.NoError(t, err)
	require.Len(t, volume, 2)

	assert.Equal(t, &domain.DailyVolume{Day: "2024-01-01", Exchanges: 2, OldAmount: 110, NewAmount: 115}, volume[0])
	assert.Equal(t, &domain.DailyVolume{Day: "2024-01-02", Exchanges: 1, OldAmount: 5, NewAmount: 5}, volume[1])
}

func TestExchangeEventStore_DailyVolumeSaturates(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExchangeEventStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.ExchangeEvent{
		{ID: "a", Caller: testKey(1), OldAmount: math.MaxUint64, NewAmount: 1, Timestamp: 100},
		{ID: "b", Caller: testKey(1), OldAmount: 10, NewAmount: 1, Timestamp: 200},
	}))

	volume, err := store.DailyVolume(ctx, 0, 1000)
	require.NoError(t, err)
	require.Len(t, volume, 1)
	assert.Equal(t, "1970-01-01", volume[0].Day)
	assert.Equal(t, uint64(math.MaxUint64), volume[0].OldAmount)
	assert.Equal(t, uint64(2), volume[0].NewAmount)
}

func TestCursorStore_SetAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCursorStore(pool)

	_, err := store.GetCursor(ctx, "prog")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetCursor(ctx, "prog", &storage.Cursor{Slot: 100, Signature: "Sig100"}))
	require.NoError(t, store.SetCursor(ctx, "prog", &storage.Cursor{Slot: 200, Signature: "Sig200"}))
	require.NoError(t, store.SetCursor(ctx, "other", &storage.Cursor{Slot: 5, Signature: "Sig5"}))

	cursor, err := store.GetCursor(ctx, "prog")
	require.NoError(t, err)
	assert.Equal(t, int64(200), cursor.Slot)
	assert.Equal(t, "Sig200", cursor.Signature)

	assert.ErrorIs(t, store.SetCursor(ctx, "", &storage.Cursor{}), storage.ErrInvalidInput)
}
