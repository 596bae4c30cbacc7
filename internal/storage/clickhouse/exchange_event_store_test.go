package clickhouse

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/storage"
)

func testKey(b byte) address.Pubkey {
	var k address.Pubkey
	k[0] = b
	k[31] = 0x3C
	return k
}

func TestExchangeEventStore_InsertAndQuery(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExchangeEventStore(conn)

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
	require.Len(t, inRange, 2)
	assert.Equal(t, "a", inRange[0].ID)
	assert.Equal(t, "b", inRange[1].ID)
}

func TestExchangeEventStore_Duplicates(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExchangeEventStore(conn)

	require.NoError(t, store.Insert(ctx, &domain.ExchangeEvent{ID: "a", Caller: testKey(1), Timestamp: 1}))
	assert.ErrorIs(t, store.Insert(ctx, &domain.ExchangeEvent{ID: "a", Caller: testKey(1), Timestamp: 1}), storage.ErrDuplicateKey)

	err := store.InsertBulk(ctx, []*domain.ExchangeEvent{
		{ID: "b", Caller: testKey(1), Timestamp: 2},
		{ID: "b", Caller: testKey(1), Timestamp: 2},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	all, err := store.GetByTimeRange(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, store.Insert(ctx, &domain.ExchangeEvent{}), storage.ErrInvalidInput)
}

func TestExchangeEventStore_DailyVolume(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewExchangeEventStore(conn)

	require.NoError(t, store.InsertBulk(ctx, []*domain.ExchangeEvent{
		{ID: "a", Caller: testKey(1), OldAmount: 100, NewAmount: 100, Timestamp: 1704067200},
		{ID: "b", Caller: testKey(2), OldAmount: 10, NewAmount: 15, Timestamp: 1704153599},
		{ID: "c", Caller: testKey(1), OldAmount: 5, NewAmount: 5, Timestamp: 1704153600},
		{ID: "d", Caller: testKey(1), OldAmount: math.MaxUint64, NewAmount: 1, Timestamp: 1704153601},
	}))

	volume, err := store.DailyVolume(ctx, 1704067200, 1704239999)
	require.NoError(t, err)
	require.Len(t, volume, 2)

	assert.Equal(t, &domain.DailyVolume{Day: "2024-01-01", Exchanges: 2, OldAmount: 110, NewAmount: 115}, volume[0])
	assert.Equal(t, &domain.DailyVolume{Day: "2024-01-02", Exchanges: 2, OldAmount: math.MaxUint64, NewAmount: 6}, volume[1])
}
