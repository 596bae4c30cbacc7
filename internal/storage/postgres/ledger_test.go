package postgres

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-authority/internal/authority"
	"swap-authority/internal/domain"
	"swap-authority/internal/storage"
	"swap-authority/internal/storage/migrations"
	"swap-authority/internal/token"
)

func seedLedger(t *testing.T, ctx context.Context, l *Ledger) {
	t.Helper()

	require.NoError(t, l.CreateMint(ctx, &domain.Mint{Address: testKey(1), Decimals: 6, Supply: math.MaxUint64, MintAuthority: testKey(9)}))
	require.NoError(t, l.CreateCustody(ctx, &domain.CustodyRecord{Address: testKey(10), Mint: testKey(1), Owner: testKey(20), Amount: 100}))
	require.NoError(t, l.CreateCustody(ctx, &domain.CustodyRecord{Address: testKey(11), Mint: testKey(1), Owner: testKey(21)}))
}

func TestLedger_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool)
	seedLedger(t, ctx, l)

	m, err := l.GetMint(ctx, testKey(1))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), m.Decimals)
	assert.Equal(t, uint64(math.MaxUint64), m.Supply, "full uint64 range must survive NUMERIC")
	assert.Equal(t, testKey(9), m.MintAuthority)

	r, err := l.GetCustody(ctx, testKey(10))
	require.NoError(t, err)
	assert.Equal(t, testKey(1), r.Mint)
	assert.Equal(t, testKey(20), r.Owner)
	assert.Equal(t, uint64(100), r.Amount)

	assert.ErrorIs(t, l.CreateMint(ctx, &domain.Mint{Address: testKey(1)}), storage.ErrDuplicateKey)
	assert.ErrorIs(t, l.CreateCustody(ctx, &domain.CustodyRecord{Address: testKey(10), Mint: testKey(1)}), storage.ErrDuplicateKey)
	assert.ErrorIs(t, l.CreateCustody(ctx, &domain.CustodyRecord{Address: testKey(12), Mint: testKey(99)}), storage.ErrNotFound)

	_, err = l.GetCustody(ctx, testKey(99))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = l.GetConfig(ctx, testKey(99))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedger_AtomicCommitAndRollback(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool)
	seedLedger(t, ctx, l)

	cfg := &domain.ConfigRecord{
		Address:         testKey(50),
		Controller:      testKey(20),
		OldMint:         testKey(1),
		NewMint:         testKey(1),
		RateNumerator:   3,
		RateDenominator: 2,
		TotalExchanged:  math.MaxUint64 - 1,
		Bump:            254,
	}

	err := l.Atomic(ctx, func(tx storage.LedgerTx) error {
		if err := tx.CreateConfig(ctx, cfg); err != nil {
			return err
		}
		r, err := tx.Custody(ctx, testKey(10))
		if err != nil {
			return err
		}
		r.Amount = 40
		if err := tx.UpdateCustody(ctx, r); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &domain.ExchangeEvent{ID: "e1", Caller: testKey(20), OldAmount: 60, NewAmount: 90, Timestamp: 1000})
	})
	require.NoError(t, err)

	stored, err := l.GetConfig(ctx, testKey(50))
	require.NoError(t, err)
	assert.Equal(t, cfg, stored)

	boom := errors.New("boom")
	err = l.Atomic(ctx, func(tx storage.LedgerTx) error {
		c, err := tx.Config(ctx, testKey(50))
		if err != nil {
			return err
		}
		c.RateNumerator = 7
		if err := tx.UpdateConfig(ctx, c); err != nil {
			return err
		}
		r, err := tx.Custody(ctx, testKey(10))
		if err != nil {
			return err
		}
		r.Amount = 0
		if err := tx.UpdateCustody(ctx, r); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &domain.ExchangeEvent{ID: "e2", Timestamp: 1000}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err = l.GetConfig(ctx, testKey(50))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stored.RateNumerator)

	r, err := l.GetCustody(ctx, testKey(10))
	require.NoError(t, err)
	assert.Equal(t, uint64(40), r.Amount)

	events, err := NewExchangeEventStore(pool).GetByTimeRange(ctx, 0, 2000)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
}

func TestLedger_CreateConfigOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool)
	cfg := &domain.ConfigRecord{Address: testKey(50), RateNumerator: 1, RateDenominator: 1}

	create := func(tx storage.LedgerTx) error { return tx.CreateConfig(ctx, cfg) }

	// Concurrent creators: exactly one wins.
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dups      int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Atomic(ctx, create)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, storage.ErrDuplicateKey):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 4, dups)
}

func TestLedger_UpdateMissing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool)

	err := l.Atomic(ctx, func(tx storage.LedgerTx) error {
		return tx.UpdateCustody(ctx, &domain.CustodyRecord{Address: testKey(77)})
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = l.Atomic(ctx, func(tx storage.LedgerTx) error {
		return tx.UpdateConfig(ctx, &domain.ConfigRecord{Address: testKey(77)})
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedger_AuthorityConcurrentExchanges(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool)

	prog, err := authority.New(testKey(200), l)
	require.NoError(t, err)

	controller := token.NewSigner(testKey(1))
	oldMint, newMint := testKey(2), testKey(3)
	oldVault, newVault := testKey(4), testKey(5)

	require.NoError(t, l.CreateMint(ctx, &domain.Mint{Address: oldMint, Decimals: 9}))
	require.NoError(t, l.CreateMint(ctx, &domain.Mint{Address: newMint, Decimals: 6}))
	require.NoError(t, l.CreateCustody(ctx, &domain.CustodyRecord{Address: oldVault, Mint: oldMint, Owner: controller.Key()}))
	require.NoError(t, l.CreateCustody(ctx, &domain.CustodyRecord{Address: newVault, Mint: newMint, Owner: prog.ConfigAddress(), Amount: 1_000_000}))

	_, err = prog.Initialize(ctx, authority.InitializeAccounts{
		State:      prog.ConfigAddress(),
		Controller: controller,
		OldMint:    oldMint,
		NewMint:    newMint,
		OldVault:   oldVault,
		NewVault:   newVault,
	})
	require.NoError(t, err)

	const users = 8
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		user := token.NewSigner(testKey(byte(100 + i)))
		userOld, userNew := testKey(byte(120+i)), testKey(byte(140+i))
		require.NoError(t, l.CreateCustody(ctx, &domain.CustodyRecord{Address: userOld, Mint: oldMint, Owner: user.Key(), Amount: 50}))
		require.NoError(t, l.CreateCustody(ctx, &domain.CustodyRecord{Address: userNew, Mint: newMint, Owner: user.Key()}))

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := prog.Exchange(ctx, authority.ExchangeAccounts{
				State:          prog.ConfigAddress(),
				User:           user,
				UserOldAccount: userOld,
				UserNewAccount: userNew,
				OldVault:       oldVault,
				NewVault:       newVault,
				OldMint:        oldMint,
				NewMint:        newMint,
			}, 50)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := prog.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(users*50), snap.Config.TotalExchanged)
	assert.Equal(t, uint64(users*50), snap.OldVault.Amount)
	assert.Equal(t, uint64(1_000_000-users*50), snap.NewVault.Amount)

	// Failed operations leave the database untouched.
	_, err = prog.UpdateRate(ctx, authority.UpdateRateAccounts{State: prog.ConfigAddress(), Controller: controller}, 0, 1)
	assert.ErrorIs(t, err, authority.ErrInvalidRatio)

	_, err = prog.Initialize(ctx, authority.InitializeAccounts{
		State: prog.ConfigAddress(), Controller: controller,
		OldMint: oldMint, NewMint: newMint, OldVault: oldVault, NewVault: newVault,
	})
	assert.ErrorIs(t, err, authority.ErrAlreadyInitialized)

	events, err := NewExchangeEventStore(pool).GetByTimeRange(ctx, 0, math.MaxInt64)
	require.NoError(t, err)
	assert.Len(t, events, users)
}

func TestMigrations_AppliedOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	applied, err := migrations.ApplyPostgres(ctx, pool)
	require.NoError(t, err)
	assert.Empty(t, applied, "setup already applied every migration")

	var versions int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&versions))
	assert.Equal(t, 3, versions)
}

func TestLedger_ConsumeRequest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	l := NewLedger(pool)

	consume := func(digest string, expiresAt int64) error {
		return l.Atomic(ctx, func(tx storage.LedgerTx) error {
			return tx.ConsumeRequest(ctx, digest, expiresAt)
		})
	}

	require.NoError(t, consume("aa", 100))
	assert.ErrorIs(t, consume("aa", 100), storage.ErrDuplicateKey)

	// A rolled back transaction leaves the digest unused.
	err := l.Atomic(ctx, func(tx storage.LedgerTx) error {
		require.NoError(t, tx.ConsumeRequest(ctx, "bb", 200))
		return errors.New("abort")
	})
	require.Error(t, err)
	require.NoError(t, consume("bb", 200))

	n, err := l.PruneRequests(ctx, 150)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, consume("aa", 300), "pruned digest is free again")
	assert.ErrorIs(t, consume("bb", 200), storage.ErrDuplicateKey)
}
