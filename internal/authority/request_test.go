package authority

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/token"
)

func requestFor(tag string, expiresAt int64) Request {
	return Request{Digest: sha256.Sum256([]byte(tag)), ExpiresAt: expiresAt}
}

func TestExecuteOnce_RejectsReuse(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	state := f.prog.ConfigAddress()
	exp := testNow.Unix() + 60

	exchange := encode(t, domain.Instruction{Op: domain.OpExchange, Amount: 10})
	exchangeAccts := []address.Pubkey{state, f.user.Key(), f.userOld, f.userNew, f.oldVault, f.newVault, f.oldMint, f.newMint}
	user := token.NewSignerSet(f.user.Key())

	_, err := f.prog.ExecuteOnce(f.ctx, requestFor("exchange", exp), exchange, exchangeAccts, user)
	require.NoError(t, err)
	before := f.snapshot(t)

	for i := 0; i < 3; i++ {
		_, err = f.prog.ExecuteOnce(f.ctx, requestFor("exchange", exp), exchange, exchangeAccts, user)
		requireCode(t, err, ErrAuthorization)
	}
	assert.Equal(t, before, f.snapshot(t))
	assert.Equal(t, uint64(10), before.config.TotalExchanged)

	// A fresh digest for the same instruction executes.
	_, err = f.prog.ExecuteOnce(f.ctx, requestFor("exchange-2", exp), exchange, exchangeAccts, user)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), f.balance(t, f.oldVault))

	withdraw := encode(t, domain.Instruction{Op: domain.OpWithdraw, Amount: 100})
	withdrawAccts := []address.Pubkey{state, f.controller.Key(), f.newVault, f.ctrlNew, f.newMint}
	ctrl := token.NewSignerSet(f.controller.Key())

	_, err = f.prog.ExecuteOnce(f.ctx, requestFor("withdraw", exp), withdraw, withdrawAccts, ctrl)
	require.NoError(t, err)
	_, err = f.prog.ExecuteOnce(f.ctx, requestFor("withdraw", exp), withdraw, withdrawAccts, ctrl)
	requireCode(t, err, ErrAuthorization)
	assert.Equal(t, uint64(100), f.balance(t, f.ctrlNew))
}

func TestExecuteOnce_FailedOperationLeavesDigestUnused(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	state := f.prog.ConfigAddress()
	req := requestFor("rate", testNow.Unix()+60)
	accts := []address.Pubkey{state, f.controller.Key()}
	ctrl := token.NewSignerSet(f.controller.Key())

	_, err := f.prog.ExecuteOnce(f.ctx, req, encode(t, domain.Instruction{Op: domain.OpUpdateRate, Numerator: 0, Denominator: 5}), accts, ctrl)
	requireCode(t, err, ErrInvalidRatio)

	_, err = f.prog.ExecuteOnce(f.ctx, req, encode(t, domain.Instruction{Op: domain.OpUpdateRate, Numerator: 3, Denominator: 2}), accts, ctrl)
	require.NoError(t, err)
}

func TestExecuteOnce_Expiry(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	data := encode(t, domain.Instruction{Op: domain.OpUpdateRate, Numerator: 3, Denominator: 2})
	accts := []address.Pubkey{f.prog.ConfigAddress(), f.controller.Key()}
	ctrl := token.NewSignerSet(f.controller.Key())

	tests := []struct {
		name      string
		expiresAt int64
		wantErr   bool
	}{
		{name: "expired", expiresAt: testNow.Unix() - 1, wantErr: true},
		{name: "unset", expiresAt: 0, wantErr: true},
		{name: "too far ahead", expiresAt: testNow.Add(MaxRequestLifetime).Unix() + 1, wantErr: true},
		{name: "expires now", expiresAt: testNow.Unix()},
		{name: "at the limit", expiresAt: testNow.Add(MaxRequestLifetime).Unix()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.prog.ExecuteOnce(f.ctx, requestFor(tt.name, tt.expiresAt), data, accts, ctrl)
			if tt.wantErr {
				requireCode(t, err, ErrAuthorization)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPruneRequests(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	data := encode(t, domain.Instruction{Op: domain.OpUpdateRate, Numerator: 3, Denominator: 2})
	accts := []address.Pubkey{f.prog.ConfigAddress(), f.controller.Key()}
	ctrl := token.NewSignerSet(f.controller.Key())

	_, err := f.prog.ExecuteOnce(f.ctx, requestFor("a", testNow.Unix()), data, accts, ctrl)
	require.NoError(t, err)

	n, err := f.prog.PruneRequests(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a request expiring now is still live")

	// One second later it has expired and is dropped.
	later, err := New(key(200), f.ledger, WithClock(func() time.Time { return testNow.Add(time.Second) }))
	require.NoError(t, err)
	n, err = later.PruneRequests(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
