package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardcore/authd/internal/money"
)

func TestAvailable(t *testing.T) {
	acct := &Account{
		Balance:     money.MustParse("2500.00"),
		CreditLimit: money.MustParse("5000.00"),
	}
	assert.Equal(t, "2500.00", acct.Available().String())

	// Over limit: available goes negative.
	acct.Balance = money.MustParse("5100.00")
	assert.Equal(t, -1, acct.Available().Sign())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Account{
		ID:          "acct-1",
		Balance:     money.MustParse("100.00"),
		CreditLimit: money.MustParse("1000.00"),
		Active:      true,
	}))

	got, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)

	// Mutating the returned snapshot must not affect the store.
	got.Active = false
	again, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, again.Active)
}

func TestMemoryStore_NotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
