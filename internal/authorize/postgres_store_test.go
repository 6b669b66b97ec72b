package authorize

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardcore/authd/internal/money"
	"github.com/cardcore/authd/internal/pagination"
	"github.com/cardcore/authd/internal/testutil"
)

func TestPostgresStore_RecordAndList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, res := range []*Result{
		{
			ID:       "auth_pg_1",
			Decision: DecisionApproved,
			Reason:   ReasonNone,
			Request: Request{
				CardNumber: "4111111111111111",
				AccountID:  "acct-pg-1",
				Amount:     money.MustParse("125.50"),
				MerchantID: "MRCH-001",
				Timestamp:  base,
			},
			RiskScore: "0.125",
		},
		{
			ID:       "auth_pg_2",
			Decision: DecisionDeclined,
			Reason:   ReasonDailyLimitExceeded,
			Message:  ReasonDailyLimitExceeded.Message(),
			Request: Request{
				CardNumber: "4111111111111111",
				AccountID:  "acct-pg-1",
				Amount:     money.MustParse("900.00"),
				MerchantID: "MRCH-001",
				Timestamp:  base.Add(time.Hour),
			},
		},
	} {
		res.DecidedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Record(ctx, res))
	}

	results, err := store.ListByAccount(ctx, "acct-pg-1", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Newest first.
	assert.Equal(t, "auth_pg_2", results[0].ID)
	assert.Equal(t, DecisionDeclined, results[0].Decision)
	assert.Equal(t, ReasonDailyLimitExceeded, results[0].Reason)
	assert.Equal(t, "900.00", results[0].Request.Amount.String())

	assert.Equal(t, "auth_pg_1", results[1].ID)
	assert.Equal(t, "0.125", results[1].RiskScore)
	assert.Equal(t, "", results[0].RiskScore)
}

func TestPostgresStore_ListRespectsLimit(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, &Result{
			ID:       "auth_pg_lim_" + string(rune('a'+i)),
			Decision: DecisionApproved,
			Reason:   ReasonNone,
			Request: Request{
				CardNumber: "4111111111111111",
				AccountID:  "acct-pg-lim",
				Amount:     money.MustParse("10.00"),
				Timestamp:  base,
			},
			DecidedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	results, err := store.ListByAccount(ctx, "acct-pg-lim", 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Resume past the last row of the first page.
	last := results[2]
	rest, err := store.ListByAccount(ctx, "acct-pg-lim", 3, &pagination.Cursor{
		DecidedAt: last.DecidedAt,
		ID:        last.ID,
	})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	for _, res := range rest {
		assert.NotEqual(t, last.ID, res.ID)
	}
}
