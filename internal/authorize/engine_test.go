package authorize

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardcore/authd/internal/account"
	"github.com/cardcore/authd/internal/config"
	"github.com/cardcore/authd/internal/money"
	"github.com/cardcore/authd/internal/refdata"
)

// testEngine wires an engine over in-memory stores with the worked-example
// account: balance 2500.00, credit limit 5000.00, available 2500.00.
func testEngine(t *testing.T) (*Engine, *account.MemoryStore) {
	t.Helper()

	accounts := account.NewMemoryStore()
	require.NoError(t, accounts.Put(context.Background(), &account.Account{
		ID:          "acct-1",
		Balance:     money.MustParse("2500.00"),
		CreditLimit: money.MustParse("5000.00"),
		Active:      true,
	}))

	tracker := NewTracker(VelocityConfig{
		DailyAmountCap: money.MustParse("2000.00"),
		DailyCountCap:  10,
		Window:         config.WindowCalendar,
		Location:       time.UTC,
		GeoMinInterval: time.Hour,
	})

	engine := NewEngine(
		accounts,
		refdata.NewStaticProvider(testRefdata()),
		tracker,
		testScorer(),
		slog.Default(),
	).WithClock(func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	})

	return engine, accounts
}

func TestAuthorize_WorkedExamples(t *testing.T) {
	engine, _ := testEngine(t)
	ctx := context.Background()

	t.Run("125.50 approved", func(t *testing.T) {
		req := testRequest()
		req.Amount = money.MustParse("125.50")
		res, err := engine.Authorize(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, DecisionApproved, res.Decision)
		assert.Equal(t, ReasonNone, res.Reason)
		assert.NotEmpty(t, res.ID)
		assert.Equal(t, "125.50", res.Request.Amount.String())
	})

	t.Run("6000.00 declines insufficient credit", func(t *testing.T) {
		req := testRequest()
		req.Amount = money.MustParse("6000.00")
		res, err := engine.Authorize(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, DecisionDeclined, res.Decision)
		assert.Equal(t, ReasonInsufficientCredit, res.Reason)
		assert.Equal(t, "insufficient available credit", res.Message)
	})

	t.Run("blacklisted card declines for any amount", func(t *testing.T) {
		req := testRequest()
		req.CardNumber = "9999123456789012"
		req.Amount = money.MustParse("0.01")
		res, err := engine.Authorize(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, ReasonCardBlacklisted, res.Reason)
		assert.Equal(t, "card is blacklisted", res.Message)
	})

	t.Run("gambling merchant declines", func(t *testing.T) {
		req := testRequest()
		req.MerchantName = "HIGH ROLLER GAMBLING"
		res, err := engine.Authorize(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, ReasonCategoryBlocked, res.Reason)
		assert.Equal(t, "merchant category not allowed", res.Message)
	})
}

func TestAuthorize_ShortCircuitOrder(t *testing.T) {
	engine, accounts := testEngine(t)
	ctx := context.Background()

	// A request that would fail several checks reports only the first:
	// blacklisted card on an inactive account over limit.
	require.NoError(t, accounts.Put(ctx, &account.Account{
		ID:          "acct-dead",
		Balance:     money.MustParse("9999.00"),
		CreditLimit: money.MustParse("100.00"),
		Active:      false,
	}))

	req := testRequest()
	req.AccountID = "acct-dead"
	req.CardNumber = "9999000011112222"
	req.MerchantName = "GAMBLING DEN"

	res, err := engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ReasonCardBlacklisted, res.Reason, "blacklist runs first and aborts the pass")
}

func TestAuthorize_InactiveAccount(t *testing.T) {
	engine, accounts := testEngine(t)
	ctx := context.Background()

	require.NoError(t, accounts.Put(ctx, &account.Account{
		ID:          "acct-closed",
		Balance:     money.Zero(),
		CreditLimit: money.MustParse("5000.00"),
		Active:      false,
	}))

	req := testRequest()
	req.AccountID = "acct-closed"
	res, err := engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ReasonAccountNotActive, res.Reason)
}

func TestAuthorize_DailyCap(t *testing.T) {
	engine, _ := testEngine(t)
	ctx := context.Background()

	// Cap is 2000.00. Three 600.00 approvals accumulate 1800.00; the fourth
	// would cross and declines hard.
	for i := 0; i < 3; i++ {
		req := testRequest()
		req.Amount = money.MustParse("600.00")
		res, err := engine.Authorize(ctx, req)
		require.NoError(t, err)
		require.Equal(t, DecisionApproved, res.Decision, "transaction %d", i+1)
	}

	req := testRequest()
	req.Amount = money.MustParse("600.00")
	res, err := engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ReasonDailyLimitExceeded, res.Reason)

	// Exactly reaching the cap is allowed.
	req = testRequest()
	req.Amount = money.MustParse("200.00")
	res, err = engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, res.Decision)
}

func TestAuthorize_DeclineDoesNotConsumeCap(t *testing.T) {
	engine, _ := testEngine(t)
	ctx := context.Background()

	// A declined transaction leaves no velocity state behind.
	req := testRequest()
	req.Amount = money.MustParse("6000.00") // insufficient credit
	res, err := engine.Authorize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, DecisionDeclined, res.Decision)

	st := engine.velocity.Snapshot("acct-1", engine.clock())
	assert.Equal(t, 0, st.Count)
	assert.Equal(t, "0.00", st.Amount.String())
}

func TestAuthorize_WindowResetRestoresEligibility(t *testing.T) {
	engine, accounts := testEngine(t)
	ctx := context.Background()

	// Ample credit so the daily cap, not available credit, is what resets.
	require.NoError(t, accounts.Put(ctx, &account.Account{
		ID:          "acct-window",
		Balance:     money.Zero(),
		CreditLimit: money.MustParse("100000.00"),
		Active:      true,
	}))

	day1 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

	req := testRequest()
	req.AccountID = "acct-window"
	req.Amount = money.MustParse("2000.00")
	req.Timestamp = day1
	res, err := engine.Authorize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, DecisionApproved, res.Decision)

	// Same day: cap exhausted.
	req = testRequest()
	req.AccountID = "acct-window"
	req.Amount = money.MustParse("0.01")
	req.Timestamp = day1.Add(time.Hour)
	res, err = engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ReasonDailyLimitExceeded, res.Reason)

	// Next day: the same cumulative amount is eligible again.
	req = testRequest()
	req.AccountID = "acct-window"
	req.Amount = money.MustParse("2000.00")
	req.Timestamp = day2
	res, err = engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, res.Decision)
}

// creditBoundEngine wires an engine where available credit, not the daily
// cap, is the binding limit: balance 2500.00, credit limit 5000.00,
// available 2500.00, cap far above.
func creditBoundEngine(t *testing.T) (*Engine, *account.MemoryStore) {
	t.Helper()

	accounts := account.NewMemoryStore()
	require.NoError(t, accounts.Put(context.Background(), &account.Account{
		ID:          "acct-credit",
		Balance:     money.MustParse("2500.00"),
		CreditLimit: money.MustParse("5000.00"),
		Active:      true,
	}))

	tracker := NewTracker(VelocityConfig{
		DailyAmountCap: money.MustParse("100000.00"),
		Window:         config.WindowCalendar,
		Location:       time.UTC,
		GeoMinInterval: time.Hour,
	})

	engine := NewEngine(
		accounts,
		refdata.NewStaticProvider(testRefdata()),
		tracker,
		testScorer(),
		slog.Default(),
	).WithLockWait(5 * time.Second)

	return engine, accounts
}

func TestAuthorize_ApprovalsConsumeAvailableCredit(t *testing.T) {
	engine, _ := creditBoundEngine(t)
	ctx := context.Background()

	// Two 2000.00 requests are each individually within the 2500.00
	// headroom, but together exceed it: the second must decline.
	req := testRequest()
	req.AccountID = "acct-credit"
	req.Amount = money.MustParse("2000.00")
	res, err := engine.Authorize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, DecisionApproved, res.Decision)

	req = testRequest()
	req.AccountID = "acct-credit"
	req.Amount = money.MustParse("2000.00")
	res, err = engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, DecisionDeclined, res.Decision)
	assert.Equal(t, ReasonInsufficientCredit, res.Reason)

	// Exactly the remaining 500.00 passes (inclusive boundary).
	req = testRequest()
	req.AccountID = "acct-credit"
	req.Amount = money.MustParse("500.00")
	res, err = engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, res.Decision)

	// Headroom is now zero: even one cent declines.
	req = testRequest()
	req.AccountID = "acct-credit"
	req.Amount = money.MustParse("0.01")
	res, err = engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ReasonInsufficientCredit, res.Reason)
}

func TestAuthorize_BalanceRefreshReleasesHolds(t *testing.T) {
	engine, accounts := creditBoundEngine(t)
	ctx := context.Background()

	req := testRequest()
	req.AccountID = "acct-credit"
	req.Amount = money.MustParse("2000.00")
	res, err := engine.Authorize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, DecisionApproved, res.Decision)

	// The approved 2000.00 posts upstream: the refreshed balance carries it
	// and the hold is released. Headroom is 5000 - 4500 = 500.00 again.
	require.NoError(t, accounts.Put(ctx, &account.Account{
		ID:          "acct-credit",
		Balance:     money.MustParse("4500.00"),
		CreditLimit: money.MustParse("5000.00"),
		Active:      true,
	}))
	engine.ReleaseHolds("acct-credit")

	req = testRequest()
	req.AccountID = "acct-credit"
	req.Amount = money.MustParse("500.00")
	res, err = engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, DecisionApproved, res.Decision)

	req = testRequest()
	req.AccountID = "acct-credit"
	req.Amount = money.MustParse("0.01")
	res, err = engine.Authorize(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, ReasonInsufficientCredit, res.Reason)
}

func TestAuthorize_ResultsCarryMaskedPAN(t *testing.T) {
	engine, _ := testEngine(t)
	audit := NewMemoryStore()
	engine.WithAudit(audit)
	ctx := context.Background()

	res, err := engine.Authorize(ctx, testRequest())
	require.NoError(t, err)
	assert.Equal(t, "************1111", res.Request.CardNumber)

	req := testRequest()
	req.CardNumber = "9999123456789012"
	res, err = engine.Authorize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, ReasonCardBlacklisted, res.Reason, "full PAN still drives the checks")
	assert.Equal(t, "************9012", res.Request.CardNumber)

	// The audit trail holds the masked form only.
	require.Eventually(t, func() bool {
		list, err := audit.ListByAccount(ctx, "acct-1", 10, nil)
		return err == nil && len(list) == 2
	}, time.Second, 10*time.Millisecond)
	list, err := audit.ListByAccount(ctx, "acct-1", 10, nil)
	require.NoError(t, err)
	for _, rec := range list {
		assert.NotContains(t, rec.Request.CardNumber, "4111111111111111")
		assert.NotContains(t, rec.Request.CardNumber, "9999123456789012")
		assert.Regexp(t, `^\*+\d{4}$`, rec.Request.CardNumber)
	}
}

func TestAuthorize_UnknownAccountFailsClosed(t *testing.T) {
	engine, _ := testEngine(t)

	req := testRequest()
	req.AccountID = "acct-missing"
	res, err := engine.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, DecisionDeclined, res.Decision)
	assert.Equal(t, ReasonUnableToVerify, res.Reason)
}

func TestAuthorize_LockTimeoutFailsClosed(t *testing.T) {
	engine, _ := testEngine(t)
	engine.WithLockWait(30 * time.Millisecond)
	ctx := context.Background()

	// Hold the account's section from outside the engine.
	release, err := engine.locks.Acquire(ctx, "acct-1")
	require.NoError(t, err)
	defer release()

	res, err := engine.Authorize(ctx, testRequest())
	require.NoError(t, err)
	assert.Equal(t, DecisionDeclined, res.Decision)
	assert.Equal(t, ReasonSystemBusy, res.Reason)
	assert.Equal(t, "system busy", res.Message)
}

func TestAuthorize_ValidationDeclines(t *testing.T) {
	engine, _ := testEngine(t)

	req := testRequest()
	req.Amount = money.Zero()
	res, err := engine.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidRequest, res.Reason)
}

func TestEvaluate_Deterministic(t *testing.T) {
	engine, _ := testEngine(t)

	snap := Snapshot{
		Account: &account.Account{
			ID:          "acct-1",
			Balance:     money.MustParse("2500.00"),
			CreditLimit: money.MustParse("5000.00"),
			Active:      true,
		},
		Velocity: VelocityState{
			WindowStart:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			Amount:       money.MustParse("1500.00"),
			Count:        4,
			LastLocation: "springfield/627",
			LastSeen:     time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC),
		},
		Refdata: testRefdata(),
		Now:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	req := testRequest()
	req.Amount = money.MustParse("450.00")
	req.MerchantCity = "Anchorage"
	req.MerchantZip = "99501"

	first := engine.Evaluate(req, snap)
	for i := 0; i < 20; i++ {
		again := engine.Evaluate(req, snap)
		assert.Equal(t, first.Decision, again.Decision)
		assert.Equal(t, first.Reason, again.Reason)
		assert.Equal(t, first.RiskScore, again.RiskScore)
	}
}

func TestAuthorize_AuditAndObserver(t *testing.T) {
	engine, _ := testEngine(t)
	audit := NewMemoryStore()
	observed := make(chan *Result, 1)
	engine.WithAudit(audit).WithObserver(func(r *Result) { observed <- r })

	res, err := engine.Authorize(context.Background(), testRequest())
	require.NoError(t, err)

	select {
	case got := <-observed:
		assert.Equal(t, res.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("observer not invoked")
	}

	require.Eventually(t, func() bool {
		list, err := audit.ListByAccount(context.Background(), "acct-1", 10, nil)
		return err == nil && len(list) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestScorerThresholdConfigurable(t *testing.T) {
	engine, _ := testEngine(t)
	// Replace the scorer with a zero threshold: everything that reaches
	// fraud scoring declines.
	engine.scorer = NewScorer(FraudConfig{
		Threshold:       decimal.Zero,
		WeightAmount:    decimal.RequireFromString("0.35"),
		WeightCategory:  decimal.RequireFromString("0.25"),
		WeightGeo:       decimal.RequireFromString("0.25"),
		WeightTimeOfDay: decimal.RequireFromString("0.15"),
		AmountFloor:     money.MustParse("1000.00"),
		AmountCeil:      money.MustParse("5000.00"),
	})

	res, err := engine.Authorize(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, ReasonFraudSuspected, res.Reason)
	assert.Equal(t, "fraud pattern detected", res.Message)
}
