package authorize

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cardcore/authd/internal/account"
	"github.com/cardcore/authd/internal/idgen"
	"github.com/cardcore/authd/internal/metrics"
	"github.com/cardcore/authd/internal/money"
	"github.com/cardcore/authd/internal/refdata"
	"github.com/cardcore/authd/internal/syncutil"
	"github.com/cardcore/authd/internal/traces"
)

// DefaultLockWait bounds the wait for the per-account section. It is a small
// fraction of the end-to-end latency budget: past it we fail closed with
// "system busy" rather than queue indefinitely.
const DefaultLockWait = 250 * time.Millisecond

// Engine runs the authorization pipeline: per-account critical section,
// ordered checks with short-circuit on the first hard failure, velocity
// commit on approval.
type Engine struct {
	accounts account.Store
	refdata  *refdata.Provider
	velocity *Tracker
	scorer   *Scorer
	locks    *syncutil.KeyedMutex
	holds    *holdLedger

	audit    Store          // optional decision audit trail
	notify   func(*Result)  // optional async observers (webhooks, feed)
	clock    func() time.Time
	lockWait time.Duration
	logger   *slog.Logger
}

// NewEngine creates an authorization engine.
func NewEngine(accounts account.Store, ref *refdata.Provider, velocity *Tracker, scorer *Scorer, logger *slog.Logger) *Engine {
	return &Engine{
		accounts: accounts,
		refdata:  ref,
		velocity: velocity,
		scorer:   scorer,
		locks:    syncutil.NewKeyedMutex(),
		holds:    newHoldLedger(),
		clock:    time.Now,
		lockWait: DefaultLockWait,
		logger:   logger,
	}
}

// WithAudit attaches a decision audit store. Recording is asynchronous and
// best-effort; it never delays or fails a decision.
func (e *Engine) WithAudit(store Store) *Engine {
	e.audit = store
	return e
}

// WithObserver attaches a post-decision observer (notifications, realtime
// feed). Called asynchronously after the decision is returned.
func (e *Engine) WithObserver(fn func(*Result)) *Engine {
	prev := e.notify
	if prev == nil {
		e.notify = fn
	} else {
		e.notify = func(r *Result) { prev(r); fn(r) }
	}
	return e
}

// WithLockWait overrides the bounded wait for the per-account section.
func (e *Engine) WithLockWait(d time.Duration) *Engine {
	e.lockWait = d
	return e
}

// WithClock overrides the wall clock (tests).
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Snapshot is the full, consistent input of one decision: account state,
// velocity window and reference data generation, all read under the
// account's critical section. A decision is a pure function of (request,
// snapshot) — no hidden randomness.
type Snapshot struct {
	Account  *account.Account
	Velocity VelocityState
	Refdata  *refdata.Snapshot
	// Holds is the account's approved-but-unposted total. Credit headroom
	// is Account.Available() minus Holds.
	Holds money.Amount
	Now   time.Time
}

// Authorize decides one proposed transaction. All business and
// infrastructure outcomes are structured Results; the error return is
// reserved for programmer misuse (nil request) and is nil in normal
// operation.
//
// Once the per-account section has been entered the decision runs to
// completion and commits atomically: caller cancellation past that point
// abandons the result, never the state.
func (e *Engine) Authorize(ctx context.Context, req *Request) (*Result, error) {
	started := time.Now()

	ctx, span := traces.StartSpan(ctx, "authorize.decision",
		traces.AccountID(req.AccountID),
		traces.Amount(req.Amount.String()),
	)
	defer span.End()

	if vr := validateRequest(req); !vr.OK {
		return e.finish(ctx, e.declined(req, vr.Reason, ""), started), nil
	}

	// Bounded wait for the account's exclusive section. Timing out is a
	// fail-closed decline, not an error: approving without a serialized
	// snapshot risks jointly over-approving beyond available credit.
	lockCtx, cancel := context.WithTimeout(ctx, e.lockWait)
	release, err := e.locks.Acquire(lockCtx, req.AccountID)
	cancel()
	if err != nil {
		metrics.LockTimeoutsTotal.Inc()
		e.logger.Warn("account section wait exceeded", "account_id", req.AccountID, "wait", e.lockWait)
		return e.finish(ctx, e.declined(req, ReasonSystemBusy, ""), started), nil
	}

	// Inside the critical section: detach from caller cancellation so a
	// timed-out caller can never leave partially-applied velocity state.
	dctx := context.WithoutCancel(ctx)

	acct, err := e.accounts.Get(dctx, req.AccountID)
	if err != nil {
		release()
		e.logger.Error("account snapshot unavailable, failing closed", "account_id", req.AccountID, "error", err)
		return e.finish(ctx, e.declined(req, ReasonUnableToVerify, ""), started), nil
	}

	now := e.decisionTime(req)
	snap := Snapshot{
		Account:  acct,
		Velocity: e.velocity.Snapshot(req.AccountID, now),
		Refdata:  e.refdata.Current(),
		Holds:    e.holds.Sum(req.AccountID),
		Now:      now,
	}

	res := e.Evaluate(req, snap)
	if res.Approved() {
		e.velocity.Commit(req.AccountID, req, now)
		e.holds.Add(req.AccountID, req.Amount)
	}
	release()

	span.SetAttributes(traces.Decision(string(res.Decision)), traces.Reason(string(res.Reason)))
	return e.finish(dctx, res, started), nil
}

// Evaluate runs the check pipeline over an explicit snapshot. Pure and
// synchronous: no locks, no clocks, no I/O. The batch replayer and the
// determinism tests call this directly.
//
// Check order is fixed — blacklist, merchant policy, credit availability,
// velocity cap, fraud score — and the first hard failure aborts the pass.
func (e *Engine) Evaluate(req *Request, snap Snapshot) *Result {
	if cr := validateRequest(req); !cr.OK {
		return e.declined(req, cr.Reason, "")
	}
	if cr := checkBlacklist(req, snap.Refdata); !cr.OK {
		return e.declined(req, cr.Reason, "")
	}
	if cr := checkMerchantPolicy(req, snap.Refdata); !cr.OK {
		return e.declined(req, cr.Reason, "")
	}
	if cr := checkCredit(req, snap.Account, snap.Holds); !cr.OK {
		return e.declined(req, cr.Reason, "")
	}
	if cr := e.velocity.CheckCap(snap.Velocity, req.Amount); !cr.OK {
		return e.declined(req, cr.Reason, "")
	}

	// Geographic anomalies are soft signals: they feed the fraud score
	// instead of declining outright.
	geoFlag := e.velocity.GeoAnomaly(snap.Velocity, req, snap.Now)
	score, _ := e.scorer.Score(req, geoFlag, snap.Now)
	if cr := e.scorer.Check(score); !cr.OK {
		return e.declined(req, cr.Reason, score.String())
	}

	return &Result{
		ID:        idgen.WithPrefix("auth_"),
		Decision:  DecisionApproved,
		Reason:    ReasonNone,
		Request:   redactedRequest(req),
		RiskScore: score.String(),
		DecidedAt: e.clock(),
	}
}

// redactedRequest copies a request with the PAN reduced to its last four
// digits. The full card number exists only inside the check pipeline; results
// carry the masked form into the audit trail, observers and responses.
func redactedRequest(req *Request) Request {
	out := *req
	out.CardNumber = maskPAN(out.CardNumber)
	return out
}

func maskPAN(pan string) string {
	if len(pan) <= 4 {
		return pan
	}
	return strings.Repeat("*", len(pan)-4) + pan[len(pan)-4:]
}

// ReleaseHolds clears the account's approved-but-unposted total. Called when
// the account read model is refreshed from the posting platform: the new
// balance already reflects the posted activity the holds were standing in for.
func (e *Engine) ReleaseHolds(accountID string) {
	e.holds.Reset(accountID)
}

// decisionTime anchors window and time-of-day semantics on the transaction
// timestamp when the caller supplies one (batch replay of historical files),
// falling back to the wall clock for live traffic.
func (e *Engine) decisionTime(req *Request) time.Time {
	if !req.Timestamp.IsZero() {
		return req.Timestamp
	}
	return e.clock()
}

func (e *Engine) declined(req *Request, reason Reason, score string) *Result {
	return &Result{
		ID:        idgen.WithPrefix("auth_"),
		Decision:  DecisionDeclined,
		Reason:    reason,
		Message:   reason.Message(),
		Request:   redactedRequest(req),
		RiskScore: score,
		DecidedAt: e.clock(),
	}
}

// finish records metrics and hands the result to the audit trail and
// observers. Everything here is side-channel: it observes the decision but
// cannot change or delay it.
func (e *Engine) finish(ctx context.Context, res *Result, started time.Time) *Result {
	metrics.ObserveDecision(string(res.Decision), string(res.Reason), time.Since(started))

	if e.audit != nil {
		go func() {
			if err := e.audit.Record(context.WithoutCancel(ctx), res); err != nil {
				e.logger.Warn("decision audit record failed", "decision_id", res.ID, "error", err)
			}
		}()
	}
	if e.notify != nil {
		go e.notify(res)
	}
	return res
}
