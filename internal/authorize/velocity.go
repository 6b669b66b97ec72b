package authorize

import (
	"strings"
	"sync"
	"time"

	"github.com/cardcore/authd/internal/config"
	"github.com/cardcore/authd/internal/money"
)

// VelocityState is a snapshot of one account's velocity window. Counters are
// monotonically non-decreasing within a window and reset atomically when the
// window boundary is crossed. LastLocation/LastSeen deliberately survive the
// reset: travel implausibility does not stop at midnight.
type VelocityState struct {
	WindowStart  time.Time
	Amount       money.Amount
	Count        int
	LastLocation string
	LastSeen     time.Time
}

// VelocityConfig holds the per-account velocity limits.
type VelocityConfig struct {
	DailyAmountCap money.Amount
	DailyCountCap  int
	Window         config.WindowMode
	Location       *time.Location
	// GeoMinInterval is the minimum plausible elapsed time between two
	// transactions from materially different locations. Anything faster
	// raises the geographic-velocity flag.
	GeoMinInterval time.Duration
}

// Tracker owns the per-account velocity windows. Snapshot and Commit for the
// same account must be called under that account's critical section; the
// internal locking only guards the map against cross-account access.
type Tracker struct {
	cfg     VelocityConfig
	windows sync.Map // map[string]*accountWindow
}

type accountWindow struct {
	mu    sync.Mutex
	state VelocityState
}

// NewTracker creates a velocity tracker with the given limits.
func NewTracker(cfg VelocityConfig) *Tracker {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Tracker{cfg: cfg}
}

func (t *Tracker) window(accountID string) *accountWindow {
	v, _ := t.windows.LoadOrStore(accountID, &accountWindow{})
	return v.(*accountWindow)
}

// windowStartFor computes the start of the window containing now.
// Calendar mode anchors at local midnight; rolling mode anchors each new
// window at its first transaction.
func (t *Tracker) windowStartFor(now time.Time) time.Time {
	if t.cfg.Window == config.WindowRolling {
		return now
	}
	local := now.In(t.cfg.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, t.cfg.Location)
}

// expired reports whether a window that started at start no longer contains now.
func (t *Tracker) expired(start time.Time, now time.Time) bool {
	if start.IsZero() {
		return true
	}
	if t.cfg.Window == config.WindowRolling {
		return now.Sub(start) >= 24*time.Hour
	}
	a := start.In(t.cfg.Location)
	b := now.In(t.cfg.Location)
	return a.Year() != b.Year() || a.YearDay() != b.YearDay()
}

// Snapshot returns the account's velocity state normalized to the window
// containing now: counters from an expired window read as zero.
func (t *Tracker) Snapshot(accountID string, now time.Time) VelocityState {
	w := t.window(accountID)
	w.mu.Lock()
	st := w.state
	w.mu.Unlock()

	if t.expired(st.WindowStart, now) {
		st.WindowStart = t.windowStartFor(now)
		st.Amount = money.Zero()
		st.Count = 0
	}
	return st
}

// CheckCap enforces the daily cumulative amount and count caps against a
// velocity snapshot. Cap violations are hard declines.
func (t *Tracker) CheckCap(st VelocityState, amount money.Amount) CheckResult {
	if st.Amount.Add(amount).GreaterThan(t.cfg.DailyAmountCap) {
		return fail(ReasonDailyLimitExceeded)
	}
	if t.cfg.DailyCountCap > 0 && st.Count+1 > t.cfg.DailyCountCap {
		return fail(ReasonDailyLimitExceeded)
	}
	return pass()
}

// GeoAnomaly reports whether the transaction's location differs materially
// from the last recorded location within an implausibly short time. This is
// a soft signal consumed by the fraud scorer, not an independent decline.
func (t *Tracker) GeoAnomaly(st VelocityState, req *Request, now time.Time) bool {
	key := locationKey(req.MerchantCity, req.MerchantZip)
	if key == "" || st.LastLocation == "" || key == st.LastLocation {
		return false
	}
	return now.Sub(st.LastSeen) < t.cfg.GeoMinInterval
}

// Commit applies one approved transaction to the account's window, resetting
// counters first when the boundary has been crossed. Must be called under
// the account's critical section so the read-decide-commit sequence is
// linearizable.
func (t *Tracker) Commit(accountID string, req *Request, now time.Time) {
	w := t.window(accountID)
	w.mu.Lock()
	defer w.mu.Unlock()

	if t.expired(w.state.WindowStart, now) {
		w.state.WindowStart = t.windowStartFor(now)
		w.state.Amount = money.Zero()
		w.state.Count = 0
	}
	w.state.Amount = w.state.Amount.Add(req.Amount)
	w.state.Count++
	if key := locationKey(req.MerchantCity, req.MerchantZip); key != "" {
		w.state.LastLocation = key
		w.state.LastSeen = now
	}
}

// locationKey normalizes a merchant location to city plus 3-digit zip
// prefix. Two transactions with different keys are "materially distant" for
// geographic-velocity purposes.
func locationKey(city, zip string) string {
	city = strings.ToLower(strings.TrimSpace(city))
	zip = strings.TrimSpace(zip)
	if len(zip) > 3 {
		zip = zip[:3]
	}
	if city == "" && zip == "" {
		return ""
	}
	return city + "/" + zip
}
