package authorize

import (
	"sync"

	"github.com/cardcore/authd/internal/money"
)

// holdLedger tracks approved-but-unposted amounts per account. The account
// read model's balance only moves when transactions post upstream, so every
// approval must be counted here: without it, two requests each within the
// headroom could jointly exceed it.
type holdLedger struct {
	mu   sync.Mutex
	sums map[string]money.Amount
}

func newHoldLedger() *holdLedger {
	return &holdLedger{sums: make(map[string]money.Amount)}
}

// Sum returns the account's outstanding approved total.
func (l *holdLedger) Sum(accountID string) money.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sums[accountID]
}

// Add records one approved amount. Must be called under the account's
// critical section, like Tracker.Commit.
func (l *holdLedger) Add(accountID string, amount money.Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sums[accountID] = l.sums[accountID].Add(amount)
}

// Reset clears the account's outstanding total. Called when the read model
// is refreshed: a freshly posted balance supersedes the holds.
func (l *holdLedger) Reset(accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sums, accountID)
}
