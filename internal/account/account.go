// Package account provides the account read model consumed by the
// authorization engine.
//
// Balances and status are owned by the external account platform (settlement
// and posting mutate them); the engine only reads a consistent snapshot per
// decision. The Store here is that read model, with the usual in-memory and
// PostgreSQL implementations.
package account

import (
	"context"
	"errors"

	"github.com/cardcore/authd/internal/money"
)

// Errors
var (
	ErrNotFound = errors.New("account: not found")
)

// Account is a point-in-time snapshot of one card account.
type Account struct {
	ID          string       `json:"id"`
	Balance     money.Amount `json:"balance"`
	CreditLimit money.Amount `json:"creditLimit"`
	CashLimit   money.Amount `json:"cashLimit"` // cash-advance sublimit
	Active      bool         `json:"active"`
	// Current-cycle accumulators, maintained by posting. Read-only here.
	CycleCredits money.Amount `json:"cycleCredits"`
	CycleDebits  money.Amount `json:"cycleDebits"`
}

// Available returns the credit currently available to authorize against:
// credit limit minus balance. May be negative when the account is over limit.
func (a *Account) Available() money.Amount {
	return a.CreditLimit.Sub(a.Balance)
}

// Store is the account read model.
type Store interface {
	// Get returns a snapshot of the account, or ErrNotFound.
	Get(ctx context.Context, id string) (*Account, error)
	// Put upserts an account. Used by seeding, admin tooling and tests;
	// the engine itself never writes accounts.
	Put(ctx context.Context, acct *Account) error
}
