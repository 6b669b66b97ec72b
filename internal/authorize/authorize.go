// Package authorize implements the real-time transaction authorization and
// fraud-risk decision engine.
//
// Every proposed transaction runs through a fixed pipeline of checks —
// blacklist, merchant policy, credit availability, velocity, fraud scoring —
// under a per-account exclusive section, producing exactly one of two
// terminal outcomes: APPROVED or DECLINED(reason). A decision is a pure
// function of the request, the account snapshot, the velocity snapshot and
// the reference data generation; the only state the engine itself mutates is
// the per-account velocity window and hold ledger, and only inside the
// critical section.
package authorize

import (
	"context"
	"time"

	"github.com/cardcore/authd/internal/money"
	"github.com/cardcore/authd/internal/pagination"
)

// Decision is the terminal outcome of an authorization.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDeclined Decision = "declined"
)

// Reason is a stable decline reason code. The set is closed: every decline
// carries exactly one of these, never free text.
type Reason string

const (
	ReasonNone                Reason = "none"
	ReasonInvalidRequest      Reason = "invalid_request"
	ReasonMerchantMissing     Reason = "merchant_missing"
	ReasonCardBlacklisted     Reason = "card_blacklisted"
	ReasonMerchantBlacklisted Reason = "merchant_blacklisted"
	ReasonCategoryBlocked     Reason = "category_blocked"
	ReasonAccountNotActive    Reason = "account_not_active"
	ReasonInsufficientCredit  Reason = "insufficient_credit"
	ReasonDailyLimitExceeded  Reason = "daily_limit_exceeded"
	ReasonFraudSuspected      Reason = "fraud_suspected"
	ReasonSystemBusy          Reason = "system_busy"
	ReasonUnableToVerify      Reason = "unable_to_verify"
)

// Message returns the human-readable message template for a reason.
func (r Reason) Message() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonInvalidRequest:
		return "malformed or missing required field"
	case ReasonMerchantMissing:
		return "merchant id is required"
	case ReasonCardBlacklisted:
		return "card is blacklisted"
	case ReasonMerchantBlacklisted:
		return "merchant is blacklisted"
	case ReasonCategoryBlocked:
		return "merchant category not allowed"
	case ReasonAccountNotActive:
		return "account not active"
	case ReasonInsufficientCredit:
		return "insufficient available credit"
	case ReasonDailyLimitExceeded:
		return "daily limit exceeded"
	case ReasonFraudSuspected:
		return "fraud pattern detected"
	case ReasonSystemBusy:
		return "system busy"
	case ReasonUnableToVerify:
		return "unable to verify account"
	default:
		return "declined"
	}
}

// Request is a proposed transaction. Immutable once submitted.
type Request struct {
	CardNumber   string       `json:"cardNumber"`
	AccountID    string       `json:"accountId"`
	Amount       money.Amount `json:"amount"`
	Timestamp    time.Time    `json:"timestamp"`
	TypeCode     string       `json:"typeCode"`
	CategoryCode string       `json:"categoryCode"`
	MerchantID   string       `json:"merchantId"`
	MerchantName string       `json:"merchantName"`
	MerchantCity string       `json:"merchantCity"`
	MerchantZip  string       `json:"merchantZip"`
	Channel      string       `json:"channel"`
}

// Result is the authorization outcome returned to the caller and recorded
// for audit. Created once per request, never mutated.
type Result struct {
	ID        string    `json:"id"`
	Decision  Decision  `json:"decision"`
	Reason    Reason    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	Request   Request   `json:"request"`
	RiskScore string    `json:"riskScore,omitempty"` // decimal string, e.g. "0.425"
	DecidedAt time.Time `json:"decidedAt"`
}

// Approved reports whether the result is an approval.
func (r *Result) Approved() bool {
	return r.Decision == DecisionApproved
}

// Store persists decision results for the audit trail. Listing is newest
// first; a non-nil cursor resumes past the (decidedAt, id) position of a
// previous page.
type Store interface {
	Record(ctx context.Context, res *Result) error
	ListByAccount(ctx context.Context, accountID string, limit int, before *pagination.Cursor) ([]*Result, error)
}
