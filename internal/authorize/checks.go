package authorize

import (
	"strings"

	"github.com/cardcore/authd/internal/account"
	"github.com/cardcore/authd/internal/money"
	"github.com/cardcore/authd/internal/refdata"
)

// CheckResult is the tagged pass/fail value returned by every check. The
// legacy engine threaded a shared mutable status flag through its edits;
// here each check is a pure function and the aggregator short-circuits on
// the first failure.
type CheckResult struct {
	OK     bool
	Reason Reason
}

func pass() CheckResult {
	return CheckResult{OK: true, Reason: ReasonNone}
}

func fail(reason Reason) CheckResult {
	return CheckResult{Reason: reason}
}

// checkBlacklist rejects known-bad card numbers and merchants. Evaluated
// first: it is the cheapest check and the most decisive — a blacklisted card
// is declined for every amount, including 0.01.
func checkBlacklist(req *Request, ref *refdata.Snapshot) CheckResult {
	if ref.CardBlacklisted(req.CardNumber) {
		return fail(ReasonCardBlacklisted)
	}
	if req.MerchantID != "" && ref.MerchantBlacklisted(req.MerchantID) {
		return fail(ReasonMerchantBlacklisted)
	}
	return pass()
}

// checkMerchantPolicy enforces disallowed merchant categories and
// keyword-flagged merchant names. A missing merchant identifier is itself a
// required-field failure.
func checkMerchantPolicy(req *Request, ref *refdata.Snapshot) CheckResult {
	if strings.TrimSpace(req.MerchantID) == "" {
		return fail(ReasonMerchantMissing)
	}
	if ref.CategoryBlocked(req.CategoryCode) {
		return fail(ReasonCategoryBlocked)
	}
	if ref.KeywordMatch(req.MerchantName) != "" {
		return fail(ReasonCategoryBlocked)
	}
	return pass()
}

// checkCredit validates the requested amount against available credit and
// account status. Available credit is the read-model headroom minus amounts
// already approved here but not yet posted upstream. The boundary is
// inclusive: amount == available passes. available <= 0 fails regardless of
// amount.
func checkCredit(req *Request, acct *account.Account, holds money.Amount) CheckResult {
	if !acct.Active {
		return fail(ReasonAccountNotActive)
	}
	available := acct.Available().Sub(holds)
	if available.Sign() <= 0 {
		return fail(ReasonInsufficientCredit)
	}
	if req.Amount.GreaterThan(available) {
		return fail(ReasonInsufficientCredit)
	}
	return pass()
}

// validateRequest rejects malformed requests before any stateful work.
// Validation failures are returned as structured declines, never as faults.
func validateRequest(req *Request) CheckResult {
	if strings.TrimSpace(req.AccountID) == "" {
		return fail(ReasonInvalidRequest)
	}
	if strings.TrimSpace(req.CardNumber) == "" {
		return fail(ReasonInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return fail(ReasonInvalidRequest)
	}
	return pass()
}
