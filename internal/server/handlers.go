package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cardcore/authd/internal/account"
	"github.com/cardcore/authd/internal/authorize"
	"github.com/cardcore/authd/internal/logging"
	"github.com/cardcore/authd/internal/money"
	"github.com/cardcore/authd/internal/notify"
	"github.com/cardcore/authd/internal/pagination"
	"github.com/cardcore/authd/internal/security"
	"github.com/cardcore/authd/internal/validation"
)

// -----------------------------------------------------------------------------
// Info & health
// -----------------------------------------------------------------------------

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "authd",
		"version": "1.0.0",
		"endpoints": gin.H{
			"authorize":     "POST /v1/authorize",
			"decisions":     "GET /v1/accounts/:id/decisions",
			"accounts":      "GET|PUT /v1/accounts/:id",
			"subscriptions": "POST|GET /v1/subscriptions, DELETE /v1/subscriptions/:subId",
			"feed":          "GET /ws/decisions",
			"health":        "GET /health",
			"metrics":       "GET /metrics",
		},
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())

	status := "healthy"
	code := http.StatusOK
	if !healthy || !s.healthy.Load() {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"checks":    statuses,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if s.healthy.Load() {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "dead"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if s.ready.Load() {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
}

func (s *Server) feedStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.feedHub.Stats())
}

// -----------------------------------------------------------------------------
// Authorization
// -----------------------------------------------------------------------------

// authorizeRequest is the wire shape of a proposed transaction. The amount is
// a decimal string; binary floats never touch money.
type authorizeRequest struct {
	CardNumber   string     `json:"cardNumber"`
	AccountID    string     `json:"accountId"`
	Amount       string     `json:"amount"`
	Timestamp    *time.Time `json:"timestamp,omitempty"` // optional; historical replay only
	TypeCode     string     `json:"typeCode"`
	CategoryCode string     `json:"categoryCode"`
	MerchantID   string     `json:"merchantId"`
	MerchantName string     `json:"merchantName"`
	MerchantCity string     `json:"merchantCity"`
	MerchantZip  string     `json:"merchantZip"`
	Channel      string     `json:"channel"`
}

// authorizeHandler handles POST /v1/authorize
func (s *Server) authorizeHandler(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	// Syntactic validation happens at the edge; everything past this point
	// is a structured decision, never a transport error. The card check is
	// shape only: a PAN with a bad check digit still gets a decision, so a
	// blacklisted prefix declines as blacklisted rather than erroring.
	if errs := validation.Validate(
		validation.Required("accountId", req.AccountID),
		validation.Required("amount", req.Amount),
		validation.ValidCardFormat("cardNumber", req.CardNumber),
		validation.ValidAmount("amount", req.Amount),
		validation.MaxLength("merchantName", req.MerchantName, validation.MaxStringLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"fields":  errs,
		})
		return
	}
	if !validation.IsValidAccountID(req.AccountID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "accountId must be 1-64 characters (alphanumeric, dash, underscore)",
		})
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "amount is not a valid decimal",
		})
		return
	}

	areq := &authorize.Request{
		CardNumber:   req.CardNumber,
		AccountID:    req.AccountID,
		Amount:       amount,
		TypeCode:     req.TypeCode,
		CategoryCode: validation.SanitizeString(req.CategoryCode, 4),
		MerchantID:   validation.SanitizeString(req.MerchantID, validation.MaxStringLength),
		MerchantName: validation.SanitizeString(req.MerchantName, validation.MaxStringLength),
		MerchantCity: validation.SanitizeString(req.MerchantCity, validation.MaxStringLength),
		MerchantZip:  validation.SanitizeString(req.MerchantZip, 10),
		Channel:      req.Channel,
	}
	if req.Timestamp != nil {
		areq.Timestamp = *req.Timestamp
	}

	res, err := s.engine.Authorize(c.Request.Context(), areq)
	if err != nil {
		logging.L(c.Request.Context()).Error("authorization failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to process authorization",
		})
		return
	}

	c.JSON(http.StatusOK, maskedResult(res))
}

// maskedResult copies a decision with the PAN masked. Full card numbers never
// leave the service.
func maskedResult(res *authorize.Result) *authorize.Result {
	out := *res
	out.Request.CardNumber = validation.MaskCardNumber(out.Request.CardNumber)
	return &out
}

// listDecisionsHandler handles GET /v1/accounts/:id/decisions
func (s *Server) listDecisionsHandler(c *gin.Context) {
	accountID := c.Param("id")

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be between 1 and 200",
			})
			return
		}
		limit = n
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "malformed cursor",
		})
		return
	}

	// Fetch one past the page to learn whether more exist.
	results, err := s.decisions.ListByAccount(c.Request.Context(), accountID, limit+1, cursor)
	if err != nil {
		logging.L(c.Request.Context()).Error("decision list failed", "account_id", accountID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list decisions",
		})
		return
	}

	results, nextCursor, hasMore := pagination.ComputePage(results, limit, func(res *authorize.Result) (time.Time, string) {
		return res.DecidedAt, res.ID
	})

	masked := make([]*authorize.Result, len(results))
	for i, res := range results {
		masked[i] = maskedResult(res)
	}

	c.JSON(http.StatusOK, gin.H{
		"accountId":  accountID,
		"decisions":  masked,
		"count":      len(masked),
		"nextCursor": nextCursor,
		"hasMore":    hasMore,
	})
}

// -----------------------------------------------------------------------------
// Accounts (read model seeding and ops tooling)
// -----------------------------------------------------------------------------

func (s *Server) getAccountHandler(c *gin.Context) {
	id := c.Param("id")

	acct, err := s.accounts.Get(c.Request.Context(), id)
	if err == account.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Account not found",
		})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("account get failed", "account_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "get_failed",
			"message": "Failed to load account",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account":   acct,
		"available": acct.Available(),
	})
}

type putAccountRequest struct {
	Balance      money.Amount `json:"balance"`
	CreditLimit  money.Amount `json:"creditLimit"`
	CashLimit    money.Amount `json:"cashLimit"`
	Active       bool         `json:"active"`
	CycleCredits money.Amount `json:"cycleCredits"`
	CycleDebits  money.Amount `json:"cycleDebits"`
}

func (s *Server) putAccountHandler(c *gin.Context) {
	id := c.Param("id")

	var req putAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	acct := &account.Account{
		ID:           id,
		Balance:      req.Balance,
		CreditLimit:  req.CreditLimit,
		CashLimit:    req.CashLimit,
		Active:       req.Active,
		CycleCredits: req.CycleCredits,
		CycleDebits:  req.CycleDebits,
	}

	if err := s.accounts.Put(c.Request.Context(), acct); err != nil {
		logging.L(c.Request.Context()).Error("account put failed", "account_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "put_failed",
			"message": "Failed to store account",
		})
		return
	}

	// The refreshed balance reflects posted activity; the engine's
	// approved-but-unposted holds for this account are superseded.
	s.engine.ReleaseHolds(id)

	c.JSON(http.StatusOK, gin.H{"account": acct})
}

// -----------------------------------------------------------------------------
// Notification subscriptions
// -----------------------------------------------------------------------------

type createSubscriptionRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events" binding:"required"`
}

// createSubscriptionHandler handles POST /v1/subscriptions
func (s *Server) createSubscriptionHandler(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if err := security.ValidateEndpointURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_url",
			"message": err.Error(),
		})
		return
	}

	events := make([]notify.EventType, 0, len(req.Events))
	for _, e := range req.Events {
		et := notify.EventType(e)
		if et != notify.EventDecisionApproved && et != notify.EventDecisionDeclined {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_event",
				"message": "Unknown event type: " + e,
			})
			return
		}
		events = append(events, et)
	}

	secret := generateSecret()
	sub := &notify.Subscription{
		ID:        generateSubscriptionID(),
		URL:       req.URL,
		Secret:    secret,
		Events:    events,
		Active:    true,
		CreatedAt: time.Now(),
	}

	if err := s.notifyStore.Create(c.Request.Context(), sub); err != nil {
		logging.L(c.Request.Context()).Error("subscription create failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "create_failed",
			"message": "Failed to create subscription",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"subscription": sub,
		"secret":       secret, // Only shown once!
		"usage": gin.H{
			"signature": "Verify with HMAC-SHA256(payload, secret)",
			"header":    "X-Authd-Signature",
		},
	})
}

// listSubscriptionsHandler handles GET /v1/subscriptions
func (s *Server) listSubscriptionsHandler(c *gin.Context) {
	subs, err := s.notifyStore.List(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("subscription list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list subscriptions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// deleteSubscriptionHandler handles DELETE /v1/subscriptions/:subId
func (s *Server) deleteSubscriptionHandler(c *gin.Context) {
	if err := s.notifyStore.Delete(c.Request.Context(), c.Param("subId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "delete_failed",
			"message": "Failed to delete subscription",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func generateSubscriptionID() string {
	b := make([]byte, 12)
	rand.Read(b)
	return "sub_" + hex.EncodeToString(b)
}

func generateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
