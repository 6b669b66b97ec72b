package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cardcore/authd/internal/authorize"
	"github.com/cardcore/authd/internal/idgen"
)

var (
	notifyEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authd",
		Subsystem: "notify",
		Name:      "emit_total",
		Help:      "Total notification emit attempts by event type.",
	}, []string{"event_type"})

	notifyEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authd",
		Subsystem: "notify",
		Name:      "emit_errors_total",
		Help:      "Total notification emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(notifyEmitTotal, notifyEmitErrors)
}

// Emitter wraps a Dispatcher to emit decision outcomes to subscribers.
// All methods are fire-and-forget: errors are logged but never returned.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new decision emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

// EmitDecision emits a decision.approved or decision.declined event for one
// authorization result. Safe to pass directly as an engine observer.
func (e *Emitter) EmitDecision(res *authorize.Result) {
	if e == nil || e.d == nil || res == nil {
		return
	}

	eventType := EventDecisionDeclined
	if res.Approved() {
		eventType = EventDecisionApproved
	}

	e.emit(eventType, map[string]interface{}{
		"decisionId": res.ID,
		"accountId":  res.Request.AccountID,
		"decision":   string(res.Decision),
		"reason":     string(res.Reason),
		"amount":     res.Request.Amount.String(),
		"merchantId": res.Request.MerchantID,
		"riskScore":  res.RiskScore,
	})
}

func (e *Emitter) emit(eventType EventType, data map[string]interface{}) {
	notifyEmitTotal.WithLabelValues(string(eventType)).Inc()
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.d.Dispatch(ctx, event); err != nil {
		notifyEmitErrors.WithLabelValues(string(eventType)).Inc()
		e.logger.Warn("notification emit failed", "event", eventType, "error", err)
	}
}
