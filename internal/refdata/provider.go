package refdata

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cardcore/authd/internal/metrics"
)

// Provider serves the current reference data Snapshot and reloads it in the
// background. Current() is wait-free; a failed reload keeps serving the last
// good generation.
type Provider struct {
	blacklistPath string
	policyPath    string
	interval      time.Duration
	logger        *slog.Logger

	current atomic.Pointer[Snapshot]
}

// NewProvider loads the initial snapshot and returns a provider that will
// refresh it every interval once Run is started.
func NewProvider(blacklistPath, policyPath string, interval time.Duration, logger *slog.Logger) (*Provider, error) {
	snap, err := Load(blacklistPath, policyPath)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		blacklistPath: blacklistPath,
		policyPath:    policyPath,
		interval:      interval,
		logger:        logger,
	}
	p.current.Store(snap)
	return p, nil
}

// NewStaticProvider wraps a fixed snapshot. Used by tests and batch replay.
func NewStaticProvider(snap *Snapshot) *Provider {
	p := &Provider{logger: slog.Default()}
	p.current.Store(snap)
	return p
}

// Current returns the active snapshot. Never nil.
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// Run reloads reference data on the configured interval until ctx is done.
// Call in a goroutine.
func (p *Provider) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := Load(p.blacklistPath, p.policyPath)
			if err != nil {
				metrics.RefdataReloadsTotal.WithLabelValues("error").Inc()
				p.logger.Warn("refdata reload failed, keeping previous generation", "error", err)
				continue
			}
			p.current.Store(snap)
			metrics.RefdataReloadsTotal.WithLabelValues("ok").Inc()
			p.logger.Info("refdata reloaded",
				"card_prefixes", len(snap.cardPrefixes),
				"merchant_ids", len(snap.merchantIDs),
				"blocked_categories", len(snap.categories),
				"blocked_keywords", len(snap.keywords),
			)
		}
	}
}
