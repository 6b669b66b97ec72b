// Package batch replays historical transaction files through the decision
// engine. Input is JSON lines, one proposed transaction per line; each record
// carries its original timestamp, so window and time-of-day semantics follow
// the file, not the wall clock.
package batch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/cardcore/authd/internal/authorize"
	"github.com/cardcore/authd/internal/metrics"
)

// maxLineBytes bounds a single input record.
const maxLineBytes = 1 << 20

// Summary is the outcome of one replay run.
type Summary struct {
	Total    int            `json:"total"`
	Approved int            `json:"approved"`
	Declined int            `json:"declined"`
	ByReason map[string]int `json:"byReason,omitempty"`
}

// Replayer feeds records through the engine one at a time. Replay is
// single-threaded on purpose: decisions for the same account must observe
// each other's velocity commits in file order.
type Replayer struct {
	engine *authorize.Engine
	logger *slog.Logger

	// OnDecision, when set, receives every result as it is decided.
	OnDecision func(*authorize.Result)
}

// NewReplayer creates a replayer over an engine.
func NewReplayer(engine *authorize.Engine, logger *slog.Logger) *Replayer {
	return &Replayer{engine: engine, logger: logger}
}

// Run replays every record from r and returns the aggregate summary.
// A malformed line aborts the run: a partial replay of a historical file is
// worse than no replay.
func (rp *Replayer) Run(ctx context.Context, r io.Reader) (*Summary, error) {
	sum := &Summary{ByReason: make(map[string]int)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		if err := ctx.Err(); err != nil {
			metrics.BatchReplaysTotal.WithLabelValues("error").Inc()
			return sum, fmt.Errorf("batch: replay cancelled at line %d: %w", line, err)
		}

		var req authorize.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			metrics.BatchReplaysTotal.WithLabelValues("error").Inc()
			return sum, fmt.Errorf("batch: line %d: %w", line, err)
		}

		res, err := rp.engine.Authorize(ctx, &req)
		if err != nil {
			metrics.BatchReplaysTotal.WithLabelValues("error").Inc()
			return sum, fmt.Errorf("batch: line %d: %w", line, err)
		}

		sum.Total++
		if res.Approved() {
			sum.Approved++
		} else {
			sum.Declined++
			sum.ByReason[string(res.Reason)]++
		}

		if rp.OnDecision != nil {
			rp.OnDecision(res)
		}
	}
	if err := scanner.Err(); err != nil {
		metrics.BatchReplaysTotal.WithLabelValues("error").Inc()
		return sum, fmt.Errorf("batch: read input: %w", err)
	}

	metrics.BatchReplaysTotal.WithLabelValues("ok").Inc()
	rp.logger.Info("batch replay complete",
		"total", sum.Total,
		"approved", sum.Approved,
		"declined", sum.Declined,
	)
	return sum, nil
}
