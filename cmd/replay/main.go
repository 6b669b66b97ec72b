// Command replay feeds a historical transaction file (JSON lines, one
// proposed transaction per line) through the decision engine and prints a
// summary. Records carry their own timestamps, so two runs over the same
// file and the same account data produce identical decisions.
//
// Usage:
//
//	replay -input transactions.jsonl
//	cat transactions.jsonl | replay
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/cardcore/authd/internal/account"
	"github.com/cardcore/authd/internal/authorize"
	"github.com/cardcore/authd/internal/batch"
	"github.com/cardcore/authd/internal/config"
	"github.com/cardcore/authd/internal/logging"
	"github.com/cardcore/authd/internal/money"
	"github.com/cardcore/authd/internal/refdata"
)

func main() {
	input := flag.String("input", "", "transaction file (JSON lines); reads stdin when empty")
	verbose := flag.Bool("verbose", false, "print every decision")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	var r io.Reader = os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open input:", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var accounts account.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open database:", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		accounts = account.NewPostgresStore(db)
	} else {
		accounts = account.NewMemoryStore()
		logger.Warn("no DATABASE_URL set, replaying against an empty in-memory account store")
	}

	provider, err := refdata.NewProvider(cfg.BlacklistPath, cfg.PolicyPath, 0, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reference data:", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.VelocityTimezone)
	if err != nil {
		fmt.Fprintln(os.Stderr, "velocity timezone:", err)
		os.Exit(1)
	}

	tracker := authorize.NewTracker(authorize.VelocityConfig{
		DailyAmountCap: money.FromDecimal(cfg.DailyAmountCap),
		DailyCountCap:  cfg.DailyCountCap,
		Window:         cfg.VelocityWindow,
		Location:       loc,
		GeoMinInterval: cfg.GeoMinInterval,
	})
	scorer := authorize.NewScorer(authorize.FraudConfig{
		Threshold:       cfg.FraudThreshold,
		WeightAmount:    cfg.WeightAmount,
		WeightCategory:  cfg.WeightCategory,
		WeightGeo:       cfg.WeightGeo,
		WeightTimeOfDay: cfg.WeightTimeOfDay,
		AmountFloor:     money.FromDecimal(cfg.AmountFloor),
		AmountCeil:      money.FromDecimal(cfg.AmountCeil),
		RiskyCategories: cfg.RiskyCategories,
		NightStartHour:  cfg.NightStartHour,
		NightEndHour:    cfg.NightEndHour,
		Location:        loc,
	})

	engine := authorize.NewEngine(accounts, provider, tracker, scorer, logger).
		WithLockWait(cfg.LockWait)

	rp := batch.NewReplayer(engine, logger)
	if *verbose {
		rp.OnDecision = func(res *authorize.Result) {
			fmt.Printf("%s %s %s %s %s\n",
				res.ID, res.Request.AccountID, res.Request.Amount.String(),
				res.Decision, res.Reason)
		}
	}

	sum, err := rp.Run(context.Background(), r)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(sum, "", "  ")
	fmt.Println(string(out))
}
