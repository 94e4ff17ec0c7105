// Command replay runs a recorded bid log through a pacing engine and prints
// how the budget would have been delivered. Notifications are settled with a
// configurable delay and win rate, approximating a live exchange.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrickwarner/openpacer/internal/observability"
	"github.com/patrickwarner/openpacer/internal/pacing"
)

var (
	logPath    string
	budget     float64
	startDate  string
	endDate    string
	winRate    float64
	notifDelay time.Duration
	seed       int64
	verbose    bool
)

var logger *zap.Logger

type pendingNotif struct {
	id  string
	due time.Time
}

func main() {
	flag.StringVar(&logPath, "log", "", "bid log CSV: timestamp,timezone,cpm,imps")
	flag.Float64Var(&budget, "budget", 10000, "total campaign budget")
	flag.StringVar(&startDate, "start", "", "campaign start date (YYYY-MM-DD)")
	flag.StringVar(&endDate, "end", "", "campaign end date (YYYY-MM-DD)")
	flag.Float64Var(&winRate, "win-rate", 0.8, "probability a bought opportunity wins its auction")
	flag.DurationVar(&notifDelay, "notif-delay", 30*time.Second, "delay between a buy and its notification")
	flag.Int64Var(&seed, "seed", 1, "random seed for auction outcomes")
	flag.BoolVar(&verbose, "verbose", false, "log every decision")
	flag.Parse()

	var err error
	logger, err = observability.InitLoggerWithService("replay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if logPath == "" || startDate == "" || endDate == "" {
		logger.Fatal("missing required flags: -log, -start, -end")
	}

	if err := replay(); err != nil {
		logger.Fatal("replay failed", zap.Error(err))
	}
}

func replay() error {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return fmt.Errorf("parse start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return fmt.Errorf("parse end date: %w", err)
	}

	engine, err := pacing.NewEngine(budget, start, end)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	f, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	rng := rand.New(rand.NewSource(seed))
	reader := csv.NewReader(f)

	var (
		seen, bought, rejected int
		wins, losses           int
		pending                []pendingNotif
	)

	settleDue := func(now time.Time) {
		kept := pending[:0]
		for _, n := range pending {
			if n.due.After(now) {
				kept = append(kept, n)
				continue
			}
			outcome := pacing.OutcomeLose
			if rng.Float64() < winRate {
				outcome = pacing.OutcomeWin
			}
			if err := engine.Reconcile(n.id, outcome); err != nil {
				logger.Warn("reconcile", zap.Error(err), zap.String("id", n.id))
				continue
			}
			if outcome == pacing.OutcomeWin {
				wins++
			} else {
				losses++
			}
		}
		pending = kept
	}

	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read line %d: %w", line, err)
		}
		if len(record) != 4 {
			return fmt.Errorf("line %d: expected 4 fields, got %d", line, len(record))
		}

		ts, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			return fmt.Errorf("line %d: parse timestamp: %w", line, err)
		}
		tz := record[1]
		cpm, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return fmt.Errorf("line %d: parse cpm: %w", line, err)
		}
		imps, err := strconv.Atoi(record[3])
		if err != nil {
			return fmt.Errorf("line %d: parse imps: %w", line, err)
		}

		settleDue(ts)

		id := uuid.NewString()
		price := float64(imps) * cpm / 1000
		res, err := engine.Decide(ts, tz, price, imps, id)
		if err != nil {
			rejected++
			if verbose {
				logger.Info("rejected", zap.Time("ts", ts), zap.String("tz", tz), zap.Error(err))
			}
			continue
		}
		seen++
		if res.Buying {
			bought++
			pending = append(pending, pendingNotif{id: id, due: ts.Add(notifDelay)})
		}
		if verbose {
			logger.Info("decision",
				zap.Time("ts", ts),
				zap.String("tz", tz),
				zap.Bool("buying", res.Buying),
				zap.Float64("remaining", res.Remaining),
				zap.Float64("objective", res.Objective))
		}
	}

	// Settle whatever is still in flight.
	settleDue(time.Unix(1<<62, 0))

	fmt.Printf("opportunities: %d (rejected %d)\n", seen, rejected)
	fmt.Printf("bought:        %d (%.1f%%)\n", bought, pct(bought, seen))
	fmt.Printf("wins/losses:   %d/%d\n", wins, losses)
	fmt.Printf("total spent:   %.2f of %.2f\n", engine.TotalSpent(), engine.TotalBudget())
	for tz, status := range engine.Performance() {
		fmt.Printf("  %-24s spent %10.2f remaining %10.2f\n", tz, status.Spent, status.Remaining)
	}
	return nil
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}
