// Package pacing implements the budget-pacing decision engine: a set of
// per-timezone pacer state machines coordinated under a shared campaign
// budget. The engine is synchronous and in-memory; every call is a single
// atomic state transition completed in bounded time, so callers can place it
// directly on the bid request path.
package pacing

import (
	"fmt"
	"sync"
	"time"
)

// Outcome is the result of an auction for a previously bought opportunity.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
)

// Valid reports whether the outcome is one of the two known values.
func (o Outcome) Valid() bool {
	return o == OutcomeWin || o == OutcomeLose
}

// Decision is the engine's answer to a bid opportunity together with a
// snapshot of the owning partition's ledger.
type Decision struct {
	Buying        bool    `json:"buying"`
	Remaining     float64 `json:"remaining"`
	Spent         float64 `json:"spent"`
	Engaged       float64 `json:"engaged"`
	Objective     float64 `json:"objective"`
	PurchaseRatio float64 `json:"purchase_ratio"`
	// Throttled is set when this opportunity triggered an objective
	// reduction and a budget rebalance across partitions.
	Throttled bool `json:"throttled,omitempty"`
}

// PartitionStatus is a reporting snapshot of one timezone partition.
type PartitionStatus struct {
	Spent     float64 `json:"spent"`
	Remaining float64 `json:"remaining"`
}

// Engine coordinates the timezone partitions of one campaign budget. It
// creates pacers lazily as new timezones appear in traffic, splits the total
// budget evenly among them, rebalances when a partition throttles itself
// down, and routes win/lose notifications back to the owning partition.
//
// A single mutex serializes all engine calls. Opportunities for the same
// timezone must arrive in non-decreasing timestamp order; notifications may
// arrive in any order but only after their corresponding buy decision.
type Engine struct {
	mu sync.Mutex

	totalBudget float64
	start       time.Time // civil date
	end         time.Time // civil date

	partitions map[string]*pacer
	order      []string // creation order, used for stable iteration
	active     []string // partitions still eligible for surplus budget
	inFlight   map[string]string
}

// NewEngine validates the campaign window and returns an empty engine. The
// first partition created receives the full budget.
func NewEngine(totalBudget float64, start, end time.Time) (*Engine, error) {
	if totalBudget < 0 {
		return nil, ErrNegativeBudget
	}
	if start.After(end) {
		return nil, ErrInvalidWindow
	}
	return &Engine{
		totalBudget: totalBudget,
		start:       start,
		end:         end,
		partitions:  make(map[string]*pacer),
		inFlight:    make(map[string]string),
	}, nil
}

// TotalBudget returns the campaign's current total budget.
func (e *Engine) TotalBudget() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalBudget
}

// newPartition creates the pacer for a first-seen timezone. The first
// partition takes the whole budget; later ones trigger an even re-split
// across all partitions.
func (e *Engine) newPartition(tz string, loc *time.Location) *pacer {
	var p *pacer
	if len(e.partitions) == 0 {
		p = newPacer(e.totalBudget, e.start, e.end, loc)
	} else {
		share := e.totalBudget / float64(len(e.order)+1)
		p = newPacer(share, e.start, e.end, loc)
		for _, existing := range e.order {
			e.partitions[existing].reallocate(share)
		}
	}
	e.partitions[tz] = p
	e.order = append(e.order, tz)
	e.active = append(e.active, tz)
	return p
}

// Decide resolves the owning partition for an opportunity, creating it if
// the timezone is new, and runs the partition's admission state machine.
// Opportunities outside the campaign window (start of the start date through
// one day past the end date, in local time) fail with ErrOutOfWindow before
// any partition is touched.
func (e *Engine) Decide(ts time.Time, tz string, price float64, imps int, id string) (Decision, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Decision{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	local := ts.In(loc)

	sy, sm, sd := e.start.Date()
	windowStart := time.Date(sy, sm, sd, 0, 0, 0, 0, loc)
	ey, em, ed := e.end.Date()
	windowEnd := time.Date(ey, em, ed, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	if local.Before(windowStart) || local.After(windowEnd) {
		return Decision{}, ErrOutOfWindow
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.partitions[tz]
	if !ok {
		p = e.newPartition(tz, loc)
	}

	buying, proposal := p.decide(local, price, imps, id)
	if buying {
		e.inFlight[id] = tz
	}

	// Ledger snapshot before any rebalancing lowers this partition's
	// objective is what the caller acted on; read it first.
	res := Decision{
		Buying:        buying,
		Remaining:     p.remaining,
		Spent:         p.spentTotal,
		Engaged:       p.engaged,
		PurchaseRatio: p.purchaseRatio,
	}
	if proposal != nil {
		e.rebalance(p.objective, *proposal, tz)
		res.Throttled = true
	}
	res.Objective = p.objective
	return res, nil
}

// rebalance applies a throttled partition's lowered objective and spreads
// the freed budget evenly over partitions that have not throttled
// themselves. Throttled partitions are dropped from the active list so they
// never receive surplus again.
func (e *Engine) rebalance(oldObjective, newObjective float64, tz string) {
	kept := e.active[:0]
	for _, name := range e.active {
		if !e.partitions[name].throttled {
			kept = append(kept, name)
		}
	}
	e.active = kept

	e.partitions[tz].reallocate(newObjective)
	if len(e.active) == 0 {
		// Nobody left to absorb the surplus; the freed budget is retired.
		return
	}
	surplus := (oldObjective - newObjective) / float64(len(e.active))
	for _, name := range e.active {
		p := e.partitions[name]
		p.reallocate(p.objective + surplus)
	}
}

// ReconcileInfo describes a settled opportunity.
type ReconcileInfo struct {
	Timezone string
	Price    float64
}

// Reconcile routes a win/lose notification to the partition that bought the
// opportunity. Unknown ids, never bought or already reconciled, fail with
// ErrUnknownOpportunity.
func (e *Engine) Reconcile(id string, outcome Outcome) error {
	_, err := e.ReconcileDetail(id, outcome)
	return err
}

// ReconcileDetail settles an opportunity like Reconcile and reports which
// partition it belonged to and at what price it was bought.
func (e *Engine) ReconcileDetail(id string, outcome Outcome) (ReconcileInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tz, ok := e.inFlight[id]
	if !ok {
		return ReconcileInfo{}, ErrUnknownOpportunity
	}
	p := e.partitions[tz]
	price := p.ongoing[id]
	if err := p.reconcile(id, outcome); err != nil {
		return ReconcileInfo{}, err
	}
	delete(e.inFlight, id)
	return ReconcileInfo{Timezone: tz, Price: price}, nil
}

// SetTotalBudget replaces the campaign's total budget and redistributes it
// evenly across existing partitions. With no partitions yet, the new total
// is simply recorded and the first partition will receive all of it.
func (e *Engine) SetTotalBudget(newBudget float64) error {
	if newBudget < 0 {
		return ErrNegativeBudget
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalBudget = newBudget
	if len(e.order) == 0 {
		return nil
	}
	share := newBudget / float64(len(e.order))
	for _, tz := range e.order {
		e.partitions[tz].reallocate(share)
	}
	return nil
}

// Performance returns each partition's confirmed spend and its remaining
// ledger balance: the objective minus engaged and confirmed spend, floored
// at zero.
func (e *Engine) Performance() map[string]PartitionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]PartitionStatus, len(e.order))
	for _, tz := range e.order {
		p := e.partitions[tz]
		out[tz] = PartitionStatus{
			Spent:     p.spentTotal,
			Remaining: p.remaining,
		}
	}
	return out
}

// PartitionObjectives returns the current spend objective per timezone.
// Intended for tests and diagnostics.
func (e *Engine) PartitionObjectives() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]float64, len(e.order))
	for _, tz := range e.order {
		out[tz] = e.partitions[tz].objective
	}
	return out
}

// TotalSpent sums confirmed spend across partitions.
func (e *Engine) TotalSpent() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := 0.0
	for _, p := range e.partitions {
		total += p.spentTotal
	}
	return total
}
