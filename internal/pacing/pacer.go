package pacing

import (
	"time"
)

const (
	// momentumCoef weights the speed/acceleration momentum terms in the
	// instantaneous rate formula.
	momentumCoef = 1.0
	// throttleRatio is the purchase ratio above which a partition is
	// suspected of over-pacing.
	throttleRatio = 0.7
	// throttleShrink scales the projected spend when proposing a lower
	// objective, leaving headroom under the realized rate.
	throttleShrink = 0.85
	// throttleArmDelay is how long after the anchor opportunity the
	// throttle check becomes active.
	throttleArmDelay = 3600.0 // seconds
)

// pacer is the per-timezone pacing state machine. It derives daily and
// hourly budgets from the partition's spend objective, admits opportunities
// against a momentum-adjusted per-second rate, and reconciles provisional
// spend when win/lose notifications arrive.
//
// A pacer is not safe for concurrent use; the Engine serializes all calls.
type pacer struct {
	loc   *time.Location
	start time.Time // campaign start, local midnight
	end   time.Time // day after the campaign end date, local midnight

	buffer  []impressionSample
	profile hourlyProfile

	remainingDays int
	objective     float64
	engaged       float64
	spentTotal    float64
	remaining     float64

	currentHour     int
	budgetDaily     float64
	budgetHourly    float64
	remainingHourly float64
	surplusHour     float64
	spentHour       float64
	target          float64 // per-second budget for the current hour

	prevRate     float64
	prevVelocity float64
	speed        *movingWindow
	accel        *movingWindow

	ongoing map[string]float64

	dateKey       int
	weekday       int
	nbSeen        int
	nbBought      int
	purchaseRatio float64

	throttleArmed bool
	throttled     bool
	firstSeen     bool
	firstDay      bool
	anchorUnix    float64
}

func localDateKey(ts time.Time) int {
	y, m, d := ts.Date()
	return y*10000 + int(m)*100 + d
}

// newPacer builds a pacer for one timezone partition. startDate and endDate
// are civil dates; the partition window runs from local midnight of the
// start date through local midnight of the day after the end date.
func newPacer(objective float64, startDate, endDate time.Time, loc *time.Location) *pacer {
	sy, sm, sd := startDate.Date()
	ey, em, ed := endDate.Date()
	start := time.Date(sy, sm, sd, 0, 0, 0, 0, loc)
	end := time.Date(ey, em, ed, 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	p := &pacer{
		loc:         loc,
		start:       start,
		end:         end,
		objective:   objective,
		currentHour: -1,
		speed:       newMovingWindow(),
		accel:       newMovingWindow(),
		ongoing:     make(map[string]float64),
		profile:     uniformProfile(),
		dateKey:     localDateKey(start),
		firstSeen:   true,
		firstDay:    true,
	}
	p.remainingDays = int(end.Sub(start) / (24 * time.Hour))
	if p.remainingDays < 1 {
		p.remainingDays = 1
	}
	p.remaining = p.objective
	p.budgetDaily = p.remaining / float64(p.remainingDays)
	p.speed.Reset(start)
	p.accel.Reset(start)
	return p
}

// dayReset re-derives the daily budget and traffic profile when the first
// opportunity of a new local day arrives.
func (p *pacer) dayReset(ts time.Time) {
	p.remainingDays = int(p.end.Sub(ts)/(24*time.Hour)) + 1
	if p.remainingDays < 1 {
		p.remainingDays = 1
	}
	if len(p.buffer) > 0 {
		p.firstDay = false
	}
	p.currentHour = -1
	p.remainingHourly = 0
	p.budgetDaily = p.remaining / float64(p.remainingDays)
	p.surplusHour = 0
	p.prevRate = 0
	p.prevVelocity = 0

	y, m, d := ts.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, p.loc)
	p.speed.Reset(midnight)
	p.accel.Reset(midnight)

	p.profile = estimateProfile(p.buffer)
}

// changeHour advances the hour window by one step, carrying any unspent
// hourly budget forward proportionally across the day's remaining hours.
// Callers loop this until the pacer catches up with the opportunity's hour,
// so skipped hours still contribute their surplus.
func (p *pacer) changeHour(weekday int) {
	p.currentHour++
	remainingHours := 24 - p.currentHour
	p.surplusHour += p.remainingHourly / float64(remainingHours)
	p.budgetHourly = p.profile.share(p.currentHour, weekday)*p.budgetDaily + p.surplusHour
	p.target = p.budgetHourly / 3600
	p.spentHour = 0
	p.remainingHourly = p.budgetHourly
}

// instantaneousRate computes the admissible budget-per-second for the rest
// of the hour, adjusted by the trailing speed and acceleration of recent
// rate changes. Degenerate inputs (no time left, negative result) collapse
// to a rate of 1 rather than an error.
func (p *pacer) instantaneousRate(avgAccel, avgSpeed, remainingSecs float64) float64 {
	if remainingSecs <= 0 {
		return 1
	}
	alpha := avgAccel * momentumCoef
	rate := p.remainingHourly * (1 + alpha*avgSpeed) / remainingSecs
	if rate < 0 {
		return 1
	}
	return rate
}

// decide runs the admission state machine for one opportunity and returns
// the buy decision plus an optional lowered-objective proposal from the
// throttle check. ts must already be in the pacer's location, and calls must
// arrive in non-decreasing timestamp order.
func (p *pacer) decide(ts time.Time, price float64, imps int, id string) (bool, *float64) {
	// An exhausted partition never buys and records nothing.
	if p.remaining <= 0 {
		return false, nil
	}
	// Malformed input never wins; this is a no-buy, not an error.
	if price < 0 || imps < 0 {
		return false, nil
	}

	tsUnix := float64(ts.UnixMicro()) / 1e6
	if p.firstSeen {
		p.firstSeen = false
		p.anchorUnix = tsUnix
	}
	if tsUnix-p.anchorUnix >= throttleArmDelay {
		p.throttleArmed = true
	}

	p.weekday = int(ts.Weekday())
	if key := localDateKey(ts); key != p.dateKey {
		p.dayReset(ts)
		p.dateKey = key
	}
	// The hour window only moves forward. A timestamp behind the current
	// hour violates the ordering contract; reject it as a no-buy instead of
	// stepping the window past the end of the day.
	if ts.Hour() < p.currentHour {
		return false, nil
	}
	for ts.Hour() != p.currentHour {
		p.changeHour(p.weekday)
	}

	p.buffer = append(p.buffer, impressionSample{ts: ts, imps: imps})

	y, m, d := ts.Date()
	endOfHour := time.Date(y, m, d, ts.Hour(), 0, 0, 0, p.loc).Add(time.Hour)
	remainingSecs := endOfHour.Sub(ts).Seconds()

	avgAccel := p.accel.Mean()
	avgSpeed := p.speed.Mean()
	rate := p.instantaneousRate(avgAccel, avgSpeed, remainingSecs)

	velocity := rate - p.prevRate
	p.speed.Push(ts, velocity)
	jerk := velocity - p.prevVelocity
	p.accel.Push(ts, jerk)
	p.prevRate = rate
	p.prevVelocity = velocity

	buying := rate >= p.target && p.remainingHourly-price >= 0
	if buying {
		p.engaged += price
		p.spentHour += price
		p.nbBought++
		p.ongoing[id] = price
	}
	p.remainingHourly = p.budgetHourly - p.spentHour
	p.remaining = p.objective - (p.engaged + p.spentTotal)
	if p.remaining < 0 {
		p.remaining = 0
	}
	p.nbSeen++

	return buying, p.checkThrottle(ts)
}

// checkThrottle detects a partition that is winning too large a share of its
// traffic relative to its realized spend rate. When the projected need for
// the rest of the campaign undercuts the current objective, it proposes that
// lower objective so the coordinator can redistribute the difference. The
// trigger disarms itself and re-anchors on the triggering opportunity.
func (p *pacer) checkThrottle(ts time.Time) *float64 {
	p.purchaseRatio = float64(p.nbBought) / float64(p.nbSeen)
	if p.firstDay || !p.throttleArmed || p.purchaseRatio < throttleRatio {
		return nil
	}
	elapsed := ts.Sub(p.start).Seconds()
	if elapsed <= 0 {
		return nil
	}
	observedRate := p.spentTotal / elapsed
	remainingTime := p.end.Sub(ts).Seconds()
	projected := observedRate * remainingTime * throttleShrink
	if p.spentTotal+p.engaged < projected && projected < p.objective {
		p.throttled = true
		p.throttleArmed = false
		p.anchorUnix = float64(ts.UnixMicro()) / 1e6
		return &projected
	}
	return nil
}

// reallocate installs a new spend objective and re-scales the current hour's
// window against it. The day is not reset: the existing surplus and hour
// position carry over.
func (p *pacer) reallocate(newObjective float64) {
	p.objective = newObjective
	p.remaining = p.objective - (p.engaged + p.spentTotal)
	if p.remaining < 0 {
		p.remaining = 0
	}
	p.budgetDaily = p.remaining / float64(p.remainingDays)
	hour := p.currentHour
	if hour < 0 {
		// No opportunity seen yet today; the hour window opens on the first
		// decide call, so which share is used here is immaterial.
		hour = 23
	}
	p.budgetHourly = p.profile.share(hour, p.weekday)*p.budgetDaily + p.surplusHour
	p.target = p.budgetHourly / 3600
	p.spentHour = 0
	p.remainingHourly = p.budgetHourly
}

// reconcile settles an in-flight buy. A win converts engaged budget into
// confirmed spend; a loss releases the engaged budget and returns the price
// to the hourly allotment without counting as spend.
func (p *pacer) reconcile(id string, outcome Outcome) error {
	price, ok := p.ongoing[id]
	if !ok {
		return ErrUnknownOpportunity
	}
	switch outcome {
	case OutcomeWin:
		p.engaged -= price
		p.spentTotal += price
	case OutcomeLose:
		p.engaged -= price
		p.spentHour -= price
	}
	p.remaining = p.objective - (p.engaged + p.spentTotal)
	if p.remaining < 0 {
		p.remaining = 0
	}
	delete(p.ongoing, id)
	return nil
}
