package pacing

import (
	"math"
	"time"
)

// impressionSample is one observed bid opportunity kept for the hourly
// traffic profile regression.
type impressionSample struct {
	ts   time.Time
	imps int
}

// hourlyProfile describes the estimated share of a day's impression volume
// falling in each hour. Until a partition has seen traffic in all 24 hours
// the profile is uniform; once every weekday has been observed as well the
// profile carries independent per-weekday columns.
type hourlyProfile struct {
	uniform    bool
	byWeekday  bool
	hours      [24]float64    // percentages summing to 100
	weekdayGrid [24][7]float64 // percentages, each weekday column summing to 100
}

// share returns the fraction of the daily budget assigned to the given local
// hour (and weekday when the profile carries that detail).
func (p hourlyProfile) share(hour, weekday int) float64 {
	if p.uniform {
		return 1.0 / 24
	}
	if !p.byWeekday {
		return p.hours[hour] / 100
	}
	return p.weekdayGrid[hour][weekday] / 100
}

func uniformProfile() hourlyProfile {
	return hourlyProfile{uniform: true}
}

// estimateProfile fits the hourly traffic profile from the accumulated
// samples. The fit is an ordinary least-squares regression of summed
// impressions per (date, hour), or per (date, weekday, hour) once weekday
// detail is available, on one-hot hour and weekday indicators, solved
// directly on the normal equations.
func estimateProfile(samples []impressionSample) hourlyProfile {
	if len(samples) == 0 {
		return uniformProfile()
	}

	var hoursSeen, weekdaysSeen uint32
	for _, s := range samples {
		hoursSeen |= 1 << uint(s.ts.Hour())
		weekdaysSeen |= 1 << uint(s.ts.Weekday())
	}
	if hoursSeen != 1<<24-1 {
		return uniformProfile()
	}
	if weekdaysSeen != 1<<7-1 {
		return estimateHourly(samples)
	}
	return estimateHourlyByWeekday(samples)
}

// estimateHourly fits impressions against hour-of-day only and normalizes
// the 24 predicted values to sum to 100.
func estimateHourly(samples []impressionSample) hourlyProfile {
	type key struct{ date, hour int }
	agg := make(map[key]float64)
	for _, s := range samples {
		y, m, d := s.ts.Date()
		agg[key{date: y*10000 + int(m)*100 + d, hour: s.ts.Hour()}] += float64(s.imps)
	}

	// Design matrix: intercept plus 23 hour dummies (hour 0 is the reference).
	const p = 24
	rowFor := func(hour int) []float64 {
		row := make([]float64, p)
		row[0] = 1
		if hour > 0 {
			row[hour] = 1
		}
		return row
	}

	var rows [][]float64
	var ys []float64
	for k, v := range agg {
		rows = append(rows, rowFor(k.hour))
		ys = append(ys, v)
	}

	beta, ok := fitOLS(rows, ys, p)
	if !ok {
		return uniformProfile()
	}

	var prof hourlyProfile
	sum := 0.0
	for h := 0; h < 24; h++ {
		v := beta[0]
		if h > 0 {
			v += beta[h]
		}
		prof.hours[h] = v
		sum += v
	}
	if sum <= 0 || math.IsNaN(sum) {
		return uniformProfile()
	}
	for h := 0; h < 24; h++ {
		prof.hours[h] *= 100 / sum
	}
	return prof
}

// estimateHourlyByWeekday fits impressions against hour-of-day and weekday
// jointly (additive, no interaction) and normalizes each weekday column of
// the predicted 24x7 grid independently to sum to 100.
func estimateHourlyByWeekday(samples []impressionSample) hourlyProfile {
	type key struct{ date, weekday, hour int }
	agg := make(map[key]float64)
	for _, s := range samples {
		y, m, d := s.ts.Date()
		agg[key{
			date:    y*10000 + int(m)*100 + d,
			weekday: int(s.ts.Weekday()),
			hour:    s.ts.Hour(),
		}] += float64(s.imps)
	}

	// Intercept, 6 weekday dummies, 23 hour dummies.
	const p = 1 + 6 + 23
	rowFor := func(weekday, hour int) []float64 {
		row := make([]float64, p)
		row[0] = 1
		if weekday > 0 {
			row[weekday] = 1
		}
		if hour > 0 {
			row[6+hour] = 1
		}
		return row
	}

	var rows [][]float64
	var ys []float64
	for k, v := range agg {
		rows = append(rows, rowFor(k.weekday, k.hour))
		ys = append(ys, v)
	}

	// A weekday system that cannot be fit (too few distinct rows, or
	// singular) still has full hour coverage; degrade to the hour-only fit
	// rather than all the way to uniform.
	beta, ok := fitOLS(rows, ys, p)
	if !ok {
		return estimateHourly(samples)
	}

	prof := hourlyProfile{byWeekday: true}
	for w := 0; w < 7; w++ {
		sum := 0.0
		for h := 0; h < 24; h++ {
			v := beta[0]
			if w > 0 {
				v += beta[w]
			}
			if h > 0 {
				v += beta[6+h]
			}
			prof.weekdayGrid[h][w] = v
			sum += v
		}
		if sum <= 0 || math.IsNaN(sum) {
			return estimateHourly(samples)
		}
		for h := 0; h < 24; h++ {
			prof.weekdayGrid[h][w] *= 100 / sum
		}
	}
	return prof
}

// fitOLS solves the normal equations X'X b = X'y for the coefficient vector.
func fitOLS(rows [][]float64, ys []float64, p int) ([]float64, bool) {
	if len(rows) < p {
		return nil, false
	}
	xtx := make([][]float64, p)
	for i := range xtx {
		xtx[i] = make([]float64, p)
	}
	xty := make([]float64, p)
	for r, row := range rows {
		for i := 0; i < p; i++ {
			if row[i] == 0 {
				continue
			}
			for j := 0; j < p; j++ {
				xtx[i][j] += row[i] * row[j]
			}
			xty[i] += row[i] * ys[r]
		}
	}
	return solveLinear(xtx, xty)
}

// solveLinear performs Gaussian elimination with partial pivoting on an
// in-place copy of the system. It reports failure for singular systems.
func solveLinear(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	m := make([][]float64, n)
	for i := range m {
		m[i] = append(append([]float64(nil), a[i]...), b[i])
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return nil, false
		}
		m[col], m[pivot] = m[pivot], m[col]
		for r := col + 1; r < n; r++ {
			f := m[r][col] / m[col][col]
			if f == 0 {
				continue
			}
			for c := col; c <= n; c++ {
				m[r][c] -= f * m[col][c]
			}
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		v := m[i][n]
		for j := i + 1; j < n; j++ {
			v -= m[i][j] * x[j]
		}
		x[i] = v / m[i][i]
	}
	return x, true
}
