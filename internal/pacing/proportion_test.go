package pacing

import (
	"math"
	"testing"
	"time"
)

func TestEstimateProfileEmptyHistoryIsUniform(t *testing.T) {
	prof := estimateProfile(nil)
	if !prof.uniform {
		t.Fatal("expected uniform profile for empty history")
	}
	if got := prof.share(13, 2); math.Abs(got-1.0/24) > 1e-12 {
		t.Errorf("expected uniform share 1/24, got %v", got)
	}
}

func TestEstimateProfilePartialHourCoverageIsUniform(t *testing.T) {
	base := time.Date(2020, 7, 9, 0, 0, 0, 0, time.UTC)
	var samples []impressionSample
	for h := 0; h < 12; h++ {
		samples = append(samples, impressionSample{ts: base.Add(time.Duration(h) * time.Hour), imps: 10})
	}
	prof := estimateProfile(samples)
	if !prof.uniform {
		t.Fatal("expected uniform profile when not all hours are covered")
	}
}

func TestEstimateProfileHourOnly(t *testing.T) {
	// Two days of traffic covering every hour but not every weekday. Volume
	// grows with the hour so late hours must receive a larger share.
	var samples []impressionSample
	for d := 0; d < 2; d++ {
		day := time.Date(2020, 7, 9+d, 0, 0, 0, 0, time.UTC)
		for h := 0; h < 24; h++ {
			samples = append(samples, impressionSample{ts: day.Add(time.Duration(h) * time.Hour), imps: h + 1})
		}
	}

	prof := estimateProfile(samples)
	if prof.uniform {
		t.Fatal("expected fitted profile")
	}
	if prof.byWeekday {
		t.Fatal("expected no weekday detail with only two weekdays observed")
	}

	sum := 0.0
	for h := 0; h < 24; h++ {
		sum += prof.hours[h]
	}
	if math.Abs(sum-100) > 1e-6 {
		t.Errorf("hour shares should sum to 100, got %v", sum)
	}
	if prof.share(23, 0) <= prof.share(0, 0) {
		t.Errorf("expected hour 23 share above hour 0: %v vs %v", prof.share(23, 0), prof.share(0, 0))
	}
}

func TestEstimateProfileWithWeekdayDetail(t *testing.T) {
	// A full week covering every hour and weekday, with weekend volume
	// doubled on top of an hourly ramp.
	var samples []impressionSample
	for d := 0; d < 7; d++ {
		day := time.Date(2020, 7, 6+d, 0, 0, 0, 0, time.UTC) // 2020-07-06 is a Monday
		boost := 1
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			boost = 2
		}
		for h := 0; h < 24; h++ {
			samples = append(samples, impressionSample{ts: day.Add(time.Duration(h) * time.Hour), imps: (h + 1) * boost})
		}
	}

	prof := estimateProfile(samples)
	if prof.uniform || !prof.byWeekday {
		t.Fatalf("expected weekday-detailed profile, got uniform=%v byWeekday=%v", prof.uniform, prof.byWeekday)
	}
	for w := 0; w < 7; w++ {
		sum := 0.0
		for h := 0; h < 24; h++ {
			sum += prof.weekdayGrid[h][w]
		}
		if math.Abs(sum-100) > 1e-6 {
			t.Errorf("weekday %d shares should sum to 100, got %v", w, sum)
		}
	}
	if prof.share(23, 3) <= prof.share(0, 3) {
		t.Errorf("expected hour 23 share above hour 0 within a weekday")
	}
}

func TestEstimateProfileSparseWeekdayCoverageKeepsHourShape(t *testing.T) {
	// Every hour and every weekday observed, but only one aggregated row per
	// hour: too few rows for the joint weekday fit. The profile must fall
	// back to the hour-only shape, not to uniform.
	var samples []impressionSample
	for h := 0; h < 24; h++ {
		day := time.Date(2020, 7, 6+h%7, 0, 0, 0, 0, time.UTC) // 2020-07-06 is a Monday
		samples = append(samples, impressionSample{ts: day.Add(time.Duration(h) * time.Hour), imps: h + 1})
	}

	prof := estimateProfile(samples)
	if prof.uniform {
		t.Fatal("expected a fitted hour shape, got uniform")
	}
	if prof.byWeekday {
		t.Fatal("expected no weekday detail from an underdetermined weekday system")
	}
	if prof.share(23, 0) <= prof.share(0, 0) {
		t.Errorf("expected hour 23 share above hour 0: %v vs %v", prof.share(23, 0), prof.share(0, 0))
	}
}

func TestSolveLinear(t *testing.T) {
	a := [][]float64{
		{2, 1},
		{1, 3},
	}
	b := []float64{5, 10}
	x, ok := solveLinear(a, b)
	if !ok {
		t.Fatal("expected solvable system")
	}
	if math.Abs(x[0]-1) > 1e-9 || math.Abs(x[1]-3) > 1e-9 {
		t.Errorf("expected solution (1,3), got %v", x)
	}
}

func TestSolveLinearSingular(t *testing.T) {
	a := [][]float64{
		{1, 2},
		{2, 4},
	}
	b := []float64{3, 6}
	if _, ok := solveLinear(a, b); ok {
		t.Fatal("expected singular system to be rejected")
	}
}
