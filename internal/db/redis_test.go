package db

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func testRedis(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rs, err := InitRedis(mr.Addr())
	if err != nil {
		t.Fatalf("init redis: %v", err)
	}
	t.Cleanup(rs.Close)
	return rs
}

func TestDecisionCounters(t *testing.T) {
	rs := testRedis(t)
	ts := time.Date(2020, 7, 9, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := rs.IncrementDecision(7, true, ts); err != nil {
			t.Fatalf("increment buy: %v", err)
		}
	}
	if err := rs.IncrementDecision(7, false, ts); err != nil {
		t.Fatalf("increment skip: %v", err)
	}

	buys, skips := rs.GetDecisionCounts(7, ts)
	if buys != 3 || skips != 1 {
		t.Errorf("expected 3 buys and 1 skip, got %d and %d", buys, skips)
	}

	// Another line item and another day stay isolated.
	otherBuys, _ := rs.GetDecisionCounts(8, ts)
	if otherBuys != 0 {
		t.Errorf("expected no buys for line item 8, got %d", otherBuys)
	}
	nextBuys, _ := rs.GetDecisionCounts(7, ts.AddDate(0, 0, 1))
	if nextBuys != 0 {
		t.Errorf("expected no buys on the next day, got %d", nextBuys)
	}
}

func TestSpendAccumulation(t *testing.T) {
	rs := testRedis(t)
	ts := time.Date(2020, 7, 9, 12, 0, 0, 0, time.UTC)

	if err := rs.AddSpend(7, "America/New_York", 0.5, ts); err != nil {
		t.Fatalf("add spend: %v", err)
	}
	if err := rs.AddSpend(7, "America/New_York", 0.25, ts); err != nil {
		t.Fatalf("add spend: %v", err)
	}

	if got := rs.GetSpend(7, "America/New_York", ts); got != 0.75 {
		t.Errorf("expected spend 0.75, got %v", got)
	}
	if got := rs.GetSpend(7, "Europe/Paris", ts); got != 0 {
		t.Errorf("expected zero spend for other timezone, got %v", got)
	}
}

func TestCountersExpire(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rs, err := InitRedis(mr.Addr())
	if err != nil {
		t.Fatalf("init redis: %v", err)
	}
	t.Cleanup(rs.Close)

	ts := time.Date(2020, 7, 9, 12, 0, 0, 0, time.UTC)
	if err := rs.IncrementDecision(7, true, ts); err != nil {
		t.Fatalf("increment: %v", err)
	}

	mr.FastForward(49 * time.Hour)
	buys, _ := rs.GetDecisionCounts(7, ts)
	if buys != 0 {
		t.Errorf("expected counter expired after TTL, got %d", buys)
	}
}
