package analytics

import (
	"context"
	"sync"
)

var _ AnalyticsService = (*MockAnalytics)(nil)

// MockAnalytics records pacing events in memory for tests.
type MockAnalytics struct {
	mu            sync.Mutex
	Decisions     []DecisionRecord
	Notifications []DecisionRecord
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordDecision captures a decision event in memory.
func (m *MockAnalytics) RecordDecision(ctx context.Context, lineItemID int, tz, opportunityID string, price float64, imps int, buying bool, objective, remaining, engaged float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b uint8
	if buying {
		b = 1
	}
	m.Decisions = append(m.Decisions, DecisionRecord{
		EventType:     "decision",
		LineItemID:    int32(lineItemID),
		Timezone:      &tz,
		OpportunityID: opportunityID,
		Price:         price,
		Imps:          int32(imps),
		Buying:        b,
		Objective:     objective,
		Remaining:     remaining,
		Engaged:       engaged,
	})
}

// RecordNotification captures a notification event in memory.
func (m *MockAnalytics) RecordNotification(ctx context.Context, lineItemID int, opportunityID, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, DecisionRecord{
		EventType:     "notification",
		LineItemID:    int32(lineItemID),
		OpportunityID: opportunityID,
		Outcome:       &outcome,
	})
}

// DecisionCount returns how many decision events were recorded.
func (m *MockAnalytics) DecisionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Decisions)
}

// NotificationCount returns how many notification events were recorded.
func (m *MockAnalytics) NotificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Notifications)
}
