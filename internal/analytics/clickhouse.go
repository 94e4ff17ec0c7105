package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// AnalyticsService defines the interface for the pacing event log.
// Implementations should handle cases where underlying storage is unavailable
// by returning ErrUnavailable.
type AnalyticsService interface {
	// RecordDecision appends one bid-decision row.
	RecordDecision(ctx context.Context, lineItemID int, tz, opportunityID string, price float64, imps int, buying bool, objective, remaining, engaged float64)
	// RecordNotification appends one win/lose notification row.
	RecordNotification(ctx context.Context, lineItemID int, opportunityID, outcome string)
}

// Analytics wraps a ClickHouse DB connection holding the append-only
// pacing_events table used for offline analysis of pacing behaviour.
type Analytics struct {
	DB *sql.DB
}

// DecisionRecord mirrors a row in the pacing_events table.
type DecisionRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	LineItemID    int32     `json:"line_item_id"`
	Timezone      *string   `json:"timezone"`
	OpportunityID string    `json:"opportunity_id"`
	Price         float64   `json:"price"`
	Imps          int32     `json:"imps"`
	Buying        uint8     `json:"buying"`
	Outcome       *string   `json:"outcome"`
	Objective     float64   `json:"objective"`
	Remaining     float64   `json:"remaining"`
	Engaged       float64   `json:"engaged"`
}

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	create := `CREATE TABLE IF NOT EXISTS pacing_events (
       timestamp      DateTime,
       event_type     String,
       line_item_id   Int32,
       timezone       Nullable(String),
       opportunity_id String,
       price          Float64,
       imps           Int32,
       buying         UInt8,
       outcome        Nullable(String),
       objective      Float64,
       remaining      Float64,
       engaged        Float64
   ) ENGINE=MergeTree() ORDER BY (line_item_id, timestamp)`
	if _, err := db.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db}, nil
}

// RecordDecision appends a bid-decision row. Failures are logged, not
// surfaced; the event log must never block the decision path.
func (a *Analytics) RecordDecision(ctx context.Context, lineItemID int, tz, opportunityID string, price float64, imps int, buying bool, objective, remaining, engaged float64) {
	if a == nil || a.DB == nil {
		return
	}
	var b uint8
	if buying {
		b = 1
	}
	stmt := `INSERT INTO pacing_events (timestamp, event_type, line_item_id, timezone, opportunity_id, price, imps, buying, outcome, objective, remaining, engaged) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, time.Now(), "decision", int32(lineItemID), tz, opportunityID, price, int32(imps), b, nil, objective, remaining, engaged); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", "decision"))
	}
}

// RecordNotification appends a win/lose notification row.
func (a *Analytics) RecordNotification(ctx context.Context, lineItemID int, opportunityID, outcome string) {
	if a == nil || a.DB == nil {
		return
	}
	stmt := `INSERT INTO pacing_events (timestamp, event_type, line_item_id, timezone, opportunity_id, price, imps, buying, outcome, objective, remaining, engaged) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, time.Now(), "notification", int32(lineItemID), nil, opportunityID, 0.0, int32(0), uint8(0), outcome, 0.0, 0.0, 0.0); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", "notification"))
	}
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}

// EventsByLineItem returns all pacing events for a line item ordered by time.
func (a *Analytics) EventsByLineItem(id int) ([]DecisionRecord, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT timestamp, event_type, line_item_id, timezone, opportunity_id, price, imps, buying, outcome, objective, remaining, engaged FROM pacing_events WHERE line_item_id=? ORDER BY timestamp`
	rows, err := a.DB.QueryContext(context.Background(), query, int32(id))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []DecisionRecord
	for rows.Next() {
		var ev DecisionRecord
		if err := rows.Scan(&ev.Timestamp, &ev.EventType, &ev.LineItemID, &ev.Timezone, &ev.OpportunityID, &ev.Price, &ev.Imps, &ev.Buying, &ev.Outcome, &ev.Objective, &ev.Remaining, &ev.Engaged); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}
