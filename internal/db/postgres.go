package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/openpacer/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS campaigns (
    id INT PRIMARY KEY,
    name TEXT NOT NULL,
    total_budget DOUBLE PRECISION NOT NULL,
    start_date TIMESTAMP NOT NULL,
    end_date TIMESTAMP NOT NULL,
    line_item_count INT NOT NULL,
    initialized BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS line_items (
    id INT PRIMARY KEY,
    campaign_id INT REFERENCES campaigns(id),
    name TEXT,
    budget DOUBLE PRECISION NOT NULL,
    start_date TIMESTAMP NOT NULL,
    end_date TIMESTAMP NOT NULL,
    spend DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_line_items_campaign_id ON line_items (campaign_id);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.connection_string", dsn),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	ctx := context.Background()
	if _, err := p.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// LoadCampaigns retrieves campaigns from the database and returns them.
func (p *Postgres) LoadCampaigns() ([]models.Campaign, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT id, name, total_budget, start_date, end_date, line_item_count, initialized FROM campaigns`)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var cs []models.Campaign
	for rows.Next() {
		var c models.Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.TotalBudget, &c.StartDate, &c.EndDate, &c.LineItemCount, &c.Initialized); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cs, nil
}

// LoadLineItems retrieves line items from the database.
func (p *Postgres) LoadLineItems() ([]*models.LineItem, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT id, campaign_id, name, budget, start_date, end_date FROM line_items`)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var items []*models.LineItem
	for rows.Next() {
		var (
			id, campaignID int
			name           sql.NullString
			budget         float64
			start, end     time.Time
		)
		if err := rows.Scan(&id, &campaignID, &name, &budget, &start, &end); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, models.NewLineItem(id, campaignID, name.String, budget, start, end))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// InsertCampaign persists a campaign. Campaign ids come from the caller, not
// a sequence, so create collisions surface as constraint errors.
func (p *Postgres) InsertCampaign(c *models.Campaign) error {
	_, err := p.DB.ExecContext(context.Background(), `INSERT INTO campaigns (id, name, total_budget, start_date, end_date, line_item_count, initialized) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.Name, c.TotalBudget, c.StartDate, c.EndDate, c.LineItemCount, c.Initialized)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// InsertLineItem persists a line item under its campaign.
func (p *Postgres) InsertLineItem(li *models.LineItem) error {
	_, err := p.DB.ExecContext(context.Background(), `INSERT INTO line_items (id, campaign_id, name, budget, start_date, end_date, spend) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		li.ID, li.CampaignID, li.Name, li.Budget(), li.StartDate, li.EndDate, li.Spend())
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

// DeleteCampaign removes a campaign and its line items.
func (p *Postgres) DeleteCampaign(id int) error {
	_, err := p.DB.ExecContext(context.Background(), `DELETE FROM line_items WHERE campaign_id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete line items for campaign: %w", err)
	}
	_, err = p.DB.ExecContext(context.Background(), `DELETE FROM campaigns WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	return nil
}

// SetCampaignInitialized records that pacing engines exist for the campaign.
func (p *Postgres) SetCampaignInitialized(id int) error {
	_, err := p.DB.ExecContext(context.Background(), `UPDATE campaigns SET initialized=TRUE WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("mark campaign initialized: %w", err)
	}
	return nil
}

// UpdateLineItemSpend persists the current confirmed spend for a line item.
func (p *Postgres) UpdateLineItemSpend(id int, spend float64) error {
	_, err := p.DB.ExecContext(context.Background(), `UPDATE line_items SET spend=$1 WHERE id=$2`, spend, id)
	if err != nil {
		return fmt.Errorf("update line item spend: %w", err)
	}
	return nil
}
