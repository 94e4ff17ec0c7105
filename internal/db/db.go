package db

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/openpacer/internal/models"
)

// LoadStore restores campaigns and line items from Postgres into a fresh
// Store. Campaigns persisted as initialized get their pacing engines rebuilt;
// in-flight and per-timezone state is not persisted, so a restart paces each
// line item from its full budget while the reporting layer still carries the
// checkpointed spend.
func LoadStore(pg *Postgres) (*models.Store, error) {
	store := models.NewStore()

	campaigns, err := pg.LoadCampaigns()
	if err != nil {
		return nil, fmt.Errorf("load campaigns: %w", err)
	}
	for i := range campaigns {
		c := campaigns[i]
		if err := store.RestoreCampaign(&c); err != nil {
			return nil, fmt.Errorf("restore campaign %d: %w", c.ID, err)
		}
	}

	items, err := pg.LoadLineItems()
	if err != nil {
		return nil, fmt.Errorf("load line items: %w", err)
	}
	for _, li := range items {
		if err := store.RestoreLineItem(li); err != nil {
			return nil, fmt.Errorf("restore line item %d: %w", li.ID, err)
		}
	}

	for _, c := range store.AllCampaigns() {
		if !c.Initialized {
			continue
		}
		if err := store.InitCampaign(c.ID); err != nil {
			return nil, fmt.Errorf("rebuild engines for campaign %d: %w", c.ID, err)
		}
	}

	zap.L().Info("Loaded pacing state from Postgres",
		zap.Int("campaigns", len(campaigns)),
		zap.Int("line_items", len(items)))
	return store, nil
}
