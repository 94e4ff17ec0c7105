package models

import (
	"sort"
	"sync"

	"github.com/patrickwarner/openpacer/internal/pacing"
)

// Store provides thread-safe access to campaigns and line items without
// global variables. Line items hold live pacing engines, so the store hands
// out pointers rather than immutable snapshots; the engines serialize their
// own state transitions.
type Store struct {
	mu         sync.RWMutex
	campaigns  map[int]*Campaign
	lineItems  map[int]*LineItem
	byCampaign map[int][]int // campaign id -> line item ids, insertion order
	nextLIID   int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		campaigns:  make(map[int]*Campaign),
		lineItems:  make(map[int]*LineItem),
		byCampaign: make(map[int][]int),
		nextLIID:   1,
	}
}

// InsertCampaign adds a campaign and creates its line items, splitting the
// campaign budget evenly across them. Line item ids are assigned by the
// store and returned in order.
func (s *Store) InsertCampaign(c *Campaign) ([]int, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[c.ID]; ok {
		return nil, ErrDuplicate
	}
	s.campaigns[c.ID] = c

	share := c.TotalBudget / float64(c.LineItemCount)
	ids := make([]int, 0, c.LineItemCount)
	for i := 0; i < c.LineItemCount; i++ {
		id := s.nextLIID
		s.nextLIID++
		s.lineItems[id] = NewLineItem(id, c.ID, "", share, c.StartDate, c.EndDate)
		s.byCampaign[c.ID] = append(s.byCampaign[c.ID], id)
		ids = append(ids, id)
	}
	return ids, nil
}

// RestoreLineItem inserts a line item with a known id, used when loading
// persisted state at boot. The id counter advances past restored ids.
func (s *Store) RestoreLineItem(li *LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lineItems[li.ID]; ok {
		return ErrDuplicate
	}
	s.lineItems[li.ID] = li
	s.byCampaign[li.CampaignID] = append(s.byCampaign[li.CampaignID], li.ID)
	if li.ID >= s.nextLIID {
		s.nextLIID = li.ID + 1
	}
	return nil
}

// RestoreCampaign inserts a campaign without creating line items, used when
// loading persisted state at boot.
func (s *Store) RestoreCampaign(c *Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[c.ID]; ok {
		return ErrDuplicate
	}
	s.campaigns[c.ID] = c
	return nil
}

// GetCampaign returns the campaign with the given id.
func (s *Store) GetCampaign(id int) (*Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// AllCampaigns returns every campaign, ordered by id.
func (s *Store) AllCampaigns() []*Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteCampaign removes a campaign and all of its line items.
func (s *Store) DeleteCampaign(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[id]; !ok {
		return ErrNotFound
	}
	delete(s.campaigns, id)
	for _, liid := range s.byCampaign[id] {
		delete(s.lineItems, liid)
	}
	delete(s.byCampaign, id)
	return nil
}

// InitCampaign creates a fresh pacing engine for each of the campaign's line
// items. Re-initializing discards any existing pacing state.
func (s *Store) InitCampaign(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	for _, liid := range s.byCampaign[id] {
		li := s.lineItems[liid]
		eng, err := pacing.NewEngine(li.Budget(), li.StartDate, li.EndDate)
		if err != nil {
			return err
		}
		li.setEngine(eng)
	}
	c.Initialized = true
	return nil
}

// GetLineItem returns the line item with the given id.
func (s *Store) GetLineItem(id int) (*LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	li, ok := s.lineItems[id]
	if !ok {
		return nil, ErrNotFound
	}
	return li, nil
}

// AllLineItems returns every line item, ordered by id.
func (s *Store) AllLineItems() []*LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*LineItem, 0, len(s.lineItems))
	for _, li := range s.lineItems {
		out = append(out, li)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LineItemsByCampaign returns the campaign's line items in creation order.
func (s *Store) LineItemsByCampaign(campaignID int) ([]*LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.campaigns[campaignID]; !ok {
		return nil, ErrNotFound
	}
	ids := s.byCampaign[campaignID]
	out := make([]*LineItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.lineItems[id])
	}
	return out, nil
}
