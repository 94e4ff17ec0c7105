package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openpacer/internal/middleware"
	"github.com/patrickwarner/openpacer/internal/pacing"
)

type lineItemSummary struct {
	ID          int     `json:"id"`
	CampaignID  int     `json:"campaign_id"`
	Name        string  `json:"name,omitempty"`
	Budget      float64 `json:"budget"`
	Spend       float64 `json:"spend"`
	Initialized bool    `json:"initialized"`
}

type statusResponse struct {
	ID          int                               `json:"id"`
	TotalBudget float64                           `json:"total_budget"`
	TotalSpent  float64                           `json:"total_spent"`
	Partitions  map[string]pacing.PartitionStatus `json:"partitions"`
	Objectives  map[string]float64                `json:"objectives"`
}

// ListLineItems returns a summary of every line item.
func (s *Server) ListLineItems(w http.ResponseWriter, r *http.Request) {
	items := s.Registry.AllLineItems()
	out := make([]lineItemSummary, 0, len(items))
	for _, li := range items {
		out = append(out, lineItemSummary{
			ID:          li.ID,
			CampaignID:  li.CampaignID,
			Name:        li.Name,
			Budget:      li.Budget(),
			Spend:       li.Spend(),
			Initialized: li.Initialized(),
		})
	}
	writeJSON(w, out)
}

// LineItemStatusHandler reports per-timezone pacing performance for one line
// item. An optional tz query parameter narrows the report to one partition.
func (s *Server) LineItemStatusHandler(w http.ResponseWriter, r *http.Request) {
	li, eng, errStatus := s.lineItemEngine(w, r)
	if errStatus != 0 {
		return
	}

	perf := eng.Performance()
	if tz := r.URL.Query().Get("tz"); tz != "" {
		st, ok := perf[tz]
		if !ok {
			http.Error(w, "no partition for timezone", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]pacing.PartitionStatus{tz: st})
		return
	}

	writeJSON(w, statusResponse{
		ID:          li.ID,
		TotalBudget: eng.TotalBudget(),
		TotalSpent:  eng.TotalSpent(),
		Partitions:  perf,
		Objectives:  eng.PartitionObjectives(),
	})
}

// SetBudgetHandler replaces the line item's total budget and redistributes
// it across its timezone partitions.
func (s *Server) SetBudgetHandler(w http.ResponseWriter, r *http.Request) {
	li, _, errStatus := s.lineItemEngine(w, r)
	if errStatus != 0 {
		return
	}

	var req struct {
		TotalBudget float64 `json:"total_budget"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := li.SetBudget(req.TotalBudget); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]float64{"total_budget": req.TotalBudget})
}

// ResetHandler discards the line item's pacing state and starts a fresh
// engine over the same budget and window.
func (s *Server) ResetHandler(w http.ResponseWriter, r *http.Request) {
	li, _, errStatus := s.lineItemEngine(w, r)
	if errStatus != 0 {
		return
	}
	log := middleware.LoggerFromRequest(r, s.Logger)
	if err := li.ResetPacing(); err != nil {
		log.Error("reset pacing", zap.Error(err), zap.Int("line_item_id", li.ID))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.Metrics.SetSpendTotal(strconv.Itoa(li.ID), 0)
	s.Metrics.SetEngagedBudget(strconv.Itoa(li.ID), 0)
	if s.PG != nil {
		if err := s.PG.UpdateLineItemSpend(li.ID, 0); err != nil {
			log.Error("persist spend reset", zap.Error(err))
			s.Metrics.IncrementSpendPersistErrors()
		}
	}
	writeJSON(w, map[string]string{"status": "reset", "at": time.Now().UTC().Format(time.RFC3339)})
}
