package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/openpacer/internal/middleware"
	"github.com/patrickwarner/openpacer/internal/models"
)

type campaignRequest struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	TotalBudget   float64 `json:"total_budget"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	LineItemCount int     `json:"line_item_count"`
}

type campaignResponse struct {
	Campaign    models.Campaign `json:"campaign"`
	LineItemIDs []int           `json:"line_item_ids"`
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// CreateCampaign registers a campaign and its line items. The campaign
// budget is split evenly across the line items; pacing does not start until
// the init endpoint is called.
func (s *Server) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		http.Error(w, "invalid start_date", http.StatusBadRequest)
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		http.Error(w, "invalid end_date", http.StatusBadRequest)
		return
	}

	c := &models.Campaign{
		ID:            req.ID,
		Name:          req.Name,
		TotalBudget:   req.TotalBudget,
		StartDate:     start,
		EndDate:       end,
		LineItemCount: req.LineItemCount,
	}
	ids, err := s.Registry.InsertCampaign(c)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrDuplicate):
			http.Error(w, "campaign already exists", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	if s.PG != nil {
		log := middleware.LoggerFromRequest(r, s.Logger)
		if err := s.PG.InsertCampaign(c); err != nil {
			log.Error("insert campaign to postgres", zap.Error(err))
		}
		for _, id := range ids {
			li, _ := s.Registry.GetLineItem(id)
			if li == nil {
				continue
			}
			if err := s.PG.InsertLineItem(li); err != nil {
				log.Error("insert line item to postgres", zap.Error(err), zap.Int("line_item_id", id))
			}
		}
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, campaignResponse{Campaign: *c, LineItemIDs: ids})
}

// ListCampaigns returns all campaigns.
func (s *Server) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Registry.AllCampaigns())
}

// DeleteCampaign removes a campaign and its line items.
func (s *Server) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["cpid"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.Registry.DeleteCampaign(id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "campaign not found", http.StatusNotFound)
			return
		}
		middleware.LoggerFromRequest(r, s.Logger).Error("delete campaign", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if s.PG != nil {
		if err := s.PG.DeleteCampaign(id); err != nil {
			middleware.LoggerFromRequest(r, s.Logger).Error("delete campaign from postgres", zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// InitCampaign creates pacing engines for the campaign's line items.
func (s *Server) InitCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["cpid"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.Registry.InitCampaign(id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "campaign not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.PG != nil {
		if err := s.PG.SetCampaignInitialized(id); err != nil {
			middleware.LoggerFromRequest(r, s.Logger).Error("mark campaign initialized", zap.Error(err))
		}
	}
	writeJSON(w, map[string]string{"status": "initialized"})
}
