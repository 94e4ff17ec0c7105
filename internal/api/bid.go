package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/openpacer/internal/middleware"
	"github.com/patrickwarner/openpacer/internal/models"
	"github.com/patrickwarner/openpacer/internal/pacing"
)

type bidRequest struct {
	ID        string  `json:"id,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
	IP        string  `json:"ip,omitempty"`
	CPM       float64 `json:"cpm"`
	Imps      int     `json:"imps"`
}

type bidResponse struct {
	ID       string `json:"id"`
	Timezone string `json:"timezone"`
	pacing.Decision
}

type notifRequest struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

// lineItemEngine resolves the line item in the path and its pacing engine.
// The engine is snapshotted once here so the handler keeps working against a
// consistent engine even if a reset swaps in a new one mid-request. When the
// line item or engine is missing it writes the error response and returns the
// status it wrote; on success the returned status is 0.
func (s *Server) lineItemEngine(w http.ResponseWriter, r *http.Request) (*models.LineItem, *pacing.Engine, int) {
	id, err := strconv.Atoi(mux.Vars(r)["liid"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil, nil, http.StatusBadRequest
	}
	li, err := s.Registry.GetLineItem(id)
	if err != nil {
		http.Error(w, "line item not found", http.StatusNotFound)
		return nil, nil, http.StatusNotFound
	}
	eng := li.PacingEngine()
	if eng == nil {
		http.Error(w, "pacing not initialized", http.StatusConflict)
		return nil, nil, http.StatusConflict
	}
	return li, eng, 0
}

// resolveTimezone picks the pacing partition for a bid request: an explicit
// timezone wins, then a GeoIP lookup of the client IP, then the configured
// default.
func (s *Server) resolveTimezone(req bidRequest) string {
	if req.Timezone != "" {
		return req.Timezone
	}
	if req.IP != "" {
		if ip := net.ParseIP(req.IP); ip != nil {
			if tz := s.GeoIP.Timezone(ip); tz != "" {
				return tz
			}
		}
	}
	return s.Config.DefaultTimezone
}

// BidRequestHandler runs one bid opportunity through the line item's pacing
// engine. The CPM quote is converted to an opportunity price before the
// engine sees it.
func (s *Server) BidRequestHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "bid_request"
	status := http.StatusOK
	defer func() {
		s.Metrics.IncrementRequests(endpoint, r.Method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
	}()

	li, eng, errStatus := s.lineItemEngine(w, r)
	if errStatus != 0 {
		status = errStatus
		return
	}

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = http.StatusBadRequest
		http.Error(w, "invalid json", status)
		return
	}

	ts := time.Now()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			status = http.StatusBadRequest
			http.Error(w, "invalid timestamp", status)
			return
		}
		ts = parsed
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	tz := s.resolveTimezone(req)
	price := float64(req.Imps) * req.CPM / 1000

	res, err := eng.Decide(ts, tz, price, req.Imps, req.ID)
	if err != nil {
		status = http.StatusBadRequest
		http.Error(w, err.Error(), status)
		return
	}

	s.Metrics.IncrementDecisions(strconv.Itoa(li.ID), strconv.FormatBool(res.Buying))
	s.Metrics.SetEngagedBudget(strconv.Itoa(li.ID), res.Engaged)
	if res.Throttled {
		s.Metrics.IncrementThrottleEvents(strconv.Itoa(li.ID), tz)
	}
	if s.Redis != nil {
		if err := s.Redis.IncrementDecision(li.ID, res.Buying, ts); err != nil {
			middleware.LoggerFromRequest(r, s.Logger).Warn("redis decision counter", zap.Error(err))
		}
	}
	if s.Analytics != nil {
		s.Analytics.RecordDecision(r.Context(), li.ID, tz, req.ID, price, req.Imps, res.Buying, res.Objective, res.Remaining, res.Engaged)
	}

	writeJSON(w, bidResponse{ID: req.ID, Timezone: tz, Decision: res})
}

// NotificationHandler settles a previously bought opportunity with its
// auction outcome.
func (s *Server) NotificationHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "notification"
	status := http.StatusOK
	defer func() {
		s.Metrics.IncrementRequests(endpoint, r.Method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
	}()

	li, eng, errStatus := s.lineItemEngine(w, r)
	if errStatus != 0 {
		status = errStatus
		return
	}

	var req notifRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		status = http.StatusBadRequest
		http.Error(w, "invalid json", status)
		return
	}
	outcome := pacing.Outcome(req.Outcome)
	if !outcome.Valid() {
		status = http.StatusBadRequest
		http.Error(w, "outcome must be win or lose", status)
		return
	}

	info, err := eng.ReconcileDetail(req.ID, outcome)
	if err != nil {
		if errors.Is(err, pacing.ErrUnknownOpportunity) {
			status = http.StatusNotFound
			http.Error(w, "unknown opportunity", status)
			return
		}
		status = http.StatusInternalServerError
		http.Error(w, "internal error", status)
		return
	}

	s.Metrics.IncrementNotifications(strconv.Itoa(li.ID), req.Outcome)
	s.Metrics.SetSpendTotal(strconv.Itoa(li.ID), li.Spend())
	if outcome == pacing.OutcomeWin && s.Redis != nil {
		if err := s.Redis.AddSpend(li.ID, info.Timezone, info.Price, time.Now()); err != nil {
			middleware.LoggerFromRequest(r, s.Logger).Warn("redis spend counter", zap.Error(err))
		}
	}
	if s.Analytics != nil {
		s.Analytics.RecordNotification(r.Context(), li.ID, req.ID, req.Outcome)
	}

	writeJSON(w, map[string]string{"status": "ok"})
}
