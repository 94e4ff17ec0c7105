package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	LineItems int    `json:"line_items"`
	Pacing    int    `json:"pacing"`
}

// HealthHandler reports liveness plus a small delivery snapshot: how many
// line items the registry holds and how many of them have a running pacing
// engine.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	const method = "GET"

	items := s.Registry.AllLineItems()
	pacing := 0
	for _, li := range items {
		if li.Initialized() {
			pacing++
		}
	}
	writeJSON(w, healthResponse{Status: "ok", LineItems: len(items), Pacing: pacing})

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
