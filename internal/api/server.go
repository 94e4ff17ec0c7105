package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/openpacer/internal/analytics"
	"github.com/patrickwarner/openpacer/internal/config"
	"github.com/patrickwarner/openpacer/internal/db"
	"github.com/patrickwarner/openpacer/internal/geoip"
	"github.com/patrickwarner/openpacer/internal/models"
	"github.com/patrickwarner/openpacer/internal/observability"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Registry  *models.Store
	PG        *db.Postgres
	Redis     *db.RedisStore
	Analytics analytics.AnalyticsService
	GeoIP     *geoip.GeoIP
	Metrics   observability.MetricsRegistry
	Config    config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, registry *models.Store, pg *db.Postgres, redis *db.RedisStore, analyticsSvc analytics.AnalyticsService, geo *geoip.GeoIP, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	return &Server{
		Logger:    logger,
		Registry:  registry,
		PG:        pg,
		Redis:     redis,
		Analytics: analyticsSvc,
		GeoIP:     geo,
		Metrics:   metrics,
		Config:    cfg,
	}
}

// Routes registers all handlers on a new router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/campaign", s.CreateCampaign).Methods("POST")
	r.HandleFunc("/campaign", s.ListCampaigns).Methods("GET")
	r.HandleFunc("/campaign/{cpid}", s.DeleteCampaign).Methods("DELETE")
	r.HandleFunc("/campaign/{cpid}/init", s.InitCampaign).Methods("POST")

	r.HandleFunc("/li", s.ListLineItems).Methods("GET")
	r.HandleFunc("/li/{liid}/br", s.BidRequestHandler).Methods("POST")
	r.HandleFunc("/li/{liid}/notif", s.NotificationHandler).Methods("POST")
	r.HandleFunc("/li/{liid}/status", s.LineItemStatusHandler).Methods("GET")
	r.HandleFunc("/li/{liid}/budget", s.SetBudgetHandler).Methods("POST")
	r.HandleFunc("/li/{liid}/reset", s.ResetHandler).Methods("POST")

	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	return r
}

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
