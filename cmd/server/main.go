package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/openpacer/internal/analytics"
	"github.com/patrickwarner/openpacer/internal/api"
	"github.com/patrickwarner/openpacer/internal/config"
	"github.com/patrickwarner/openpacer/internal/db"
	"github.com/patrickwarner/openpacer/internal/geoip"
	"github.com/patrickwarner/openpacer/internal/middleware"
	"github.com/patrickwarner/openpacer/internal/models"
	"github.com/patrickwarner/openpacer/internal/observability"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	registry, err := db.LoadStore(pg)
	if err != nil {
		return fmt.Errorf("failed to load pacing state: %w", err)
	}

	redisStore, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer redisStore.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN, cfg.CHMaxOpenConns, cfg.CHMaxIdleConns, cfg.CHConnMaxLifetime, cfg.CHConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer analyticsSvc.Close()

	// GeoIP is optional; without it bid requests must carry a timezone or
	// fall back to the configured default.
	geoSvc, err := geoip.Init(cfg.GeoIPDB)
	if err != nil {
		logger.Warn("geoip unavailable, timezone resolution disabled", zap.Error(err))
		geoSvc = nil
	} else {
		defer func() { _ = geoSvc.Close() }()
	}

	srvDeps := api.NewServer(logger, registry, pg, redisStore, analyticsSvc, geoSvc, metricsRegistry, cfg)
	r := srvDeps.Routes()
	r.Handle("/metrics", promhttp.Handler())

	var handler http.Handler = r
	handler = middleware.WithTraceLogger(logger)(handler)
	if cfg.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "openpacer")
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Pacing server running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.CheckpointInterval > 0 {
		ticker := time.NewTicker(cfg.CheckpointInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					checkpointSpend(logger, registry, pg, metricsRegistry)
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	checkpointSpend(logger, registry, pg, metricsRegistry)
	return nil
}

// checkpointSpend flushes each line item's confirmed spend to Postgres and
// refreshes the spend gauges.
func checkpointSpend(logger *zap.Logger, registry *models.Store, pg *db.Postgres, metrics observability.MetricsRegistry) {
	for _, li := range registry.AllLineItems() {
		if !li.Initialized() {
			continue
		}
		spend := li.Spend()
		metrics.SetSpendTotal(strconv.Itoa(li.ID), spend)
		if err := pg.UpdateLineItemSpend(li.ID, spend); err != nil {
			logger.Error("spend checkpoint", zap.Error(err), zap.Int("line_item_id", li.ID))
			metrics.IncrementSpendPersistErrors()
		}
	}
}
