package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"minicrm/internal/cache"
	"minicrm/internal/config"
	"minicrm/internal/httpapi"
	"minicrm/internal/logging"
	"minicrm/internal/observability"
	"minicrm/internal/providers/simulated"
	"minicrm/internal/service"
	"minicrm/internal/store/pg"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:          cfg.DBPoolMaxConns,
		MinConns:          cfg.DBPoolMinConns,
		MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
	})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}

	observability.Register(prometheus.DefaultRegisterer)

	storeTimeout, err := time.ParseDuration(cfg.StoreTimeout)
	if err != nil {
		slog.Error("invalid STORE_TIMEOUT", "err", err)
		os.Exit(1)
	}

	campaigns := &service.CampaignService{
		Store:   pg.New(db),
		Channel: simulated.New(cfg.SendSuccessRate),
		Limiter: rate.NewLimiter(rate.Limit(cfg.DispatchRPS), cfg.DispatchBurst),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "delivery-channel",
		}),
		StoreTimeout: storeTimeout,
	}

	if cfg.RedisAddr != "" {
		ttl, err := time.ParseDuration(cfg.PreviewCacheTTL)
		if err != nil {
			slog.Error("invalid PREVIEW_CACHE_TTL", "err", err)
			os.Exit(1)
		}
		campaigns.Cache = cache.NewPreview(cfg.RedisAddr, ttl)
	}

	crm := &service.CRMService{
		Store:        pg.New(db),
		StoreTimeout: storeTimeout,
	}

	s := httpapi.New()
	api := &httpapi.API{Campaigns: campaigns, CRM: crm}
	api.Register(s.Mux)

	s.Mux.HandleFunc("/healthz", httpapi.Healthz())
	s.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))

	s.Mux.Use(httpapi.Metrics(observability.APIRequests))
	handler := httpapi.Logging(s.Mux)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}

	db.Close()
}
