package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lending/internal/bank"
	"lending/internal/config"
	"lending/internal/db"
	"lending/internal/handlers"
	"lending/internal/interest"
	"lending/internal/ledger"
	"lending/internal/logging"
	"lending/internal/metrics"
	"lending/internal/middleware"
	"lending/internal/oracle"
	"lending/internal/risk"
	"lending/internal/services"
	"lending/internal/store"
	"lending/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("lending", "", "info", os.Stderr).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("lending", cfg.AppEnv, cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	database, err := db.Connect(connectCtx, cfg.DatabaseURL, db.DefaultPoolConfig())
	cancel()
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	txRunner := db.NewTxRunner(database, db.WithLogger(logger))
	lendingStore := store.NewPostgres(database, txRunner)
	identities := store.NewIdentityStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)

	source, err := priceSource(ctx, cfg.Lending.Oracle, logger)
	if err != nil {
		logger.Error("failed to configure price source", "error", err)
		os.Exit(1)
	}
	gateway := oracle.NewGateway(source, time.Now)

	registry := bank.NewRegistry(interest.NewEngine(cfg.Lending.Interest.Period()))
	riskEngine := risk.NewEngine(gateway, registry, cfg.Lending.Oracle.MaxPriceAge())
	hub := websocket.NewHub(strings.Split(cfg.AllowedOrigins, ",")...)
	lendingMetrics := metrics.New()

	service := services.NewLendingService(
		lendingStore,
		registry,
		ledger.New(cfg.Lending.Ledger.MaxBalances),
		riskEngine,
		services.WithHub(hub),
		services.WithMetrics(lendingMetrics),
		services.WithLogger(logger),
	)

	handler := handlers.New(handlers.Deps{
		Config:     cfg,
		TxRunner:   txRunner,
		Identities: identities,
		Admin:      admin,
		Audit:      audit,
		Lending:    service,
		Hub:        hub,
		Metrics:    lendingMetrics,
		Limiter:    middleware.NewRateLimiter(cfg.Lending.HTTP.RateLimitRPS, cfg.Lending.HTTP.RateLimitBurst, logger),
		Logger:     logger,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("lending API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("lending API stopped")
}

// priceSource returns the Hermes client when a URL is configured. Otherwise
// it serves the configured static prices, republishing them until ctx ends
// so they never go stale.
func priceSource(ctx context.Context, cfg config.OracleConfig, logger *slog.Logger) (oracle.Source, error) {
	if cfg.HermesURL != "" {
		logger.Info("using hermes price source", "url", cfg.HermesURL)
		return oracle.NewHermesSource(cfg.HermesURL, nil), nil
	}
	prices, err := cfg.StaticPrices()
	if err != nil {
		return nil, err
	}
	source := oracle.NewStaticSource()
	publish := func(now time.Time) {
		for feed, price := range prices {
			source.Set(feed, oracle.Quote{Price: price, PublishTime: now})
		}
	}
	publish(time.Now())
	logger.Info("using static price source", "feeds", len(prices))

	interval := cfg.MaxPriceAge() / 2
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				publish(now)
			}
		}
	}()
	return source, nil
}
