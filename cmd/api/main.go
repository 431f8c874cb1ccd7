package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/api"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/config"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/data"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/presets"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/pubsub"
	sig "github.com/mohamedkhairy/vn-market-dashboard/internal/signal"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/snapshot"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/storage"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/toplist"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/indicator"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting dashboard API service",
		logger.Int("port", cfg.API.Port),
		logger.String("data_source", cfg.Data.Source),
		logger.Int("rate_limit_rps", cfg.API.RateLimitRPS),
		logger.Bool("auth_required", cfg.API.AuthRequired),
	)

	// Dataset source and cache
	sourceCfg := data.SourceConfig{
		Format:        cfg.Data.Format,
		PricePath:     cfg.Data.PricePath,
		VolumePath:    cfg.Data.VolumePath,
		MarketCapPath: cfg.Data.MarketCapPath,
		ForeignPath:   cfg.Data.ForeignPath,
	}
	if cfg.Data.Source == "postgres" {
		store, err := storage.NewTimescaleDBClient(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to initialize bar store", logger.ErrorField(err))
		}
		defer store.Close()
		sourceCfg.Store = store
	}

	source, err := data.NewSourceFactory().CreateSource(cfg.Data.Source, sourceCfg)
	if err != nil {
		logger.Fatal("Failed to create data source", logger.ErrorField(err))
	}

	cache := data.NewDatasetCache(source)
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if _, err := cache.Get(warmCtx); err != nil {
		// keep serving; /ready reports the failure until a reload succeeds
		logger.Error("Initial dataset load failed", logger.ErrorField(err))
	}
	warmCancel()

	if err := cache.StartAutoReload(cfg.Data.ReloadCron); err != nil {
		logger.Fatal("Failed to schedule dataset reload", logger.ErrorField(err))
	}
	defer cache.Stop()

	// Presets
	presetSet, err := presets.Load(cfg.PresetsPath)
	if err != nil {
		logger.Fatal("Failed to load presets", logger.ErrorField(err))
	}

	engine := indicator.NewEngine(nil)
	detector := sig.NewDetector(nil)
	if err := presetSet.Validate(engine.Registry(), detector.Registry()); err != nil {
		logger.Fatal("Invalid presets", logger.ErrorField(err))
	}

	defaults, err := snapshotOptions(cfg.Snapshot)
	if err != nil {
		logger.Fatal("Invalid snapshot configuration", logger.ErrorField(err))
	}

	// Redis publishing is optional
	var (
		publisher toplist.SnapshotPublisher
		rankings  *toplist.RankingService
	)
	if cfg.Snapshot.Publish {
		redisClient, err := pubsub.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis client", logger.ErrorField(err))
		}
		defer redisClient.Close()

		publisher = toplist.NewRedisSnapshotPublisher(redisClient, cfg.Snapshot.PublishTTL)
		rankings = toplist.NewRankingService(redisClient)
	}

	// Initialize handlers
	handlers := api.Handlers{
		Instruments: api.NewInstrumentHandler(cache, engine, detector, presetSet),
		Snapshots:   api.NewSnapshotHandler(cache, snapshot.NewAggregator(engine, detector), presetSet, defaults, publisher, rankings),
		Market:      api.NewMarketHandler(cache),
		Catalog:     api.NewCatalogHandler(engine, detector, presetSet),
		Admin:       api.NewAdminHandler(cache),
	}

	handler := api.NewRouter(handlers, api.RouterConfig{
		Auth:           api.NewAuthManager(cfg.API.JWTSecret),
		AuthRequired:   cfg.API.AuthRequired,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		RateLimitBurst: cfg.API.RateLimitBurst,
		Ready: func(ctx context.Context) error {
			if cache.Current() == nil {
				return fmt.Errorf("dataset not loaded")
			}
			return nil
		},
	})

	// Start HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down dashboard API service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	logger.Info("Dashboard API service stopped")
}

// snapshotOptions turns the snapshot configuration into aggregator defaults
func snapshotOptions(cfg config.SnapshotConfig) (snapshot.Options, error) {
	opts := snapshot.DefaultOptions()
	opts.MinPriorBars = cfg.MinPriorBars
	opts.Lookback = cfg.Lookback
	opts.Workers = cfg.Workers
	opts.Rules = cfg.Rules

	reqs, err := indicator.ParseRequests(cfg.Indicators)
	if err != nil {
		return opts, err
	}
	opts.Indicators = reqs
	return opts, nil
}
