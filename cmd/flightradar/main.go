package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mikemorandi/flightradar/internal/api"
	"github.com/mikemorandi/flightradar/internal/config"
	"github.com/mikemorandi/flightradar/internal/history"
	"github.com/mikemorandi/flightradar/internal/icons"
	"github.com/mikemorandi/flightradar/internal/ingest"
	"github.com/mikemorandi/flightradar/internal/interp"
	"github.com/mikemorandi/flightradar/internal/metadata"
	"github.com/mikemorandi/flightradar/internal/render"
	"github.com/mikemorandi/flightradar/internal/storage/sqlite"
	"github.com/mikemorandi/flightradar/internal/store"
	"github.com/mikemorandi/flightradar/internal/websocket"
	"github.com/mikemorandi/flightradar/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting flightradar",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metadata cache storage
	dbDir := filepath.Dir(cfg.Storage.SQLitePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", dbDir))
		os.Exit(1)
	}
	metadataStorage, err := sqlite.NewMetadataStorage(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to create metadata storage", logger.Error(err))
		os.Exit(1)
	}
	defer metadataStorage.Close()

	if expiry := cfg.Metadata.CacheExpiry(); expiry > 0 {
		if _, err := metadataStorage.PruneOlderThan(time.Now().UTC().Add(-expiry)); err != nil {
			log.Warn("Failed to prune metadata cache", logger.Error(err))
		}
	}

	metadataClient := metadata.NewClient(metadata.Config{
		BaseURL:           cfg.Metadata.BaseURL,
		Timeout:           time.Duration(cfg.Metadata.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.Metadata.RequestsPerSecond,
		Burst:             cfg.Metadata.Burst,
		CacheExpiry:       cfg.Metadata.CacheExpiry(),
	}, metadataStorage, log)

	// Core pipeline state
	staleThreshold := time.Duration(cfg.Map.StaleThresholdMs) * time.Millisecond
	aircraftStore := store.New(log, staleThreshold)
	historyStore := history.New(log, cfg.Map.HistoryLimit)

	iconPool, err := icons.NewPool(log, cfg.Map.IconTemplateCache)
	if err != nil {
		log.Error("Failed to create icon pool", logger.Error(err))
		os.Exit(1)
	}

	// WebSocket hub for map clients
	hub := websocket.NewServer(log)
	go hub.Run()

	// Render manager watches the store and drives the scene
	renderManager := render.NewManager(aircraftStore, iconPool, hub, interp.Options{
		FrameInterval:    time.Duration(cfg.Map.FrameIntervalMs) * time.Millisecond,
		MaxExtrapolation: time.Duration(cfg.Map.MaxExtrapolationMs) * time.Millisecond,
		ConvergeFactor:   cfg.Map.ConvergeFactor,
	}, log)
	if err := renderManager.Start(ctx); err != nil {
		log.Error("Failed to start render manager", logger.Error(err))
		os.Exit(1)
	}

	// Ingestion coordinator owns the upstream feed
	coordinator := ingest.New(cfg.Feed, staleThreshold, aircraftStore, historyStore, renderManager, log)
	if err := coordinator.Start(ctx); err != nil {
		log.Error("Failed to start ingestion coordinator", logger.Error(err))
		os.Exit(1)
	}

	handler := api.NewHandler(aircraftStore, historyStore, metadataClient, coordinator, renderManager, hub, log)
	router := api.NewRouter(handler)

	// One HTTP server per configured port, all sharing the router
	allPorts := []int{cfg.Server.Port}
	if len(cfg.Server.AdditionalPorts) > 0 {
		allPorts = append(allPorts, cfg.Server.AdditionalPorts...)
	}
	log.Info("Configured listener ports", logger.Any("ports", allPorts))

	var servers []*http.Server
	group, groupCtx := errgroup.WithContext(ctx)
	for _, port := range allPorts {
		server := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		group.Go(func() error {
			log.Info("Starting HTTP server", logger.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server %s failed: %w", server.Addr, err)
			}
			return nil
		})
	}

	// Wait for interrupt or a server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", logger.String("signal", sig.String()))
	case <-groupCtx.Done():
		log.Error("HTTP server group failed", logger.Error(groupCtx.Err()))
	}

	// Stop the feed side first so nothing mutates state during shutdown
	log.Info("Stopping ingestion coordinator...")
	coordinator.Stop()

	log.Info("Stopping render manager...")
	renderManager.Stop()

	log.Info("Stopping WebSocket hub...")
	hub.Stop()

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", logger.String("addr", s.Addr), logger.Error(err))
		}
	}
	if err := group.Wait(); err != nil {
		log.Error("Server group exited with error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
