package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contest-radar/contest-engine/internal/api"
	"github.com/contest-radar/contest-engine/internal/cache"
	"github.com/contest-radar/contest-engine/internal/channel"
	"github.com/contest-radar/contest-engine/internal/cleanup"
	"github.com/contest-radar/contest-engine/internal/config"
	"github.com/contest-radar/contest-engine/internal/events"
	"github.com/contest-radar/contest-engine/internal/notify"
	"github.com/contest-radar/contest-engine/internal/platform"
	"github.com/contest-radar/contest-engine/internal/storage"
	enginesync "github.com/contest-radar/contest-engine/internal/sync"
	"github.com/contest-radar/contest-engine/internal/templates"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting contest-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Run database migrations
	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize database repository
	repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("database connected successfully")

	// Event bus for live admin subscribers
	bus := events.NewBus()

	// Optional Redis cache for upcoming-contest listings
	var contestCache *cache.ContestCache
	if cfg.Redis.Enabled {
		contestCache, err = cache.NewContestCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.CacheTTL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer contestCache.Close()
		slog.Info("redis cache connected", "address", cfg.Redis.Address)
	}

	// Register platform adapters
	adapters := platform.NewRegistry()
	platformClient := platform.NewClient(platform.ClientConfig{
		Timeout:     cfg.Sync.FetchTimeout,
		MaxAttempts: cfg.Sync.MaxAttempts,
		RetryDelay:  cfg.Sync.RetryDelay,
		UserAgent:   cfg.Sync.UserAgent,
	})
	adapters.Register(platform.NewCodeforces(platformClient, ""))
	adapters.Register(platform.NewLeetCode(platformClient, ""))
	adapters.Register(platform.NewCodeChef(platformClient, ""))
	adapters.Register(platform.NewAtCoder(platformClient, ""))

	// Register channel senders
	senders := channel.NewRegistry()
	senders.Register(channel.NewEmailSender(cfg.Channels.Email))
	senders.Register(channel.NewWhatsAppSender(cfg.Channels.WhatsApp))
	senders.Register(channel.NewPushSender(cfg.Channels.Push))

	// Load message templates
	templateLoader := templates.NewLoader()
	if cfg.Templates.Dir != "" {
		if err := templateLoader.LoadFromDir(cfg.Templates.Dir); err != nil {
			slog.Warn("failed to load templates from dir", "dir", cfg.Templates.Dir, "error", err)
		}
	}

	// Wire the pipeline: orchestrator -> eligibility -> dispatcher
	var invalidator enginesync.CacheInvalidator
	if contestCache != nil {
		invalidator = contestCache
	}
	orchestrator := enginesync.NewOrchestrator(adapters, repo, invalidator, bus, cfg.Sync.Interval)
	dispatcher := notify.NewDispatcher(repo, senders, templateLoader, bus, cfg.Notify)
	engine := notify.NewEngine(repo, dispatcher, cfg.Notify)
	cleaner := cleanup.NewCleaner(repo, bus, cfg.Cleanup.Interval, cfg.Cleanup.RetentionDays)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background workers
	go orchestrator.Run(ctx)
	go engine.Run(ctx)
	go dispatcher.RunRetrySweep(ctx)
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, repo, orchestrator, cleaner, dispatcher, adapters, senders, contestCache, bus)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("contest-engine stopped")
}
