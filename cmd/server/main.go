// Command server exposes the C7 read API surface (submit/status/
// result/ocr) over HTTP, following the teacher's cmd/server shape:
// load config, connect Postgres, run migrations, wire the handler
// layer, listen, and shut down gracefully on signal.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tucentropdf/engine-v2/internal/api"
	"github.com/tucentropdf/engine-v2/internal/api/handlers"
	"github.com/tucentropdf/engine-v2/internal/config"
	"github.com/tucentropdf/engine-v2/internal/jobstore"
	"github.com/tucentropdf/engine-v2/internal/orchestrator"
	"github.com/tucentropdf/engine-v2/internal/resilience"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	logg := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer logg.Sync()

	logg.Info("starting invoice extraction API",
		"environment", cfg.Environment,
	)

	db, err := connectDatabase(cfg, logg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := jobstore.RunMigrations(db, logg); err != nil {
		log.Fatalf("failed to run job store migrations: %v", err)
	}

	breakers := resilience.NewCircuitBreakerManager(logg)
	store := jobstore.NewPostgresStore(db, logg, breakers)

	dispatcher := orchestrator.NewDispatcher(&cfg.Redis, logg, breakers)

	h := handlers.New(store, dispatcher, cfg, logg, breakers)
	shutdownState := api.NewShutdownState()
	server := api.NewServer(cfg, logg, h, shutdownState)

	shutdown := NewShutdownManager(logg, server, shutdownState)
	shutdown.RegisterShutdownCallback(func(context.Context) error {
		return dispatcher.Close()
	})
	shutdown.RegisterShutdownCallback(func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	shutdown.RegisterShutdownCallback(func(context.Context) error {
		stopMonitor()
		return nil
	})
	go breakers.MonitorCircuitBreakers(monitorCtx, 30*time.Second)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		addr := fmt.Sprintf(":%s", port)
		logg.Info("listening", "address", addr)
		if err := server.Listen(addr); err != nil {
			logg.Error("server stopped", "error", err.Error())
		}
	}()

	<-sig
	logg.Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := shutdown.Shutdown(ctx); err != nil {
		logg.Error("graceful shutdown failed", "error", err.Error())
		os.Exit(1)
	}
}

func connectDatabase(cfg *config.Config, logg *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Store.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	// Pool sized to roughly 2x fleet concurrency, spec §5.
	sqlDB.SetMaxOpenConns(2 * cfg.WorkerConcurrency)
	logg.Info("connected to database")
	return db, nil
}
