// Command worker runs the orchestrator fleet (C6): the bounded-
// concurrency pool of workers that drive jobs through
// Queued -> Analyzing -> Extracting -> Verifying -> Completed/Failed,
// following the teacher's cmd/ocr-worker process-per-role shape.
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

	"github.com/tucentropdf/engine-v2/internal/config"
	"github.com/tucentropdf/engine-v2/internal/extraction"
	"github.com/tucentropdf/engine-v2/internal/fetch"
	"github.com/tucentropdf/engine-v2/internal/jobstore"
	"github.com/tucentropdf/engine-v2/internal/llm"
	"github.com/tucentropdf/engine-v2/internal/ocr"
	"github.com/tucentropdf/engine-v2/internal/orchestrator"
	"github.com/tucentropdf/engine-v2/internal/resilience"
	"github.com/tucentropdf/engine-v2/internal/retrypolicy"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	logg := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer logg.Sync()

	logg.Info("starting orchestrator worker fleet",
		"concurrency", cfg.WorkerConcurrency,
		"poll_interval_s", cfg.PollInterval,
	)

	db, err := gorm.Open(postgres.Open(cfg.Store.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := jobstore.RunMigrations(db, logg); err != nil {
		log.Fatalf("failed to run job store migrations: %v", err)
	}
	breakers := resilience.NewCircuitBreakerManager(logg)
	store := jobstore.NewPostgresStore(db, logg, breakers)

	mistral := ocr.NewMistralProvider(&cfg.OCR, logg, breakers)
	fetcher := fetch.New(cfg.OCR.MaxPDFBytes, logg)
	provider := ocr.NewProviderWithFallback(mistral, fetcher, logg)

	llmClient := llm.NewClient(&cfg.LLM, logg, breakers)
	extractionSvc := extraction.NewService(llmClient, logg)

	retry := retrypolicy.Default(logg)
	worker := orchestrator.NewWorker(store, provider, extractionSvc, retry, logg)
	pool := orchestrator.NewPool(cfg, store, worker, logg)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logg.Info("shutdown signal received, draining in-flight jobs")
		cancel()
	}()
	go breakers.MonitorCircuitBreakers(ctx, 30*time.Second)

	if err := pool.Run(ctx); err != nil {
		logg.Error("worker pool exited with error", "error", err.Error())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stdout, "worker pool stopped")
}
