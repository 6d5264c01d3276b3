package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tucentropdf/engine-v2/internal/config"
	"github.com/tucentropdf/engine-v2/internal/jobstore"
	"github.com/tucentropdf/engine-v2/internal/metrics"
	"github.com/tucentropdf/engine-v2/internal/resilience"
	"github.com/tucentropdf/engine-v2/internal/workerpool"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// Dispatcher wakes idle orchestrator workers via Asynq immediately
// after a job is submitted (teacher queue.Client.EnqueueOCRJob shape).
// It never replaces the store-polling backstop in Pool -- only
// shortens the time an idle fleet takes to notice new work.
type Dispatcher struct {
	client  *asynq.Client
	breaker *resilience.CircuitBreaker
	logger  *logger.Logger
}

func NewDispatcher(cfg *config.RedisConfig, log *logger.Logger, cbm *resilience.CircuitBreakerManager) *Dispatcher {
	return &Dispatcher{
		client:  NewQueueClient(cfg),
		breaker: cbm.Get("orchestrator.redis", resilience.RedisConfig()),
		logger:  log,
	}
}

// Notify enqueues a fire-and-forget wake-up; a delivery failure is
// logged but never surfaced to the submitter, since the poll loop in
// Pool guarantees forward progress regardless (spec §4.6/§5). The
// breaker trips fast on a down Redis so a stalled dependency never
// makes every submit request pay the full Asynq dial timeout.
func (d *Dispatcher) Notify(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := d.breaker.Execute(ctx, func() error {
		return EnqueueNotify(ctx, d.client, jobID)
	})
	if err != nil {
		d.logger.Warn("failed to enqueue job notify", "job_id", jobID, "error", err.Error())
	}
}

func (d *Dispatcher) Close() error { return d.client.Close() }

// Pool runs the orchestrator fleet: a bounded-concurrency Limiter
// driving Worker.ProcessJob, woken either by an Asynq notify task (fast
// path) or by a low-frequency poll of jobstore.ListQueued (durable
// backstop), per spec §4.6's "process restart indistinguishable from a
// slow worker" requirement.
type Pool struct {
	store        jobstore.Store
	worker       *Worker
	limiter      *workerpool.Limiter
	pollInterval time.Duration
	asynqServer  *asynq.Server
	logger       *logger.Logger
}

func NewPool(cfg *config.Config, store jobstore.Store, worker *Worker, log *logger.Logger) *Pool {
	pollInterval := time.Duration(cfg.PollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Pool{
		store:        store,
		worker:       worker,
		limiter:      workerpool.NewLimiter(cfg.WorkerConcurrency, log),
		pollInterval: pollInterval,
		asynqServer:  NewQueueServer(&cfg.Redis, cfg.WorkerConcurrency),
		logger:       log,
	}
}

// Run blocks, draining Asynq notify tasks and polling the store, until
// ctx is cancelled. It waits for in-flight jobs to drain before
// returning, for graceful shutdown.
func (p *Pool) Run(ctx context.Context) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskNotifyJob, p.handleNotify(ctx))

	asynqErr := make(chan error, 1)
	go func() { asynqErr <- p.asynqServer.Run(mux) }()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.asynqServer.Shutdown()
			p.limiter.Wait()
			return nil
		case err := <-asynqErr:
			if err != nil {
				p.logger.Error("asynq server stopped", "error", err.Error())
			}
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Pool) handleNotify(parent context.Context) func(ctx context.Context, task *asynq.Task) error {
	return func(_ context.Context, task *asynq.Task) error {
		var payload NotifyPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return err
		}
		return p.limiter.Go(parent, func(ctx context.Context) {
			p.process(ctx, payload.JobID)
		})
	}
}

func (p *Pool) pollOnce(ctx context.Context) {
	available := p.limiter.Available()
	if available <= 0 {
		return
	}
	jobs, err := p.store.ListQueued(ctx, available)
	if err != nil {
		p.logger.Error("poll failed to list queued jobs", "error", err.Error())
		return
	}
	for _, job := range jobs {
		id := job.ID.String()
		if goErr := p.limiter.Go(ctx, func(ctx context.Context) {
			p.process(ctx, id)
		}); goErr != nil {
			return
		}
	}
}

func (p *Pool) process(ctx context.Context, jobID string) {
	metrics.SetWorkerPoolActive(p.limiter.Active())
	if err := p.worker.ProcessJob(ctx, jobID); err != nil {
		p.logger.Error("job processing returned error", "job_id", jobID, "error", err.Error())
	}
}
