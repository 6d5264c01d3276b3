// Package orchestrator drives the S0-S4/Sx job state machine (C6):
// an Asynq notify fast-path wakes a worker immediately after a job is
// submitted, with a low-frequency Postgres poll (jobstore.ListQueued)
// as the durable backstop for jobs whose notify was lost, grounded on
// the teacher's internal/queue Asynq client/server shape.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/tucentropdf/engine-v2/internal/config"
)

const TaskNotifyJob = "job:notify"

// NotifyPayload carries only the job ID; the worker re-reads current
// state from the store rather than trusting stale queue payload data.
type NotifyPayload struct {
	JobID string `json:"job_id"`
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

// NewQueueClient creates the Asynq client used to enqueue notify tasks.
func NewQueueClient(cfg *config.RedisConfig) *asynq.Client {
	return asynq.NewClient(redisOpt(cfg))
}

// NewQueueServer creates the Asynq server that drains notify tasks,
// concurrency bounded the same way the teacher bounds its OCR server.
func NewQueueServer(cfg *config.RedisConfig, concurrency int) *asynq.Server {
	return asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"jobs": 1},
		LogLevel:    asynq.WarnLevel,
	})
}

// EnqueueNotify wakes a worker to process jobID immediately, the fast
// path that runs alongside (never instead of) the poll backstop.
func EnqueueNotify(ctx context.Context, client *asynq.Client, jobID string) error {
	payload, err := json.Marshal(NotifyPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("orchestrator: marshal notify payload: %w", err)
	}
	task := asynq.NewTask(TaskNotifyJob, payload)
	_, err = client.EnqueueContext(ctx, task, asynq.Queue("jobs"), asynq.MaxRetry(0))
	return err
}
