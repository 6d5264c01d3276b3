package jobstore

import "context"

// Store is the durable persistence contract for jobs and results (C1).
// PostgresStore is the production implementation; orchestrator and
// jobstore tests use a hand-rolled in-memory fake satisfying this
// same interface instead of standing up a real database.
type Store interface {
	CreateJob(ctx context.Context, pdfURL, clientID string) (*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	GetResult(ctx context.Context, id string) (*JobResult, error)

	TransitionStart(ctx context.Context, id string) error
	SetPhase(ctx context.Context, id string, phase Phase) error
	Complete(ctx context.Context, id string, result *Result) error
	Fail(ctx context.Context, id string, stage, errorMessage string) error

	// ListQueued returns up to limit queued jobs, oldest first (§5).
	// Two workers may list the same job; TransitionStart's CONFLICT
	// decides which one processes it.
	ListQueued(ctx context.Context, limit int) ([]*Job, error)
}
