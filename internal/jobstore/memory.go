package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tucentropdf/engine-v2/internal/errs"
)

// MemoryStore is an in-process Store used by orchestrator/jobstore
// tests in place of a real Postgres instance, keeping the CAS
// semantics (RowsAffected==0 -> CONFLICT) identical to PostgresStore
// without pulling in a second SQL driver just for tests.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	results map[string]*JobResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*Job),
		results: make(map[string]*JobResult),
	}
}

func (m *MemoryStore) CreateJob(ctx context.Context, pdfURL, clientID string) (*Job, error) {
	if err := validatePDFURL(pdfURL); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	job := &Job{
		ID:        uuid.New(),
		ClientID:  clientID,
		Status:    StatusQueued,
		PDFURL:    pdfURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.jobs[job.ID.String()] = job

	cp := *job
	return &cp, nil
}

func (m *MemoryStore) GetJob(ctx context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, errs.NotFound(errs.StageStore, "job not found")
	}
	cp := *job
	return &cp, nil
}

func (m *MemoryStore) GetResult(ctx context.Context, id string) (*JobResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.results[id]
	if !ok {
		return nil, errs.NotFound(errs.StageStore, "result not found")
	}
	cp := *res
	return &cp, nil
}

func (m *MemoryStore) TransitionStart(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status != StatusQueued {
		return errs.Conflict(errs.StageStore, "job is not in queued state")
	}
	job.Status = StatusProcessing
	job.ProcessingPhase = PhaseAnalyzing
	job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetPhase(ctx context.Context, id string, phase Phase) error {
	newRank, ok := phaseRank[phase]
	if !ok {
		return errs.Validation(errs.StageStore, "unknown phase", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status != StatusProcessing {
		return errs.Conflict(errs.StageStore, "job is not processing")
	}
	if newRank < phaseRank[job.ProcessingPhase] {
		return errs.Conflict(errs.StageStore, "phase would regress")
	}
	job.ProcessingPhase = phase
	job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Complete(ctx context.Context, id string, result *Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status != StatusProcessing {
		return errs.Conflict(errs.StageStore, "job is not processing")
	}

	now := time.Now()
	job.Status = StatusCompleted
	job.ProcessingPhase = ""
	job.CompletedAt = &now
	job.UpdatedAt = now

	m.results[id] = &JobResult{
		ID:              uuid.New(),
		JobID:           job.ID,
		ExtractedData:   NewJSONValue(result.ExtractedData),
		ConfidenceScore: result.ConfidenceScore,
		TokensUsed:      result.TokensUsed,
		RawOCRText:      result.RawOCRText,
		OCRProvider:     result.OCRProvider,
		OCRDurationMs:   result.OCRDurationMs,
		OCRPages:        result.OCRPages,
		CreatedAt:       now,
	}
	return nil
}

func (m *MemoryStore) Fail(ctx context.Context, id string, stage, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status == StatusCompleted || job.Status == StatusFailed {
		return errs.Conflict(errs.StageStore, "job already in terminal state")
	}

	now := time.Now()
	msg := errs.Redact(errorMessage)
	job.Status = StatusFailed
	job.ProcessingPhase = ""
	job.CompletedAt = &now
	job.UpdatedAt = now
	job.ErrorMessage = &msg
	return nil
}

func (m *MemoryStore) ListQueued(ctx context.Context, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Job
	for _, job := range m.jobs {
		if job.Status == StatusQueued {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
