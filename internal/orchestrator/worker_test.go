package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/internal/extraction"
	"github.com/tucentropdf/engine-v2/internal/jobstore"
	"github.com/tucentropdf/engine-v2/internal/llm"
	"github.com/tucentropdf/engine-v2/internal/llm/schema"
	"github.com/tucentropdf/engine-v2/internal/ocr"
	"github.com/tucentropdf/engine-v2/internal/retrypolicy"
	"github.com/tucentropdf/engine-v2/internal/workerpool"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

func testWorkerLogger() *logger.Logger {
	return logger.New("error", "json")
}

// noBackoffPolicy retries once with no actual delay so QUOTA/TRANSIENT
// paths exercise the retry loop without slowing the test suite down.
func noBackoffPolicy() *retrypolicy.Policy {
	return &retrypolicy.Policy{MaxAttempts: 2, InitialDelay: 0, MaxDelay: 0, Multiplier: 1}
}

// scriptedOCR returns a fixed Result, or fails up to failTimes before
// succeeding, letting a test exercise the ocr-stage retry path. Safe
// for concurrent use since Pool drives workers from multiple goroutines.
type scriptedOCR struct {
	result    *ocr.Result
	err       error
	failTimes int

	mu    sync.Mutex
	calls int
}

func (s *scriptedOCR) Extract(ctx context.Context, pdfRef string) (*ocr.Result, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if n <= s.failTimes {
		return nil, s.err
	}
	return s.result, nil
}

func (s *scriptedOCR) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// scriptedGenerator drives extraction.Service's Generator dependency:
// classify always returns classifyType/classifyErr, extract always
// returns extractData/extractErr.
type scriptedGenerator struct {
	classifyType string
	classifyErr  error
	extractData  map[string]interface{}
	extractErr   error
}

func (g *scriptedGenerator) GenerateObject(ctx context.Context, messages []llm.Message, schemaName string) (*llm.Object, error) {
	if schemaName == schema.NameInvoiceType {
		if g.classifyErr != nil {
			return nil, g.classifyErr
		}
		return &llm.Object{Data: map[string]interface{}{"invoice_type": g.classifyType}, TokensUsed: 10}, nil
	}
	if g.extractErr != nil {
		return nil, g.extractErr
	}
	return &llm.Object{Data: g.extractData, TokensUsed: 50}, nil
}

func reasoned(value interface{}, confidence, reasonCode string) map[string]interface{} {
	return map[string]interface{}{
		"value":            value,
		"confidence":       confidence,
		"reason_code":      reasonCode,
		"evidence_snippet": "line 1",
	}
}

func generalPayload() map[string]interface{} {
	return map[string]interface{}{
		"invoice_number":   reasoned("INV-1", schema.ConfidenceHigh, schema.ReasonExplicitLabel),
		"invoice_date":     reasoned("2026-01-01", schema.ConfidenceHigh, schema.ReasonExplicitLabel),
		"invoice_due_date": reasoned("2026-02-01", schema.ConfidenceHigh, schema.ReasonExplicitLabel),
		"total_amount":     reasoned(100.0, schema.ConfidenceHigh, schema.ReasonExplicitLabel),
	}
}

func newTestWorker(t *testing.T, store jobstore.Store, provider ocr.Provider, gen extraction.Generator) *Worker {
	t.Helper()
	log := testWorkerLogger()
	svc := extraction.NewService(gen, log)
	return NewWorker(store, provider, svc, noBackoffPolicy(), log)
}

func TestProcessJob_HappyPathSequencesPhasesAndCompletes(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job, err := store.CreateJob(context.Background(), "https://example.com/invoice.pdf", "client-1")
	require.NoError(t, err)

	pages := 2
	provider := &scriptedOCR{result: &ocr.Result{Markdown: "# Invoice", Pages: &pages, DurationMs: 500, Provider: "mistral"}}
	gen := &scriptedGenerator{classifyType: schema.NameInvoiceGeneral, extractData: generalPayload()}
	worker := newTestWorker(t, store, provider, gen)

	require.NoError(t, worker.ProcessJob(context.Background(), job.ID.String()))

	got, err := store.GetJob(context.Background(), job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, got.Status)
	assert.Equal(t, jobstore.Phase(""), got.ProcessingPhase)
	assert.NotNil(t, got.CompletedAt)

	result, err := store.GetResult(context.Background(), job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "mistral", result.OCRProvider)
	assert.Equal(t, 60, result.TokensUsed)
	require.NotNil(t, result.ConfidenceScore)
}

func TestProcessJob_OCRStageFailureTagsStageAndLeavesNoResult(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job, err := store.CreateJob(context.Background(), "https://example.com/invoice.pdf", "client-1")
	require.NoError(t, err)

	provider := &scriptedOCR{err: errs.Auth(errs.StageOCR, "credentials rejected", nil), failTimes: 99}
	gen := &scriptedGenerator{classifyType: schema.NameInvoiceGeneral, extractData: generalPayload()}
	worker := newTestWorker(t, store, provider, gen)

	err = worker.ProcessJob(context.Background(), job.ID.String())
	require.Error(t, err)
	assert.Equal(t, errs.KindAuth, errs.KindOf(err))

	got, err := store.GetJob(context.Background(), job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, string(errs.StageOCR))

	_, err = store.GetResult(context.Background(), job.ID.String())
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

// TestProcessJob_LLMUnrecoverableFailsWithNoResult exercises the
// classifier-downgrades-then-extractor-fails scenario: classify
// returns a VALIDATION error (non-parseable output), which the
// extraction service silently downgrades to "general" per its
// classification-failure policy, then the extract call itself
// returns an unrecoverable AUTH error. The job must fail tagged
// stage=LLM with no JobResult row ever created.
func TestProcessJob_LLMUnrecoverableFailsWithNoResult(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job, err := store.CreateJob(context.Background(), "https://example.com/invoice.pdf", "client-1")
	require.NoError(t, err)

	provider := &scriptedOCR{result: &ocr.Result{Markdown: "# Invoice", Provider: "mistral"}}
	gen := &scriptedGenerator{
		classifyErr: errs.Validation(errs.StageLLM, "could not parse classify response", nil),
		extractErr:  errs.Auth(errs.StageLLM, "credentials rejected", nil),
	}
	worker := newTestWorker(t, store, provider, gen)

	err = worker.ProcessJob(context.Background(), job.ID.String())
	require.Error(t, err)
	assert.Equal(t, errs.KindAuth, errs.KindOf(err))

	got, err := store.GetJob(context.Background(), job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, string(errs.StageLLM))

	_, err = store.GetResult(context.Background(), job.ID.String())
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

// TestProcessJob_OCRQuotaRetriesOnceThenSucceeds exercises the
// one-time-transient-then-fatal QUOTA semantics at the stage that
// actually hits external rate limits: a single QUOTA error is
// absorbed by the retry policy and the job still completes.
func TestProcessJob_OCRQuotaRetriesOnceThenSucceeds(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job, err := store.CreateJob(context.Background(), "https://example.com/invoice.pdf", "client-1")
	require.NoError(t, err)

	provider := &scriptedOCR{
		result:    &ocr.Result{Markdown: "# Invoice", Provider: "mistral"},
		err:       errs.Quota(errs.StageOCR, "rate limit exceeded", nil),
		failTimes: 1,
	}
	gen := &scriptedGenerator{classifyType: schema.NameInvoiceGeneral, extractData: generalPayload()}
	worker := newTestWorker(t, store, provider, gen)

	require.NoError(t, worker.ProcessJob(context.Background(), job.ID.String()))
	assert.Equal(t, 2, provider.callCount())

	got, err := store.GetJob(context.Background(), job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, got.Status)
}

// TestProcessJob_OCRQuotaFatalOnSecondOccurrence mirrors the above but
// with QUOTA recurring after the one free retry: spec says "further
// occurrences fatal", so the second QUOTA error must propagate and
// fail the job rather than retry again.
func TestProcessJob_OCRQuotaFatalOnSecondOccurrence(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job, err := store.CreateJob(context.Background(), "https://example.com/invoice.pdf", "client-1")
	require.NoError(t, err)

	provider := &scriptedOCR{
		result:    &ocr.Result{Markdown: "# Invoice", Provider: "mistral"},
		err:       errs.Quota(errs.StageOCR, "rate limit exceeded", nil),
		failTimes: 99,
	}
	gen := &scriptedGenerator{classifyType: schema.NameInvoiceGeneral, extractData: generalPayload()}
	worker := &Worker{store: store, ocr: provider, extraction: extraction.NewService(gen, testWorkerLogger()),
		retry: &retrypolicy.Policy{MaxAttempts: 5, InitialDelay: 0, MaxDelay: 0, Multiplier: 1}, logger: testWorkerLogger()}

	err = worker.ProcessJob(context.Background(), job.ID.String())
	require.Error(t, err)
	assert.Equal(t, errs.KindQuota, errs.KindOf(err))
	assert.Equal(t, 2, provider.callCount())

	got, err := store.GetJob(context.Background(), job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusFailed, got.Status)
}

// TestProcessJob_ConcurrentTransitionStartLoserIsANoop covers the
// documented CAS race: a second ProcessJob call for a job already
// claimed by another worker must return nil without touching state.
func TestProcessJob_ConcurrentTransitionStartLoserIsANoop(t *testing.T) {
	store := jobstore.NewMemoryStore()
	job, err := store.CreateJob(context.Background(), "https://example.com/invoice.pdf", "client-1")
	require.NoError(t, err)
	require.NoError(t, store.TransitionStart(context.Background(), job.ID.String()))

	provider := &scriptedOCR{result: &ocr.Result{Markdown: "# Invoice", Provider: "mistral"}}
	gen := &scriptedGenerator{classifyType: schema.NameInvoiceGeneral, extractData: generalPayload()}
	worker := newTestWorker(t, store, provider, gen)

	require.NoError(t, worker.ProcessJob(context.Background(), job.ID.String()))
	assert.Equal(t, 0, provider.callCount())

	got, err := store.GetJob(context.Background(), job.ID.String())
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusProcessing, got.Status)
}

// TestPool_PollOnceDrainsQueuedJobsThroughTheLimiter exercises the
// poll backstop (the other half of Pool, alongside the Asynq notify
// path which needs a live Redis to test): ListQueued jobs are handed
// to the limiter, each runs ProcessJob, and the pool respects the
// concurrency cap.
func TestPool_PollOnceDrainsQueuedJobsThroughTheLimiter(t *testing.T) {
	store := jobstore.NewMemoryStore()
	for i := 0; i < 3; i++ {
		_, err := store.CreateJob(context.Background(), "https://example.com/invoice.pdf", "client-1")
		require.NoError(t, err)
	}

	provider := &scriptedOCR{result: &ocr.Result{Markdown: "# Invoice", Provider: "mistral"}}
	gen := &scriptedGenerator{classifyType: schema.NameInvoiceGeneral, extractData: generalPayload()}
	worker := newTestWorker(t, store, provider, gen)
	log := testWorkerLogger()
	limiter := workerpool.NewLimiter(3, log)

	pool := &Pool{store: store, worker: worker, limiter: limiter, logger: log}
	pool.pollOnce(context.Background())
	limiter.Wait()

	jobs, err := store.ListQueued(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Equal(t, 3, provider.callCount())
}
