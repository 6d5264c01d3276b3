package orchestrator

import (
	"context"
	"time"

	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/internal/extraction"
	"github.com/tucentropdf/engine-v2/internal/jobstore"
	"github.com/tucentropdf/engine-v2/internal/metrics"
	"github.com/tucentropdf/engine-v2/internal/ocr"
	"github.com/tucentropdf/engine-v2/internal/retrypolicy"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// Per-call timeout budgets, spec §4.6/§5.
const (
	jobCeiling   = 30 * time.Minute
	ocrTimeout   = 5 * time.Minute
	llmTimeout   = 15 * time.Minute
	storeTimeout = 1 * time.Minute
)

// Worker drives a single job through S0 Queued -> S1 Analyzing ->
// S2 Extracting -> S3 Verifying -> S4 Completed, or Sx Failed on any
// unrecoverable error, spec §5.
type Worker struct {
	store      jobstore.Store
	ocr        ocr.Provider
	extraction *extraction.Service
	retry      *retrypolicy.Policy
	logger     *logger.Logger
}

func NewWorker(store jobstore.Store, provider ocr.Provider, extractionSvc *extraction.Service, retry *retrypolicy.Policy, log *logger.Logger) *Worker {
	return &Worker{store: store, ocr: provider, extraction: extractionSvc, retry: retry, logger: log}
}

// ProcessJob runs the full lifecycle for jobID. It is safe to call
// concurrently for the same jobID from multiple workers: TransitionStart
// is a compare-and-set and a losing worker returns nil without error.
func (w *Worker) ProcessJob(ctx context.Context, jobID string) error {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, jobCeiling)
	defer cancel()

	if err := w.transitionStart(ctx, jobID); err != nil {
		if errs.KindOf(err) == errs.KindConflict {
			return nil
		}
		return err
	}

	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		w.fail(jobID, errs.StageStore, err, started)
		return err
	}

	markdown, ocrResult, err := w.runOCR(ctx, job.PDFURL)
	if err != nil {
		w.fail(jobID, errs.StageOCR, err, started)
		return err
	}

	if err := w.setPhase(ctx, jobID, jobstore.PhaseExtracting); err != nil {
		w.fail(jobID, errs.StageStore, err, started)
		return err
	}

	output, err := w.runExtraction(ctx, markdown)
	if err != nil {
		w.fail(jobID, errs.StageLLM, err, started)
		return err
	}

	if err := w.setPhase(ctx, jobID, jobstore.PhaseVerifying); err != nil {
		w.fail(jobID, errs.StageStore, err, started)
		return err
	}

	confidence := extraction.ComputeConfidence(output.Data)
	result := &jobstore.Result{
		ExtractedData:   output.Data,
		ConfidenceScore: &confidence,
		TokensUsed:      output.TokensUsed,
		RawOCRText:      ocrResult.Markdown,
		OCRProvider:     ocrResult.Provider,
		OCRDurationMs:   ocrResult.DurationMs,
		OCRPages:        ocrResult.Pages,
	}

	if err := w.complete(ctx, jobID, result); err != nil {
		if errs.KindOf(err) == errs.KindConflict {
			return nil
		}
		w.fail(jobID, errs.StageComplete, err, started)
		return err
	}

	metrics.RecordJobCompleted(output.InvoiceType, time.Since(started).Seconds())
	w.logger.Info("job completed", "job_id", jobID, "invoice_type", output.InvoiceType)
	return nil
}

func (w *Worker) transitionStart(ctx context.Context, jobID string) error {
	return w.retry.Run(ctx, "transition_start", func(ctx context.Context) error {
		return w.store.TransitionStart(ctx, jobID)
	})
}

func (w *Worker) setPhase(ctx context.Context, jobID string, phase jobstore.Phase) error {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return w.retry.Run(storeCtx, "set_phase", func(ctx context.Context) error {
		return w.store.SetPhase(ctx, jobID, phase)
	})
}

func (w *Worker) complete(ctx context.Context, jobID string, result *jobstore.Result) error {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	return w.retry.Run(storeCtx, "complete", func(ctx context.Context) error {
		return w.store.Complete(ctx, jobID, result)
	})
}

func (w *Worker) runOCR(ctx context.Context, pdfURL string) (string, *ocr.Result, error) {
	ocrCtx, cancel := context.WithTimeout(ctx, ocrTimeout)
	defer cancel()

	var result *ocr.Result
	err := w.retry.Run(ocrCtx, "ocr_extract", func(ctx context.Context) error {
		r, err := w.ocr.Extract(ctx, pdfURL)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return result.Markdown, result, nil
}

func (w *Worker) runExtraction(ctx context.Context, markdown string) (*extraction.Output, error) {
	llmCtx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	var output *extraction.Output
	err := w.retry.Run(llmCtx, "llm_extract", func(ctx context.Context) error {
		o, err := w.extraction.Extract(ctx, markdown)
		if err != nil {
			return err
		}
		output = o
		return nil
	})
	return output, err
}

func (w *Worker) fail(jobID string, stage errs.Stage, cause error, started time.Time) {
	kind := string(errs.KindOf(cause))
	failCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := w.store.Fail(failCtx, jobID, string(stage), cause.Error()); err != nil {
		w.logger.Error("failed to persist job failure", "job_id", jobID, "error", err.Error())
	}

	metrics.RecordJobFailed(string(stage), kind, time.Since(started).Seconds())
	w.logger.Error("job failed", "job_id", jobID, "stage", stage, "kind", kind, "error", cause.Error())
}
