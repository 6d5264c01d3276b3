// Package handlers adapts the three read queries and the one ingress
// write of C7 (spec §4.7, §6) to Fiber HTTP requests. This is the
// thinnest possible layer: every handler validates path/query params
// and hands off to jobstore.Store or the orchestrator dispatcher,
// returning the teacher's pkg/response envelope.
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tucentropdf/engine-v2/internal/config"
	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/internal/jobstore"
	"github.com/tucentropdf/engine-v2/internal/resilience"
	"github.com/tucentropdf/engine-v2/pkg/logger"
	"github.com/tucentropdf/engine-v2/pkg/response"
)

// Dispatcher is the subset of orchestrator.Dispatcher a submit handler
// needs: wake a worker immediately after a job is persisted. A nil
// Dispatcher is valid -- the store-polling backstop still picks the
// job up within PollInterval, per spec §4.6's resume-from-restart note.
type Dispatcher interface {
	Notify(jobID string)
}

// Handlers holds the dependencies shared by every C7 endpoint.
type Handlers struct {
	store      jobstore.Store
	dispatcher Dispatcher
	cfg        *config.Config
	logger     *logger.Logger
	response   *response.ResponseManager
	breakers   *resilience.CircuitBreakerManager
}

func New(store jobstore.Store, dispatcher Dispatcher, cfg *config.Config, log *logger.Logger, breakers *resilience.CircuitBreakerManager) *Handlers {
	return &Handlers{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     log,
		response:   response.NewResponseManager(log),
		breakers:   breakers,
	}
}

type submitRequest struct {
	PDFURL   string `json:"pdf_url"`
	ClientID string `json:"client_id"`
}

// Submit is the one ingress-facing write the core exposes (spec §6
// "Submit job"): validate, persist status=queued, wake a worker.
func (h *Handlers) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return h.response.ValidationError(c, "body", "request body must be JSON")
	}
	if len(req.ClientID) > 50 {
		return h.response.ValidationError(c, "client_id", "must be at most 50 characters")
	}

	job, err := h.store.CreateJob(c.Context(), req.PDFURL, req.ClientID)
	if err != nil {
		return h.writeStoreError(c, "pdf_url", err)
	}

	if h.dispatcher != nil {
		h.dispatcher.Notify(job.ID.String())
	}

	return h.response.Success(c, fiber.Map{
		"id":     job.ID.String(),
		"status": job.Status,
	}, "job queued")
}

// Status answers GetStatus (spec §4.7).
func (h *Handlers) Status(c *fiber.Ctx) error {
	id := c.Params("id")
	job, err := h.store.GetJob(c.Context(), id)
	if err != nil {
		return h.writeStoreError(c, "id", err)
	}

	payload := fiber.Map{
		"id":         job.ID.String(),
		"status":     job.Status,
		"updated_at": job.UpdatedAt,
	}
	if job.ProcessingPhase != "" {
		payload["processing_phase"] = job.ProcessingPhase
	}
	if job.ErrorMessage != nil {
		payload["error_message"] = *job.ErrorMessage
	}
	return h.response.Success(c, payload, "")
}

// Result answers GetResult (spec §4.7): the opaque extracted_data
// record, distinguishable from "not yet complete" by checking job
// status first since a missing result row is NOT_FOUND either way.
func (h *Handlers) Result(c *fiber.Ctx) error {
	id := c.Params("id")
	job, err := h.store.GetJob(c.Context(), id)
	if err != nil {
		return h.writeStoreError(c, "id", err)
	}
	if job.Status == jobstore.StatusQueued || job.Status == jobstore.StatusProcessing {
		return h.response.Error(c, "JOB_NOT_COMPLETE", "job has not completed", fiber.Map{"status": job.Status}, fiber.StatusConflict)
	}

	// failed (and any other non-completed state) falls through: a
	// missing result row surfaces as NOT_FOUND, spec §7.
	result, err := h.store.GetResult(c.Context(), id)
	if err != nil {
		return h.writeStoreError(c, "id", err)
	}

	var data map[string]interface{}
	if result.ExtractedData != nil {
		data = result.ExtractedData.Data
	}
	return h.response.Success(c, fiber.Map{
		"job_id":           result.JobID,
		"extracted_data":   data,
		"confidence_score": result.ConfidenceScore,
		"tokens_used":      result.TokensUsed,
	}, "")
}

// Ocr answers GetOcr (spec §4.7): the raw OCR markdown, truncated to
// max_bytes (default OCR_RETRIEVAL_MAX_BYTES) on top of whatever
// truncation was already applied at storage time.
func (h *Handlers) Ocr(c *fiber.Ctx) error {
	id := c.Params("id")
	job, err := h.store.GetJob(c.Context(), id)
	if err != nil {
		return h.writeStoreError(c, "id", err)
	}
	if job.Status == jobstore.StatusQueued || job.Status == jobstore.StatusProcessing {
		return h.response.Error(c, "JOB_NOT_COMPLETE", "job has not completed", fiber.Map{"status": job.Status}, fiber.StatusConflict)
	}

	// failed (and any other non-completed state) falls through: a
	// missing result row surfaces as NOT_FOUND, spec §7.
	result, err := h.store.GetResult(c.Context(), id)
	if err != nil {
		return h.writeStoreError(c, "id", err)
	}

	maxBytes := h.cfg.OCR.RetrievalMaxBytes
	if q := c.QueryInt("max_bytes", 0); q > 0 && int64(q) < maxBytes {
		maxBytes = int64(q)
	}

	markdown := result.RawOCRText
	if int64(len(markdown)) > maxBytes {
		markdown = markdown[:maxBytes]
	}

	return h.response.Success(c, fiber.Map{
		"markdown":    markdown,
		"provider":    result.OCRProvider,
		"duration_ms": result.OCRDurationMs,
		"pages":       result.OCRPages,
	}, "")
}

// CircuitBreakers reports the live state of every registered circuit
// breaker in this process (the job store's database breaker and the
// dispatcher's Redis breaker).
// Operator-only diagnostic surface, not part of the C7 contract.
func (h *Handlers) CircuitBreakers(c *fiber.Ctx) error {
	return h.response.Success(c, h.breakers.GetMetrics(), "")
}

// ResetCircuitBreakers manually closes every breaker in this process,
// for use after a dependency incident is confirmed resolved.
func (h *Handlers) ResetCircuitBreakers(c *fiber.Ctx) error {
	h.breakers.ResetAll()
	return h.response.Success(c, h.breakers.GetMetrics(), "circuit breakers reset")
}

// ForceOpenCircuitBreaker manually trips a named breaker open, for
// maintenance windows where a downstream dependency is known-bad and
// should be failed fast rather than discovered through live traffic.
func (h *Handlers) ForceOpenCircuitBreaker(c *fiber.Ctx) error {
	name := c.Params("name")
	cb, ok := h.breakers.GetAll()[name]
	if !ok {
		return h.response.Error(c, "NOT_FOUND", "no such circuit breaker", fiber.Map{"name": name}, fiber.StatusNotFound)
	}
	cb.ForceOpen()
	return h.response.Success(c, cb.GetMetrics(), "circuit breaker forced open")
}

func (h *Handlers) writeStoreError(c *fiber.Ctx, field string, err error) error {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return h.response.Error(c, "NOT_FOUND", "resource not found", nil, fiber.StatusNotFound)
	case errs.KindValidation:
		return h.response.ValidationError(c, field, err.Error())
	default:
		return h.response.ServiceError(c, "jobstore", err)
	}
}
