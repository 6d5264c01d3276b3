package jobstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/internal/metrics"
	"github.com/tucentropdf/engine-v2/internal/resilience"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

const maxPDFURLLength = 2048

// PostgresStore is the production Store implementation, following the
// teacher's service-over-gorm.DB shape (legal_audit.Service,
// analytics.Service): a thin struct holding *gorm.DB plus a logger,
// one method per operation.
type PostgresStore struct {
	db      *gorm.DB
	logger  *logger.Logger
	breaker *resilience.CircuitBreaker
}

func NewPostgresStore(db *gorm.DB, log *logger.Logger, cbm *resilience.CircuitBreakerManager) *PostgresStore {
	return &PostgresStore{
		db:      db,
		logger:  log,
		breaker: cbm.Get("jobstore.postgres", resilience.DatabaseConfig()),
	}
}

func (s *PostgresStore) CreateJob(ctx context.Context, pdfURL, clientID string) (*Job, error) {
	if err := validatePDFURL(pdfURL); err != nil {
		return nil, err
	}

	job := &Job{
		ID:       uuid.New(),
		ClientID: clientID,
		Status:   StatusQueued,
		PDFURL:   pdfURL,
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, errs.New(errs.KindUnknown, errs.StageStore, "failed to create job", err)
	}

	metrics.RecordJobSubmitted(clientID)
	return job, nil
}

func validatePDFURL(pdfURL string) error {
	if pdfURL == "" {
		return errs.Validation(errs.StageStore, "pdf_url is required", nil)
	}
	if len(pdfURL) > maxPDFURLLength {
		return errs.Validation(errs.StageStore, "pdf_url exceeds maximum length", nil)
	}
	u, err := url.Parse(pdfURL)
	if err != nil || !u.IsAbs() {
		return errs.Validation(errs.StageStore, "pdf_url must be an absolute URL", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound(errs.StageStore, "job not found")
	}
	if err != nil {
		return nil, errs.New(errs.KindUnknown, errs.StageStore, "failed to fetch job", err)
	}
	return &job, nil
}

func (s *PostgresStore) GetResult(ctx context.Context, id string) (*JobResult, error) {
	var result JobResult
	err := s.db.WithContext(ctx).Where("job_id = ?", id).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound(errs.StageStore, "result not found")
	}
	if err != nil {
		return nil, errs.New(errs.KindUnknown, errs.StageStore, "failed to fetch result", err)
	}
	return &result, nil
}

// TransitionStart requires status=queued; sets status=processing,
// processing_phase=analyzing_invoice. A single UPDATE ... WHERE
// status=? makes concurrent starters race safely: the loser's
// RowsAffected is 0, which becomes CONFLICT.
func (s *PostgresStore) TransitionStart(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusQueued).
		Updates(map[string]interface{}{
			"status":           StatusProcessing,
			"processing_phase": PhaseAnalyzing,
		})
	if res.Error != nil {
		return errs.New(errs.KindUnknown, errs.StageStore, "failed to start job", res.Error)
	}
	if res.RowsAffected == 0 {
		metrics.RecordConflict("transition_start")
		return errs.Conflict(errs.StageStore, "job is not in queued state")
	}
	metrics.RecordPhaseTransition(string(PhaseAnalyzing))
	return nil
}

// SetPhase sets processing_phase only if the new phase is >= current
// in phaseRank, folding the monotonicity check into the WHERE clause
// so the read-compare-write is a single atomic statement rather than a
// read followed by a racy write.
func (s *PostgresStore) SetPhase(ctx context.Context, id string, phase Phase) error {
	newRank, ok := phaseRank[phase]
	if !ok {
		return errs.Validation(errs.StageStore, fmt.Sprintf("unknown phase %q", phase), nil)
	}

	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Where(phaseAtMostClause(), newRank).
		Update("processing_phase", phase)
	if res.Error != nil {
		return errs.New(errs.KindUnknown, errs.StageStore, "failed to set phase", res.Error)
	}
	if res.RowsAffected == 0 {
		metrics.RecordConflict("set_phase")
		return errs.Conflict(errs.StageStore, "job is not processing or phase would regress")
	}
	metrics.RecordPhaseTransition(string(phase))
	return nil
}

// phaseAtMostClause renders a CASE expression ranking the current
// stored phase, compared against the candidate rank supplied as a
// query parameter. Postgres evaluates CASE per-row so this composes
// safely with the surrounding WHERE.
func phaseAtMostClause() string {
	return `(CASE processing_phase
		WHEN '' THEN 0
		WHEN 'analyzing_invoice' THEN 1
		WHEN 'extracting_data' THEN 2
		WHEN 'verifying_data' THEN 3
		ELSE 0
	END) <= ?`
}

// Complete atomically inserts the result row and flips the job to
// completed inside one transaction; a second concurrent Complete call
// sees RowsAffected=0 on the Job update and the whole transaction
// rolls back, so no orphan JobResult row is ever left behind.
func (s *PostgresStore) Complete(ctx context.Context, id string, result *Result) error {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return errs.Validation(errs.StageStore, "invalid job id", err)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&Job{}).
			Where("id = ? AND status = ?", id, StatusProcessing).
			Updates(map[string]interface{}{
				"status":           StatusCompleted,
				"processing_phase": "",
				"completed_at":     &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.Conflict(errs.StageStore, "job is not processing")
		}

		row := &JobResult{
			ID:              uuid.New(),
			JobID:           jobID,
			ExtractedData:   NewJSONValue(result.ExtractedData),
			ConfidenceScore: result.ConfidenceScore,
			TokensUsed:      result.TokensUsed,
			RawOCRText:      result.RawOCRText,
			OCRProvider:     result.OCRProvider,
			OCRDurationMs:   result.OCRDurationMs,
			OCRPages:        result.OCRPages,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			DoNothing: true,
		}).Create(row).Error
	})

	if txErr != nil {
		var e *errs.Error
		if errors.As(txErr, &e) {
			metrics.RecordConflict("complete")
			return txErr
		}
		return errs.New(errs.KindUnknown, errs.StageStore, "failed to complete job", txErr)
	}
	return nil
}

// Fail is allowed from any non-terminal state; the message is passed
// through internal/errs.Redact (query-strings, credentials, inline PDF
// content stripped; 4KB cap) before it is persisted.
func (s *PostgresStore) Fail(ctx context.Context, id string, stage, errorMessage string) error {
	now := time.Now()
	msg := errs.Redact(errorMessage)
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status IN ?", id, []Status{StatusQueued, StatusProcessing}).
		Updates(map[string]interface{}{
			"status":           StatusFailed,
			"processing_phase": "",
			"completed_at":     &now,
			"error_message":    &msg,
		})
	if res.Error != nil {
		return errs.New(errs.KindUnknown, errs.StageStore, "failed to fail job", res.Error)
	}
	if res.RowsAffected == 0 {
		metrics.RecordConflict("fail")
		return errs.Conflict(errs.StageStore, "job already in terminal state")
	}
	return nil
}

// ListQueued reads queued jobs oldest-first with FOR UPDATE SKIP LOCKED
// (§5's "the store is the work queue"). The query runs outside an
// explicit transaction, so its row locks end with the statement: two
// pollers can list the same job, and TransitionStart's compare-and-set
// decides which of them runs it. It runs behind a
// circuit breaker since it is the tightest polling loop against the
// database -- a struggling Postgres instance should make workers back
// off rather than hammer it every poll interval.
func (s *PostgresStore) ListQueued(ctx context.Context, limit int) ([]*Job, error) {
	var jobs []*Job
	breakerErr := s.breaker.Execute(ctx, func() error {
		return s.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", StatusQueued).
			Order("created_at ASC").
			Limit(limit).
			Find(&jobs).Error
	})
	if breakerErr != nil {
		if errors.Is(breakerErr, resilience.ErrCircuitOpen) || errors.Is(breakerErr, resilience.ErrTooManyRequests) {
			return nil, errs.Transient(errs.StageStore, "jobstore.postgres circuit breaker open", breakerErr)
		}
		return nil, errs.New(errs.KindUnknown, errs.StageStore, "failed to list queued jobs", breakerErr)
	}
	metrics.SetQueueDepth(int64(len(jobs)))
	return jobs, nil
}
