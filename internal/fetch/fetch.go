// Package fetch downloads PDF bytes for the OCR URL→bytes fallback
// path (spec §4.2), enforcing the download size cap and the 45s total
// timeout the orchestrator budgets for this call.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/internal/retrypolicy"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

const defaultTotalTimeout = 45 * time.Second

// Fetcher downloads PDF bytes over HTTP with retry, modeled on the
// teacher's io.Copy-into-writer idiom (internal/storage.Service) but
// bounded by io.LimitReader instead of streaming to disk.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	retry      *retrypolicy.Policy
	logger     *logger.Logger
}

func New(maxBytes int64, log *logger.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: defaultTotalTimeout},
		maxBytes:   maxBytes,
		retry:      retrypolicy.Default(log),
		logger:     log,
	}
}

// Download fetches url's bytes, retrying TRANSIENT failures per the
// shared backoff schedule, and fails with VALIDATION if the response
// body exceeds maxBytes.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTotalTimeout)
	defer cancel()

	var body []byte
	err := f.retry.Run(ctx, "fetch.download", func(ctx context.Context) error {
		b, attemptErr := f.attempt(ctx, url)
		if attemptErr != nil {
			return attemptErr
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Validation(errs.StageFetch, "invalid download URL", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errs.Classify(errs.StageFetch, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Classify(errs.StageFetch, resp.StatusCode, "", nil)
	}

	limited := io.LimitReader(resp.Body, f.maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errs.Transient(errs.StageFetch, "failed reading response body", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errs.Validation(errs.StageFetch, fmt.Sprintf("download exceeds MAX_PDF_BYTES (%d)", f.maxBytes), nil)
	}
	return data, nil
}
