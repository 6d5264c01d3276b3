package ocr

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/internal/fetch"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// ProviderWithFallback decorates a Provider with the URL->bytes
// fallback policy (spec §4.2): if the inner provider rejects a URL
// form with PROVIDER_UNKNOWN_DOCTYPE, download the bytes and retry
// exactly once with a base64 data reference.
type ProviderWithFallback struct {
	inner   Provider
	fetcher *fetch.Fetcher
	logger  *logger.Logger
}

func NewProviderWithFallback(inner Provider, fetcher *fetch.Fetcher, log *logger.Logger) *ProviderWithFallback {
	return &ProviderWithFallback{inner: inner, fetcher: fetcher, logger: log}
}

func (p *ProviderWithFallback) Extract(ctx context.Context, pdfURL string) (*Result, error) {
	result, err := p.inner.Extract(ctx, pdfURL)
	if err == nil {
		return result, nil
	}
	if errs.KindOf(err) != errs.KindProviderUnknownDoctype {
		return nil, err
	}

	p.logger.Info("ocr provider attempt",
		"provider", "mistral",
		"decision", "url_rejected_retrying_base64",
	)

	data, fetchErr := p.fetcher.Download(ctx, pdfURL)
	if fetchErr != nil {
		return nil, fetchErr
	}

	dataRef := fmt.Sprintf("data:application/pdf;base64,%s", base64.StdEncoding.EncodeToString(data))
	return p.inner.Extract(ctx, dataRef)
}
