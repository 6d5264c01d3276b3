package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tucentropdf/engine-v2/internal/config"
	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/internal/metrics"
	"github.com/tucentropdf/engine-v2/internal/resilience"
	"github.com/tucentropdf/engine-v2/internal/retrypolicy"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// MistralProvider calls the Mistral Document AI OCR endpoint, following
// the teacher's OpenAIService shape (struct holding endpoint/apiKey/
// model/httpClient/logger, a callX helper that marshals the request
// and classifies non-2xx responses) adapted from image-captioning to a
// document-markdown contract.
type MistralProvider struct {
	endpoint     string
	apiKey       string
	model        string
	allowedHosts *config.OCRConfig
	client       *http.Client
	retry        *retrypolicy.Policy
	breaker      *resilience.CircuitBreaker
	logger       *logger.Logger
}

func NewMistralProvider(cfg *config.OCRConfig, log *logger.Logger, cbm *resilience.CircuitBreakerManager) *MistralProvider {
	return &MistralProvider{
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		model:        "mistral-ocr-latest",
		allowedHosts: cfg,
		client:       &http.Client{Timeout: 60 * time.Second},
		retry:        retrypolicy.Default(log),
		breaker:      cbm.Get("ocr.mistral", resilience.MistralOCRConfig()),
		logger:       log,
	}
}

type mistralRequest struct {
	Model    string `json:"model"`
	Document struct {
		Type string `json:"type"`
		URL  string `json:"document_url,omitempty"`
	} `json:"document"`
}

type mistralResponse struct {
	Markdown string `json:"markdown"`
	Pages    int    `json:"pages"`
}

// Extract performs pre-flight validation on URL-form input (scheme
// must be https, host must be allow-listed -- checked by call via
// validateURLRef before each request; base64 data refs skip host
// validation since they carry no host), then calls Mistral with
// bounded per-attempt retry.
func (p *MistralProvider) Extract(ctx context.Context, pdfRef string) (*Result, error) {
	start := time.Now()
	var resp *mistralResponse
	var attempt int

	err := p.retry.Run(ctx, "ocr.mistral.extract", func(ctx context.Context) error {
		attempt++
		var r *mistralResponse
		breakerErr := p.breaker.Execute(ctx, func() error {
			called, callErr := p.call(ctx, pdfRef)
			if callErr != nil {
				return callErr
			}
			r = called
			return nil
		})
		if breakerErr != nil {
			callErr := breakerErr
			if errors.Is(breakerErr, resilience.ErrCircuitOpen) || errors.Is(breakerErr, resilience.ErrTooManyRequests) {
				callErr = errs.Transient(errs.StageOCR, "ocr.mistral circuit breaker open", breakerErr)
			}
			decision := decisionFor(callErr)
			p.logger.Info("ocr provider attempt",
				"provider", "mistral",
				"attempt", attempt,
				"duration_ms", time.Since(start).Milliseconds(),
				"decision", decision,
			)
			return callErr
		}
		resp = r
		return nil
	})

	metrics.RecordOCRCall("mistral", decisionFor(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	pages := resp.Pages
	metrics.RecordOCRTextSize(len(resp.Markdown))
	markdown := TruncateMarkdown(resp.Markdown, p.allowedHosts.TextMaxBytes)
	return &Result{
		Markdown:   markdown,
		Pages:      &pages,
		DurationMs: time.Since(start).Milliseconds(),
		Provider:   "mistral",
	}, nil
}

func decisionFor(err error) string {
	if err == nil {
		return "ok"
	}
	if errs.KindOf(err) == errs.KindProviderUnknownDoctype {
		return "url_rejected_retrying_base64"
	}
	return "error_" + strings.ToLower(string(errs.KindOf(err)))
}

func (p *MistralProvider) call(ctx context.Context, pdfRef string) (*mistralResponse, error) {
	req := mistralRequest{Model: p.model}
	if strings.HasPrefix(pdfRef, "data:") {
		req.Document.Type = "document_base64"
		req.Document.URL = pdfRef
	} else {
		if err := p.validateURLRef(pdfRef); err != nil {
			return nil, err
		}
		req.Document.Type = "document_url"
		req.Document.URL = pdfRef
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Validation(errs.StageOCR, "failed to marshal OCR request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Validation(errs.StageOCR, "failed to build OCR request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errs.Classify(errs.StageOCR, 0, "", err)
	}
	defer httpResp.Body.Close()

	body, _ := io.ReadAll(httpResp.Body)
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, errs.Classify(errs.StageOCR, httpResp.StatusCode, string(body), nil)
	}

	var parsed mistralResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.Validation(errs.StageOCR, "OCR response was not valid JSON", err)
	}
	return &parsed, nil
}

func (p *MistralProvider) validateURLRef(ref string) error {
	u, err := url.Parse(ref)
	if err != nil {
		return errs.Validation(errs.StageOCR, "malformed pdf URL", err)
	}
	if u.Scheme != "https" {
		return errs.Validation(errs.StageOCR, fmt.Sprintf("pdf URL scheme %q is not https", u.Scheme), nil)
	}
	if !p.allowedHosts.IsAllowedHost(u.Hostname()) {
		return errs.Validation(errs.StageOCR, fmt.Sprintf("host %q is not in the allowed PDF host list", u.Hostname()), nil)
	}
	return nil
}
