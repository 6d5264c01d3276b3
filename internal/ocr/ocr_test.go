package ocr

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tucentropdf/engine-v2/internal/config"
	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/internal/resilience"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

func testBreakerManager() *resilience.CircuitBreakerManager {
	return resilience.NewCircuitBreakerManager(testLogger())
}

func TestTruncateMarkdown_LeavesShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "short", TruncateMarkdown("short", 100))
}

// Invariant 11: OCR markdown > OCR_TEXT_MAX_BYTES is truncated with a marker.
func TestTruncateMarkdown_AppendsMarkerWhenOverLimit(t *testing.T) {
	long := strings.Repeat("a", 1000)
	out := TruncateMarkdown(long, 100)
	assert.LessOrEqual(t, len(out), 200)
	assert.Contains(t, out, "truncated")
}

func TestMistralProvider_RejectsNonHTTPSScheme(t *testing.T) {
	cfg := &config.OCRConfig{Endpoint: "https://ocr.example.com", AllowedHosts: []string{"api.example.com"}}
	p := NewMistralProvider(cfg, testLogger(), testBreakerManager())

	_, err := p.Extract(context.Background(), "http://api.example.com/inv/1.pdf")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestMistralProvider_RejectsDisallowedHost(t *testing.T) {
	cfg := &config.OCRConfig{Endpoint: "https://ocr.example.com", AllowedHosts: []string{"api.example.com"}}
	p := NewMistralProvider(cfg, testLogger(), testBreakerManager())

	_, err := p.Extract(context.Background(), "https://evil.example.com/inv/1.pdf")
	require.Error(t, err)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

// fakeProvider lets fallback tests drive a scripted sequence of
// responses without a real Mistral endpoint.
type fakeProvider struct {
	calls   []string
	results []*Result
	errs    []error
}

func (f *fakeProvider) Extract(ctx context.Context, pdfRef string) (*Result, error) {
	i := len(f.calls)
	f.calls = append(f.calls, pdfRef)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.results[i], nil
}

func TestProviderWithFallback_PassesThroughOnSuccess(t *testing.T) {
	fake := &fakeProvider{results: []*Result{{Markdown: "ok", Provider: "mistral"}}}
	decorated := NewProviderWithFallback(fake, nil, testLogger())

	result, err := decorated.Extract(context.Background(), "https://api.example.com/inv/1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Markdown)
	assert.Len(t, fake.calls, 1)
}

func TestProviderWithFallback_DoesNotFallbackOnOtherErrors(t *testing.T) {
	fake := &fakeProvider{errs: []error{errs.Auth(errs.StageOCR, "bad key", nil)}}
	decorated := NewProviderWithFallback(fake, nil, testLogger())

	_, err := decorated.Extract(context.Background(), "https://api.example.com/inv/1.pdf")
	require.Error(t, err)
	assert.Equal(t, errs.KindAuth, errs.KindOf(err))
	assert.Len(t, fake.calls, 1)
}
