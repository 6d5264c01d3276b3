package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"OCR_ENDPOINT", "OCR_API_KEY", "ALLOWED_PDF_HOSTS",
		"LLM_ENDPOINT", "LLM_API_KEY", "LLM_MODEL",
		"DATABASE_URL", "OCR_TEXT_MAX_BYTES", "LLM_TEMPERATURE",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("OCR_ENDPOINT", "https://ocr.example.com")
	os.Setenv("OCR_API_KEY", "ocr-key")
	os.Setenv("ALLOWED_PDF_HOSTS", "api.example.com, cdn.example.com")
	os.Setenv("LLM_ENDPOINT", "https://llm.example.com")
	os.Setenv("LLM_API_KEY", "llm-key")
	os.Setenv("LLM_MODEL", "claude-sonnet-4")
	os.Setenv("DATABASE_URL", "postgres://localhost/invoices")
}

func TestLoad_MissingRequiredKeysFails(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OCR_ENDPOINT")
}

func TestLoad_AppliesDefaults(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1<<20), cfg.OCR.TextMaxBytes)
	assert.Equal(t, int64(256<<10), cfg.OCR.RetrievalMaxBytes)
	assert.Equal(t, int64(15<<20), cfg.OCR.MaxPDFBytes)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 25, cfg.WorkerConcurrency)
	assert.Equal(t, []string{"api.example.com", "cdn.example.com"}, cfg.OCR.AllowedHosts)
}

func TestOCRConfig_IsAllowedHost(t *testing.T) {
	cfg := &OCRConfig{AllowedHosts: []string{"api.example.com"}}

	assert.True(t, cfg.IsAllowedHost("api.example.com"))
	assert.True(t, cfg.IsAllowedHost("API.EXAMPLE.COM"))
	assert.False(t, cfg.IsAllowedHost("evil.example.com"))
}
