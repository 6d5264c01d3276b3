package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OCR and LLM call metrics (C2/C3), grounded on the teacher's
// worker-processing histograms but scoped to the two external
// providers this pipeline calls.
var (
	OCRCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_ocr_calls_total",
			Help: "Total number of OCR provider calls by decision outcome",
		},
		[]string{"provider", "decision"},
	)

	OCRDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invoice_ocr_duration_seconds",
			Help:    "OCR provider call duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)

	OCRTextBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invoice_ocr_text_bytes",
			Help:    "Size in bytes of OCR markdown before retrieval truncation",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12),
		},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_llm_calls_total",
			Help: "Total number of LLM GenerateObject calls by stage",
		},
		[]string{"stage", "outcome"},
	)

	LLMTokensUsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invoice_llm_tokens_used_total",
			Help: "Total tokens consumed by LLM calls by stage",
		},
		[]string{"stage"},
	)

	LLMDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invoice_llm_duration_seconds",
			Help:    "LLM call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 900},
		},
		[]string{"stage"},
	)

	CircuitBreakerStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "invoice_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"name"},
	)
)

func RecordOCRCall(provider, decision string, durationSeconds float64) {
	OCRCallsTotal.WithLabelValues(provider, decision).Inc()
	OCRDurationSeconds.WithLabelValues(provider).Observe(durationSeconds)
}

func RecordOCRTextSize(bytes int) {
	OCRTextBytes.Observe(float64(bytes))
}

func RecordLLMCall(stage, outcome string, durationSeconds float64, tokensUsed int) {
	LLMCallsTotal.WithLabelValues(stage, outcome).Inc()
	LLMDurationSeconds.WithLabelValues(stage).Observe(durationSeconds)
	LLMTokensUsedTotal.WithLabelValues(stage).Add(float64(tokensUsed))
}

func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerStateGauge.WithLabelValues(name).Set(float64(state))
}
