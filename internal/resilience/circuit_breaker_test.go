package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tucentropdf/engine-v2/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", testLogger(), &Config{
		MaxFailures:         3,
		Timeout:             50 * time.Millisecond,
		HalfOpenSuccesses:   1,
		HalfOpenMaxRequests: 1,
		FailureThreshold:    0.5,
		SampleSize:          10,
	})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func() error { return boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(context.Background(), func() error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenRecoversOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test-recover", testLogger(), &Config{
		MaxFailures:         1,
		Timeout:             10 * time.Millisecond,
		HalfOpenSuccesses:   1,
		HalfOpenMaxRequests: 1,
		FailureThreshold:    0.5,
		SampleSize:          10,
	})

	boom := errors.New("boom")
	require.ErrorIs(t, cb.Execute(context.Background(), func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.GetState())

	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("test-reset", testLogger(), DefaultConfig())
	cb.ForceOpen()
	assert.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerManager_GetReturnsSameInstanceForSameName(t *testing.T) {
	cbm := NewCircuitBreakerManager(testLogger())

	a := cbm.Get("llm", LLMConfig())
	b := cbm.Get("llm", LLMConfig())
	assert.Same(t, a, b)

	all := cbm.GetAll()
	assert.Len(t, all, 1)
	assert.Contains(t, all, "llm")
}

func TestCircuitBreakerManager_ResetAllClosesForcedBreakers(t *testing.T) {
	cbm := NewCircuitBreakerManager(testLogger())
	llm := cbm.Get("llm", LLMConfig())
	ocr := cbm.Get("ocr.mistral", MistralOCRConfig())

	llm.ForceOpen()
	ocr.ForceOpen()

	metrics := cbm.GetMetrics()
	assert.Equal(t, "open", metrics["llm"].State)
	assert.Equal(t, "open", metrics["ocr.mistral"].State)

	cbm.ResetAll()

	metrics = cbm.GetMetrics()
	assert.Equal(t, "closed", metrics["llm"].State)
	assert.Equal(t, "closed", metrics["ocr.mistral"].State)
}

func TestCircuitBreakerManager_MonitorCircuitBreakersStopsOnContextCancel(t *testing.T) {
	cbm := NewCircuitBreakerManager(testLogger())
	cbm.Get("llm", LLMConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cbm.MonitorCircuitBreakers(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("MonitorCircuitBreakers did not return after context cancellation")
	}
}
