// Package errs defines the error taxonomy shared by every stage of the
// extraction pipeline (OCR, LLM, job store, orchestrator).
package errs

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
)

// Kind classifies an error for retry and persistence decisions.
type Kind string

const (
	KindValidation            Kind = "VALIDATION"
	KindAuth                  Kind = "AUTH"
	KindQuota                 Kind = "QUOTA"
	KindTimeout               Kind = "TIMEOUT"
	KindTransient             Kind = "TRANSIENT"
	KindProviderUnknownDoctype Kind = "PROVIDER_UNKNOWN_DOCTYPE"
	KindConflict              Kind = "CONFLICT"
	KindNotFound              Kind = "NOT_FOUND"
	KindUnknown               Kind = "UNKNOWN"
)

// Stage names the pipeline stage that originated the error, per spec §4.6.
type Stage string

const (
	StageOCR      Stage = "OCR"
	StageLLM      Stage = "LLM"
	StageComplete Stage = "COMPLETE"
	StageStore    Stage = "STORE"
	StageFetch    Stage = "FETCH"
)

// Error is the structured error carried through the pipeline. Only
// Message is ever persisted (redacted, truncated); Cause and Details
// are for in-process logging.
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s (caused by: %v)", e.Kind, e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a classified error.
func New(kind Kind, stage Stage, message string, cause error) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message, Cause: cause}
}

func Validation(stage Stage, message string, cause error) *Error {
	return New(KindValidation, stage, message, cause)
}

func Auth(stage Stage, message string, cause error) *Error {
	return New(KindAuth, stage, message, cause)
}

func Quota(stage Stage, message string, cause error) *Error {
	return New(KindQuota, stage, message, cause)
}

func Timeout(stage Stage, message string, cause error) *Error {
	return New(KindTimeout, stage, message, cause)
}

func Transient(stage Stage, message string, cause error) *Error {
	return New(KindTransient, stage, message, cause)
}

func ProviderUnknownDoctype(stage Stage, message string, cause error) *Error {
	return New(KindProviderUnknownDoctype, stage, message, cause)
}

func Conflict(stage Stage, message string) *Error {
	return New(KindConflict, stage, message, nil)
}

func NotFound(stage Stage, message string) *Error {
	return New(KindNotFound, stage, message, nil)
}

// KindOf extracts the Kind of err, walking Unwrap chains, defaulting to
// KindUnknown when err is not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryableQuota reports whether err should be retried given
// quotaAttemptsUsed prior QUOTA retries already spent in this call.
// Per spec §7, QUOTA is "treated as TRANSIENT once with backoff;
// further occurrences fatal for the job" -- so it retries only on its
// first occurrence, regardless of ordinary TRANSIENT errors interleaved
// around it.
func IsRetryableQuota(err error, quotaAttemptsUsed int) bool {
	kind := KindOf(err)
	if kind == KindTransient {
		return true
	}
	if kind == KindQuota && quotaAttemptsUsed == 0 {
		return true
	}
	return false
}

// unknownDoctypeMarkers are substrings the Mistral OCR API is known to
// emit when it cannot determine the document type from a bare URL.
var unknownDoctypeMarkers = []string{
	"could not determine document type",
	"unable to determine document type",
	"unknown document type",
}

// Classify is the single pure function mapping a transport/provider
// response to a Kind. Centralising this keeps retry decisions
// consistent across C2/C3/C6, per the Design Notes.
func Classify(stage Stage, statusCode int, body string, transportErr error) *Error {
	lowerBody := strings.ToLower(body)

	if transportErr != nil {
		var netErr net.Error
		if errors.As(transportErr, &netErr) && netErr.Timeout() {
			return Timeout(stage, "request timed out", transportErr)
		}
		return Transient(stage, "transport error", transportErr)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return Auth(stage, "credentials rejected", nil)
	case statusCode == http.StatusTooManyRequests:
		return Quota(stage, "rate limit exceeded", nil)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return Timeout(stage, "upstream timed out", nil)
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		for _, marker := range unknownDoctypeMarkers {
			if strings.Contains(lowerBody, marker) {
				return ProviderUnknownDoctype(stage, body, nil)
			}
		}
		return Validation(stage, body, nil)
	case statusCode >= 500:
		return Transient(stage, fmt.Sprintf("server error: %d", statusCode), nil)
	case statusCode >= 400:
		return Validation(stage, body, nil)
	default:
		return New(KindUnknown, stage, body, nil)
	}
}

const maxMessageBytes = 4096

var (
	queryStringRE = regexp.MustCompile(`\?[^\s"']*`)
	bearerRE      = regexp.MustCompile(`(?i)(bearer|authorization)[\s:]+\S+`)
	dataURLRE     = regexp.MustCompile(`(?i)data:application/pdf;base64,[A-Za-z0-9+/=]+`)
)

// Redact strips URL query-strings, bearer/authorization tokens, and
// inline PDF content from a message before it is persisted or logged,
// then truncates to the 4KB cap from spec §7. Redaction happens at the
// boundary (here), not at the log/store sink.
func Redact(msg string) string {
	msg = dataURLRE.ReplaceAllString(msg, "data:application/pdf;base64,<redacted>")
	msg = bearerRE.ReplaceAllString(msg, "$1 <redacted>")
	msg = queryStringRE.ReplaceAllString(msg, "?<redacted>")
	if len(msg) > maxMessageBytes {
		msg = msg[:maxMessageBytes]
	}
	return msg
}
