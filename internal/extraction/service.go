// Package extraction implements the two-stage classify->extract
// pipeline (C5): spec §4.5.
package extraction

import (
	"context"
	"fmt"

	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/internal/llm"
	"github.com/tucentropdf/engine-v2/internal/llm/schema"
	"github.com/tucentropdf/engine-v2/internal/prompts"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// Generator is the subset of llm.Client the extraction service needs;
// narrowing to an interface lets tests substitute a scripted fake
// instead of hitting the Anthropic API.
type Generator interface {
	GenerateObject(ctx context.Context, messages []llm.Message, schemaName string) (*llm.Object, error)
}

// Output is the result of Extract, spec §4.5.
type Output struct {
	InvoiceType string
	Data        map[string]interface{}
	TokensUsed  int
}

type Service struct {
	llm    Generator
	logger *logger.Logger
}

func NewService(generator Generator, log *logger.Logger) *Service {
	return &Service{llm: generator, logger: log}
}

// Extract runs classify then extract, applying the classification-
// failure default and the post-validation sanity checks spec §4.5
// requires before returning success.
func (s *Service) Extract(ctx context.Context, markdown string) (*Output, error) {
	invoiceType, classifyTokens, err := s.classify(ctx, markdown)
	if err != nil {
		return nil, err
	}

	extractObj, err := s.llm.GenerateObject(ctx, prompts.ExtractPrompt(invoiceType, markdown), invoiceType)
	if err != nil {
		return nil, err
	}

	data := extractObj.Data
	applyDueBeforeInvoiceCheck(data)
	applyReasonCodeDowngrade(data)
	applyEmissionPolicy(data)

	return &Output{
		InvoiceType: invoiceType,
		Data:        data,
		TokensUsed:  classifyTokens + extractObj.TokensUsed,
	}, nil
}

// classify calls stage 1; a VALIDATION failure (non-parseable output)
// defaults to "general" per spec §4.5's classification-failure policy.
// Any other error kind propagates unchanged.
func (s *Service) classify(ctx context.Context, markdown string) (string, int, error) {
	obj, err := s.llm.GenerateObject(ctx, prompts.ClassifyPrompt(markdown), schema.NameInvoiceType)
	if err != nil {
		if errs.KindOf(err) == errs.KindValidation {
			s.logger.Warn("classification failed, defaulting to general", "error", err.Error())
			return schema.NameInvoiceGeneral, 0, nil
		}
		return "", 0, err
	}

	invoiceType, _ := obj.Data["invoice_type"].(string)
	return invoiceType, obj.TokensUsed, nil
}

// applyDueBeforeInvoiceCheck nulls both dates with reason_code=conflict
// when invoice_due_date precedes invoice_date, spec §4.5.
func applyDueBeforeInvoiceCheck(data map[string]interface{}) {
	invoiceDate, okA := reasonedFieldValue(data, "invoice_date")
	dueDate, okB := reasonedFieldValue(data, "invoice_due_date")
	if !okA || !okB || invoiceDate == "" || dueDate == "" {
		return
	}
	if dueDate >= invoiceDate {
		return
	}

	conflict := map[string]interface{}{
		"value":            nil,
		"confidence":       schema.ConfidenceLow,
		"reason_code":      schema.ReasonConflict,
		"evidence_snippet": fmt.Sprintf("due date %s precedes invoice date %s", dueDate, invoiceDate),
	}
	data["invoice_date"] = cloneWithOverride(conflict)
	data["invoice_due_date"] = cloneWithOverride(conflict)
}

func reasonedFieldValue(data map[string]interface{}, key string) (string, bool) {
	obj, ok := data[key].(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := obj["value"].(string)
	return v, ok
}

func cloneWithOverride(override map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(override))
	for k, v := range override {
		out[k] = v
	}
	return out
}

// applyReasonCodeDowngrade downgrades any field whose reason_code is
// outside the enum to "missing" with confidence=low, invariant 12.
func applyReasonCodeDowngrade(data map[string]interface{}) {
	for key, raw := range data {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		code, ok := obj["reason_code"].(string)
		if !ok || schema.IsValidReasonCode(code) {
			continue
		}
		obj["reason_code"] = schema.ReasonMissing
		obj["confidence"] = schema.ConfidenceLow
		data[key] = obj
	}
}

// applyEmissionPolicy strips evidence_snippet/reasoning when
// confidence=high and the value is non-null, reducing noise per spec §4.5.
func applyEmissionPolicy(data map[string]interface{}) {
	for key, raw := range data {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		confidence, _ := obj["confidence"].(string)
		if confidence != schema.ConfidenceHigh {
			continue
		}
		if obj["value"] == nil {
			continue
		}
		delete(obj, "evidence_snippet")
		delete(obj, "reasoning")
		data[key] = obj
	}
}
