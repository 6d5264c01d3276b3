package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tucentropdf/engine-v2/internal/errs"
	"github.com/tucentropdf/engine-v2/internal/llm"
	"github.com/tucentropdf/engine-v2/internal/llm/schema"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// scriptedGenerator returns canned objects/errors by invocation index,
// mirroring the jobstore.MemoryStore / ocr.fakeProvider fake pattern.
type scriptedGenerator struct {
	objects []*llm.Object
	errs    []error
	calls   int
}

func (g *scriptedGenerator) GenerateObject(_ context.Context, _ []llm.Message, _ string) (*llm.Object, error) {
	i := g.calls
	g.calls++
	if i < len(g.errs) && g.errs[i] != nil {
		return nil, g.errs[i]
	}
	return g.objects[i], nil
}

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

func reasonedField(value interface{}, confidence, reasonCode string) map[string]interface{} {
	return map[string]interface{}{
		"value":       value,
		"confidence":  confidence,
		"reason_code": reasonCode,
	}
}

func TestExtract_HappyPath(t *testing.T) {
	gen := &scriptedGenerator{
		objects: []*llm.Object{
			{Data: map[string]interface{}{"invoice_type": "general"}, TokensUsed: 10},
			{Data: map[string]interface{}{
				"invoice_number": reasonedField("INV-1", schema.ConfidenceHigh, schema.ReasonExplicitLabel),
			}, TokensUsed: 50},
		},
	}
	svc := NewService(gen, testLogger())

	out, err := svc.Extract(context.Background(), "some markdown")
	require.NoError(t, err)
	assert.Equal(t, schema.NameInvoiceGeneral, out.InvoiceType)
	assert.Equal(t, 60, out.TokensUsed)
}

func TestExtract_ClassificationFailureDefaultsToGeneral(t *testing.T) {
	gen := &scriptedGenerator{
		objects: []*llm.Object{
			nil,
			{Data: map[string]interface{}{
				"invoice_number": reasonedField("INV-1", schema.ConfidenceHigh, schema.ReasonExplicitLabel),
			}, TokensUsed: 20},
		},
		errs: []error{errs.Validation(errs.StageLLM, "unparseable", nil)},
	}
	svc := NewService(gen, testLogger())

	out, err := svc.Extract(context.Background(), "markdown")
	require.NoError(t, err)
	assert.Equal(t, schema.NameInvoiceGeneral, out.InvoiceType)
	assert.Equal(t, 20, out.TokensUsed)
}

func TestExtract_PropagatesNonValidationClassifyError(t *testing.T) {
	gen := &scriptedGenerator{
		objects: []*llm.Object{nil},
		errs:    []error{errs.New(errs.KindTransient, errs.StageLLM, "timeout", nil)},
	}
	svc := NewService(gen, testLogger())

	_, err := svc.Extract(context.Background(), "markdown")
	require.Error(t, err)
}

func TestExtract_DueBeforeInvoiceConflictNullsBothDates(t *testing.T) {
	gen := &scriptedGenerator{
		objects: []*llm.Object{
			{Data: map[string]interface{}{"invoice_type": "general"}},
			{Data: map[string]interface{}{
				"invoice_date":     reasonedField("2025-06-10", schema.ConfidenceHigh, schema.ReasonExplicitLabel),
				"invoice_due_date": reasonedField("2025-06-01", schema.ConfidenceHigh, schema.ReasonExplicitLabel),
			}},
		},
	}
	svc := NewService(gen, testLogger())

	out, err := svc.Extract(context.Background(), "markdown")
	require.NoError(t, err)

	invoiceDate := out.Data["invoice_date"].(map[string]interface{})
	dueDate := out.Data["invoice_due_date"].(map[string]interface{})
	assert.Nil(t, invoiceDate["value"])
	assert.Nil(t, dueDate["value"])
	assert.Equal(t, schema.ReasonConflict, invoiceDate["reason_code"])
	assert.Equal(t, schema.ReasonConflict, dueDate["reason_code"])
	assert.Equal(t, schema.ConfidenceLow, invoiceDate["confidence"])
}

func TestExtract_InvalidReasonCodeDowngradedToMissing(t *testing.T) {
	gen := &scriptedGenerator{
		objects: []*llm.Object{
			{Data: map[string]interface{}{"invoice_type": "general"}},
			{Data: map[string]interface{}{
				"invoice_number": reasonedField("INV-1", schema.ConfidenceHigh, "not_a_real_code"),
			}},
		},
	}
	svc := NewService(gen, testLogger())

	out, err := svc.Extract(context.Background(), "markdown")
	require.NoError(t, err)

	field := out.Data["invoice_number"].(map[string]interface{})
	assert.Equal(t, schema.ReasonMissing, field["reason_code"])
	assert.Equal(t, schema.ConfidenceLow, field["confidence"])
}

func TestExtract_EmissionPolicyStripsEvidenceOnHighConfidence(t *testing.T) {
	gen := &scriptedGenerator{
		objects: []*llm.Object{
			{Data: map[string]interface{}{"invoice_type": "general"}},
			{Data: map[string]interface{}{
				"invoice_number": map[string]interface{}{
					"value":            "INV-1",
					"confidence":       schema.ConfidenceHigh,
					"reason_code":      schema.ReasonExplicitLabel,
					"evidence_snippet": "line 4: INV-1",
					"reasoning":        "explicitly labelled",
				},
			}},
		},
	}
	svc := NewService(gen, testLogger())

	out, err := svc.Extract(context.Background(), "markdown")
	require.NoError(t, err)

	field := out.Data["invoice_number"].(map[string]interface{})
	_, hasEvidence := field["evidence_snippet"]
	_, hasReasoning := field["reasoning"]
	assert.False(t, hasEvidence)
	assert.False(t, hasReasoning)
}

func TestExtract_EmissionPolicyKeepsEvidenceWhenValueIsNull(t *testing.T) {
	gen := &scriptedGenerator{
		objects: []*llm.Object{
			{Data: map[string]interface{}{"invoice_type": "general"}},
			{Data: map[string]interface{}{
				"invoice_number": map[string]interface{}{
					"value":            nil,
					"confidence":       schema.ConfidenceHigh,
					"reason_code":      schema.ReasonMissing,
					"evidence_snippet": "not found anywhere",
				},
			}},
		},
	}
	svc := NewService(gen, testLogger())

	out, err := svc.Extract(context.Background(), "markdown")
	require.NoError(t, err)

	field := out.Data["invoice_number"].(map[string]interface{})
	assert.Equal(t, "not found anywhere", field["evidence_snippet"])
}

func TestComputeConfidence_AveragesWeightsAcrossFields(t *testing.T) {
	data := map[string]interface{}{
		"invoice_number": reasonedField("INV-1", schema.ConfidenceHigh, schema.ReasonExplicitLabel),
		"account_number": reasonedField("ACC-1", schema.ConfidenceLow, schema.ReasonInferredLayout),
		"reasoning":      "summary text",
		"valid_input":    true,
	}
	got := ComputeConfidence(data)
	assert.InDelta(t, 0.6, got, 0.0001)
}

func TestComputeConfidence_ReturnsZeroWhenNoReasonedFields(t *testing.T) {
	data := map[string]interface{}{"reasoning": "x", "valid_input": true}
	assert.Equal(t, 0.0, ComputeConfidence(data))
}
