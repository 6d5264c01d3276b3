package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reasonedField(value interface{}, confidence, reasonCode string) map[string]interface{} {
	return map[string]interface{}{
		"value":       value,
		"confidence":  confidence,
		"reason_code": reasonCode,
	}
}

func validGeneralPayload() map[string]interface{} {
	data := map[string]interface{}{}
	for _, key := range baseFieldKeys {
		if metadataKeys[key] {
			continue
		}
		data[key] = reasonedField("x", ConfidenceHigh, ReasonExplicitLabel)
	}
	data["reasoning"] = "looks complete"
	data["valid_input"] = true
	return data
}

func TestValidateInvoiceType_AcceptsKnownValues(t *testing.T) {
	for _, v := range []string{"general", "insurance", "utility", "tax"} {
		err := Validate(NameInvoiceType, map[string]interface{}{"invoice_type": v})
		assert.NoError(t, err)
	}
}

func TestValidateInvoiceType_RejectsUnknownValue(t *testing.T) {
	err := Validate(NameInvoiceType, map[string]interface{}{"invoice_type": "bogus"})
	require.Error(t, err)
}

func TestValidate_AcceptsWellFormedGeneralPayload(t *testing.T) {
	err := Validate(NameInvoiceGeneral, validGeneralPayload())
	assert.NoError(t, err)
}

func TestValidate_RejectsMissingRequiredField(t *testing.T) {
	data := validGeneralPayload()
	delete(data, "invoice_number")
	err := Validate(NameInvoiceGeneral, data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoice_number")
}

func TestValidate_RejectsUnknownTopLevelField(t *testing.T) {
	data := validGeneralPayload()
	data["unexpected_field"] = "surprise"
	err := Validate(NameInvoiceGeneral, data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown top-level field")
}

func TestValidate_RejectsNonArrayAssumptions(t *testing.T) {
	data := validGeneralPayload()
	field := data["invoice_number"].(map[string]interface{})
	field["assumptions"] = "not-an-array"
	err := Validate(NameInvoiceGeneral, data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assumptions")
}

func TestValidate_RejectsOversizeEvidenceSnippet(t *testing.T) {
	data := validGeneralPayload()
	field := data["invoice_number"].(map[string]interface{})
	field["evidence_snippet"] = strings.Repeat("a", 241)
	err := Validate(NameInvoiceGeneral, data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evidence_snippet")
}

func TestValidate_InsuranceRequiresTypeSpecificFields(t *testing.T) {
	data := validGeneralPayload()
	err := Validate(NameInvoiceInsurance, data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy_start_date")
}

func TestValidate_InsuranceAcceptsWithTypeSpecificFields(t *testing.T) {
	data := validGeneralPayload()
	data["policy_start_date"] = reasonedField("2025-01-01", ConfidenceHigh, ReasonExplicitLabel)
	data["policy_end_date"] = reasonedField("2026-01-01", ConfidenceHigh, ReasonExplicitLabel)
	data["policy_number"] = reasonedField("POL-1", ConfidenceHigh, ReasonExplicitLabel)
	data["service_termination"] = reasonedField(nil, ConfidenceLow, ReasonMissing)
	err := Validate(NameInvoiceInsurance, data)
	assert.NoError(t, err)
}

func TestIsValidReasonCode(t *testing.T) {
	assert.True(t, IsValidReasonCode(ReasonConflict))
	assert.False(t, IsValidReasonCode("not_a_real_code"))
}
