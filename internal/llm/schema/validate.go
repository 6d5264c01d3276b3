package schema

import (
	"fmt"
)

// Validate enforces the structural rules of spec §4.3 against the raw
// decoded JSON object the LLM returned: required-field presence, no
// unknown top-level keys, assumptions must be an array when present,
// and the per-field length caps. reason_code enum membership is
// enforced with downgrade-not-reject semantics by
// internal/extraction.Service (spec §4.5's post-validation sanity
// check / invariant 12), not rejected here -- Validate only checks
// that reason_code is present and is a string, since a reason_code
// that is syntactically valid but outside the enum is recoverable by
// downgrade, while a missing or non-string reason_code is not.
func Validate(schemaName string, data map[string]interface{}) error {
	if schemaName == NameInvoiceType {
		return validateInvoiceType(data)
	}

	specific, ok := typeSpecificKeys[schemaName]
	if !ok {
		return fmt.Errorf("unknown schema %q", schemaName)
	}

	required := append(append([]string{}, baseFieldKeys...), specific...)
	allowed := make(map[string]bool, len(required))
	for _, k := range required {
		allowed[k] = true
	}

	for key := range data {
		if !allowed[key] {
			return fmt.Errorf("unknown top-level field %q", key)
		}
	}

	for _, key := range required {
		value, present := data[key]
		if !present {
			return fmt.Errorf("missing required field %q", key)
		}
		if metadataKeys[key] {
			continue
		}
		if err := validateReasonedField(key, value); err != nil {
			return err
		}
	}

	return nil
}

func validateInvoiceType(data map[string]interface{}) error {
	if len(data) != 1 {
		return fmt.Errorf("invoice_type response must contain exactly one field")
	}
	raw, ok := data["invoice_type"]
	if !ok {
		return fmt.Errorf("missing required field \"invoice_type\"")
	}
	value, ok := raw.(string)
	if !ok {
		return fmt.Errorf("invoice_type must be a string")
	}
	switch value {
	case NameInvoiceGeneral, NameInvoiceInsurance, NameInvoiceUtility, NameInvoiceTax:
		return nil
	default:
		return fmt.Errorf("invoice_type %q is not one of general|insurance|utility|tax", value)
	}
}

func validateReasonedField(fieldName string, raw interface{}) error {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("field %q must be an object", fieldName)
	}

	for key := range obj {
		found := false
		for _, allowed := range reasonedFieldKeys {
			if key == allowed {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("field %q has unknown key %q", fieldName, key)
		}
	}

	reasonCode, ok := obj["reason_code"].(string)
	if !ok || reasonCode == "" {
		return fmt.Errorf("field %q is missing a string reason_code", fieldName)
	}

	if confidence, present := obj["confidence"]; present {
		str, ok := confidence.(string)
		if !ok || !validConfidences[str] {
			return fmt.Errorf("field %q has invalid confidence %v", fieldName, confidence)
		}
	}

	if evidence, present := obj["evidence_snippet"]; present {
		str, ok := evidence.(string)
		if !ok {
			return fmt.Errorf("field %q evidence_snippet must be a string", fieldName)
		}
		if len(str) > maxEvidenceSnippetLen {
			return fmt.Errorf("field %q evidence_snippet exceeds %d characters", fieldName, maxEvidenceSnippetLen)
		}
	}

	if reasoning, present := obj["reasoning"]; present {
		str, ok := reasoning.(string)
		if !ok {
			return fmt.Errorf("field %q reasoning must be a string", fieldName)
		}
		if len(str) > maxReasoningLen {
			return fmt.Errorf("field %q reasoning exceeds %d characters", fieldName, maxReasoningLen)
		}
	}

	if assumptions, present := obj["assumptions"]; present {
		if _, ok := assumptions.([]interface{}); !ok {
			return fmt.Errorf("field %q assumptions must be an array", fieldName)
		}
	}

	return nil
}

// IsValidReasonCode reports whether code is one of the five enum
// values, used by the extraction service's downgrade-on-violation
// post-check (invariant 12).
func IsValidReasonCode(code string) bool {
	return validReasonCodes[code]
}

// MaxClientIDLength is the client_id length cap referenced in §4.3(e)
// outside the ReasonedField shape itself.
const MaxClientIDLength = maxClientIDLen
