package prompts

import (
	"fmt"
	"strings"

	"github.com/tucentropdf/engine-v2/internal/llm"
	"github.com/tucentropdf/engine-v2/internal/llm/schema"
)

// sharedExtractionFragments is the fixed composition order every
// extract prompt shares before its type-specific block, spec §4.4.
// Reordering this slice is a behaviour change and must be covered by
// TestExtractPrompt_FragmentOrderIsStable in compose_test.go.
var sharedExtractionFragments = []string{
	fragmentCoreDisambiguation,
	fragmentOutputStructure,
	fragmentCommunityAndBillTo,
	fragmentVendorVsRemittance,
	fragmentFinancialMapping,
	fragmentDateSanity,
	fragmentIdentifierDisambiguation,
	fragmentRemittanceAddressFormatting,
	fragmentDocumentValidity,
	fragmentReasoningGuidance,
	fragmentConfidenceGuidance,
	fragmentEmissionPolicy,
	fragmentReasonCodeEnum,
}

var typeSpecificFragment = map[string]string{
	schema.NameInvoiceGeneral:   "",
	schema.NameInvoiceInsurance: fragmentInsuranceSpecific,
	schema.NameInvoiceUtility:   fragmentUtilitySpecific,
	schema.NameInvoiceTax:       fragmentTaxSpecific,
}

// ClassifyPrompt builds the stage-1 classification prompt, spec §4.4.
func ClassifyPrompt(markdown string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: classifyInstruction},
		{Role: llm.RoleUser, Content: wrapOCR(markdown)},
	}
}

// ExtractPrompt composes the shared fragments in fixed order, followed
// by the type-specific block, followed by the markdown wrapped in
// explicit OCR markers so OCR content can never be read as an
// instruction, spec §4.4.
func ExtractPrompt(invoiceType, markdown string) []llm.Message {
	var system strings.Builder
	for i, fragment := range sharedExtractionFragments {
		if i > 0 {
			system.WriteString("\n\n")
		}
		system.WriteString(fragment)
	}
	if specific, ok := typeSpecificFragment[invoiceType]; ok && specific != "" {
		system.WriteString("\n\n")
		system.WriteString(specific)
	}

	return []llm.Message{
		{Role: llm.RoleSystem, Content: system.String()},
		{Role: llm.RoleUser, Content: wrapOCR(markdown)},
	}
}

func wrapOCR(markdown string) string {
	return fmt.Sprintf("%s\n%s\n%s", ocrStartMarker, markdown, ocrEndMarker)
}
