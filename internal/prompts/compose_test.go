package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tucentropdf/engine-v2/internal/llm"
	"github.com/tucentropdf/engine-v2/internal/llm/schema"
)

// TestExtractPrompt_FragmentOrderIsStable is the golden-file-style test
// spec §4.4 calls for: an accidental reorder of sharedExtractionFragments
// fails this test because the fixed substrings would appear out of
// sequence in the composed system message.
func TestExtractPrompt_FragmentOrderIsStable(t *testing.T) {
	messages := ExtractPrompt(schema.NameInvoiceGeneral, "body")
	require.Len(t, messages, 2)
	system := messages[0].Content

	order := []string{
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

	lastIndex := -1
	for _, fragment := range order {
		idx := strings.Index(system, fragment)
		require.Greater(t, idx, lastIndex, "fragment out of order: %q", fragment[:30])
		lastIndex = idx
	}
}

func TestExtractPrompt_AppendsTypeSpecificBlockLast(t *testing.T) {
	messages := ExtractPrompt(schema.NameInvoiceTax, "body")
	system := messages[0].Content
	require.Greater(t, strings.Index(system, fragmentTaxSpecific), strings.Index(system, fragmentReasonCodeEnum))
}

func TestExtractPrompt_GeneralHasNoTypeSpecificBlock(t *testing.T) {
	messages := ExtractPrompt(schema.NameInvoiceGeneral, "body")
	system := messages[0].Content
	assert.NotContains(t, system, fragmentInsuranceSpecific)
	assert.NotContains(t, system, fragmentUtilitySpecific)
	assert.NotContains(t, system, fragmentTaxSpecific)
}

func TestExtractPrompt_WrapsMarkdownInOCRMarkers(t *testing.T) {
	messages := ExtractPrompt(schema.NameInvoiceGeneral, "Invoice #42")
	user := messages[1].Content
	assert.True(t, strings.HasPrefix(user, ocrStartMarker))
	assert.True(t, strings.HasSuffix(user, ocrEndMarker))
	assert.Contains(t, user, "Invoice #42")
}

func TestClassifyPrompt_AsksForInvoiceTypeOnly(t *testing.T) {
	messages := ClassifyPrompt("some markdown")
	require.Len(t, messages, 2)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "invoice_type")
	assert.Contains(t, messages[1].Content, "some markdown")
}
