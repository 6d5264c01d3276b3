package schema

// Schema names, used both as the GenerateObject schema argument and as
// the Prometheus/log "stage" label.
const (
	NameInvoiceType      = "invoice_type"
	NameInvoiceGeneral   = "general"
	NameInvoiceInsurance = "insurance"
	NameInvoiceUtility   = "utility"
	NameInvoiceTax       = "tax"
)

// InvoiceType is the stage-1 classification schema, spec §4.3(1).
type InvoiceType struct {
	InvoiceType string `json:"invoice_type"`
}

// InvoiceBase is the 16-field schema every invoice type extends, spec §4.3(2).
type InvoiceBase struct {
	InvoiceDate    ReasonedField[string] `json:"invoice_date"`
	InvoiceDueDate ReasonedField[string] `json:"invoice_due_date"`

	InvoiceNumber ReasonedField[string] `json:"invoice_number"`
	AccountNumber ReasonedField[string] `json:"account_number"`

	VendorName    ReasonedField[string] `json:"vendor_name"`
	CommunityName ReasonedField[string] `json:"community_name"`

	PaymentRemittanceEntity       ReasonedField[string] `json:"payment_remittance_entity"`
	PaymentRemittanceEntityCareOf ReasonedField[string] `json:"payment_remittance_entity_care_of"`
	PaymentRemittanceAddress      ReasonedField[string] `json:"payment_remittance_address"`

	TotalAmountDue           ReasonedField[float64] `json:"total_amount_due"`
	InvoiceCurrentDueAmount  ReasonedField[float64] `json:"invoice_current_due_amount"`
	InvoicePastDueAmount     ReasonedField[float64] `json:"invoice_past_due_amount"`
	InvoiceLateFeeAmount     ReasonedField[float64] `json:"invoice_late_fee_amount"`
	CreditAmount             ReasonedField[float64] `json:"credit_amount"`

	Reasoning  string `json:"reasoning"`
	ValidInput bool   `json:"valid_input"`
}

// InvoiceInsurance is base + insurance-specific fields, spec §4.3(3).
type InvoiceInsurance struct {
	InvoiceBase
	PolicyStartDate     ReasonedField[string] `json:"policy_start_date"`
	PolicyEndDate       ReasonedField[string] `json:"policy_end_date"`
	PolicyNumber        ReasonedField[string] `json:"policy_number"`
	ServiceTermination  ReasonedField[bool]   `json:"service_termination"`
}

// InvoiceUtility is base + utility-specific fields, spec §4.3(4).
type InvoiceUtility struct {
	InvoiceBase
	ServiceStartDate   ReasonedField[string] `json:"service_start_date"`
	ServiceEndDate     ReasonedField[string] `json:"service_end_date"`
	ServiceTermination ReasonedField[bool]   `json:"service_termination"`
}

// InvoiceTax is base + tax-specific fields, spec §4.3(5).
type InvoiceTax struct {
	InvoiceBase
	TaxYear    ReasonedField[string] `json:"tax_year"`
	PropertyID ReasonedField[string] `json:"property_id"`
}

// baseFieldKeys enumerates the top-level keys InvoiceBase contributes,
// used by Validate to compute the required/allowed key set per schema.
var baseFieldKeys = []string{
	"invoice_date", "invoice_due_date",
	"invoice_number", "account_number",
	"vendor_name", "community_name",
	"payment_remittance_entity", "payment_remittance_entity_care_of", "payment_remittance_address",
	"total_amount_due", "invoice_current_due_amount", "invoice_past_due_amount", "invoice_late_fee_amount", "credit_amount",
	"reasoning", "valid_input",
}

var typeSpecificKeys = map[string][]string{
	NameInvoiceGeneral:   {},
	NameInvoiceInsurance: {"policy_start_date", "policy_end_date", "policy_number", "service_termination"},
	NameInvoiceUtility:   {"service_start_date", "service_end_date", "service_termination"},
	NameInvoiceTax:       {"tax_year", "property_id"},
}

// reasonedFieldKeys are the keys every non-metadata field carries.
var reasonedFieldKeys = []string{"value", "confidence", "reason_code", "evidence_snippet", "reasoning", "assumptions"}

// metadataKeys are base fields that are NOT ReasonedField-shaped.
var metadataKeys = map[string]bool{"reasoning": true, "valid_input": true}
