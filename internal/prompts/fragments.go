// Package prompts holds the immutable rule fragments composed into
// per-type system prompts (C4), generalizing the teacher's ad hoc
// buildPrompt string-concatenation idiom (internal/ocr/ai.go) into a
// named, ordered fragment table so changing the order is a visible,
// tested code change rather than a silent string edit.
package prompts

const fragmentCoreDisambiguation = `You are extracting structured invoice data from OCR markdown. Distinguish between four invoice types: general, insurance, utility, and tax. Base your classification and extraction strictly on the document text provided; never invent values.`

const fragmentOutputStructure = `Respond with a single raw JSON object only. Do not wrap it in markdown code fences. Do not include any prose before or after the JSON. Every extracted field must be an object with keys: value, confidence, reason_code, and optionally evidence_snippet, reasoning, assumptions.`

const fragmentCommunityAndBillTo = `community_name refers to the property, HOA, or community development district named on the bill, distinct from vendor_name. If the document addresses a "Bill To" party, that party does not automatically become vendor_name or community_name; only assign these fields when the document's own structure supports it.`

const fragmentVendorVsRemittance = `vendor_name is who issued the invoice. payment_remittance_entity is who should be paid, which may differ from the vendor (e.g. a lockbox or collection agency). Never conflate the two: a remittance address does not imply the remittance entity is the vendor.`

const fragmentFinancialMapping = `Map monetary fields by precedence: total_amount_due is the full balance; invoice_current_due_amount is the amount due this period; invoice_past_due_amount is any prior arrears; invoice_late_fee_amount is penalty/interest charges; credit_amount is any credit or overpayment applied. Negative amounts are permitted and meaningful; do not coerce them to zero.`

const fragmentDateSanity = `Dates must be emitted as YYYY-MM-DD or null. invoice_due_date must not precede invoice_date; if the document implies a due date earlier than the invoice date, treat both as unreliable rather than guessing.`

const fragmentIdentifierDisambiguation = `invoice_number identifies this specific bill. account_number identifies the ongoing customer/account relationship. For tax documents, property_id is a parcel or folio identifier and is never the same field as account_number even if the document uses similar-looking strings for both.`

const fragmentRemittanceAddressFormatting = `payment_remittance_address should be emitted as a single string preserving the line breaks of the original mailing address block, including payment_remittance_entity_care_of when a "c/o" or "attn" line is present.`

const fragmentDocumentValidity = `Set valid_input=false only when the document is not a recognizable invoice/bill at all (e.g. a cover letter, blank page, or unrelated document). A bill with missing fields is still valid_input=true.`

const fragmentReasoningGuidance = `reasoning explains, in at most 120 characters, why a value was chosen or why it is null. Do not narrate your process; state the determining fact only.`

const fragmentConfidenceGuidance = `confidence=high only when the value is explicitly labelled in the text. confidence=medium for values inferred from nearby headers or layout conventions. confidence=low for anything guessed or defaulted.`

const fragmentEmissionPolicy = `Omit evidence_snippet and reasoning when confidence=high and the value is non-null. Include both when confidence is medium or low, or when the value is null or ambiguous.`

const fragmentReasonCodeEnum = `reason_code must be exactly one of: explicit_label, nearby_header, inferred_layout, conflict, missing. Never emit any other value.`

const fragmentInsuranceSpecific = `This document is an insurance invoice. Additionally extract policy_start_date, policy_end_date, policy_number, and service_termination (true only if the document explicitly states the policy is being cancelled or not renewed).`

const fragmentUtilitySpecific = `This document is a utility invoice. Additionally extract service_start_date, service_end_date, and service_termination (true only if the document explicitly states service is being disconnected or terminated).`

const fragmentTaxSpecific = `This document is a property tax bill. Additionally extract tax_year (four-digit string) and property_id (parcel/folio identifier, distinct from account_number).`

const classifyInstruction = `Read the OCR markdown below and classify it into exactly one of: general, insurance, utility, tax. An insurance invoice references a policy and coverage period. A utility invoice references metered service and a service period. A tax invoice references a tax year, parcel, or assessed property. Anything else is general. Respond with {"invoice_type": "..."} and nothing else.`

const ocrStartMarker = "--- OCR START ---"
const ocrEndMarker = "--- OCR END ---"
