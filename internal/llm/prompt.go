package llm

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/doc-intake/constants"
)

// DefaultMaxInputChars bounds how much document text goes into one prompt.
const DefaultMaxInputChars = 6000

// docTypeGuidance adds what matters for each classified type.
var docTypeGuidance = map[string]string{
	"EICR": "This is an Electrical Installation Condition Report. Put the inspection date and the next inspection due date in key_dates. " +
		"Set outcome to SATISFACTORY or UNSATISFACTORY as stated. List every C1, C2 and FI observation in blocking_issues.",
	"Gas Safety Certificate": "This is a landlord gas safety record (CP12). Put the inspection date and the expiry or next check date in key_dates. " +
		"List appliances marked unsafe, At Risk or Immediately Dangerous in blocking_issues. Use the Gas Safe registration number as reference_number.",
	"Energy Performance Certificate": "This is an EPC. Put the current energy rating band (A-G) in outcome, the date of assessment and the valid-until date in key_dates, " +
		"and the certificate reference number in reference_number.",
	"Fire Risk Assessment": "This is a fire risk assessment. Put the overall risk rating in outcome, the assessment and review dates in key_dates, " +
		"and each significant finding with a deadline in follow_up_actions.",
	"Insurance Schedule": "This is an insurance schedule. Put the insurer in issuing_party, the policy number in reference_number, " +
		"the period start and end dates in key_dates, and premium, sum insured and excess in monetary_values.",
	"Lease": "This is a lease. Put the lease date, term start and term end in key_dates, ground rent and service charge amounts in monetary_values, " +
		"and the landlord in issuing_party.",
	"Major Works Notice": "This is a Section 20 major works notice. Put the notice date and the end of the consultation period in key_dates, " +
		"and the estimated costs in monetary_values.",
	"Asbestos Survey": "This is an asbestos survey. Put the survey date and re-inspection date in key_dates, and list materials requiring action in blocking_issues.",
	"Legionella Risk Assessment": "This is a legionella risk assessment. Put the assessment and review dates in key_dates and remedial actions in follow_up_actions.",
	"Lift Inspection": "This is a LOLER thorough examination report for a lift. Put the examination date and the next examination date in key_dates, " +
		"and list defects requiring action in blocking_issues.",
	"Service Charge Budget": "This is a service charge budget. Put the budget year dates in key_dates and every budget line with its amount in monetary_values.",
}

// BuildSystemPrompt composes the fixed task instructions plus guidance for docType.
func BuildSystemPrompt(docType string) string {
	parts := []string{
		"You extract structured data from UK property management documents. Return ONLY a JSON object that matches the JSON Schema provided.",
		"Fields: document_title, issuing_party, key_dates (list of {label, date}), monetary_values (list of {label, amount, currency}), " +
			"notes, confidence (0..1), blocking_issues (list), follow_up_actions (list), and optionally reference_number, outcome, property_address.",
		"Use ISO-8601 dates (YYYY-MM-DD). Dates in the documents are day-first.",
		"Amounts are numbers without symbols; currency is a 3-letter ISO 4217 code, default " + constants.DefaultCurrency + ".",
		"Set confidence to how sure you are that the fields are right.",
		"Never output null. If a field is not present, use an empty string or empty list.",
	}
	if g, ok := docTypeGuidance[docType]; ok {
		parts = append(parts, g)
	} else if docType != "" && docType != constants.DocTypeUnknown {
		parts = append(parts, "The document was classified as: "+docType+".")
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages hints and the first maxChars characters of text.
func BuildUserPrompt(text string, docType string, hints Hints, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}
	var b strings.Builder
	if f := strings.TrimSpace(hints.Filename); f != "" {
		b.WriteString("Filename: ")
		b.WriteString(f)
		b.WriteString("\n")
	}
	if bld := strings.TrimSpace(hints.Building); bld != "" {
		b.WriteString("Building: ")
		b.WriteString(bld)
		b.WriteString("\n")
	}
	if u := strings.TrimSpace(hints.Unit); u != "" {
		b.WriteString("Unit: ")
		b.WriteString(u)
		b.WriteString("\n")
	}
	if docType != "" {
		b.WriteString("Detected type: ")
		b.WriteString(docType)
		b.WriteString("\n")
	}

	text = strings.TrimSpace(strings.ReplaceAll(text, "\f", "\n\n"))
	b.WriteString("\nDocument text (first ~6k chars):\n")
	if truncated, cut := truncateRunes(text, maxChars); cut {
		b.WriteString(truncated)
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	b.WriteString("\n\nReturn ONLY JSON that matches the provided schema.")
	return b.String()
}

func truncateRunes(s string, max int) (string, bool) {
	if utf8.RuneCountInString(s) <= max {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// BuildPrompt assembles the full request for docType.
func BuildPrompt(text, docType string, hints Hints, maxChars int, temperature float32) Prompt {
	return Prompt{
		System:      BuildSystemPrompt(docType),
		User:        BuildUserPrompt(text, docType, hints, maxChars),
		Temperature: temperature,
		Schema:      BuildResultJSONSchema(),
	}
}

// SchemaText renders a schema for providers that take it as prompt text.
func SchemaText(schema map[string]any) string {
	b, _ := json.MarshalIndent(schema, "", "  ")
	return string(b)
}
