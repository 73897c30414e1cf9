package llm

import (
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

const (
	// MaxPromptChars bounds the document text sent to the model, in characters.
	MaxPromptChars = 12000
	// TruncationMarker is appended after the kept prefix of an over-long document.
	TruncationMarker = "\n\n[CONTENT TRUNCATED...]"
)

// Truncate keeps the first MaxPromptChars characters and appends TruncationMarker.
// The second result reports whether anything was cut.
func Truncate(text string) (string, bool) {
	n := 0
	for i := range text {
		if n == MaxPromptChars {
			return text[:i] + TruncationMarker, true
		}
		n++
	}
	return text, false
}

// BuildSystemPrompt composes the fixed instruction: allowed invoice types, field
// defaults, date format and the JSON-only reply contract.
func BuildSystemPrompt() string {
	parts := []string{
		"You are an expert invoice processor. Extract the structured information from the following invoice.",
		"'invoice_type' MUST be exactly one of: " + strings.Join(constants.InvoiceTypeStrings(), ", ") + ".",
		"If you cannot determine the type, use '" + string(constants.DefaultInvoiceType) + "'.",
		"If you cannot infer 'cost_center' or 'payment_method', use '" + entity.DefaultCostCenter + "' or '" + entity.DefaultPaymentMethod + "'.",
		"'invoice_date' MUST be formatted as YYYY-MM-DD.",
		"'currency' is a 3-letter code; default to " + entity.DefaultCurrency + " if uncertain.",
		"'extracted_items' is a list of short line-item descriptions.",
		"'total_amount' is a number without currency symbols.",
		"Return ONLY a JSON object with exactly these fields: invoice_type, cost_center, payment_method, extracted_items, total_amount, currency, invoice_date, supplier_name.",
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt returns the (possibly truncated) document text as the user turn.
func BuildUserPrompt(text string) string {
	out, _ := Truncate(text)
	return out
}
