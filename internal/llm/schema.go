package llm

import "github.com/joseph-ayodele/invoice-extractor/constants"

// InvoiceSchemaName labels the structured-output schema sent to the provider.
const InvoiceSchemaName = "invoice_record"

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We pass this to OpenAI as a structured output constraint and also use it locally to
// classify replies. Every field is required so it also satisfies strict mode.
func BuildInvoiceJSONSchema() map[string]any {
	props := map[string]any{
		"invoice_type":    map[string]any{"type": "string", "enum": constants.InvoiceTypeStrings()},
		"cost_center":     map[string]any{"type": "string"},
		"payment_method":  map[string]any{"type": "string"},
		"extracted_items": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"total_amount":    map[string]any{"type": "number", "minimum": 0},
		"currency":        map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		"invoice_date":    map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"supplier_name":   map[string]any{"type": "string", "minLength": 1},
	}
	required := []string{
		"invoice_type", "cost_center", "payment_method", "extracted_items",
		"total_amount", "currency", "invoice_date", "supplier_name",
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}
