package constants

import (
	"encoding/json"
	"fmt"
)

type InvoiceType string

const (
	Purchase InvoiceType = "purchase"
	Sale     InvoiceType = "sale"
	Return   InvoiceType = "return"
	Compra   InvoiceType = "compra"
	Gasto    InvoiceType = "gasto"
)

// DefaultInvoiceType is used whenever the model cannot determine a type.
const DefaultInvoiceType = Gasto

var allInvoiceTypes = []InvoiceType{
	Purchase,
	Sale,
	Return,
	Compra,
	Gasto,
}

func InvoiceTypeStrings() []string {
	result := make([]string, len(allInvoiceTypes))
	for i, t := range allInvoiceTypes {
		result[i] = string(t)
	}
	return result
}

// ParseInvoiceType matches input exactly against the closed set.
func ParseInvoiceType(input string) (InvoiceType, bool) {
	for _, t := range allInvoiceTypes {
		if input == string(t) {
			return t, true
		}
	}
	return "", false
}

func (t InvoiceType) Valid() bool {
	_, ok := ParseInvoiceType(string(t))
	return ok
}

// UnmarshalJSON rejects values outside the closed set.
func (t *InvoiceType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invoice_type must be a string: %w", err)
	}
	parsed, ok := ParseInvoiceType(s)
	if !ok {
		return fmt.Errorf("invalid invoice_type %q", s)
	}
	*t = parsed
	return nil
}
