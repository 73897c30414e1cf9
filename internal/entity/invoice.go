package entity

import (
	"encoding/json"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// InvoiceRecord is the structured result returned for one uploaded invoice.
type InvoiceRecord struct {
	InvoiceType    constants.InvoiceType `json:"invoice_type" validate:"oneof=purchase sale return compra gasto"`
	CostCenter     string                `json:"cost_center"`
	PaymentMethod  string                `json:"payment_method"`
	ExtractedItems []string              `json:"extracted_items"`
	TotalAmount    float64               `json:"total_amount" validate:"gt=0"`
	Currency       string                `json:"currency"`
	InvoiceDate    string                `json:"invoice_date" validate:"len=10"`
	SupplierName   string                `json:"supplier_name" validate:"notblank"`
	FileName       string                `json:"file_name"`
}

// Per-field defaults used when the model omits a value.
const (
	DefaultCostCenter    = "N/A"
	DefaultPaymentMethod = "unknown"
	DefaultCurrency      = "USD"
	DefaultInvoiceDate   = "2024-01-01"
	DefaultSupplierName  = "N/A"
)

// DefaultRecord is the fully-defaulted record returned when a completion cannot be parsed.
func DefaultRecord() InvoiceRecord {
	return InvoiceRecord{
		InvoiceType:    constants.DefaultInvoiceType,
		CostCenter:     DefaultCostCenter,
		PaymentMethod:  DefaultPaymentMethod,
		ExtractedItems: []string{},
		TotalAmount:    0,
		Currency:       DefaultCurrency,
		InvoiceDate:    DefaultInvoiceDate,
		SupplierName:   DefaultSupplierName,
	}
}

// MarshalJSON always emits extracted_items as a list.
func (r InvoiceRecord) MarshalJSON() ([]byte, error) {
	type plain InvoiceRecord
	if r.ExtractedItems == nil {
		r.ExtractedItems = []string{}
	}
	return json.Marshal(plain(r))
}
