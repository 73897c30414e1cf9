package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

// Outcome classifies how a completion was turned into a record.
type Outcome string

const (
	// OutcomeParsed: the reply conformed to the invoice schema.
	OutcomeParsed Outcome = "parsed"
	// OutcomePartial: the reply decoded but defaults were substituted or it missed the schema.
	OutcomePartial Outcome = "partial"
	// OutcomeDefaulted: the reply was unusable and the default record was returned.
	OutcomeDefaulted Outcome = "defaulted"
)

var errNoJSONObject = errors.New("no JSON object in completion")

// fieldError is a coercion failure; any one of them defaults the whole record.
type fieldError struct {
	field string
	msg   string
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.field, e.msg)
}

// ParseCompletion turns a free-text completion into a record. It returns the
// record, the JSON object it was decoded from, and the names of fields that
// were missing or null and received their default. A non-nil error means the
// record is entity.DefaultRecord().
func ParseCompletion(content string) (entity.InvoiceRecord, []byte, []string, error) {
	obj, ok := llm.LocateJSONObject(content)
	if !ok {
		return entity.DefaultRecord(), nil, nil, errNoJSONObject
	}
	rec, defaulted, err := decodeRecord(obj)
	if err != nil {
		return entity.DefaultRecord(), obj, nil, err
	}
	return rec, obj, defaulted, nil
}

func decodeRecord(obj []byte) (entity.InvoiceRecord, []string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(obj, &m); err != nil {
		return entity.InvoiceRecord{}, nil, fmt.Errorf("decode json: %w", err)
	}

	rec := entity.DefaultRecord()
	var defaulted []string

	if raw, ok := present(m, "invoice_type"); ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return entity.InvoiceRecord{}, nil, &fieldError{"invoice_type", "not a string"}
		}
		t, ok := constants.ParseInvoiceType(s)
		if !ok {
			return entity.InvoiceRecord{}, nil, &fieldError{"invoice_type", fmt.Sprintf("%q is not one of %s", s, strings.Join(constants.InvoiceTypeStrings(), ", "))}
		}
		rec.InvoiceType = t
	} else {
		defaulted = append(defaulted, "invoice_type")
	}

	textFields := []struct {
		name string
		dst  *string
	}{
		{"cost_center", &rec.CostCenter},
		{"payment_method", &rec.PaymentMethod},
		{"currency", &rec.Currency},
		{"invoice_date", &rec.InvoiceDate},
		{"supplier_name", &rec.SupplierName},
	}
	for _, f := range textFields {
		raw, ok := present(m, f.name)
		if !ok {
			defaulted = append(defaulted, f.name)
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return entity.InvoiceRecord{}, nil, &fieldError{f.name, "not a string"}
		}
	}

	if raw, ok := present(m, "extracted_items"); ok {
		items, err := decodeItems(raw)
		if err != nil {
			return entity.InvoiceRecord{}, nil, err
		}
		rec.ExtractedItems = items
	} else {
		defaulted = append(defaulted, "extracted_items")
	}

	if raw, ok := present(m, "total_amount"); ok {
		if amount, ok := coerceAmount(raw); ok {
			rec.TotalAmount = amount
		} else {
			defaulted = append(defaulted, "total_amount")
		}
	} else {
		defaulted = append(defaulted, "total_amount")
	}

	return rec, defaulted, nil
}

// present reports a key that exists and is not JSON null.
func present(m map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := m[key]
	if !ok {
		return nil, false
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func decodeItems(raw json.RawMessage) ([]string, error) {
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, &fieldError{"extracted_items", "not a list"}
	}
	items := make([]string, 0, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, &fieldError{"extracted_items", fmt.Sprintf("element %d is not a string", i)}
		}
		items = append(items, s)
	}
	return items, nil
}

// coerceAmount accepts a JSON number or a numeric string. Anything else,
// including NaN and infinities, is treated as missing.
func coerceAmount(raw json.RawMessage) (float64, bool) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ValidateRecord reports every failed check: invoice_type in the closed set,
// total_amount > 0, invoice_date exactly 10 characters, supplier_name not blank.
func ValidateRecord(rec entity.InvoiceRecord) error {
	return common.ValidateStruct(rec)
}

// Validate is the advisory boolean form of ValidateRecord. Nothing in the
// pipeline calls it; callers decide whether to reject a low-quality record.
func Validate(rec entity.InvoiceRecord) bool {
	return ValidateRecord(rec) == nil
}
