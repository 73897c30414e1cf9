package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// Format is an export output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat is case-insensitive; an empty selector means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", common.NewBadRequest(common.ReasonUnsupportedFormat,
		fmt.Sprintf("Unsupported format: %q. Available formats: json, csv, xlsx", s), common.ErrInvalidInput)
}

// Envelope is the JSON export body.
type Envelope struct {
	Invoices      []entity.InvoiceRecord `json:"invoices"`
	ExportedBy    string                 `json:"exported_by"`
	ExportDate    string                 `json:"export_date"`
	TotalInvoices int                    `json:"total_invoices"`
}

// File is a rendered export ready to be sent as an attachment.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	sheetName       = "Invoices"
)

var columns = []string{
	"Invoice Type",
	"Cost Center",
	"Payment Method",
	"Total Amount",
	"Currency",
	"Invoice Date",
	"Supplier Name",
	"File Name",
}

// Service renders caller-supplied invoice records; it holds no state of its own.
type Service struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, now: time.Now}
}

// JSON builds the envelope attributed to subject.
func (s *Service) JSON(ctx context.Context, subject string, recs []entity.InvoiceRecord) Envelope {
	if recs == nil {
		recs = []entity.InvoiceRecord{}
	}
	s.logger.Info("export.json.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"rows", len(recs),
	)
	return Envelope{
		Invoices:      recs,
		ExportedBy:    subject,
		ExportDate:    s.now().UTC().Format(time.DateOnly),
		TotalInvoices: len(recs),
	}
}

// CSV writes a header row then one row per record. An empty list yields the header only.
func (s *Service) CSV(ctx context.Context, recs []entity.InvoiceRecord) (File, error) {
	start := time.Now()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(columns); err != nil {
		return File{}, fmt.Errorf("csv write: %w", err)
	}
	for _, r := range recs {
		if err := w.Write(row(r)); err != nil {
			return File{}, fmt.Errorf("csv write: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return File{}, fmt.Errorf("csv flush: %w", err)
	}

	s.logger.Info("export.csv.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return File{Name: "invoices.csv", ContentType: "text/csv", Body: buf.Bytes()}, nil
}

// XLSX returns a workbook with the CSV columns in a sheet named "Invoices".
func (s *Service) XLSX(ctx context.Context, recs []entity.InvoiceRecord) (File, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return File{}, fmt.Errorf("xlsx sheet: %w", err)
	}
	index, err := f.GetSheetIndex(sheetName)
	if err != nil {
		return File{}, fmt.Errorf("xlsx sheet: %w", err)
	}
	f.SetActiveSheet(index)

	for i, h := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	for i, r := range recs {
		rowNum := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, rowNum)
			_ = f.SetCellValue(sheetName, cell, v)
		}
		write(1, string(r.InvoiceType))
		write(2, r.CostCenter)
		write(3, r.PaymentMethod)
		write(4, r.TotalAmount) // numeric cell
		write(5, r.Currency)
		write(6, r.InvoiceDate)
		write(7, r.SupplierName)
		write(8, r.FileName)
	}

	_ = f.SetColWidth(sheetName, "A", "C", 18)
	_ = f.SetColWidth(sheetName, "D", "E", 14)
	_ = f.SetColWidth(sheetName, "F", "F", 14)
	_ = f.SetColWidth(sheetName, "G", "H", 32)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return File{}, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return File{Name: "invoices.xlsx", ContentType: xlsxContentType, Body: buf.Bytes()}, nil
}

// Render produces the attachment for a non-JSON format.
func (s *Service) Render(ctx context.Context, format Format, recs []entity.InvoiceRecord) (File, error) {
	switch format {
	case FormatCSV:
		return s.CSV(ctx, recs)
	case FormatXLSX:
		return s.XLSX(ctx, recs)
	}
	return File{}, common.NewBadRequest(common.ReasonUnsupportedFormat,
		fmt.Sprintf("format %q is not a file export", format), common.ErrInvalidInput)
}

func row(r entity.InvoiceRecord) []string {
	return []string{
		string(r.InvoiceType),
		r.CostCenter,
		r.PaymentMethod,
		formatAmount(r.TotalAmount),
		r.Currency,
		r.InvoiceDate,
		r.SupplierName,
		r.FileName,
	}
}

// formatAmount renders whole amounts with one decimal ("1000.0") and keeps
// the shortest exact form otherwise ("1000.5"). Magnitudes from 1e16 up and
// below 1e-4 switch to exponent form ("1e+16").
func formatAmount(v float64) string {
	if abs := math.Abs(v); abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v == math.Trunc(v) && !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
