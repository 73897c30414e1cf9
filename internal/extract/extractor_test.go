package extract

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

func TestExtractor_Dispatch(t *testing.T) {
	x := NewExtractor(nil)
	xmlDoc := []byte(`<Invoice><InvoiceNumber>INV-001</InvoiceNumber></Invoice>`)
	pdfDoc := buildTextPDF([]string{"Invoice INV-001"})

	testCases := []struct {
		name        string
		content     []byte
		contentType string
		format      constants.Format
		method      string
		reason      string
	}{
		{name: "pdf", content: pdfDoc, contentType: "application/pdf", format: constants.PDF, method: MethodPDFText},
		{name: "application_xml", content: xmlDoc, contentType: "application/xml", format: constants.XML, method: MethodXMLAllowList},
		{name: "text_xml", content: xmlDoc, contentType: "text/xml", format: constants.XML, method: MethodXMLAllowList},
		{name: "xml_with_charset_param", content: xmlDoc, contentType: "text/xml; charset=utf-8", format: constants.XML, method: MethodXMLAllowList},
		{name: "png_rejected", content: []byte{0x89, 'P', 'N', 'G'}, contentType: "image/png", reason: common.ReasonUnsupportedMediaType},
		{name: "empty_type_rejected", content: xmlDoc, contentType: "", reason: common.ReasonUnsupportedMediaType},
		{name: "json_rejected", content: []byte(`{}`), contentType: "application/json", reason: common.ReasonUnsupportedMediaType},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := x.Extract(context.Background(), tc.content, tc.contentType)
			if tc.reason != "" {
				require.Error(t, err)
				assert.Equal(t, common.CodeBadRequest, common.CodeOf(err))
				assert.Equal(t, tc.reason, common.ReasonOf(err))
				assert.Contains(t, err.Error(), tc.contentType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.format, res.Format)
			assert.Equal(t, tc.method, res.Method)
			assert.NotEmpty(t, res.Text)
		})
	}
}

func TestExtractXML_AllowListInDocumentOrder(t *testing.T) {
	x := NewExtractor(nil)
	doc := `<Invoice><InvoiceNumber>INV-001</InvoiceNumber><Total>1000.00</Total></Invoice>`

	res, err := x.Extract(context.Background(), []byte(doc), "application/xml")
	require.NoError(t, err)

	assert.Equal(t, "InvoiceNumber: INV-001\nTotal: 1000.00\n", res.Text)
	assert.Equal(t, 2, res.Elements)
	assert.Equal(t, MethodXMLAllowList, res.Method)
}

func TestExtractXML_DuplicatesAndNesting(t *testing.T) {
	x := NewExtractor(nil)
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<Factura>
  <Supplier>  ACME S.A.  </Supplier>
  <Conceptos>
    <Description>Widget</Description>
    <Price>10.00</Price>
    <Description>Gadget</Description>
    <Price>20.00</Price>
  </Conceptos>
  <Notes>ignored because other tags matched</Notes>
  <Total>30.00</Total>
</Factura>`

	res, err := x.Extract(context.Background(), []byte(doc), "text/xml")
	require.NoError(t, err)

	want := "Supplier: ACME S.A.\n" +
		"Description: Widget\n" +
		"Price: 10.00\n" +
		"Description: Gadget\n" +
		"Price: 20.00\n" +
		"Total: 30.00\n"
	assert.Equal(t, want, res.Text)
}

func TestExtractXML_NamespacedElementsMatchOnLocalName(t *testing.T) {
	x := NewExtractor(nil)
	doc := `<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4"><cfdi:Total>99.50</cfdi:Total></cfdi:Comprobante>`

	res, err := x.Extract(context.Background(), []byte(doc), "application/xml")
	require.NoError(t, err)
	assert.Equal(t, "Total: 99.50\n", res.Text)
}

func TestExtractXML_FallbackToAllElements(t *testing.T) {
	x := NewExtractor(nil)
	doc := `<Doc>header<Number>A-17</Number><Due>2024-03-01</Due><Empty>   </Empty></Doc>`

	res, err := x.Extract(context.Background(), []byte(doc), "application/xml")
	require.NoError(t, err)

	assert.Equal(t, "Doc: header\nNumber: A-17\nDue: 2024-03-01\n", res.Text)
	assert.Equal(t, MethodXMLAll, res.Method)
	assert.Equal(t, 3, res.Elements)
}

func TestExtractXML_RawWhenNoText(t *testing.T) {
	x := NewExtractor(nil)
	doc := `<Invoice><Total/><Supplier>   </Supplier></Invoice>`

	res, err := x.Extract(context.Background(), []byte(doc), "application/xml")
	require.NoError(t, err)

	assert.Equal(t, doc, res.Text)
	assert.Equal(t, MethodXMLRaw, res.Method)
}

func TestExtractXML_Malformed(t *testing.T) {
	x := NewExtractor(nil)

	testCases := []struct {
		name    string
		content []byte
	}{
		{name: "unbalanced_tags", content: []byte(`<Invoice><Total>1</Invoice>`)},
		{name: "unclosed_root", content: []byte(`<Invoice><Total>1</Total>`)},
		{name: "empty_document", content: []byte(``)},
		{name: "two_roots", content: []byte(`<A>1</A><B>2</B>`)},
		{name: "invalid_utf8", content: []byte("<Invoice><Total>\xff\xfe</Total></Invoice>")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := x.Extract(context.Background(), tc.content, "application/xml")
			require.Error(t, err)
			assert.Equal(t, common.CodeBadRequest, common.CodeOf(err))
			assert.Equal(t, common.ReasonMalformedDocument, common.ReasonOf(err))
			assert.Contains(t, err.Error(), "Error parsing XML file")
			assert.Empty(t, res.Text)
		})
	}
}

func TestExtractPDF_PagesInOrder(t *testing.T) {
	x := NewExtractor(nil)
	doc := buildTextPDF([]string{"Invoice INV-001", "", "Total 1000.00"})

	res, err := x.Extract(context.Background(), doc, "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Pages)
	p1 := strings.Index(res.Text, "\n--- Page 1 ---\n")
	p2 := strings.Index(res.Text, "\n--- Page 2 ---\n")
	p3 := strings.Index(res.Text, "\n--- Page 3 ---\n")
	require.True(t, p1 == 0 && p1 < p2 && p2 < p3, "page markers out of order: %q", res.Text)

	assert.Contains(t, res.Text[p1:p2], "Invoice INV-001")
	assert.Equal(t, "\n--- Page 2 ---\n", res.Text[p2:p3])
	assert.Contains(t, res.Text[p3:], "Total 1000.00")
}

func TestExtractPDF_Malformed(t *testing.T) {
	x := NewExtractor(nil)

	_, err := x.Extract(context.Background(), []byte("this is definitely not a pdf document"), "application/pdf")
	require.Error(t, err)
	assert.Equal(t, common.ReasonMalformedDocument, common.ReasonOf(err))
	assert.Contains(t, err.Error(), "Error processing PDF file")
}

func TestTextFromContentStream(t *testing.T) {
	testCases := []struct {
		name   string
		stream string
		want   string
	}{
		{
			name:   "single_line_operators",
			stream: "BT /F1 12 Tf 72 720 Td (Hello World) Tj ET",
			want:   "Hello World",
		},
		{
			name:   "tj_array_with_kerning",
			stream: "BT\n[(Inv) -30 (oice) -250 (#42)] TJ\nET",
			want:   "Invoice #42",
		},
		{
			name:   "line_moves",
			stream: "BT\n(Supplier: ACME) Tj\n0 -14 Td\n(Total: 10.00) Tj\nT*\n(Paid) '\nET",
			want:   "Supplier: ACME\nTotal: 10.00\nPaid",
		},
		{
			name:   "escapes_and_hex",
			stream: `BT (Caf\351 \(main\)) Tj 0 -14 Td <4F4B> Tj ET`,
			want:   "Café (main)\nOK",
		},
		{
			name:   "no_text",
			stream: "q 100 0 0 100 72 692 cm /Im1 Do Q",
			want:   "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, textFromContentStream([]byte(tc.stream)))
		})
	}
}

// buildTextPDF creates a valid PDF with one page per entry and proper xref
// offsets. An empty entry produces a page without a content stream.
func buildTextPDF(pages []string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	// 1 catalog, 2 pages, 3 font, then (page, content) pairs
	nObjs := 3 + 2*len(pages)
	offsets := make([]int, nObjs+1)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = strconv.Itoa(4+2*i) + " 0 R"
	}
	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [" + strings.Join(kids, " ") + "] /Count " + strconv.Itoa(len(pages)) + " >>\nendobj\n")

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, text := range pages {
		pageObj := 4 + 2*i
		contentObj := pageObj + 1

		offsets[pageObj] = b.Len()
		b.WriteString(strconv.Itoa(pageObj) + " 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] ")
		if text != "" {
			b.WriteString("/Contents " + strconv.Itoa(contentObj) + " 0 R ")
		}
		b.WriteString("/Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n")

		escaped := strings.ReplaceAll(text, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, "(", `\(`)
		escaped = strings.ReplaceAll(escaped, ")", `\)`)
		stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + escaped + ") Tj\nET"

		offsets[contentObj] = b.Len()
		b.WriteString(strconv.Itoa(contentObj) + " 0 obj\n<< /Length " + strconv.Itoa(len(stream)) + " >>\nstream\n")
		b.WriteString(stream)
		b.WriteString("\nendstream\nendobj\n")
	}

	xrefOffset := b.Len()
	b.WriteString("xref\n0 " + strconv.Itoa(nObjs+1) + "\n")
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= nObjs; i++ {
		b.WriteString(padOffset(offsets[i]))
		b.WriteString(" 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size " + strconv.Itoa(nObjs+1) + " /Root 1 0 R >>\nstartxref\n")
	b.WriteString(strconv.Itoa(xrefOffset))
	b.WriteString("\n%%EOF\n")
	return []byte(b.String())
}

func padOffset(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 10 {
		s = "0" + s
	}
	return s
}
