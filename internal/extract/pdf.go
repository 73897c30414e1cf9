package extract

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// kerning adjustments in a TJ array at or below this value render as a space
const tjSpaceThreshold = -200

func (e *Extractor) extractPDF(content []byte) (res TextExtractionResult, err error) {
	res.Method = MethodPDFText

	// pdfcpu panics on some corrupt xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = malformedPDF(fmt.Errorf("%v", r))
		}
	}()

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), model.NewDefaultConfiguration())
	if err != nil {
		return res, malformedPDF(err)
	}

	var b strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		text, warn := pageText(ctx, pageNr)
		if warn != "" {
			res.Warnings = append(res.Warnings, warn)
		}
		b.WriteString("\n--- Page ")
		b.WriteString(strconv.Itoa(pageNr))
		b.WriteString(" ---\n")
		b.WriteString(text)
	}
	res.Text = b.String()
	res.Pages = ctx.PageCount
	return res, nil
}

func malformedPDF(err error) error {
	return common.NewBadRequest(common.ReasonMalformedDocument,
		fmt.Sprintf("Error processing PDF file: %v", err), err)
}

// pageText never fails: a page without readable content yields "".
func pageText(ctx *model.Context, pageNr int) (string, string) {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return "", fmt.Sprintf("page %d: %v", pageNr, err)
	}
	if r == nil {
		return "", ""
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Sprintf("page %d: %v", pageNr, err)
	}
	return textFromContentStream(data), ""
}

// textFromContentStream walks a decoded page content stream and collects the
// operands of the text-showing operators (Tj, TJ, ', "). Line-positioning
// operators start a new output line.
func textFromContentStream(data []byte) string {
	var (
		out      strings.Builder
		line     strings.Builder
		operands []string
		inArray  bool
	)
	flush := func() {
		s := strings.Join(strings.Fields(line.String()), " ")
		if s != "" {
			out.WriteString(s)
			out.WriteByte('\n')
		}
		line.Reset()
	}
	show := func() {
		for _, s := range operands {
			line.WriteString(s)
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isPDFSpace(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			s, n := readLiteralString(data[i:])
			operands = append(operands, s)
			i += n
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '<':
			s, n := readHexString(data[i:])
			operands = append(operands, s)
			i += n
		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++
		case c == '/':
			i++
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelimiter(data[i]) {
				i++
			}
		case c == '{' || c == '}' || c == ')' || c == '>':
			i++
		default:
			start := i
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelimiter(data[i]) {
				i++
			}
			word := string(data[start:i])
			if n, err := strconv.ParseFloat(word, 64); err == nil {
				if inArray && n <= tjSpaceThreshold {
					operands = append(operands, " ")
				}
				continue
			}
			switch word {
			case "Tj", "TJ":
				show()
			case "'", `"`:
				flush()
				show()
			case "Td", "TD", "T*", "ET":
				flush()
			case "BI":
				i = skipInlineImage(data, i)
			}
			operands = operands[:0]
		}
	}
	flush()
	return strings.TrimRight(out.String(), "\n")
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isPDFDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// readLiteralString decodes a balanced "(...)" string starting at data[0] and
// returns the text plus the number of bytes consumed.
func readLiteralString(data []byte) (string, int) {
	var buf []byte
	depth := 0
	i := 0
	for ; i < len(data); i++ {
		c := data[i]
		switch c {
		case '(':
			depth++
			if depth == 1 {
				continue
			}
		case ')':
			depth--
			if depth == 0 {
				return pdfBytesToText(buf), i + 1
			}
		case '\\':
			if i+1 >= len(data) {
				continue
			}
			i++
			switch e := data[i]; e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
				if e == '\r' && i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					buf = append(buf, byte(val))
				} else {
					buf = append(buf, e)
				}
			}
			continue
		}
		buf = append(buf, c)
	}
	return pdfBytesToText(buf), i
}

// readHexString decodes "<48656C6C6F>" starting at data[0].
func readHexString(data []byte) (string, int) {
	end := bytes.IndexByte(data, '>')
	if end < 0 {
		return "", len(data)
	}
	var digits []byte
	for _, c := range data[1:end] {
		if isHexDigit(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	buf := make([]byte, 0, len(digits)/2)
	for k := 0; k < len(digits); k += 2 {
		v, _ := strconv.ParseUint(string(digits[k:k+2]), 16, 8)
		buf = append(buf, byte(v))
	}
	return pdfBytesToText(buf), end + 1
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// pdfBytesToText keeps valid UTF-8 as-is and otherwise reads bytes as Latin-1.
func pdfBytesToText(b []byte) string {
	var sb strings.Builder
	if utf8.Valid(b) {
		for _, r := range string(b) {
			if unicode.IsPrint(r) || unicode.IsSpace(r) {
				sb.WriteRune(r)
			}
		}
		return sb.String()
	}
	for _, c := range b {
		r := rune(c)
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// skipInlineImage advances past "ID <binary> EI".
func skipInlineImage(data []byte, from int) int {
	for i := from; i+2 < len(data); i++ {
		if isPDFSpace(data[i]) && data[i+1] == 'E' && data[i+2] == 'I' &&
			(i+3 == len(data) || isPDFSpace(data[i+3])) {
			return i + 3
		}
	}
	return len(data)
}
