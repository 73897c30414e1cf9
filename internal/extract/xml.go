package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// invoiceElements are the element names (case-sensitive, matched on the local
// name) that are emitted first when present.
var invoiceElements = map[string]struct{}{
	"Invoice":       {},
	"Factura":       {},
	"InvoiceNumber": {},
	"InvoiceDate":   {},
	"Total":         {},
	"Supplier":      {},
	"Customer":      {},
	"Items":         {},
	"Conceptos":     {},
	"SubTotal":      {},
	"Tax":           {},
	"Amount":        {},
	"Description":   {},
	"Quantity":      {},
	"UnitPrice":     {},
	"Vendor":        {},
	"Client":        {},
	"Product":       {},
	"Service":       {},
	"Price":         {},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// xmlElement is one element in document (pre-)order with its own text: the
// character data that appears before its first child element.
type xmlElement struct {
	name  string
	depth int
	text  string
}

func (e *Extractor) extractXML(content []byte) (TextExtractionResult, error) {
	if !utf8.Valid(content) {
		return TextExtractionResult{}, malformedXML(errors.New("content is not valid UTF-8"))
	}
	elements, err := scanXML(bytes.TrimPrefix(content, utf8BOM))
	if err != nil {
		return TextExtractionResult{}, malformedXML(err)
	}

	var b strings.Builder
	n := 0
	for _, el := range elements {
		// the allow-list pass looks below the document element only
		if el.depth == 0 || el.text == "" {
			continue
		}
		if _, ok := invoiceElements[el.name]; ok {
			writeLine(&b, el)
			n++
		}
	}
	if n > 0 {
		return TextExtractionResult{Text: b.String(), Elements: n, Method: MethodXMLAllowList}, nil
	}

	for _, el := range elements {
		if el.text != "" {
			writeLine(&b, el)
			n++
		}
	}
	if n > 0 {
		return TextExtractionResult{Text: b.String(), Elements: n, Method: MethodXMLAll}, nil
	}
	return TextExtractionResult{Text: string(content), Method: MethodXMLRaw}, nil
}

func writeLine(b *strings.Builder, el xmlElement) {
	b.WriteString(el.name)
	b.WriteString(": ")
	b.WriteString(el.text)
	b.WriteByte('\n')
}

func malformedXML(err error) error {
	return common.NewBadRequest(common.ReasonMalformedDocument,
		fmt.Sprintf("Error parsing XML file: %v", err), err)
}

// scanXML parses a single well-formed document and returns its elements in
// document order with trimmed own-text.
func scanXML(content []byte) ([]xmlElement, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Strict = true
	// content is already known to be UTF-8 whatever the prolog declares
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	type frame struct {
		slot      int
		text      strings.Builder
		seenChild bool
	}
	var (
		elements []xmlElement
		stack    []*frame
		roots    int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 {
				roots++
				if roots > 1 {
					return nil, fmt.Errorf("junk after document element: line %d", lineOf(dec, content))
				}
			} else {
				stack[len(stack)-1].seenChild = true
			}
			elements = append(elements, xmlElement{name: t.Name.Local, depth: len(stack)})
			stack = append(stack, &frame{slot: len(elements) - 1})
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, fmt.Errorf("text outside document element: line %d", lineOf(dec, content))
				}
				continue
			}
			if top := stack[len(stack)-1]; !top.seenChild {
				top.text.Write(t)
			}
		case xml.EndElement:
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			elements[top.slot].text = strings.TrimSpace(top.text.String())
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("unclosed element <%s>", elements[stack[len(stack)-1].slot].name)
	}
	if len(elements) == 0 {
		return nil, errors.New("no element found")
	}
	return elements, nil
}

func lineOf(dec *xml.Decoder, content []byte) int {
	off := dec.InputOffset()
	if off > int64(len(content)) {
		off = int64(len(content))
	}
	return bytes.Count(content[:off], []byte{'\n'}) + 1
}
