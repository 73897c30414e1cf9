package constants

import "strings"

// Format is the extraction path selected for an upload.
type Format string

const (
	PDF Format = "PDF"
	XML Format = "XML"
)

const (
	ContentTypePDF     = "application/pdf"
	ContentTypeXML     = "application/xml"
	ContentTypeTextXML = "text/xml"
)

// AllowedContentTypes holds the declared upload types accepted by process-invoice.
var AllowedContentTypes = []string{ContentTypePDF, ContentTypeXML, ContentTypeTextXML}

// NormalizeContentType drops parameters and lowercases the media type.
func NormalizeContentType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// MapContentTypeToFormat returns "" for anything that is not PDF or XML.
func MapContentTypeToFormat(contentType string) Format {
	switch NormalizeContentType(contentType) {
	case ContentTypePDF:
		return PDF
	case ContentTypeXML, ContentTypeTextXML:
		return XML
	default:
		return ""
	}
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToContentType guesses the declared type for local files.
func MapExtToContentType(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return ContentTypePDF
	case "xml":
		return ContentTypeXML
	default:
		return ""
	}
}
