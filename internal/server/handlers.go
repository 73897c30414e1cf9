package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"github.com/docker/go-units"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/export"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
)

const (
	processErrorPrefix = "Error processing invoice"
	exportErrorPrefix  = "Error exporting invoices"
	formFileField      = "file"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Invoice processing API is running.",
		"version": s.cfg.Version,
		"status":  "active",
	})
}

func (s *Server) handleProtected(c *gin.Context) {
	id := identityFrom(c)
	c.JSON(http.StatusOK, gin.H{
		"message": "Access granted to the protected route.",
		"user":    id.Claims,
	})
}

func (s *Server) handleProcessInvoice(c *gin.Context) {
	if limit := s.cfg.MaxUploadBytes(); limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	fh, err := singleFile(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorBody(
				fmt.Sprintf("File exceeds the maximum upload size of %s", units.HumanSize(float64(tooLarge.Limit)))))
			return
		}
		s.writeError(c, processErrorPrefix, err)
		return
	}

	contentType := fh.Header.Get("Content-Type")
	if !slices.Contains(constants.AllowedContentTypes, constants.NormalizeContentType(contentType)) {
		s.writeError(c, processErrorPrefix, common.NewBadRequest(common.ReasonUnsupportedMediaType,
			fmt.Sprintf("Unsupported file type: %q. Only PDF or XML files are accepted. Allowed types: %s",
				contentType, strings.Join(constants.AllowedContentTypes, ", ")), nil))
		return
	}

	content, err := readFile(fh)
	if err != nil {
		s.writeError(c, processErrorPrefix, err)
		return
	}

	res, err := s.processor.Process(c.Request.Context(), pipeline.Upload{
		FileName:    fh.Filename,
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		s.writeError(c, processErrorPrefix, err)
		return
	}
	c.JSON(http.StatusOK, res.Record)
}

// singleFile returns the one part named "file"; zero or several is a bad request.
func singleFile(c *gin.Context) (*multipart.FileHeader, error) {
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, common.NewBadRequest("", "Expected a multipart/form-data body with a 'file' field", err)
	}
	files := form.File[formFileField]
	switch len(files) {
	case 0:
		return nil, common.NewBadRequest("", "Field 'file' is required", common.ErrInvalidInput)
	case 1:
		return files[0], nil
	default:
		return nil, common.NewBadRequest("", "Exactly one file must be uploaded", common.ErrInvalidInput)
	}
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return b, nil
}

// exportRequest is the object form of the export body.
type exportRequest struct {
	Invoices []entity.InvoiceRecord `json:"invoices"`
	Format   string                 `json:"format"`
}

func (s *Server) handleExportInvoices(c *gin.Context) {
	ctx := c.Request.Context()
	raw, err := c.GetRawData()
	if err != nil {
		s.writeError(c, exportErrorPrefix, common.NewBadRequest("", "Could not read request body", err))
		return
	}

	req, err := decodeExportRequest(raw)
	if err != nil {
		s.writeError(c, exportErrorPrefix, err)
		return
	}
	selector := req.Format
	if q, ok := c.GetQuery("format"); ok {
		selector = q
	}
	format, err := export.ParseFormat(selector)
	if err != nil {
		s.writeError(c, exportErrorPrefix, err)
		return
	}

	if format == export.FormatJSON {
		c.JSON(http.StatusOK, s.exporter.JSON(ctx, identityFrom(c).UID, req.Invoices))
		return
	}
	file, err := s.exporter.Render(ctx, format, req.Invoices)
	if err != nil {
		s.writeError(c, exportErrorPrefix, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+file.Name)
	c.Data(http.StatusOK, file.ContentType, file.Body)
}

// decodeExportRequest accepts either {"invoices": [...], "format": "..."} or a
// bare array of records.
func decodeExportRequest(raw []byte) (exportRequest, error) {
	var req exportRequest
	body := bytes.TrimSpace(raw)
	switch {
	case len(body) == 0:
		return req, nil
	case body[0] == '[':
		if err := binding.JSON.BindBody(body, &req.Invoices); err != nil {
			return req, common.NewBadRequest("", "Invalid invoice list: "+err.Error(), err)
		}
	case body[0] == '{':
		if err := binding.JSON.BindBody(body, &req); err != nil {
			return req, common.NewBadRequest("", "Invalid export request: "+err.Error(), err)
		}
	default:
		return req, common.NewBadRequest("", "Export body must be a JSON object or array", common.ErrInvalidInput)
	}
	// a record without the key never reaches InvoiceType.UnmarshalJSON
	for i, rec := range req.Invoices {
		if !rec.InvoiceType.Valid() {
			return req, common.NewBadRequest("", fmt.Sprintf("Invalid invoice_type %q in invoice %d. Allowed values: %s",
				rec.InvoiceType, i, strings.Join(constants.InvoiceTypeStrings(), ", ")), common.ErrInvalidInput)
		}
	}
	return req, nil
}
