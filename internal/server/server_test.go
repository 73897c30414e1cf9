package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/auth"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(auth.Identity), args.Error(1)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, up pipeline.Upload) (pipeline.Result, error) {
	args := m.Called(ctx, up)
	return args.Get(0).(pipeline.Result), args.Error(1)
}

// spyBody records whether anything read the request body.
type spyBody struct {
	r    io.Reader
	read bool
}

func (s *spyBody) Read(p []byte) (int, error) {
	s.read = true
	return s.r.Read(p)
}

func (s *spyBody) Close() error { return nil }

const goodToken = "good-token"

func testConfig(t *testing.T, maxUpload string) common.ServerConfig {
	t.Helper()
	cfg := common.Config{Server: common.ServerConfig{MaxUploadSize: maxUpload}}
	require.NoError(t, cfg.Finalize())
	return cfg.Server
}

func newTestServer(t *testing.T, proc InvoiceProcessor) (*gin.Engine, *mockVerifier) {
	t.Helper()
	v := &mockVerifier{}
	v.On("Verify", mock.Anything, goodToken).
		Return(auth.Identity{UID: "uid-1", Claims: map[string]any{"uid": "uid-1", "email": "a@b.c"}}, nil).Maybe()
	v.On("Verify", mock.Anything, mock.Anything).
		Return(auth.Identity{}, common.NewUnauthorized("Invalid authentication credentials", common.ErrUnauthorized)).Maybe()
	return NewServer(testConfig(t, ""), v, proc, nil, nil).Router(), v
}

func multipartBody(t *testing.T, parts map[string]string, contents ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	i := 0
	for name, ctype := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
		if ctype != "" {
			h.Set("Content-Type", ctype)
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		content := "<Invoice/>"
		if i < len(contents) {
			content = contents[i]
		}
		_, err = pw.Write([]byte(content))
		require.NoError(t, err)
		i++
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	s, _ := body["detail"].(string)
	return s
}

func TestRoot(t *testing.T) {
	r, _ := newTestServer(t, &mockProcessor{})
	rec := do(r, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Invoice processing API is running.","version":"1.0.0","status":"active"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestProtectedRoute(t *testing.T) {
	r, _ := newTestServer(t, &mockProcessor{})

	testCases := []struct {
		name   string
		header string
		status int
	}{
		{name: "no_header", status: http.StatusUnauthorized},
		{name: "wrong_scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "invalid_token", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "valid_token", header: "Bearer " + goodToken, status: http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected-route", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := do(r, req)
			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"message":"Access granted to the protected route.","user":{"uid":"uid-1","email":"a@b.c"}}`, rec.Body.String())
			} else {
				assert.NotEmpty(t, detail(t, rec))
			}
		})
	}
}

func TestProtectedRoute_VerifierUnavailable(t *testing.T) {
	v := &mockVerifier{}
	v.On("Verify", mock.Anything, mock.Anything).
		Return(auth.Identity{}, common.NewServiceUnavailable("Authentication service not available", common.ErrUnavailable))
	r := NewServer(testConfig(t, ""), v, &mockProcessor{}, nil, nil).Router()

	req := httptest.NewRequest(http.MethodGet, "/protected-route", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := do(r, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Authentication service not available", detail(t, rec))
}

func TestProcessInvoice_UnauthenticatedDoesNotReadBody(t *testing.T) {
	proc := &mockProcessor{}
	r, v := newTestServer(t, proc)

	buf, ctype := multipartBody(t, map[string]string{"a.xml": "application/xml"})
	body := &spyBody{r: buf}
	req := httptest.NewRequest(http.MethodPost, "/process-invoice", nil)
	req.Body = body
	req.Header.Set("Content-Type", ctype)

	rec := do(r, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, body.read)
	v.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestProcessInvoice_Success(t *testing.T) {
	proc := &mockProcessor{}
	rec := entity.DefaultRecord()
	rec.InvoiceType = constants.Sale
	rec.TotalAmount = 1000
	rec.FileName = "march.xml"
	proc.On("Process", mock.Anything, mock.MatchedBy(func(up pipeline.Upload) bool {
		return up.FileName == "march.xml" && up.ContentType == "text/xml" && string(up.Content) == "<Invoice><Total>1000</Total></Invoice>"
	})).Return(pipeline.Result{Record: rec, Outcome: pipeline.OutcomePartial}, nil).Once()
	r, _ := newTestServer(t, proc)

	buf, ctype := multipartBody(t, map[string]string{"march.xml": "text/xml"}, "<Invoice><Total>1000</Total></Invoice>")
	req := httptest.NewRequest(http.MethodPost, "/process-invoice", buf)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+goodToken)

	res := do(r, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.JSONEq(t, `{
		"invoice_type":"sale","cost_center":"N/A","payment_method":"unknown","extracted_items":[],
		"total_amount":1000,"currency":"USD","invoice_date":"2024-01-01","supplier_name":"N/A",
		"file_name":"march.xml"}`, res.Body.String())
	proc.AssertExpectations(t)
}

func TestProcessInvoice_Errors(t *testing.T) {
	testCases := []struct {
		name       string
		parts      map[string]string
		procErr    error
		status     int
		detailPart string
	}{
		{
			name:  "unsupported_type",
			parts: map[string]string{"photo.png": "image/png"}, status: http.StatusBadRequest,
			detailPart: `Unsupported file type: "image/png". Only PDF or XML files are accepted. Allowed types: application/pdf, application/xml, text/xml`,
		},
		{
			name:  "missing_part_type",
			parts: map[string]string{"doc.bin": ""}, status: http.StatusBadRequest,
			detailPart: "Only PDF or XML files are accepted",
		},
		{
			name: "two_files", parts: map[string]string{"a.xml": "text/xml", "b.xml": "text/xml"},
			status: http.StatusBadRequest, detailPart: "Exactly one file",
		},
		{
			name: "malformed_document", parts: map[string]string{"a.xml": "text/xml"},
			procErr: common.NewBadRequest(common.ReasonMalformedDocument, "Error parsing XML file: EOF", nil),
			status:  http.StatusBadRequest, detailPart: "Error parsing XML file: EOF",
		},
		{
			name: "upstream_failure", parts: map[string]string{"a.xml": "text/xml"},
			procErr: common.NewUpstreamFailure("LLM call failed", errors.New("status 429")),
			status:  http.StatusInternalServerError, detailPart: "Error processing invoice: LLM call failed: status 429",
		},
		{
			name: "unexpected_failure", parts: map[string]string{"a.xml": "text/xml"},
			procErr: errors.New("boom"),
			status:  http.StatusInternalServerError, detailPart: "Error processing invoice: boom",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			proc := &mockProcessor{}
			if tc.procErr != nil {
				proc.On("Process", mock.Anything, mock.Anything).Return(pipeline.Result{}, tc.procErr).Once()
			}
			r, _ := newTestServer(t, proc)

			buf, ctype := multipartBody(t, tc.parts)
			req := httptest.NewRequest(http.MethodPost, "/process-invoice", buf)
			req.Header.Set("Content-Type", ctype)
			req.Header.Set("Authorization", "Bearer "+goodToken)

			rec := do(r, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, detail(t, rec), tc.detailPart)
			if tc.procErr == nil {
				proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestProcessInvoice_TooLarge(t *testing.T) {
	proc := &mockProcessor{}
	v := &mockVerifier{}
	v.On("Verify", mock.Anything, goodToken).Return(auth.Identity{UID: "uid-1"}, nil)
	r := NewServer(testConfig(t, "1KB"), v, proc, nil, nil).Router()

	buf, ctype := multipartBody(t, map[string]string{"big.xml": "text/xml"}, "<Invoice>"+strings.Repeat("x", 4096)+"</Invoice>")
	req := httptest.NewRequest(http.MethodPost, "/process-invoice", buf)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", "Bearer "+goodToken)

	rec := do(r, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

const exportRecords = `[{"invoice_type":"purchase","cost_center":"Ops","payment_method":"card","extracted_items":["Widget"],` +
	`"total_amount":10.5,"currency":"USD","invoice_date":"2024-03-15","supplier_name":"ACME","file_name":"a.pdf"}]`

func TestExportInvoices(t *testing.T) {
	r, _ := newTestServer(t, &mockProcessor{})

	testCases := []struct {
		name        string
		query       string
		body        string
		status      int
		contentType string
		disposition string
		detailPart  string
	}{
		{name: "bare_array_defaults_to_json", body: exportRecords, status: http.StatusOK, contentType: "application/json"},
		{name: "envelope_csv", body: `{"invoices":` + exportRecords + `,"format":"csv"}`, status: http.StatusOK, contentType: "text/csv", disposition: "attachment; filename=invoices.csv"},
		{name: "query_xlsx", query: "?format=xlsx", body: exportRecords, status: http.StatusOK, contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", disposition: "attachment; filename=invoices.xlsx"},
		{name: "query_wins_over_body", query: "?format=CSV", body: `{"invoices":[],"format":"xlsx"}`, status: http.StatusOK, contentType: "text/csv", disposition: "attachment; filename=invoices.csv"},
		{name: "unknown_format", query: "?format=pdf", body: exportRecords, status: http.StatusBadRequest, detailPart: `Unsupported format: "pdf"`},
		{name: "unknown_invoice_type", body: `[{"invoice_type":"refund"}]`, status: http.StatusBadRequest},
		{
			name:   "missing_invoice_type",
			query:  "?format=csv",
			body:   `[{"cost_center":"Ops","payment_method":"card","total_amount":5,"currency":"USD","invoice_date":"2024-01-01","supplier_name":"ACME"}]`,
			status: http.StatusBadRequest, detailPart: `Invalid invoice_type "" in invoice 0`,
		},
		{
			name:   "missing_invoice_type_in_envelope",
			body:   `{"invoices":[` + exportRecords[1:len(exportRecords)-1] + `,{"supplier_name":"ACME"}],"format":"json"}`,
			status: http.StatusBadRequest, detailPart: `in invoice 1`,
		},
		{name: "not_json", body: `invoices`, status: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/export-invoices"+tc.query, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+goodToken)

			rec := do(r, req)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.status != http.StatusOK {
				assert.NotEmpty(t, detail(t, rec))
				assert.Contains(t, detail(t, rec), tc.detailPart)
				return
			}
			assert.Contains(t, rec.Header().Get("Content-Type"), tc.contentType)
			assert.Equal(t, tc.disposition, rec.Header().Get("Content-Disposition"))
		})
	}
}

func TestExportInvoices_JSONEnvelope(t *testing.T) {
	r, _ := newTestServer(t, &mockProcessor{})
	req := httptest.NewRequest(http.MethodPost, "/export-invoices", strings.NewReader(exportRecords))
	req.Header.Set("Authorization", "Bearer "+goodToken)

	rec := do(r, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Invoices      []map[string]any `json:"invoices"`
		ExportedBy    string           `json:"exported_by"`
		ExportDate    string           `json:"export_date"`
		TotalInvoices int              `json:"total_invoices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "uid-1", env.ExportedBy)
	assert.Len(t, env.ExportDate, 10)
	assert.Equal(t, 1, env.TotalInvoices)
	require.Len(t, env.Invoices, 1)
	assert.Equal(t, "ACME", env.Invoices[0]["supplier_name"])
}

func TestCORS(t *testing.T) {
	r, _ := newTestServer(t, &mockProcessor{})

	t.Run("allowed_origin_preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/process-invoice", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "authorization")

		rec := do(r, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "POST", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "authorization", rec.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("unknown_origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")

		rec := do(r, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
