// Package server exposes the invoice API over HTTP (gin) and an optional gRPC
// health endpoint.
package server

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-extractor/internal/auth"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/export"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
)

// InvoiceProcessor runs both extraction stages for one upload.
type InvoiceProcessor interface {
	Process(ctx context.Context, up pipeline.Upload) (pipeline.Result, error)
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	cfg       common.ServerConfig
	verifier  auth.Verifier
	processor InvoiceProcessor
	exporter  *export.Service
	logger    *slog.Logger
}

func NewServer(
	cfg common.ServerConfig,
	verifier auth.Verifier,
	processor InvoiceProcessor,
	exporter *export.Service,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = export.NewService(logger)
	}
	return &Server{cfg: cfg, verifier: verifier, processor: processor, exporter: exporter, logger: logger}
}

// Router builds the gin engine with logging, recovery and CORS applied to
// every route and bearer auth on everything except the liveness probe.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(s.requestLogger(), s.recovery(), s.cors())

	r.GET("/", s.handleRoot)

	authed := r.Group("/", s.requireAuth())
	authed.GET("/protected-route", s.handleProtected)
	authed.POST("/process-invoice", s.handleProcessInvoice)
	authed.POST("/export-invoices", s.handleExportInvoices)
	return r
}
