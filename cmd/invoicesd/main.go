package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/auth"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/export"
	"github.com/joseph-ayodele/invoice-extractor/internal/extract"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	repo "github.com/joseph-ayodele/invoice-extractor/internal/repository"
	svc "github.com/joseph-ayodele/invoice-extractor/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := common.LoadConfig()
	if err != nil {
		// logger config is not known yet
		common.NewLogger(common.LoggingConfig{}, os.Stderr).Error("load config", "error", err)
		return 2
	}
	logger := common.NewLogger(cfg.Logging, os.Stdout)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("config.warning", "message", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := newVerifier(ctx, cfg.Auth, logger)
	if err != nil {
		logger.Error("failed to initialize token verifier", "provider", cfg.Auth.Provider, "error", err)
		return 1
	}

	// Optional extract_job ledger
	var jobsRepo repo.ExtractJobRepository
	if cfg.Ledger.DSN != "" {
		db, err := repo.Open(ctx, repo.Config{
			DSN:          cfg.Ledger.DSN,
			MaxOpenConns: cfg.Ledger.MaxOpenConns,
			DialTimeout:  cfg.Ledger.DialTimeoutDuration(),
		}, logger)
		if err != nil {
			logger.Error("failed to open ledger", "error", err)
			return 1
		}
		defer db.Close()
		jobsRepo = repo.NewExtractJobRepository(db, logger)
	}

	openaiClient := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.TimeoutDuration(),
	}, logger)
	invoicePipe, err := pipeline.NewInvoicePipeline(logger, pipeline.Config{
		StructuredOutput: cfg.LLM.StructuredOutput,
	}, openaiClient)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		return 1
	}
	processor := pipeline.NewProcessor(logger, extract.NewExtractor(logger), invoicePipe, jobsRepo)

	server := svc.NewServer(cfg.Server, verifier, processor, export.NewService(logger), logger)
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var health *svc.HealthServer
	if cfg.Server.GRPCHealthAddr != "" {
		health, err = svc.NewHealthServer(cfg.Server.GRPCHealthAddr, logger)
		if err != nil {
			logger.Error("failed to listen for health checks", "addr", cfg.Server.GRPCHealthAddr, "error", err)
			return 1
		}
		go func() {
			if err := health.Serve(); err != nil {
				logger.Error("gRPC health serve error", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("invoice-extractor listening",
			"addr", cfg.Server.HTTPAddr,
			"model", openaiClient.Model(),
			"auth_provider", cfg.Auth.Provider,
			"ledger", jobsRepo != nil,
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	if health != nil {
		health.SetServing(true)
	}

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP serve error", "error", err)
			exitCode = 1
		}
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeoutDuration())
	if health != nil {
		health.SetServing(false)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
		exitCode = 1
	}
	if health != nil {
		health.Stop()
	}
	return exitCode
}

func newVerifier(ctx context.Context, cfg common.AuthConfig, logger *slog.Logger) (auth.Verifier, error) {
	if cfg.Provider == common.AuthProviderJWT {
		logger.Warn("auth.jwt.enabled", "message", "HS256 development verifier in use")
		return auth.NewJWTVerifier(cfg.JWTSecret, logger), nil
	}
	return auth.NewFirebaseVerifier(ctx, cfg.FirebaseCredentialPath, cfg.FirebaseProjectID, logger)
}
