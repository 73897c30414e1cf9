// Command extract runs the invoice pipeline on local PDF or XML files.
//
//	extract [-text-only] [-validate] invoice.pdf
//	extract -workers 4 a.pdf b.xml c.xml
//	extract -dir ./inbox [-watch]
//
// A single file prints its record as indented JSON. Batch and watch modes
// print one JSON object per line as files complete.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/async"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/extract"
	"github.com/joseph-ayodele/invoice-extractor/internal/ingest"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/openai"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	repo "github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

type options struct {
	textOnly bool
	validate bool
	timeout  time.Duration
	workers  int
	dir      string
	watch    bool
	exts     string
}

// batchLine is one line of batch output.
type batchLine struct {
	Source    string                `json:"source"`
	Record    *entity.InvoiceRecord `json:"record,omitempty"`
	Outcome   pipeline.Outcome      `json:"outcome,omitempty"`
	Method    string                `json:"method,omitempty"`
	Valid     *bool                 `json:"valid,omitempty"`
	Error     string                `json:"error,omitempty"`
	ElapsedMS int64                 `json:"elapsed_ms"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opt options
	flag.BoolVar(&opt.textOnly, "text-only", false, "print the extracted text and skip the LLM call (single file)")
	flag.BoolVar(&opt.validate, "validate", false, "report whether each record passes the quality checks")
	flag.DurationVar(&opt.timeout, "timeout", 2*time.Minute, "per-file deadline")
	flag.IntVar(&opt.workers, "workers", 4, "concurrent files in batch mode")
	flag.StringVar(&opt.dir, "dir", "", "process every matching file under this directory")
	flag.BoolVar(&opt.watch, "watch", false, "with -dir, keep watching for new files until interrupted")
	flag.StringVar(&opt.exts, "ext", "pdf,xml", "comma-separated extensions for -dir")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: extract [flags] <file.pdf|file.xml>...\n       extract [flags] -dir <path> [-watch]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}
	logger := common.NewLogger(cfg.Logging, os.Stderr)

	if (opt.dir == "") == (flag.NArg() == 0) || (opt.watch && opt.dir == "") {
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor := extract.NewExtractor(logger)
	if opt.textOnly {
		if flag.NArg() != 1 {
			logger.Error("-text-only takes exactly one file")
			return 2
		}
		return printText(ctx, logger, extractor, flag.Arg(0), opt.timeout)
	}

	if cfg.LLM.APIKey == "" {
		logger.Error("OPENAI_API_KEY env var is required")
		return 2
	}
	client := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.TimeoutDuration(),
	}, logger)
	invoicePipe, err := pipeline.NewInvoicePipeline(logger, pipeline.Config{StructuredOutput: cfg.LLM.StructuredOutput}, client)
	if err != nil {
		logger.Error("build pipeline", "error", err)
		return 1
	}

	// The ledger is optional here too; batch runs are recorded when LEDGER_DSN is set.
	var jobsRepo repo.ExtractJobRepository
	if cfg.Ledger.DSN != "" {
		db, err := repo.Open(ctx, repo.Config{
			DSN:          cfg.Ledger.DSN,
			MaxOpenConns: cfg.Ledger.MaxOpenConns,
			DialTimeout:  cfg.Ledger.DialTimeoutDuration(),
		}, logger)
		if err != nil {
			logger.Error("open ledger", "error", err)
			return 1
		}
		defer db.Close()
		jobsRepo = repo.NewExtractJobRepository(db, logger)
	}
	processor := pipeline.NewProcessor(logger, extractor, invoicePipe, jobsRepo)

	if opt.dir == "" && flag.NArg() == 1 {
		return processOne(ctx, logger, processor, flag.Arg(0), opt)
	}
	return processBatch(ctx, logger, processor, flag.Args(), opt)
}

func printText(ctx context.Context, logger *slog.Logger, extractor *extract.Extractor, path string, timeout time.Duration) int {
	up, err := loadUpload(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		return 2
	}
	ctx, cancel := context.WithTimeout(common.WithRequestID(ctx, uuid.NewString()), timeout)
	defer cancel()

	res, err := extractor.Extract(ctx, up.Content, up.ContentType)
	if err != nil {
		logger.Error("text extraction failed", "error", err)
		return 1
	}
	logger.Info("text extraction OK", "method", res.Method, "pages", res.Pages, "elements", res.Elements)
	fmt.Print(res.Text)
	return 0
}

func processOne(ctx context.Context, logger *slog.Logger, processor *pipeline.Processor, path string, opt options) int {
	up, err := loadUpload(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		return 2
	}
	ctx, cancel := context.WithTimeout(common.WithRequestID(ctx, uuid.NewString()), opt.timeout)
	defer cancel()

	start := time.Now()
	res, err := processor.Process(ctx, up)
	if err != nil {
		logger.Error("processing failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return 1
	}
	logger.Info("processing OK", "method", res.Method, "outcome", res.Outcome, "duration_ms", time.Since(start).Milliseconds())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Record); err != nil {
		logger.Error("encode record", "error", err)
		return 1
	}
	if opt.validate {
		if err := pipeline.ValidateRecord(res.Record); err != nil {
			fmt.Fprintf(os.Stderr, "validate: FAIL (%v)\n", err)
			return 3
		}
		fmt.Fprintln(os.Stderr, "validate: OK")
	}
	return 0
}

// batchRun reports finished files and counts failures. report may be called
// from queue workers and from the submitting goroutine at the same time.
type batchRun struct {
	logger   *slog.Logger
	validate bool
	queue    async.Queue

	mu     sync.Mutex
	enc    *json.Encoder
	failed int
}

func (b *batchRun) report(d async.Done) {
	line := batchLine{Source: d.Job.Source, ElapsedMS: d.Elapsed.Milliseconds()}
	if d.Err != nil {
		line.Error = d.Err.Error()
	} else {
		rec := d.Result.Record
		line.Record, line.Outcome, line.Method = &rec, d.Result.Outcome, d.Result.Method
		if b.validate {
			ok := pipeline.Validate(rec)
			line.Valid = &ok
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if d.Err != nil {
		b.failed++
	}
	_ = b.enc.Encode(line)
}

// submit queues one file. A file that cannot be read or queued counts as failed.
func (b *batchRun) submit(ctx context.Context, path string) {
	up, err := loadUpload(path)
	if err != nil {
		b.report(async.Done{Job: async.Job{Source: path}, Err: err})
		return
	}
	job := async.Job{Upload: up, Source: path, RequestID: uuid.NewString()}
	if err := b.queue.Enqueue(ctx, job); err != nil {
		b.logger.Warn("enqueue failed", "path", path, "error", err)
		b.report(async.Done{Job: job, Err: fmt.Errorf("not processed: %w", err)})
	}
}

func (b *batchRun) exitCode() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failed > 0 {
		return 1
	}
	return 0
}

func processBatch(ctx context.Context, logger *slog.Logger, processor *pipeline.Processor, files []string, opt options) int {
	batch := &batchRun{logger: logger, validate: opt.validate, enc: json.NewEncoder(os.Stdout)}
	queue := async.NewProcessorQueue(processor, batch.report, logger,
		async.WithWorkers(opt.workers),
		async.WithQueueSize(2*opt.workers),
		async.WithProcessTimeout(opt.timeout),
	)
	batch.queue = queue
	submit := func(path string) { batch.submit(ctx, path) }

	exts := ingest.ParseExts(strings.Split(opt.exts, ","))
	switch {
	case opt.watch:
		events, _, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       []string{opt.dir},
			AllowedExts: exts,
			InitialScan: true,
			Debounce:    500 * time.Millisecond,
		}, logger)
		if err != nil {
			logger.Error("start watcher", "dir", opt.dir, "error", err)
			return 1
		}
		logger.Info("watching for invoices", "dir", opt.dir)
		for path := range events {
			submit(path)
		}
	case opt.dir != "":
		paths, stats, err := ingest.ScanDirectory(ctx, opt.dir, exts, true)
		if err != nil {
			logger.Error("scan directory", "dir", opt.dir, "error", err)
			return 1
		}
		logger.Info("directory scanned", "dir", opt.dir, "matched", stats.Matched, "failed", stats.Failed)
		for _, p := range paths {
			submit(p)
		}
	default:
		for _, p := range files {
			submit(p)
		}
	}

	queue.Shutdown(context.Background())
	return batch.exitCode()
}

func loadUpload(path string) (pipeline.Upload, error) {
	contentType := constants.MapExtToContentType(filepath.Ext(path))
	if contentType == "" {
		return pipeline.Upload{}, fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Upload{}, err
	}
	return pipeline.Upload{FileName: filepath.Base(path), ContentType: contentType, Content: content}, nil
}
