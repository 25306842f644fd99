package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/async"
	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
	"github.com/joseph-ayodele/clauseguard/internal/export"
	"github.com/joseph-ayodele/clauseguard/internal/extract"
	"github.com/joseph-ayodele/clauseguard/internal/identity"
	"github.com/joseph-ayodele/clauseguard/internal/ingest"
	"github.com/joseph-ayodele/clauseguard/internal/llm"
	"github.com/joseph-ayodele/clauseguard/internal/llm/openai"
	"github.com/joseph-ayodele/clauseguard/internal/pipeline"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory of documents to analyze (required)")
		out     = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		docType = flag.String("type", "contract", "document type: contract or invoice")
		workers = flag.Int("workers", 4, "concurrent analyses")
		watch   = flag.Bool("watch", false, "keep running and analyze documents added to --dir")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if _, ok := constants.ParseDocumentType(*docType); !ok {
		printError("Error: --type must be contract or invoice\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "risk-report.xlsx")
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log)

	if cfg.LLM.APIKey == "" {
		logger.Error("OpenAI API key not configured", "openai_api_key", common.Presence(cfg.LLM.APIKey))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local batches run as the operator, with the largest budget and uploads enabled.
	resolver := entitlement.NewResolver(entitlement.NewMemoryStore(), entitlement.Limits{
		FreeChars: cfg.Entitlement.FreeCharLimit,
		ProChars:  cfg.Entitlement.ProCharLimit,
	}, logger)
	snap := resolver.Derive(&identity.Identity{ID: "local-batch", Role: constants.RoleAdmin}, entitlement.State{}, false)

	model := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	extractor := extract.NewPipeline(extract.Config{Pdftotext: cfg.Extract.Pdftotext, MaxPages: cfg.Extract.MaxPages}, logger)
	processor := pipeline.NewProcessor(logger,
		pipeline.NewExtractStage(extractor, cfg.Extract.Timeout, logger),
		pipeline.NewAnalyzeStage(llm.NewRequestBuilder(cfg.LLM.OutputLanguage, logger), model, cfg.LLM.Timeout, logger),
	)

	reports := make(chan async.Report, *workers)
	queue := async.NewProcessorQueue(processor, snap, logger,
		async.WithWorkers(*workers),
		async.WithProcessTimeout(cfg.Extract.Timeout+cfg.LLM.Timeout),
		async.WithReports(reports),
	)

	var rows []export.Row
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range reports {
			rows = append(rows, export.Row{Outcome: r.Outcome, Err: r.Err})
			if *watch {
				_ = writeReport(logger, *out, rows)
			}
		}
	}()

	scanner := ingest.NewScanner(cfg.Server.MaxUploadBytes, true, logger)
	enqueue := func(f ingest.File) {
		job := async.Job{Input: pipeline.Input{
			Name:   filepath.Base(f.Path),
			Format: f.Format,
			Data:   f.Data,
			Type:   *docType,
		}}
		if err := queue.Enqueue(ctx, job); err != nil {
			logger.Error("failed to enqueue document", "path", f.Path, "error", err)
		}
	}

	logger.Info("starting scan", "dir", *dir)
	results, stats, err := scanner.ScanDirectory(ctx, *dir)
	if err != nil {
		logger.Error("failed to scan directory", "error", err)
		os.Exit(1)
	}
	queued := 0
	for _, r := range results {
		if r.Err != nil {
			logger.Warn("skipping unreadable document", "path", r.File.Path, "error", r.Err)
			continue
		}
		if r.Deduplicated {
			continue
		}
		enqueue(r.File)
		queued++
	}
	logger.Info("scan complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"deduplicated", stats.Deduplicated,
		"queued", queued)

	if *watch {
		events, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
			Roots:      []string{*dir},
			SkipHidden: true,
			Debounce:   500 * time.Millisecond,
			Logger:     logger,
		})
		if err != nil {
			logger.Error("failed to watch directory", "error", err)
			os.Exit(1)
		}
		logger.Info("watching for new documents", "dir", *dir, "output_file", *out)
	loop:
		for {
			select {
			case p, ok := <-events:
				if !ok {
					break loop
				}
				res, err := scanner.ReadPath(p)
				if err != nil {
					logger.Warn("skipping document", "path", p, "error", err)
					continue
				}
				if res.Deduplicated {
					continue
				}
				enqueue(res.File)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("watch error", "error", err)
			case <-ctx.Done():
				break loop
			}
		}
	}

	// A one-shot run drains until everything is analyzed or a signal arrives; after a
	// signal (the only way out of watch mode) in-flight work gets a bounded grace period.
	drainCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+cfg.LLM.Timeout)
		defer cancel()
	}
	if err := queue.Shutdown(drainCtx); err != nil {
		logger.Warn("batch did not finish in time; unfinished documents are reported as failures", "error", err)
	}
	close(reports)
	<-collected

	sort.Slice(rows, func(i, j int) bool { return rows[i].Outcome.Name < rows[j].Outcome.Name })
	if err := writeReport(logger, *out, rows); err != nil {
		os.Exit(1)
	}

	failures := 0
	for _, r := range rows {
		if r.Err != nil {
			failures++
		}
	}
	logger.Info("batch processing complete",
		"documents", len(rows),
		"failures", failures,
		"output_file", *out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents analyzed: %d\n", len(rows)-failures)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
}

func writeReport(logger *slog.Logger, path string, rows []export.Row) error {
	xlsxBytes, err := export.NewService(logger).RiskReportXLSX(rows)
	if err != nil {
		logger.Error("failed to build report", "error", err)
		return err
	}
	if err := os.WriteFile(path, xlsxBytes, 0o644); err != nil {
		logger.Error("failed to write output file", "path", path, "error", err)
		return err
	}
	return nil
}
