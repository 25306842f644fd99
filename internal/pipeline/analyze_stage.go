package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
	"github.com/joseph-ayodele/clauseguard/internal/llm"
)

type AnalyzeStage struct {
	Builder  *llm.RequestBuilder
	Analyzer llm.Analyzer
	Timeout  time.Duration
	Logger   *slog.Logger
}

func NewAnalyzeStage(b *llm.RequestBuilder, a llm.Analyzer, timeout time.Duration, logger *slog.Logger) *AnalyzeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeStage{Builder: b, Analyzer: a, Timeout: timeout, Logger: logger}
}

// Run builds the request under the snapshot and calls the model. Nothing reaches the model
// unless the request builds.
func (s *AnalyzeStage) Run(ctx context.Context, snap entitlement.Snapshot, text, docType string) (llm.Result, error) {
	if !snap.Authenticated() {
		return llm.Result{}, common.NewAuthError("sign in to analyze documents")
	}
	req, err := s.Builder.Build(text, docType, snap)
	if err != nil {
		return llm.Result{}, err
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	logger := common.LoggerFromContext(ctx, s.Logger)
	start := time.Now()
	res, err := s.Analyzer.Analyze(ctx, req)
	if err != nil {
		kind, _ := llm.ModelErrorKindOf(err)
		logger.Warn("pipeline.analyze.failed",
			"type", req.Type(),
			"kind", kind,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Result{}, err
	}
	// Never hand a non-conforming result to the caller, whatever the analyzer did.
	if err := res.Validate(); err != nil {
		return llm.Result{}, llm.NewModelError(llm.ModelInvalidOutput, 0, err)
	}
	logger.Info("pipeline.analyze.ok",
		"type", req.Type(),
		"repair_mode", req.RepairHint(),
		"risk_level", res.RiskLevel,
		"clauses", len(res.Clauses),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
