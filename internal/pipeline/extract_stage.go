package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
	"github.com/joseph-ayodele/clauseguard/internal/extract"
)

// Extractor turns a PDF buffer into text. *extract.Pipeline implements it.
type Extractor interface {
	Run(ctx context.Context, buf []byte) (extract.Result, error)
}

const uploadUpgradeHint = "Upgrade to Pro to upload PDF documents."

type ExtractStage struct {
	Extractor Extractor
	Timeout   time.Duration
	Logger    *slog.Logger
}

func NewExtractStage(ex Extractor, timeout time.Duration, logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractStage{Extractor: ex, Timeout: timeout, Logger: logger}
}

// Run gates the upload on the snapshot before touching the buffer, then extracts under
// the stage timeout. Failures are *common.AppError (AUTH, EXTRACTION) or *common.EntitlementError.
func (s *ExtractStage) Run(ctx context.Context, snap entitlement.Snapshot, buf []byte) (extract.Result, error) {
	if err := CheckUpload(snap); err != nil {
		return extract.Result{}, err
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	logger := common.LoggerFromContext(ctx, s.Logger)
	res, err := s.Extractor.Run(ctx, buf)
	if err != nil {
		logger.Warn("pipeline.extract.failed", "bytes", len(buf), "error", err)
		return res, extractionError(err)
	}
	logger.Info("pipeline.extract.ok",
		"strategy", res.Strategy,
		"attempts", len(res.Attempts),
		"chars", len([]rune(res.Text)),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// CheckUpload reports whether the snapshot may upload documents at all.
func CheckUpload(snap entitlement.Snapshot) error {
	if !snap.Authenticated() {
		return common.NewAuthError("sign in to upload documents")
	}
	if !snap.CanUpload {
		return common.NewEntitlementError("your plan does not include PDF upload", uploadUpgradeHint)
	}
	return nil
}

// extractionError keeps the typed failure reachable through errors.As while
// giving callers the EXTRACTION code.
func extractionError(err error) error {
	var fe *extract.FailedError
	if errors.As(err, &fe) && fe.Cause != nil {
		return common.NewAppError(common.CodeExtraction, "could not extract text: "+fe.Cause.Error(), err)
	}
	return common.NewAppError(common.CodeExtraction, "could not extract text", err)
}
