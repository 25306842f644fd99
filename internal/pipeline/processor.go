package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
	"github.com/joseph-ayodele/clauseguard/internal/llm"
)

// Processor coordinates text extraction then model analysis.
type Processor struct {
	Logger  *slog.Logger
	Extract *ExtractStage
	Analyze *AnalyzeStage
}

func NewProcessor(logger *slog.Logger, ex *ExtractStage, an *AnalyzeStage) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Extract: ex, Analyze: an}
}

// Input is one document handed to ProcessDocument.
type Input struct {
	Name   string
	Format string // constants.PDF or constants.TEXT
	Data   []byte
	Type   string
}

// Outcome is what ProcessDocument learned about one document.
type Outcome struct {
	Name     string
	Strategy string // empty for text input
	Chars    int
	Result   llm.Result
}

// ProcessDocument extracts text when the input is a PDF, then analyzes it.
// The snapshot is taken once by the caller and used for both stages.
func (p *Processor) ProcessDocument(ctx context.Context, snap entitlement.Snapshot, in Input) (Outcome, error) {
	out := Outcome{Name: in.Name}
	text := string(in.Data)

	switch in.Format {
	case constants.PDF:
		res, err := p.Extract.Run(ctx, snap, in.Data)
		if err != nil {
			p.Logger.Error("processor.extract.failed", "name", in.Name, "err", err)
			return out, err
		}
		out.Strategy = res.Strategy
		text = res.Text
	case constants.TEXT:
	default:
		return out, fmt.Errorf("unsupported format %q", in.Format)
	}
	out.Chars = len([]rune(text))

	result, err := p.Analyze.Run(ctx, snap, text, in.Type)
	if err != nil {
		p.Logger.Error("processor.analyze.failed", "name", in.Name, "err", err)
		return out, err
	}
	out.Result = result
	p.Logger.Info("processor.ok", "name", in.Name, "risk_level", result.RiskLevel, "strategy", out.Strategy)
	return out, nil
}
