package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/clauseguard/constants"
)

// Observer receives one call per strategy attempt. Metrics hang off this.
type Observer interface {
	ObserveAttempt(strategy string, ok bool, d time.Duration)
}

// Config drives the default strategy set.
type Config struct {
	Pdftotext string
	MaxPages  int
}

// Pipeline runs an ordered list of strategies and returns the first one that yields text.
type Pipeline struct {
	strategies []Strategy
	logger     *slog.Logger
	observer   Observer
}

type Option func(*Pipeline)

// WithStrategies replaces the default strategy order.
func WithStrategies(s ...Strategy) Option {
	return func(p *Pipeline) { p.strategies = s }
}

func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// DefaultStrategies is the production order: two passes over ledongthuc/pdf, poppler's
// pdftotext, then a tolerant scan of raw content streams.
func DefaultStrategies(cfg Config, runner Runner, logger *slog.Logger) []Strategy {
	if runner == nil {
		runner = ExecRunner()
	}
	bin := cfg.Pdftotext
	if bin == "" {
		bin = "pdftotext"
	}
	return []Strategy{
		NewPlainTextStrategy(cfg.MaxPages),
		NewGlyphRunStrategy(cfg.MaxPages),
		NewPopplerStrategy(bin, runner, logger),
		NewRawStreamStrategy(),
	}
}

func NewPipeline(cfg Config, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{logger: logger}
	for _, o := range opts {
		o(p)
	}
	if len(p.strategies) == 0 {
		p.strategies = DefaultStrategies(cfg, nil, logger)
	}
	return p
}

// IsPDF reports whether the %PDF- marker appears near the start of buf.
func IsPDF(buf []byte) bool {
	window := buf
	if len(window) > constants.PDFMagicWindow {
		window = window[:constants.PDFMagicWindow]
	}
	return bytes.Contains(window, []byte(constants.PDFMagic))
}

// Run tries each strategy in order. The first non-empty normalized text wins.
// Failures and panics are recorded and the next strategy runs. Cancellation of ctx
// stops the walk between strategies.
func (p *Pipeline) Run(ctx context.Context, buf []byte) (Result, error) {
	start := time.Now()
	if !IsPDF(buf) {
		return Result{}, &FailedError{Cause: ErrNotPDF}
	}

	doc := NewDocument(buf)
	attempts := make([]Attempt, 0, len(p.strategies))
	var lastErr error

	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		t0 := time.Now()
		text, err := p.runOne(ctx, s, doc)
		if err == nil {
			text = Normalize(text)
			if strings.TrimSpace(text) == "" {
				err = ErrEmptyText
			}
		}
		a := Attempt{Strategy: s.Name(), Join: s.Join(), Err: err, Duration: time.Since(t0)}
		attempts = append(attempts, a)
		if p.observer != nil {
			p.observer.ObserveAttempt(a.Strategy, a.OK(), a.Duration)
		}

		if err != nil {
			lastErr = err
			p.logger.Warn("extract.strategy.failed",
				"strategy", a.Strategy,
				"join", string(a.Join),
				"duration_ms", a.Duration.Milliseconds(),
				"error", err,
			)
			continue
		}

		res := Result{
			Text:     text,
			Strategy: a.Strategy,
			Join:     a.Join,
			Attempts: attempts,
			Duration: time.Since(start),
		}
		p.logger.Info("extract.ok",
			"strategy", res.Strategy,
			"attempts", len(attempts),
			"text_len", len(res.Text),
			"duration_ms", res.Duration.Milliseconds(),
		)
		return res, nil
	}

	if lastErr == nil {
		lastErr = ErrEmptyText
	}
	p.logger.Error("extract.failed",
		"attempts", len(attempts),
		"duration_ms", time.Since(start).Milliseconds(),
		"error", lastErr,
	)
	return Result{}, &FailedError{Attempts: attempts, Cause: lastErr}
}

func (p *Pipeline) runOne(ctx context.Context, s Strategy, doc *Document) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %s: %v", ErrStrategyPanic, s.Name(), r)
		}
	}()
	return s.Extract(ctx, doc)
}
