package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
	"github.com/joseph-ayodele/clauseguard/internal/extract"
	"github.com/joseph-ayodele/clauseguard/internal/llm"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubExtractor struct {
	calls int
	text  string
	err   error
	wait  bool
}

func (s *stubExtractor) Run(ctx context.Context, _ []byte) (extract.Result, error) {
	s.calls++
	if s.wait {
		<-ctx.Done()
		return extract.Result{}, &extract.FailedError{Cause: ctx.Err()}
	}
	if s.err != nil {
		return extract.Result{}, s.err
	}
	return extract.Result{Text: s.text, Strategy: "stub"}, nil
}

type stubAnalyzer struct {
	calls  int
	result llm.Result
	err    error
	last   llm.Request
}

func (s *stubAnalyzer) Analyze(_ context.Context, req llm.Request) (llm.Result, error) {
	s.calls++
	s.last = req
	return s.result, s.err
}

func snapshot(tier constants.Tier) entitlement.Snapshot {
	budget, upload := entitlement.Limits{FreeChars: 50, ProChars: 500}.For(tier)
	snap := entitlement.Snapshot{Tier: tier, CharBudget: budget, CanUpload: upload, MaxCharBudget: 500}
	if tier != constants.TierUnauthenticated {
		snap.SubscriberID = "user-1"
	}
	return snap
}

var lowResult = llm.Result{RiskLevel: constants.RiskLow, Summary: "Standard terms.", Clauses: []llm.Clause{}}

func TestExtractStageGatesBeforeExtracting(t *testing.T) {
	tests := []struct {
		name     string
		tier     constants.Tier
		wantIs   error
		wantCall int
	}{
		{"unauthenticated", constants.TierUnauthenticated, common.ErrUnauthorized, 0},
		{"free", constants.TierFree, common.ErrForbidden, 0},
		{"pro", constants.TierPro, nil, 1},
		{"admin", constants.TierAdmin, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &stubExtractor{text: "hello world"}
			stage := NewExtractStage(ex, time.Second, quiet)
			_, err := stage.Run(context.Background(), snapshot(tt.tier), []byte("%PDF-1.4"))
			if tt.wantIs == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Fatalf("error = %v, want %v", err, tt.wantIs)
			}
			if ex.calls != tt.wantCall {
				t.Errorf("extractor calls = %d, want %d", ex.calls, tt.wantCall)
			}
		})
	}
}

func TestExtractStageFailure(t *testing.T) {
	cause := errors.New("xref table broken")
	ex := &stubExtractor{err: &extract.FailedError{Cause: cause}}
	_, err := NewExtractStage(ex, time.Second, quiet).Run(context.Background(), snapshot(constants.TierPro), nil)

	var ae *common.AppError
	if !errors.As(err, &ae) || ae.Code != common.CodeExtraction {
		t.Fatalf("error = %v", err)
	}
	if !errors.Is(err, common.ErrExtraction) || !errors.Is(err, cause) {
		t.Errorf("cause chain lost: %v", err)
	}
}

func TestExtractStageTimeout(t *testing.T) {
	ex := &stubExtractor{wait: true}
	start := time.Now()
	_, err := NewExtractStage(ex, 20*time.Millisecond, quiet).Run(context.Background(), snapshot(constants.TierPro), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout not applied")
	}
}

func TestAnalyzeStage(t *testing.T) {
	builder := llm.NewRequestBuilder("English", quiet)

	t.Run("short text never reaches the model", func(t *testing.T) {
		an := &stubAnalyzer{result: lowResult}
		_, err := NewAnalyzeStage(builder, an, time.Second, quiet).Run(context.Background(), snapshot(constants.TierFree), "too short", "")
		if !errors.Is(err, common.ErrValidation) {
			t.Fatalf("error = %v", err)
		}
		if an.calls != 0 {
			t.Errorf("model called %d times", an.calls)
		}
	})

	t.Run("unauthenticated never reaches the model", func(t *testing.T) {
		an := &stubAnalyzer{result: lowResult}
		_, err := NewAnalyzeStage(builder, an, time.Second, quiet).Run(context.Background(), snapshot(constants.TierUnauthenticated), "a perfectly fine contract text", "")
		if !errors.Is(err, common.ErrUnauthorized) || an.calls != 0 {
			t.Fatalf("error = %v, calls = %d", err, an.calls)
		}
	})

	t.Run("ok", func(t *testing.T) {
		an := &stubAnalyzer{result: lowResult}
		res, err := NewAnalyzeStage(builder, an, time.Second, quiet).Run(context.Background(), snapshot(constants.TierPro), "  a perfectly fine invoice text  ", "invoice")
		if err != nil {
			t.Fatal(err)
		}
		if res.RiskLevel != constants.RiskLow || an.last.Type() != constants.DocumentInvoice {
			t.Errorf("res = %+v, type = %s", res, an.last.Type())
		}
		if an.last.Text() != "a perfectly fine invoice text" {
			t.Errorf("text = %q", an.last.Text())
		}
	})

	t.Run("non-conforming result is rejected", func(t *testing.T) {
		an := &stubAnalyzer{result: llm.Result{RiskLevel: constants.RiskHigh, Summary: "bad"}}
		_, err := NewAnalyzeStage(builder, an, time.Second, quiet).Run(context.Background(), snapshot(constants.TierPro), "a perfectly fine contract text", "")
		if kind, ok := llm.ModelErrorKindOf(err); !ok || kind != llm.ModelInvalidOutput {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("model error passes through", func(t *testing.T) {
		an := &stubAnalyzer{err: llm.NewModelError(llm.ModelUnavailable, 503, nil)}
		_, err := NewAnalyzeStage(builder, an, time.Second, quiet).Run(context.Background(), snapshot(constants.TierPro), "a perfectly fine contract text", "")
		if !errors.Is(err, common.ErrModel) {
			t.Fatalf("error = %v", err)
		}
	})
}

func TestProcessDocument(t *testing.T) {
	ex := &stubExtractor{text: "extracted contract body text"}
	an := &stubAnalyzer{result: lowResult}
	p := NewProcessor(quiet,
		NewExtractStage(ex, time.Second, quiet),
		NewAnalyzeStage(llm.NewRequestBuilder("English", quiet), an, time.Second, quiet),
	)
	ctx := context.Background()

	out, err := p.ProcessDocument(ctx, snapshot(constants.TierAdmin), Input{Name: "a.pdf", Format: constants.PDF, Data: []byte("%PDF-")})
	if err != nil {
		t.Fatal(err)
	}
	if out.Strategy != "stub" || an.last.Text() != "extracted contract body text" {
		t.Errorf("out = %+v", out)
	}

	out, err = p.ProcessDocument(ctx, snapshot(constants.TierAdmin), Input{Name: "b.txt", Format: constants.TEXT, Data: []byte("plain text contract body")})
	if err != nil || out.Strategy != "" || ex.calls != 1 {
		t.Fatalf("text input: %+v, %v, extractor calls %d", out, err, ex.calls)
	}

	if _, err := p.ProcessDocument(ctx, snapshot(constants.TierAdmin), Input{Name: "c.doc", Format: "DOC"}); err == nil {
		t.Error("expected unsupported format error")
	}
}
