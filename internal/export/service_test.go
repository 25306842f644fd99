package export

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/llm"
	"github.com/joseph-ayodele/clauseguard/internal/pipeline"
)

func TestRiskReportXLSX(t *testing.T) {
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	rows := []Row{
		{Outcome: pipeline.Outcome{
			Name: "lease.pdf", Strategy: "pdf-plaintext", Chars: 1200,
			Result: llm.Result{
				RiskLevel: constants.RiskHigh,
				Summary:   "Landlord may terminate at will.",
				Clauses: []llm.Clause{
					{Text: "may be terminated at any time without cause", Risk: constants.RiskHigh, Explanation: "termination without cause"},
					{Text: "rent is due monthly", Risk: constants.RiskLow, Explanation: "standard"},
				},
			},
		}},
		{Outcome: pipeline.Outcome{Name: "scan.pdf"}, Err: errors.New("EXTRACTION: could not extract text")},
	}

	data, err := svc.RiskReportXLSX(rows)
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary) != 3 {
		t.Fatalf("summary rows = %d", len(summary))
	}
	if summary[1][0] != "lease.pdf" || summary[1][1] != "High" || summary[1][3] != "2" {
		t.Errorf("row 2 = %v", summary[1])
	}
	if summary[2][0] != "scan.pdf" || summary[2][len(summary[2])-1] == "" {
		t.Errorf("failed row = %v", summary[2])
	}

	clauses, err := f.GetRows(clauseSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(clauses) != 3 || clauses[1][1] != "High" {
		t.Errorf("clauses = %v", clauses)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Σύμβαση μίσθωσης", 6); got != "Σύμβα…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
