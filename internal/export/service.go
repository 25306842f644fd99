package export

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/pipeline"
)

const (
	summarySheet = "Summary"
	clauseSheet  = "Clauses"
)

// Row is one analyzed (or failed) document in a report.
type Row struct {
	Outcome pipeline.Outcome
	Err     error
}

// Service produces XLSX bytes for batch risk reports.
type Service struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, now: time.Now}
}

// RiskReportXLSX writes one summary line per document and one line per cited clause.
func (s *Service) RiskReportXLSX(rows []Row) ([]byte, error) {
	start := s.now()

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(clauseSheet); err != nil {
		return nil, err
	}
	idx, _ := f.GetSheetIndex(summarySheet)
	f.SetActiveSheet(idx)

	header := func(sheet string, cols []string) {
		for i, h := range cols {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			_ = f.SetCellValue(sheet, cell, h)
		}
	}
	header(summarySheet, []string{"Document", "Risk Level", "Summary", "Clauses", "Strategy", "Characters", "Error"})
	header(clauseSheet, []string{"Document", "Risk", "Clause", "Explanation"})

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(summarySheet, 1, 1, bold)
		_ = f.SetRowStyle(clauseSheet, 1, 1, bold)
	}
	high, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"F8CBAD"}, Pattern: 1},
	})
	if err != nil {
		high = 0
	}

	sumRow, clauseRow := 2, 2
	for _, r := range rows {
		write := func(sheet string, col, row int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		o := r.Outcome
		write(summarySheet, 1, sumRow, o.Name)
		if r.Err != nil {
			write(summarySheet, 7, sumRow, truncate(r.Err.Error(), 200))
			sumRow++
			continue
		}
		write(summarySheet, 2, sumRow, string(o.Result.RiskLevel))
		write(summarySheet, 3, sumRow, truncate(o.Result.Summary, 500))
		write(summarySheet, 4, sumRow, len(o.Result.Clauses))
		write(summarySheet, 5, sumRow, o.Strategy)
		write(summarySheet, 6, sumRow, o.Chars)
		if o.Result.RiskLevel == constants.RiskHigh && high != 0 {
			cell, _ := excelize.CoordinatesToCellName(2, sumRow)
			_ = f.SetCellStyle(summarySheet, cell, cell, high)
		}
		sumRow++

		for _, c := range o.Result.Clauses {
			write(clauseSheet, 1, clauseRow, o.Name)
			write(clauseSheet, 2, clauseRow, string(c.Risk))
			write(clauseSheet, 3, clauseRow, truncate(c.Text, 1000))
			write(clauseSheet, 4, clauseRow, truncate(c.Explanation, 1000))
			clauseRow++
		}
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 32) // document
	_ = f.SetColWidth(summarySheet, "B", "B", 12) // risk
	_ = f.SetColWidth(summarySheet, "C", "C", 80) // summary
	_ = f.SetColWidth(summarySheet, "D", "F", 12)
	_ = f.SetColWidth(summarySheet, "G", "G", 60)
	_ = f.SetColWidth(clauseSheet, "A", "A", 32)
	_ = f.SetColWidth(clauseSheet, "B", "B", 10)
	_ = f.SetColWidth(clauseSheet, "C", "D", 70)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"documents", len(rows),
		"clauses", clauseRow-2,
		"elapsed_ms", s.now().Sub(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
