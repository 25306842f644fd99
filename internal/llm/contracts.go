package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/clauseguard/constants"
)

// Clause is one cited finding.
type Clause struct {
	Text        string              `json:"text"`
	Risk        constants.RiskLevel `json:"risk"`
	Explanation string              `json:"explanation"`
}

// Result is the structured model output returned to callers.
type Result struct {
	RiskLevel constants.RiskLevel `json:"riskLevel"`
	Summary   string              `json:"summary"`
	Clauses   []Clause            `json:"clauses"`
}

var ErrInvalidResult = errors.New("result does not satisfy the analysis contract")

// Validate enforces the result contract on an already-decoded value. A non-Low verdict
// must cite at least one clause.
func (r Result) Validate() error {
	if !r.RiskLevel.IsValid() {
		return fmt.Errorf("%w: riskLevel %q", ErrInvalidResult, r.RiskLevel)
	}
	if strings.TrimSpace(r.Summary) == "" {
		return fmt.Errorf("%w: empty summary", ErrInvalidResult)
	}
	if r.RiskLevel != constants.RiskLow && len(r.Clauses) == 0 {
		return fmt.Errorf("%w: %s verdict without clauses", ErrInvalidResult, r.RiskLevel)
	}
	for i, c := range r.Clauses {
		switch {
		case strings.TrimSpace(c.Text) == "":
			return fmt.Errorf("%w: clause %d has no text", ErrInvalidResult, i)
		case !c.Risk.IsValid():
			return fmt.Errorf("%w: clause %d risk %q", ErrInvalidResult, i, c.Risk)
		case strings.TrimSpace(c.Explanation) == "":
			return fmt.Errorf("%w: clause %d has no explanation", ErrInvalidResult, i)
		}
	}
	return nil
}

// Request is the normalized, immutable input to the model. Build one with RequestBuilder.
type Request struct {
	text       string
	docType    constants.DocumentType
	repair     Repair
	language   string
	system     string
	user       string
	charBudget int
}

func (r Request) Text() string                 { return r.text }
func (r Request) Type() constants.DocumentType { return r.docType }

// RepairHint reports whether the prompt asks the model to reconstruct mis-decoded text.
func (r Request) RepairHint() bool       { return r.repair.Suspected }
func (r Request) Repair() Repair         { return r.repair }
func (r Request) OutputLanguage() string { return r.language }
func (r Request) SystemPrompt() string   { return r.system }
func (r Request) UserPrompt() string     { return r.user }
func (r Request) CharBudget() int        { return r.charBudget }

// Analyzer is the interface the pipeline depends on.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Result, error)
}
