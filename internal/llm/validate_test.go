package llm

import (
	"errors"
	"testing"

	"github.com/joseph-ayodele/clauseguard/constants"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "low without clauses", raw: `{"riskLevel":"Low","summary":"Standard terms.","clauses":[]}`},
		{name: "high with clause", raw: `{"riskLevel":"High","summary":"One-sided.","clauses":[{"text":"May terminate without cause.","risk":"High","explanation":"Termination without cause."}]}`},
		{name: "high without clauses", raw: `{"riskLevel":"High","summary":"One-sided.","clauses":[]}`, wantErr: true},
		{name: "medium missing clauses key", raw: `{"riskLevel":"Medium","summary":"Ambiguous."}`, wantErr: true},
		{name: "lowercase level", raw: `{"riskLevel":"high","summary":"x","clauses":[]}`, wantErr: true},
		{name: "unknown level", raw: `{"riskLevel":"Critical","summary":"x","clauses":[]}`, wantErr: true},
		{name: "clause missing explanation", raw: `{"riskLevel":"Low","summary":"x","clauses":[{"text":"t","risk":"Low"}]}`, wantErr: true},
		{name: "clause empty text", raw: `{"riskLevel":"Low","summary":"x","clauses":[{"text":"  ","risk":"Low","explanation":"e"}]}`, wantErr: true},
		{name: "extra field", raw: `{"riskLevel":"Low","summary":"x","clauses":[],"confidence":0.9}`, wantErr: true},
		{name: "not json", raw: `Sure! Here is the analysis`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseResult([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", res)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseResult: %v", err)
			}
			if !res.RiskLevel.IsValid() || res.Clauses == nil {
				t.Fatalf("bad result %+v", res)
			}
		})
	}
}

func TestResultValidate(t *testing.T) {
	r := Result{RiskLevel: constants.RiskMedium, Summary: "s"}
	if err := r.Validate(); !errors.Is(err, ErrInvalidResult) {
		t.Fatalf("want ErrInvalidResult, got %v", err)
	}
	r.Clauses = []Clause{{Text: "t", Risk: constants.RiskMedium, Explanation: "e"}}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestProviderSchemaIsStrictCompatible(t *testing.T) {
	s := ProviderSchema()
	if _, ok := s["if"]; ok {
		t.Fatal("provider schema must not use conditionals")
	}
	props := s["properties"].(map[string]any)
	if _, ok := props["summary"].(map[string]any)["minLength"]; ok {
		t.Fatal("provider schema must not use minLength")
	}
	if err := ValidateJSONAgainstSchema(s, []byte(`{"riskLevel":"High","summary":"","clauses":[]}`)); err != nil {
		t.Fatalf("provider schema should be the looser one: %v", err)
	}
}

func TestTrimResultStrings(t *testing.T) {
	out, n, err := TrimResultStrings([]byte(`{"riskLevel":"Low","summary":"  fine \n","clauses":[{"text":" t ","risk":"Low","explanation":"e"}]}`), nil)
	if err != nil {
		t.Fatalf("TrimResultStrings: %v", err)
	}
	if n != 2 {
		t.Fatalf("trimmed %d fields", n)
	}
	res, err := ParseResult(out)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}
	if res.Summary != "fine" || res.Clauses[0].Text != "t" {
		t.Fatalf("got %+v", res)
	}

	if _, _, err := TrimResultStrings([]byte(`[1,2]`), nil); err == nil {
		t.Fatal("expected decode error for non-object")
	}
}
