package constants

import "strings"

// DocumentType selects the analysis template.
type DocumentType string

const (
	DocumentContract DocumentType = "contract"
	DocumentInvoice  DocumentType = "invoice"
)

// ParseDocumentType maps user input to a DocumentType. Empty input means contract.
func ParseDocumentType(s string) (DocumentType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(DocumentContract):
		return DocumentContract, true
	case string(DocumentInvoice):
		return DocumentInvoice, true
	default:
		return "", false
	}
}

// RiskLevel is the three-level scale shared by verdicts and clauses.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

var allRiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh}

// RiskLevels returns the allowed levels as strings, in ascending order.
func RiskLevels() []string {
	out := make([]string, len(allRiskLevels))
	for i, l := range allRiskLevels {
		out[i] = string(l)
	}
	return out
}

// IsValid reports whether l is one of the three fixed levels. The match is exact.
func (l RiskLevel) IsValid() bool {
	for _, v := range allRiskLevels {
		if l == v {
			return true
		}
	}
	return false
}
