package llm

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
)

// MinTextRunes is the shortest input worth a model call.
const MinTextRunes = 10

// RequestBuilder turns user text into a Request. It is safe for concurrent use.
type RequestBuilder struct {
	OutputLanguage string
	Logger         *slog.Logger
}

func NewRequestBuilder(outputLanguage string, logger *slog.Logger) *RequestBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &RequestBuilder{OutputLanguage: outputLanguage, Logger: logger}
}

// Build validates text against the snapshot's budget and picks the template.
// Failures are *common.AppError (VALIDATION) or *common.EntitlementError.
func (b *RequestBuilder) Build(text, docType string, snap entitlement.Snapshot) (Request, error) {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)

	v := common.NewValidator().Field("text", trimmed, common.MinLen(MinTextRunes))
	if err := common.ValidateAndReturnError(v); err != nil {
		return Request{}, err
	}

	dt, ok := constants.ParseDocumentType(docType)
	if !ok {
		return Request{}, common.NewValidationError(fmt.Sprintf("type must be one of %q or %q", constants.DocumentContract, constants.DocumentInvoice))
	}

	if snap.CharBudget > 0 && n > snap.CharBudget {
		if snap.CharBudget < snap.MaxCharBudget {
			return Request{}, common.NewEntitlementError(
				fmt.Sprintf("text is %d characters; your plan allows %d", n, snap.CharBudget),
				fmt.Sprintf("Upgrade to Pro to analyze documents up to %d characters.", snap.MaxCharBudget),
			)
		}
		return Request{}, common.NewValidationError(fmt.Sprintf("text is %d characters; the maximum is %d", n, snap.CharBudget))
	}

	repair := DetectMojibake(trimmed)
	if repair.Suspected {
		b.Logger.Info("llm.request.repair_mode",
			"script", repair.Script,
			"assumed", repair.Assumed,
			"confidence", repair.Confidence,
		)
	}

	return Request{
		text:       trimmed,
		docType:    dt,
		repair:     repair,
		language:   b.OutputLanguage,
		system:     BuildSystemPrompt(dt, repair, b.OutputLanguage),
		user:       BuildUserPrompt(dt, trimmed),
		charBudget: snap.CharBudget,
	}, nil
}
