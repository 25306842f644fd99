package llm

import (
	"errors"
	"fmt"

	"github.com/joseph-ayodele/clauseguard/internal/common"
)

// ModelErrorKind separates failures the caller can act on differently.
type ModelErrorKind string

const (
	// ModelUnavailable covers network errors, timeouts, 429 and 5xx.
	ModelUnavailable ModelErrorKind = "MODEL_UNAVAILABLE"
	// ModelMisconfigured covers missing credentials, bad keys, unknown models and exhausted quota.
	ModelMisconfigured ModelErrorKind = "MODEL_MISCONFIGURED"
	// ModelRejected means the provider refused the input by policy.
	ModelRejected ModelErrorKind = "MODEL_REJECTED"
	// ModelInvalidOutput means the reply could not be parsed into a valid Result.
	ModelInvalidOutput ModelErrorKind = "MODEL_INVALID_OUTPUT"
)

// ModelError is returned by Analyzer implementations. It never carries the raw model output.
type ModelError struct {
	Kind   ModelErrorKind
	Status int
	Cause  error
}

func (e *ModelError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *ModelError) Unwrap() []error { return []error{common.ErrModel, e.Cause} }

// Code is the sub-code reported in the error envelope.
func (e *ModelError) Code() string { return string(e.Kind) }

// Message is safe to show to callers.
func (e *ModelError) Message() string {
	switch e.Kind {
	case ModelUnavailable:
		return "the analysis service is temporarily unavailable"
	case ModelMisconfigured:
		return "the analysis service is not configured correctly"
	case ModelRejected:
		return "the document was rejected by the analysis provider's content policy"
	default:
		return "the analysis service returned an invalid result"
	}
}

func NewModelError(kind ModelErrorKind, status int, cause error) *ModelError {
	if cause == nil {
		cause = errors.New(string(kind))
	}
	return &ModelError{Kind: kind, Status: status, Cause: cause}
}

// ModelErrorKindOf returns the kind of a ModelError in err's chain.
func ModelErrorKindOf(err error) (ModelErrorKind, bool) {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return "", false
}
