package common

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationError is one failed rule for one field.
type ValidationError struct {
	Field   string
	Message string
}

// Error leaves the value out: fields may carry whole documents.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Validator collects field failures so a request reports all of them at once.
type Validator struct {
	failures []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field runs every rule against value and keeps the failures.
func (v *Validator) Field(fieldName string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.failures = append(v.failures, *err)
		}
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.failures) > 0
}

// ErrorMessage joins the failures with "; ".
func (v *Validator) ErrorMessage() string {
	messages := make([]string, 0, len(v.failures))
	for _, f := range v.failures {
		messages = append(messages, f.Error())
	}
	return strings.Join(messages, "; ")
}

type ValidationRule func(fieldName string, value any) *ValidationError

func stringValue(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case *string:
		if v != nil {
			return *v, true
		}
	}
	return "", false
}

// MinLen counts runes, not bytes.
func MinLen(min int) ValidationRule {
	return func(fieldName string, value any) *ValidationError {
		str, ok := stringValue(value)
		if !ok {
			return nil
		}
		if utf8.RuneCountInString(str) < min {
			return &ValidationError{Field: fieldName, Message: fmt.Sprintf("must be at least %d characters", min)}
		}
		return nil
	}
}

var currencyRegex = regexp.MustCompile(`^[a-zA-Z]{3}$`)

// CurrencyCode accepts ISO 4217 codes in either case; billing providers use lowercase.
func CurrencyCode(fieldName string, value any) *ValidationError {
	str, ok := stringValue(value)
	if !ok {
		return &ValidationError{Field: fieldName, Message: "must be a string"}
	}
	if !currencyRegex.MatchString(str) {
		return &ValidationError{Field: fieldName, Message: "must be 3 letters (ISO 4217)"}
	}
	return nil
}

// OneOf builds a rule that accepts only the listed values, compared case-insensitively.
func OneOf(allowed ...string) ValidationRule {
	return func(fieldName string, value any) *ValidationError {
		str, ok := stringValue(value)
		if !ok {
			return &ValidationError{Field: fieldName, Message: "must be a string"}
		}
		for _, a := range allowed {
			if strings.EqualFold(str, a) {
				return nil
			}
		}
		return &ValidationError{Field: fieldName, Message: fmt.Sprintf("must be one of %s", strings.Join(allowed, ", "))}
	}
}

// ValidateAndReturnError converts collected failures into a VALIDATION AppError.
func ValidateAndReturnError(validator *Validator) error {
	if validator.HasErrors() {
		return NewValidationError(validator.ErrorMessage())
	}
	return nil
}
