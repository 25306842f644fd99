package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// TrimResultStrings strips surrounding whitespace from the free-text fields of a reply
// (summary, clause text, explanation). Values, keys and shape are never changed, so a
// malformed reply still fails validation afterwards.
func TrimResultStrings(raw []byte, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, 0, fmt.Errorf("sanitize: decode: %w", err)
	}

	trimmed := 0
	trim := func(obj map[string]any, key string) {
		s, ok := obj[key].(string)
		if !ok {
			return
		}
		if t := strings.TrimSpace(s); t != s {
			obj[key] = t
			trimmed++
		}
	}

	trim(m, "summary")
	if clauses, ok := m["clauses"].([]any); ok {
		for _, c := range clauses {
			if obj, ok := c.(map[string]any); ok {
				trim(obj, "text")
				trim(obj, "explanation")
			}
		}
	}
	if trimmed == 0 {
		return raw, 0, nil
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, 0, fmt.Errorf("sanitize: encode: %w", err)
	}
	logger.Debug("llm.sanitize.trimmed", "fields", trimmed)
	return out, trimmed, nil
}
