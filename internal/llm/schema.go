package llm

import "github.com/joseph-ayodele/clauseguard/constants"

// ResultSchemaName is the name sent with structured output requests.
const ResultSchemaName = "risk_analysis"

// ProviderSchema is the JSON Schema sent to the model. Strict structured output only
// accepts a subset of keywords, so length and conditional rules live in ValidationSchema.
func ProviderSchema() map[string]any {
	return resultSchema(false)
}

// ValidationSchema is the local, stricter schema applied to every reply.
func ValidationSchema() map[string]any {
	return resultSchema(true)
}

func resultSchema(local bool) map[string]any {
	text := func(desc string) map[string]any {
		m := map[string]any{"type": "string", "description": desc}
		if local {
			m["minLength"] = 1
			m["pattern"] = `\S`
		}
		return m
	}
	risk := func() map[string]any {
		return map[string]any{"type": "string", "enum": constants.RiskLevels()}
	}

	clause := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"text":        text("The specific risky sentence from the original text."),
			"risk":        risk(),
			"explanation": text("Why this specific sentence is risky."),
		},
		"required": []string{"text", "risk", "explanation"},
	}

	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"riskLevel": risk(),
			"summary":   text("A plain-language explanation of the document, 2-3 sentences max."),
			"clauses":   map[string]any{"type": "array", "items": clause},
		},
		"required": []string{"riskLevel", "summary", "clauses"},
	}
	if local {
		schema["if"] = map[string]any{
			"properties": map[string]any{
				"riskLevel": map[string]any{"enum": []string{string(constants.RiskMedium), string(constants.RiskHigh)}},
			},
		}
		schema["then"] = map[string]any{
			"properties": map[string]any{
				"clauses": map[string]any{"minItems": 1},
			},
		}
	}
	return schema
}
