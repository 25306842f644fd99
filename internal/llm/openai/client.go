package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/llm"
)

var errMissingKey = errors.New("openai api key is not set")

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze implements llm.Analyzer with chat/completions and strict structured output.
// It does not retry.
func (c *Client) Analyze(ctx context.Context, req llm.Request) (llm.Result, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := common.LoggerFromContext(ctx, c.logger).With("req_id", rid)

	if !c.Configured() {
		log.Error("llm.analyze.misconfigured", "openai_api_key", common.Presence(c.cfg.APIKey))
		return llm.Result{}, llm.NewModelError(llm.ModelMisconfigured, 0, errMissingKey)
	}

	log.Info("llm.analyze.start",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"type", string(req.Type()),
		"text_len", len(req.Text()),
		"repair", req.RepairHint(),
	)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   llm.ResultSchemaName,
				"strict": true,
				"schema": llm.ProviderSchema(),
			},
		},
		"messages": []map[string]any{
			{"role": "system", "content": req.SystemPrompt()},
			{"role": "user", "content": req.UserPrompt()},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, log)
	if err != nil {
		me := classifyTransport(ctx, status, err)
		log.Error("llm.analyze.http_error",
			"kind", me.Code(),
			"status", status,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Result{}, me
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		log.Error("llm.analyze.decode_error", "error", err, "raw_bytes", len(raw))
		return llm.Result{}, llm.NewModelError(llm.ModelInvalidOutput, status, fmt.Errorf("decode openai response: %w", err))
	}
	if len(cc.Choices) == 0 {
		log.Error("llm.analyze.no_choices", "raw_bytes", len(raw))
		return llm.Result{}, llm.NewModelError(llm.ModelInvalidOutput, status, errors.New("no choices in openai response"))
	}

	choice := cc.Choices[0]
	switch {
	case strings.TrimSpace(choice.Message.Refusal) != "":
		log.Warn("llm.analyze.refused", "elapsed_ms", time.Since(start).Milliseconds())
		return llm.Result{}, llm.NewModelError(llm.ModelRejected, status, errors.New("model refused the request"))
	case choice.FinishReason == "content_filter":
		log.Warn("llm.analyze.content_filter", "elapsed_ms", time.Since(start).Milliseconds())
		return llm.Result{}, llm.NewModelError(llm.ModelRejected, status, errors.New("reply stopped by content filter"))
	case choice.FinishReason == "length":
		log.Error("llm.analyze.truncated", "elapsed_ms", time.Since(start).Milliseconds())
		return llm.Result{}, llm.NewModelError(llm.ModelInvalidOutput, status, errors.New("reply truncated at token limit"))
	}

	content := []byte(strings.TrimSpace(choice.Message.Content))
	if cleaned, _, sErr := llm.TrimResultStrings(content, log); sErr == nil {
		content = cleaned
	}

	out, err := llm.ParseResult(content)
	if err != nil {
		log.Error("llm.analyze.schema_validation_failed",
			"error", err,
			"content_bytes", len(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.Result{}, llm.NewModelError(llm.ModelInvalidOutput, status, err)
	}

	log.Info("llm.analyze.ok",
		"risk_level", string(out.RiskLevel),
		"clauses", len(out.Clauses),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// classifyTransport maps a failed call to a ModelError kind. Provider messages are
// dropped from the cause; they can echo fragments of the credential.
func classifyTransport(ctx context.Context, status int, err error) *llm.ModelError {
	var se *llm.StatusError
	if !errors.As(err, &se) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return llm.NewModelError(llm.ModelUnavailable, 0, ctxErr)
		}
		return llm.NewModelError(llm.ModelUnavailable, 0, fmt.Errorf("openai unreachable: %w", err))
	}

	var ae apiError
	_ = json.Unmarshal(se.Body, &ae)
	code := strings.ToLower(ae.Error.Code)
	typ := strings.ToLower(ae.Error.Type)
	cause := fmt.Errorf("openai status %d (type=%q code=%q)", status, ae.Error.Type, ae.Error.Code)

	switch {
	case code == "insufficient_quota" || typ == "insufficient_quota":
		return llm.NewModelError(llm.ModelMisconfigured, status, cause)
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound:
		return llm.NewModelError(llm.ModelMisconfigured, status, cause)
	case status == http.StatusTooManyRequests || status >= 500:
		return llm.NewModelError(llm.ModelUnavailable, status, cause)
	case isPolicyRejection(code, typ, ae.Error.Message):
		return llm.NewModelError(llm.ModelRejected, status, cause)
	case status == http.StatusRequestEntityTooLarge || code == "context_length_exceeded":
		return llm.NewModelError(llm.ModelRejected, status, cause)
	default:
		return llm.NewModelError(llm.ModelMisconfigured, status, cause)
	}
}

func isPolicyRejection(code, typ, message string) bool {
	if code == "content_policy_violation" || code == "content_filter" || typ == "content_policy_violation" {
		return true
	}
	msg := strings.ToLower(message)
	return strings.Contains(msg, "content policy") || strings.Contains(msg, "safety system")
}
