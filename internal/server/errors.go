package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/llm"
)

// ErrorBody is the error envelope of every failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
	Upgrade string `json:"upgrade,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// toErrorBody maps an error to its status and caller-safe body. Causes are never exposed
// except for extraction, whose last cause the caller is owed.
func toErrorBody(err error) (int, ErrorBody) {
	var ent *common.EntitlementError
	if errors.As(err, &ent) {
		return http.StatusForbidden, ErrorBody{Code: common.CodeEntitlement, Message: ent.Message, Upgrade: ent.Upgrade}
	}

	var me *llm.ModelError
	if errors.As(err, &me) {
		return http.StatusInternalServerError, ErrorBody{Code: common.CodeModel, Kind: me.Code(), Message: me.Message()}
	}

	var ae *common.AppError
	if errors.As(err, &ae) {
		switch ae.Code {
		case common.CodeValidation:
			return http.StatusBadRequest, ErrorBody{Code: ae.Code, Message: ae.Message}
		case common.CodeAuth:
			return http.StatusUnauthorized, ErrorBody{Code: ae.Code, Message: ae.Message}
		case common.CodeWebhook:
			return http.StatusBadRequest, ErrorBody{Code: ae.Code, Message: ae.Message}
		case common.CodeExtraction, common.CodeConfig, common.CodeInternal:
			return http.StatusInternalServerError, ErrorBody{Code: ae.Code, Message: ae.Message}
		}
	}

	return http.StatusInternalServerError, ErrorBody{Code: common.CodeInternal, Message: "internal error"}
}

func writeError(c *gin.Context, err error) {
	status, body := toErrorBody(err)
	if status >= 500 {
		_ = c.Error(err)
	}
	c.JSON(status, errorEnvelope{Error: body})
}

func abortWithError(c *gin.Context, err error) {
	status, body := toErrorBody(err)
	if status >= 500 {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, errorEnvelope{Error: body})
}
