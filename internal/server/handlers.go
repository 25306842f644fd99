package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/billing"
	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/pipeline"
)

const maxWebhookBytes = 512 << 10

type AnalyzeRequest struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

type ParsePDFResponse struct {
	Text string `json:"text"`
}

type CheckoutRequest struct {
	Currency string `json:"currency"`
	Interval string `json:"interval"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

// Checker reports backend health.
type Checker interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP endpoints. Each request is independent; nothing here is mutated after construction.
type Handlers struct {
	Analyze        *pipeline.AnalyzeStage
	Extract        *pipeline.ExtractStage
	Checkout       *billing.CheckoutService
	Webhook        *billing.Processor
	Health         Checker
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// AnalyzeText handles POST /analyze.
func (h *Handlers) AnalyzeText(c *gin.Context) {
	snap, _ := snapshotFrom(c)

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, common.NewValidationError("request body must be JSON with a text field"))
		return
	}
	res, err := h.Analyze.Run(c.Request.Context(), snap, req.Text, req.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ParsePDF handles POST /parse-pdf. The tier is checked before the body is read.
func (h *Handlers) ParsePDF(c *gin.Context) {
	snap, _ := snapshotFrom(c)
	if err := pipeline.CheckUpload(snap); err != nil {
		writeError(c, err)
		return
	}

	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, common.NewValidationError("file exceeds the upload limit"))
			return
		}
		writeError(c, common.NewValidationError("no file uploaded"))
		return
	}
	defer file.Close()

	buf, err := io.ReadAll(file)
	if err != nil {
		writeError(c, common.NewValidationError("could not read uploaded file"))
		return
	}
	if len(buf) == 0 {
		writeError(c, common.NewValidationError("uploaded file is empty"))
		return
	}

	res, err := h.Extract.Run(c.Request.Context(), snap, buf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ParsePDFResponse{Text: res.Text})
}

// CreateCheckout handles POST /stripe/checkout. Anonymous callers are allowed.
func (h *Handlers) CreateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(c, common.NewValidationError("request body must be JSON"))
			return
		}
	}
	id, _ := identityFrom(c)
	url, err := h.Checkout.Create(c.Request.Context(), strings.TrimSpace(req.Currency), strings.TrimSpace(req.Interval), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, CheckoutResponse{URL: url})
}

// StripeWebhook handles POST /stripe/webhook. The raw body is verified byte for byte.
func (h *Handlers) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes+1))
	if err != nil || len(payload) > maxWebhookBytes {
		writeError(c, common.NewWebhookError("unreadable webhook payload", err))
		return
	}
	if _, err := h.Webhook.Handle(c.Request.Context(), payload, c.GetHeader(constants.StripeSignatureHeader)); err != nil {
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, "Received")
}

// Healthz pings the entitlement store.
func (h *Handlers) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if h.Health != nil {
		if err := h.Health.Ping(ctx); err != nil {
			h.Logger.Warn("health.store.failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}
