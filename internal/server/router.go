package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
	"github.com/joseph-ayodele/clauseguard/internal/identity"
	"github.com/joseph-ayodele/clauseguard/internal/metrics"
)

type RouterConfig struct {
	Handlers       *Handlers
	Verifier       *identity.Verifier
	Resolver       *entitlement.Resolver
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter wires middleware and routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Handlers.Logger == nil {
		cfg.Handlers.Logger = logger
	}

	r := gin.New()
	r.Use(RequestID())
	r.Use(Recovery(logger))
	r.Use(RequestLogger(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.GinMiddleware())
	}
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(CORS(cfg.AllowedOrigins))
	}

	r.GET("/healthz", cfg.Handlers.Healthz)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Signature-verified; no session involved.
	r.POST("/stripe/webhook", cfg.Handlers.StripeWebhook)

	identified := r.Group("/")
	identified.Use(Deadline(cfg.RequestTimeout))
	identified.Use(Identify(cfg.Verifier, cfg.Resolver, logger))
	{
		identified.POST("/stripe/checkout", cfg.Handlers.CreateCheckout)

		authed := identified.Group("/")
		authed.Use(RequireIdentity())
		authed.POST("/analyze", cfg.Handlers.AnalyzeText)
		authed.POST("/parse-pdf", cfg.Handlers.ParsePDF)
	}
	return r
}
