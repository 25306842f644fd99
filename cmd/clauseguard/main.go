package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/clauseguard/internal/billing"
	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
	"github.com/joseph-ayodele/clauseguard/internal/extract"
	"github.com/joseph-ayodele/clauseguard/internal/identity"
	"github.com/joseph-ayodele/clauseguard/internal/llm"
	"github.com/joseph-ayodele/clauseguard/internal/llm/openai"
	"github.com/joseph-ayodele/clauseguard/internal/metrics"
	"github.com/joseph-ayodele/clauseguard/internal/pipeline"
	"github.com/joseph-ayodele/clauseguard/internal/repository"
	"github.com/joseph-ayodele/clauseguard/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("clauseguard exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	logger := common.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Info("configuration loaded", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := repository.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Error("failed to close entitlement store", "error", err)
		}
	}()

	m := metrics.New(metrics.Config{ServiceName: "clauseguard", Environment: cfg.Env})

	verifier, err := identity.NewVerifier(identity.Config{
		Issuer:       cfg.Identity.ExpectedIssuer(),
		Audience:     cfg.Identity.Audience,
		HMACSecret:   cfg.Identity.JWTSecret,
		PublicKeyPEM: cfg.Identity.PublicKey,
	})
	if err != nil {
		return common.WrapError(err, "identity verifier")
	}
	if !verifier.Enabled() {
		logger.Warn("no identity key configured; every request is unauthenticated")
	}
	resolver := entitlement.NewResolver(stores.Entitlements, entitlement.Limits{
		FreeChars: cfg.Entitlement.FreeCharLimit,
		ProChars:  cfg.Entitlement.ProCharLimit,
	}, logger)

	extractor := extract.NewPipeline(extract.Config{
		Pdftotext: cfg.Extract.Pdftotext,
		MaxPages:  cfg.Extract.MaxPages,
	}, logger, extract.WithObserver(m))

	model := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	if !model.Configured() {
		logger.Warn("OpenAI API key not configured; analysis requests will fail", "openai_api_key", common.Presence(cfg.LLM.APIKey))
	}

	whVerifier, err := billing.NewVerifier(cfg.Billing.WebhookSecret, cfg.Billing.WebhookTolerance, cfg.IsProduction(), logger)
	if err != nil {
		return err
	}
	procOpts := []billing.ProcessorOption{billing.WithObserver(m)}
	if stores.Notifier != nil {
		procOpts = append(procOpts, billing.WithNotifier(stores.Notifier))
	}

	handlers := &server.Handlers{
		Analyze:        pipeline.NewAnalyzeStage(llm.NewRequestBuilder(cfg.LLM.OutputLanguage, logger), m.InstrumentAnalyzer(model), cfg.LLM.Timeout, logger),
		Extract:        pipeline.NewExtractStage(extractor, cfg.Extract.Timeout, logger),
		Checkout:       billing.NewCheckoutService(billing.NewStripeSessions(cfg.Billing.SecretKey), cfg.PriceID, cfg.Server.BaseURL, logger),
		Webhook:        billing.NewProcessor(whVerifier, stores.Entitlements, logger, procOpts...),
		Health:         stores.Entitlements,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.RouterConfig{
		Handlers:       handlers,
		Verifier:       verifier,
		Resolver:       resolver,
		Metrics:        m,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr, "entitlement_store", stores.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Server.GRPCHealthAddr != "" {
		hs := server.NewHealthServer(stores.Entitlements, 10*time.Second, logger)
		g.Go(func() error { return hs.Serve(gctx, cfg.Server.GRPCHealthAddr) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
