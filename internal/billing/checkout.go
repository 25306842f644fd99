package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/identity"
)

// SessionRequest is what a checkout provider needs to start a subscription.
type SessionRequest struct {
	PriceID      string
	SuccessURL   string
	CancelURL    string
	SubscriberID string
	Email        string
}

// SessionCreator opens a hosted checkout session and returns its redirect URL.
type SessionCreator interface {
	CreateSession(ctx context.Context, req SessionRequest) (string, error)
}

// PriceLookup resolves a price id for currency and interval.
type PriceLookup func(currency, interval string) (string, bool)

type CheckoutService struct {
	creator SessionCreator
	prices  PriceLookup
	baseURL string
	logger  *slog.Logger
}

func NewCheckoutService(creator SessionCreator, prices PriceLookup, baseURL string, logger *slog.Logger) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutService{creator: creator, prices: prices, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// Create starts a subscription checkout. The identity is optional; when present it is
// attached so the completed event can be attributed.
func (s *CheckoutService) Create(ctx context.Context, currency, interval string, id *identity.Identity) (string, error) {
	if currency == "" {
		currency = constants.DefaultCurrency
	}
	if interval == "" {
		interval = constants.DefaultInterval
	}
	v := common.NewValidator().
		Field("currency", currency, common.CurrencyCode).
		Field("interval", interval, common.OneOf("monthly", "yearly"))
	if err := common.ValidateAndReturnError(v); err != nil {
		return "", err
	}

	log := common.LoggerFromContext(ctx, s.logger)
	priceID, ok := s.prices(currency, interval)
	if !ok {
		log.Error("billing.checkout.no_price", "currency", currency, "interval", interval)
		return "", common.NewConfigError("no price configured for checkout")
	}

	req := SessionRequest{
		PriceID:    priceID,
		SuccessURL: s.baseURL + "/?success=true",
		CancelURL:  s.baseURL + "/?canceled=true",
	}
	if id != nil {
		req.SubscriberID = id.ID
		req.Email = id.Email
	}

	url, err := s.creator.CreateSession(ctx, req)
	if err != nil {
		log.Error("billing.checkout.provider_error", "error", err)
		return "", common.NewAppError(common.CodeInternal, "checkout session could not be created", err)
	}
	log.Info("billing.checkout.created",
		"currency", strings.ToLower(currency),
		"interval", interval,
		"attributed", req.SubscriberID != "",
	)
	return url, nil
}

// StripeSessions creates Stripe Checkout sessions in subscription mode.
type StripeSessions struct {
	api *client.API
}

func NewStripeSessions(secretKey string) *StripeSessions {
	return &StripeSessions{api: client.New(secretKey, nil)}
}

func (s *StripeSessions) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if req.SubscriberID != "" {
		params.ClientReferenceID = stripe.String(req.SubscriberID)
		params.AddMetadata(metadataUserID, req.SubscriberID)
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataUserID: req.SubscriberID},
		}
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe checkout: %w", err)
	}
	return sess.URL, nil
}
