package billing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/joseph-ayodele/clauseguard/internal/common"
)

// Verifier authenticates a raw webhook body and decodes it.
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (Event, error)
}

// NewVerifier returns a Stripe signature verifier. Without a secret it refuses to start in
// production and otherwise accepts unsigned events with a warning.
func NewVerifier(secret string, tolerance time.Duration, production bool, logger *slog.Logger) (Verifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if secret == "" {
		if production {
			return nil, common.NewConfigError("STRIPE_WEBHOOK_SECRET is required in production")
		}
		logger.Warn("billing.webhook.unsigned_mode", "stripe_webhook_secret", common.Presence(secret))
		return unsignedVerifier{logger: logger}, nil
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return stripeVerifier{secret: secret, tolerance: tolerance}, nil
}

type stripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func (v stripeVerifier) Verify(payload []byte, header string) (Event, error) {
	if header == "" {
		return Event{}, errors.Join(ErrInvalidSignature, webhook.ErrNotSigned)
	}
	se, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return Event{}, errors.Join(ErrInvalidSignature, err)
		}
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}
	return fromStripe(se), nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func fromStripe(se stripe.Event) Event {
	ev := Event{ID: se.ID, Type: string(se.Type)}
	if se.Created > 0 {
		ev.Created = time.Unix(se.Created, 0).UTC()
	}
	if se.Data != nil {
		ev.Object = se.Data.Raw
	}
	return ev
}

// unsignedVerifier is only reachable outside production.
type unsignedVerifier struct {
	logger *slog.Logger
}

type rawEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (v unsignedVerifier) Verify(payload []byte, _ string) (Event, error) {
	var re rawEvent
	if err := json.Unmarshal(payload, &re); err != nil {
		return Event{}, errors.Join(ErrInvalidPayload, err)
	}
	v.logger.Warn("billing.webhook.unverified", "event_id", re.ID, "type", re.Type)
	ev := Event{ID: re.ID, Type: re.Type, Object: re.Data.Object}
	if re.Created > 0 {
		ev.Created = time.Unix(re.Created, 0).UTC()
	}
	return ev, nil
}
