package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
)

// Change is emitted after a plan transition has been committed.
type Change struct {
	SubscriberID string         `json:"subscriber_id"`
	Plan         constants.Plan `json:"plan"`
	EventID      string         `json:"event_id"`
	EventType    string         `json:"event_type"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// Notifier is told about applied transitions. It is never called for duplicates.
type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

// Observer records one outcome per handled event.
type Observer interface {
	ObserveWebhook(eventType, outcome string)
}

type Processor struct {
	verifier Verifier
	store    entitlement.Store
	notifier Notifier
	observer Observer
	logger   *slog.Logger
}

type ProcessorOption func(*Processor)

func WithNotifier(n Notifier) ProcessorOption {
	return func(p *Processor) { p.notifier = n }
}

func WithObserver(o Observer) ProcessorOption {
	return func(p *Processor) { p.observer = o }
}

func NewProcessor(v Verifier, store entitlement.Store, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{verifier: v, store: store, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Handle verifies, maps and applies one delivery. Redeliveries of an event id are
// acknowledged without side effects. A failed verification never reaches the store.
func (p *Processor) Handle(ctx context.Context, payload []byte, signatureHeader string) (entitlement.Outcome, error) {
	log := common.LoggerFromContext(ctx, p.logger)

	ev, err := p.verifier.Verify(payload, signatureHeader)
	if err == nil {
		err = ev.validate()
	}
	if err != nil {
		log.Warn("billing.webhook.rejected", "error", err, "payload_bytes", len(payload))
		p.observe("unknown", "rejected")
		msg := "invalid webhook payload"
		if errors.Is(err, ErrInvalidSignature) {
			msg = "invalid webhook signature"
		}
		return "", common.NewWebhookError(msg, err)
	}
	log = log.With("event_id", ev.ID, "type", ev.Type)

	mapping, err := MapEvent(ev)
	if err != nil {
		log.Warn("billing.webhook.malformed", "error", err)
		p.observe(ev.Type, "rejected")
		return "", common.NewWebhookError("malformed event object", err)
	}
	if mapping.Anomaly != "" {
		log.Warn("billing.webhook.anomaly", "reason", mapping.Anomaly)
	}

	outcome, err := p.store.Apply(ctx, mapping.Mutation)
	if err != nil {
		log.Error("billing.webhook.store_error", "error", err)
		p.observe(ev.Type, "error")
		return "", common.NewAppError(common.CodeInternal, "failed to record billing event", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}

	switch outcome {
	case entitlement.OutcomeDuplicate:
		log.Info("billing.webhook.duplicate")
	case entitlement.OutcomeStale:
		log.Warn("billing.webhook.stale", "subscriber_id", mapping.Mutation.SubscriberID)
	case entitlement.OutcomeApplied:
		log.Info("billing.webhook.applied",
			"subscriber_id", mapping.Mutation.SubscriberID,
			"plan", string(*mapping.Mutation.Plan),
		)
		p.notify(ctx, log, ev, mapping.Mutation)
	default:
		log.Info("billing.webhook.recorded", "ignored", mapping.Ignored)
	}
	p.observe(ev.Type, string(outcome))
	return outcome, nil
}

// notify failures are logged only: the state is committed and a provider retry would be a duplicate.
func (p *Processor) notify(ctx context.Context, log *slog.Logger, ev Event, m entitlement.Mutation) {
	if p.notifier == nil {
		return
	}
	c := Change{
		SubscriberID: m.SubscriberID,
		Plan:         *m.Plan,
		EventID:      ev.ID,
		EventType:    ev.Type,
		OccurredAt:   ev.Created,
	}
	if err := p.notifier.Notify(ctx, c); err != nil {
		log.Warn("billing.webhook.notify_failed", "error", err)
	}
}

func (p *Processor) observe(eventType, outcome string) {
	if p.observer != nil {
		p.observer.ObserveWebhook(eventType, outcome)
	}
}
