package billing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
)

// Event is a verified billing provider notification.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Object  json.RawMessage
}

func (e Event) validate() error {
	if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.Type) == "" {
		return ErrInvalidEvent
	}
	return nil
}

// Fields we read from event objects. Checkout sessions carry the subscriber in
// client_reference_id or metadata; subscriptions and invoices carry it in metadata
// copied from the checkout.
type eventObject struct {
	ClientReferenceID   string            `json:"client_reference_id"`
	Metadata            map[string]string `json:"metadata"`
	SubscriptionDetails *struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

const metadataUserID = "user_id"

// Mapping is the entitlement effect of an event.
type Mapping struct {
	Mutation entitlement.Mutation
	// Anomaly is set when the event should have changed state but could not.
	Anomaly string
	Ignored bool
}

// MapEvent translates a provider event into a store mutation. Every event yields a
// mutation so its id is recorded, even when it changes nothing.
func MapEvent(ev Event) (Mapping, error) {
	m := Mapping{Mutation: entitlement.Mutation{
		EventID:    ev.ID,
		EventType:  ev.Type,
		OccurredAt: ev.Created,
	}}

	var obj eventObject
	if len(ev.Object) > 0 {
		if err := json.Unmarshal(ev.Object, &obj); err != nil {
			return Mapping{}, errors.Join(ErrInvalidPayload, err)
		}
	}

	switch ev.Type {
	case constants.EventCheckoutCompleted:
		sub := firstNonEmpty(obj.ClientReferenceID, obj.Metadata[metadataUserID])
		if sub == "" {
			m.Anomaly = "checkout completed without subscriber id"
			return m, nil
		}
		m.Mutation.SubscriberID = sub
		m.Mutation.Plan = entitlement.PlanPtr(constants.PlanPro)

	case constants.EventSubscriptionDeleted:
		sub := obj.Metadata[metadataUserID]
		if sub == "" {
			m.Anomaly = "subscription deleted without subscriber id"
			return m, nil
		}
		m.Mutation.SubscriberID = sub
		m.Mutation.Plan = entitlement.PlanPtr(constants.PlanNone)

	case constants.EventRecurringPaymentSucceeded:
		// Entitlement is not re-derived per billing cycle.
		if obj.SubscriptionDetails != nil {
			m.Mutation.SubscriberID = obj.SubscriptionDetails.Metadata[metadataUserID]
		}

	default:
		m.Ignored = true
	}
	return m, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
