package entitlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/joseph-ayodele/clauseguard/constants"
)

var ErrInvalidMutation = errors.New("entitlement: invalid mutation")

// State is the persisted entitlement of one subscriber.
type State struct {
	SubscriberID string
	Plan         constants.Plan
	LastEventID  string
	LastEventAt  time.Time
	UpdatedAt    time.Time
}

// Mutation records one billing event and, when Plan is set, moves the subscriber to it.
type Mutation struct {
	EventID      string
	EventType    string
	SubscriberID string
	Plan         *constants.Plan
	OccurredAt   time.Time
}

func (m Mutation) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return errors.Join(ErrInvalidMutation, errors.New("event id is required"))
	}
	if m.Plan != nil && strings.TrimSpace(m.SubscriberID) == "" {
		return errors.Join(ErrInvalidMutation, errors.New("plan change without subscriber"))
	}
	return nil
}

// Outcome of Store.Apply.
type Outcome string

const (
	// OutcomeApplied means the event was new and the plan was written.
	OutcomeApplied Outcome = "applied"
	// OutcomeRecorded means the event was new and carried no plan change.
	OutcomeRecorded Outcome = "recorded"
	// OutcomeDuplicate means the event id was seen before; nothing changed.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeStale means the event was new but older than the subscriber's last applied event.
	OutcomeStale Outcome = "stale"
)

// Store persists entitlement state and the set of processed event ids.
//
// Apply must be atomic: the event id is recorded together with the state change, so a
// redelivered event can never apply twice, and two events for the same subscriber never
// interleave their read-modify-write. Get returns a complete snapshot, never a partial write.
type Store interface {
	Get(ctx context.Context, subscriberID string) (State, bool, error)
	Apply(ctx context.Context, m Mutation) (Outcome, error)
	Ping(ctx context.Context) error
	Close() error
}

// Supersedes reports whether an event that occurred at t may overwrite st.
// Events without a timestamp are applied in arrival order.
func Supersedes(st State, t time.Time) bool {
	if st.LastEventAt.IsZero() || t.IsZero() {
		return true
	}
	return !t.Before(st.LastEventAt)
}

// PlanPtr is a convenience for building mutations.
func PlanPtr(p constants.Plan) *constants.Plan {
	return &p
}
