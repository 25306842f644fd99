// Package entitlementtest holds a behavioral test suite every entitlement.Store must pass.
package entitlementtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
)

// RunStoreTests exercises idempotency, ordering and per-subscriber atomicity.
// newStore must return an empty store.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) entitlement.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("apply then read", func(t *testing.T) {
		s := newStore(t)
		out, err := s.Apply(ctx, entitlement.Mutation{
			EventID: "evt_1", EventType: constants.EventCheckoutCompleted,
			SubscriberID: "user-1", Plan: entitlement.PlanPtr(constants.PlanPro), OccurredAt: base,
		})
		if err != nil || out != entitlement.OutcomeApplied {
			t.Fatalf("Apply = %q, %v", out, err)
		}
		st, found, err := s.Get(ctx, "user-1")
		if err != nil || !found {
			t.Fatalf("Get = %v, %v", found, err)
		}
		if st.Plan != constants.PlanPro || st.LastEventID != "evt_1" {
			t.Errorf("state = %+v", st)
		}
		if _, found, _ := s.Get(ctx, "nobody"); found {
			t.Error("unexpected state for unknown subscriber")
		}
	})

	t.Run("replay is a no-op", func(t *testing.T) {
		s := newStore(t)
		m := entitlement.Mutation{
			EventID: "evt_dup", EventType: constants.EventCheckoutCompleted,
			SubscriberID: "user-1", Plan: entitlement.PlanPtr(constants.PlanPro), OccurredAt: base,
		}
		if out, err := s.Apply(ctx, m); err != nil || out != entitlement.OutcomeApplied {
			t.Fatalf("first Apply = %q, %v", out, err)
		}
		first, _, _ := s.Get(ctx, "user-1")

		out, err := s.Apply(ctx, m)
		if err != nil || out != entitlement.OutcomeDuplicate {
			t.Fatalf("second Apply = %q, %v", out, err)
		}
		second, _, _ := s.Get(ctx, "user-1")
		if !first.UpdatedAt.Equal(second.UpdatedAt) || first.LastEventID != second.LastEventID {
			t.Errorf("state changed on replay: %+v -> %+v", first, second)
		}
	})

	t.Run("event without plan is recorded once", func(t *testing.T) {
		s := newStore(t)
		m := entitlement.Mutation{EventID: "evt_noop", EventType: constants.EventRecurringPaymentSucceeded}
		if out, err := s.Apply(ctx, m); err != nil || out != entitlement.OutcomeRecorded {
			t.Fatalf("Apply = %q, %v", out, err)
		}
		if out, _ := s.Apply(ctx, m); out != entitlement.OutcomeDuplicate {
			t.Fatalf("replay = %q", out)
		}
	})

	t.Run("older event does not overwrite newer state", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Apply(ctx, entitlement.Mutation{
			EventID: "evt_cancel", EventType: constants.EventSubscriptionDeleted,
			SubscriberID: "user-1", Plan: entitlement.PlanPtr(constants.PlanNone), OccurredAt: base.Add(time.Hour),
		}); err != nil {
			t.Fatal(err)
		}
		out, err := s.Apply(ctx, entitlement.Mutation{
			EventID: "evt_checkout", EventType: constants.EventCheckoutCompleted,
			SubscriberID: "user-1", Plan: entitlement.PlanPtr(constants.PlanPro), OccurredAt: base,
		})
		if err != nil || out != entitlement.OutcomeStale {
			t.Fatalf("Apply = %q, %v", out, err)
		}
		st, _, _ := s.Get(ctx, "user-1")
		if st.Plan != constants.PlanNone {
			t.Errorf("plan = %q, want none", st.Plan)
		}
	})

	t.Run("invalid mutation", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Apply(ctx, entitlement.Mutation{SubscriberID: "user-1"}); err == nil {
			t.Error("expected error for missing event id")
		}
		if _, err := s.Apply(ctx, entitlement.Mutation{EventID: "e", Plan: entitlement.PlanPtr(constants.PlanPro)}); err == nil {
			t.Error("expected error for plan without subscriber")
		}
	})

	t.Run("concurrent redelivery applies once", func(t *testing.T) {
		s := newStore(t)
		const n = 8
		var wg sync.WaitGroup
		results := make(chan entitlement.Outcome, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := s.Apply(ctx, entitlement.Mutation{
					EventID: "evt_race", EventType: constants.EventCheckoutCompleted,
					SubscriberID: "user-race", Plan: entitlement.PlanPtr(constants.PlanPro), OccurredAt: base,
				})
				if err != nil {
					t.Errorf("Apply: %v", err)
					return
				}
				results <- out
			}()
		}
		wg.Wait()
		close(results)
		applied := 0
		for out := range results {
			if out == entitlement.OutcomeApplied {
				applied++
			}
		}
		if applied != 1 {
			t.Fatalf("applied %d times, want exactly 1", applied)
		}
	})

	t.Run("distinct subscribers are independent", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("user-%d", i)
			if _, err := s.Apply(ctx, entitlement.Mutation{
				EventID: "evt_" + id, SubscriberID: id,
				Plan: entitlement.PlanPtr(constants.PlanPro), OccurredAt: base,
			}); err != nil {
				t.Fatal(err)
			}
		}
		for i := 0; i < 3; i++ {
			if st, found, _ := s.Get(ctx, fmt.Sprintf("user-%d", i)); !found || st.Plan != constants.PlanPro {
				t.Errorf("user-%d state = %+v, %v", i, st, found)
			}
		}
	})
}
