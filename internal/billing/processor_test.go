package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
)

const whsec = "whsec_test_secret"

func sign(t *testing.T, payload []byte, secret string, at time.Time) string {
	t.Helper()
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventJSON(id, typ string, created time.Time, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":%s}}`, id, typ, created.Unix(), object))
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (n *recordingNotifier) Notify(_ context.Context, c Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestProcessor(t *testing.T) (*Processor, *entitlement.MemoryStore, *recordingNotifier) {
	t.Helper()
	v, err := NewVerifier(whsec, 5*time.Minute, true, quiet())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	store := entitlement.NewMemoryStore()
	n := &recordingNotifier{}
	return NewProcessor(v, store, quiet(), WithNotifier(n)), store, n
}

func TestCheckoutCompletedIsIdempotent(t *testing.T) {
	p, store, n := newTestProcessor(t)
	now := time.Now()
	payload := eventJSON("evt_1", constants.EventCheckoutCompleted, now, `{"id":"cs_1","client_reference_id":"user-1"}`)

	for i, want := range []entitlement.Outcome{entitlement.OutcomeApplied, entitlement.OutcomeDuplicate} {
		out, err := p.Handle(context.Background(), payload, sign(t, payload, whsec, now))
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if out != want {
			t.Fatalf("delivery %d outcome = %s, want %s", i, out, want)
		}
	}

	st, found, _ := store.Get(context.Background(), "user-1")
	if !found || st.Plan != constants.PlanPro || st.LastEventID != "evt_1" {
		t.Fatalf("state = %+v found=%v", st, found)
	}
	if len(n.changes) != 1 {
		t.Fatalf("notifier called %d times", len(n.changes))
	}
}

func TestInvalidSignatureLeavesStateUntouched(t *testing.T) {
	p, store, n := newTestProcessor(t)
	now := time.Now()
	payload := eventJSON("evt_forged", constants.EventCheckoutCompleted, now, `{"client_reference_id":"mallory"}`)

	headers := map[string]string{
		"missing":      "",
		"wrong secret": sign(t, payload, "whsec_other", now),
		"too old":      sign(t, payload, whsec, now.Add(-time.Hour)),
		"garbage":      "not-a-signature",
	}
	for name, h := range headers {
		t.Run(name, func(t *testing.T) {
			_, err := p.Handle(context.Background(), payload, h)
			var ae *common.AppError
			if !errors.As(err, &ae) || ae.Code != common.CodeWebhook {
				t.Fatalf("want WEBHOOK error, got %v", err)
			}
			if !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("want ErrInvalidSignature in chain, got %v", err)
			}
		})
	}

	if _, found, _ := store.Get(context.Background(), "mallory"); found {
		t.Fatal("forged event changed state")
	}
	// The id was never recorded, so a genuine delivery still applies.
	out, err := p.Handle(context.Background(), payload, sign(t, payload, whsec, now))
	if err != nil || out != entitlement.OutcomeApplied {
		t.Fatalf("genuine delivery = %s, %v", out, err)
	}
	if len(n.changes) != 1 {
		t.Fatalf("notifier called %d times", len(n.changes))
	}
}

func TestEventMapping(t *testing.T) {
	p, store, _ := newTestProcessor(t)
	ctx := context.Background()
	t0 := time.Now().Add(-time.Minute)

	deliver := func(id, typ string, at time.Time, obj string) entitlement.Outcome {
		t.Helper()
		payload := eventJSON(id, typ, at, obj)
		out, err := p.Handle(ctx, payload, sign(t, payload, whsec, time.Now()))
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		return out
	}

	if out := deliver("evt_meta", constants.EventCheckoutCompleted, t0, `{"metadata":{"user_id":"user-2"}}`); out != entitlement.OutcomeApplied {
		t.Fatalf("metadata attribution = %s", out)
	}
	if out := deliver("evt_anon", constants.EventCheckoutCompleted, t0, `{"metadata":{}}`); out != entitlement.OutcomeRecorded {
		t.Fatalf("anonymous checkout = %s", out)
	}
	if out := deliver("evt_inv", constants.EventRecurringPaymentSucceeded, t0, `{"subscription_details":{"metadata":{"user_id":"user-2"}}}`); out != entitlement.OutcomeRecorded {
		t.Fatalf("recurring payment = %s", out)
	}
	if out := deliver("evt_other", "customer.created", t0, `{}`); out != entitlement.OutcomeRecorded {
		t.Fatalf("unhandled type = %s", out)
	}
	if out := deliver("evt_del", constants.EventSubscriptionDeleted, t0.Add(30*time.Second), `{"metadata":{"user_id":"user-2"}}`); out != entitlement.OutcomeApplied {
		t.Fatalf("subscription deleted = %s", out)
	}
	st, _, _ := store.Get(ctx, "user-2")
	if st.Plan != constants.PlanNone {
		t.Fatalf("plan after deletion = %s", st.Plan)
	}

	// A checkout completed before the deletion arrives late and must not resurrect Pro.
	if out := deliver("evt_late", constants.EventCheckoutCompleted, t0.Add(10*time.Second), `{"client_reference_id":"user-2"}`); out != entitlement.OutcomeStale {
		t.Fatalf("late checkout = %s", out)
	}
	st, _, _ = store.Get(ctx, "user-2")
	if st.Plan != constants.PlanNone {
		t.Fatalf("stale event overwrote state: %s", st.Plan)
	}
}

func TestMalformedObjectIsRejected(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	payload := eventJSON("evt_bad", constants.EventCheckoutCompleted, time.Now(), `{"metadata":"nope"}`)
	_, err := p.Handle(context.Background(), payload, sign(t, payload, whsec, time.Now()))
	if !errors.Is(err, common.ErrWebhook) || !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("got %v", err)
	}
}

type brokenStore struct{ *entitlement.MemoryStore }

func (brokenStore) Apply(context.Context, entitlement.Mutation) (entitlement.Outcome, error) {
	return "", errors.New("connection reset")
}

func TestStoreFailureIsInternal(t *testing.T) {
	v, _ := NewVerifier(whsec, 0, false, quiet())
	p := NewProcessor(v, brokenStore{entitlement.NewMemoryStore()}, quiet())
	payload := eventJSON("evt_1", constants.EventCheckoutCompleted, time.Now(), `{"client_reference_id":"u"}`)
	_, err := p.Handle(context.Background(), payload, sign(t, payload, whsec, time.Now()))
	var ae *common.AppError
	if !errors.As(err, &ae) || ae.Code != common.CodeInternal || !errors.Is(err, common.ErrDatabase) {
		t.Fatalf("got %v", err)
	}
}

func TestNewVerifierWithoutSecret(t *testing.T) {
	if _, err := NewVerifier("", 0, true, quiet()); !errors.Is(err, common.ErrConfig) {
		t.Fatalf("production without secret: %v", err)
	}

	v, err := NewVerifier("", 0, false, quiet())
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	ev, err := v.Verify(eventJSON("evt_1", constants.EventCheckoutCompleted, time.Unix(1700000000, 0), `{}`), "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ev.ID != "evt_1" || ev.Created.Unix() != 1700000000 {
		t.Fatalf("event = %+v", ev)
	}
}
