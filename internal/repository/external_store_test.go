package repository

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/billing"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement/entitlementtest"
)

// These run only against real services:
//
//	CLAUSEGUARD_TEST_DB_URL=postgres://... CLAUSEGUARD_TEST_REDIS_ADDR=localhost:6379 go test ./internal/repository

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CLAUSEGUARD_TEST_DB_URL")
	if dsn == "" {
		t.Skip("CLAUSEGUARD_TEST_DB_URL not set")
	}
	ctx := context.Background()
	pool, err := Open(ctx, Config{DSN: dsn, MaxConns: 8}, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { Close(pool, discardLogger()) })
	if err := MigratePostgres(ctx, pool); err != nil {
		t.Fatalf("MigratePostgres: %v", err)
	}

	entitlementtest.RunStoreTests(t, func(t *testing.T) entitlement.Store {
		if _, err := pool.Exec(ctx, "TRUNCATE billing_events, entitlements"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return NewPostgresStore(pool, discardLogger())
	})
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CLAUSEGUARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CLAUSEGUARD_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	// DB 15 is flushed between subtests.
	rdb, err := NewRedisClient(ctx, RedisConfig{Addr: addr, DB: 15})
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	entitlementtest.RunStoreTests(t, func(t *testing.T) entitlement.Store {
		if err := rdb.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		return NewRedisStore(rdb, time.Hour, discardLogger())
	})

	t.Run("notifier publishes changes", func(t *testing.T) {
		sub := rdb.Subscribe(ctx, "entitlements-test")
		defer sub.Close()
		if _, err := sub.Receive(ctx); err != nil {
			t.Fatalf("subscribe: %v", err)
		}

		n := NewRedisNotifier(rdb, "entitlements-test")
		want := billing.Change{SubscriberID: "user-1", Plan: constants.PlanPro, EventID: "evt_1"}
		if err := n.Notify(ctx, want); err != nil {
			t.Fatalf("Notify: %v", err)
		}
		select {
		case msg := <-sub.Channel():
			var got billing.Change
			if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
				t.Fatalf("payload: %v", err)
			}
			if got.SubscriberID != want.SubscriberID || got.Plan != want.Plan || got.EventID != want.EventID {
				t.Errorf("published %+v", got)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no message published")
		}
	})
}
