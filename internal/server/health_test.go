package server

import (
	"context"
	"errors"
	"testing"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type toggleChecker struct{ err error }

func (c *toggleChecker) Ping(context.Context) error { return c.err }

func TestHealthServerMirrorsStore(t *testing.T) {
	ctx := context.Background()
	checker := &toggleChecker{}
	hs := NewHealthServer(checker, 0, quiet)

	status := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := hs.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		return resp.GetStatus()
	}

	hs.check(ctx)
	if got := status(""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("healthy store: %v", got)
	}

	checker.err = errors.New("connection refused")
	hs.check(ctx)
	if got := status(HealthService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("failing store: %v", got)
	}
}
