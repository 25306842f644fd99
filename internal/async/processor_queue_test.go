package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/clauseguard/constants"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
	"github.com/joseph-ayodele/clauseguard/internal/pipeline"
)

type countingProcessor struct {
	calls   atomic.Int32
	mu      sync.Mutex
	tiers   []constants.Tier
	failFor string
}

func (p *countingProcessor) ProcessDocument(_ context.Context, snap entitlement.Snapshot, in pipeline.Input) (pipeline.Outcome, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.tiers = append(p.tiers, snap.Tier)
	p.mu.Unlock()
	if in.Name == p.failFor {
		return pipeline.Outcome{Name: in.Name}, errors.New("boom")
	}
	return pipeline.Outcome{Name: in.Name}, nil
}

func TestProcessorQueueDrainsAllJobs(t *testing.T) {
	proc := &countingProcessor{failFor: "bad.txt"}
	reports := make(chan Report, 16)
	snap := entitlement.Snapshot{Tier: constants.TierAdmin, SubscriberID: "ops"}
	q := NewProcessorQueue(proc, snap, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithWorkers(3), WithQueueSize(2), WithReports(reports))

	names := []string{"a.txt", "b.txt", "bad.txt", "c.txt", "d.txt"}
	for _, n := range names {
		if err := q.Enqueue(context.Background(), Job{Input: pipeline.Input{Name: n, Format: constants.TEXT}}); err != nil {
			t.Fatalf("Enqueue(%s): %v", n, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)
	close(reports)

	failed := 0
	seen := map[string]bool{}
	for r := range reports {
		seen[r.Job.Input.Name] = true
		if r.Job.ID == uuid.Nil {
			t.Error("job id not assigned")
		}
		if r.Err != nil {
			failed++
		}
	}
	if len(seen) != len(names) || failed != 1 {
		t.Errorf("seen %v, failed %d", seen, failed)
	}
	for _, tier := range proc.tiers {
		if tier != constants.TierAdmin {
			t.Errorf("job ran under tier %s", tier)
		}
	}
}

func TestProcessorQueueRejectsAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(&countingProcessor{}, entitlement.Snapshot{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())
	if err := q.Enqueue(context.Background(), Job{}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after shutdown = %v", err)
	}
}

type slowProcessor struct {
	delay     time.Duration
	cancelled atomic.Int32
}

func (p *slowProcessor) ProcessDocument(ctx context.Context, _ entitlement.Snapshot, in pipeline.Input) (pipeline.Outcome, error) {
	select {
	case <-time.After(p.delay):
		return pipeline.Outcome{Name: in.Name}, nil
	case <-ctx.Done():
		p.cancelled.Add(1)
		return pipeline.Outcome{Name: in.Name}, ctx.Err()
	}
}

func TestProcessorQueueShutdownDeadlineStopsWorkers(t *testing.T) {
	proc := &slowProcessor{delay: 10 * time.Second}
	reports := make(chan Report, 8)
	q := NewProcessorQueue(proc, entitlement.Snapshot{}, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithWorkers(1), WithReports(reports))

	for _, n := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := q.Enqueue(context.Background(), Job{Input: pipeline.Input{Name: n, Format: constants.TEXT}}); err != nil {
			t.Fatalf("Enqueue(%s): %v", n, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := q.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Shutdown waited %s for a cancelled job", elapsed)
	}

	// Every worker has exited, so closing the channel must be safe.
	close(reports)
	got := 0
	for r := range reports {
		got++
		if r.Err == nil {
			t.Errorf("%s reported success after cancellation", r.Job.Input.Name)
		}
	}
	if got != 3 {
		t.Errorf("got %d reports, want 3", got)
	}
	if proc.cancelled.Load() != 1 {
		t.Errorf("in-flight jobs cancelled = %d, want 1", proc.cancelled.Load())
	}
}
