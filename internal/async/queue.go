package async

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/clauseguard/internal/pipeline"
)

// Job is one document waiting for analysis.
type Job struct {
	ID          uuid.UUID
	Input       pipeline.Input
	SubmittedAt time.Time
}

// Report is delivered once per job, after it finishes or fails.
type Report struct {
	Job      Job
	Outcome  pipeline.Outcome
	Err      error
	Duration time.Duration
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context) error
}
