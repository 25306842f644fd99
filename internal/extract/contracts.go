package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/clauseguard/internal/common"
)

var (
	// ErrExtractionFailed is reported once every strategy has been exhausted.
	ErrExtractionFailed = common.ErrExtraction

	ErrNotPDF          = errors.New("buffer does not look like a PDF")
	ErrEmptyText       = errors.New("strategy produced no text")
	ErrStrategyPanic   = errors.New("strategy panicked")
	ErrToolUnavailable = errors.New("external tool unavailable")
)

// JoinPolicy says how a strategy glues text fragments together.
type JoinPolicy string

const (
	// JoinSpace joins fragments with a single space. Safe default.
	JoinSpace JoinPolicy = "space"
	// JoinNone concatenates fragments. Needed when producers emit one glyph per text object.
	JoinNone JoinPolicy = "none"
	// JoinNewline keeps fragments on their own lines (layout-preserving tools).
	JoinNewline JoinPolicy = "newline"
)

func (j JoinPolicy) Join(parts []string) string {
	switch j {
	case JoinNone:
		return strings.Join(parts, "")
	case JoinNewline:
		return strings.Join(parts, "\n")
	default:
		return strings.Join(parts, " ")
	}
}

// Document is the capability every strategy receives. Strategies read from it and never
// reach for process-wide state.
type Document struct {
	data []byte
}

func NewDocument(data []byte) *Document {
	return &Document{data: data}
}

// Bytes returns the raw buffer. Callers must not modify it.
func (d *Document) Bytes() []byte { return d.data }

// Reader returns a fresh io.ReaderAt/io.Seeker over the buffer.
func (d *Document) Reader() *bytes.Reader { return bytes.NewReader(d.data) }

func (d *Document) Size() int64 { return int64(len(d.data)) }

// Strategy is one algorithm able to turn a PDF into text.
type Strategy interface {
	Name() string
	Join() JoinPolicy
	Extract(ctx context.Context, doc *Document) (string, error)
}

// Attempt records one strategy run.
type Attempt struct {
	Strategy string
	Join     JoinPolicy
	Err      error
	Duration time.Duration
}

func (a Attempt) OK() bool { return a.Err == nil }

// Result is a successful extraction.
type Result struct {
	Text     string
	Strategy string
	Join     JoinPolicy
	Attempts []Attempt
	Duration time.Duration
}

// FailedError is returned when no strategy produced text. It carries every attempt
// and the last underlying cause.
type FailedError struct {
	Attempts []Attempt
	Cause    error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("extraction failed after %d strategies: %v", len(e.Attempts), e.Cause)
}

func (e *FailedError) Unwrap() []error {
	return []error{ErrExtractionFailed, e.Cause}
}
