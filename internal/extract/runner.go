package extract

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"time"
	"unicode/utf8"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs real processes. The process is killed when ctx is done and its
// pipes are abandoned after a short grace period.
func ExecRunner() Runner { return execRunner{waitDelay: 2 * time.Second} }

type execRunner struct {
	waitDelay time.Duration
}

func (r execRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	logger = logger.With("cmd", name)
	logger.Debug("extract.exec.start", "args", len(args))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.waitDelay
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		// stderr of pdftotext names the file and the failing object, never document text
		logger.Warn("extract.exec.failed", "duration_ms", elapsed, "error", err, "stderr", clip(errb.String(), 4<<10))
		return out.Bytes(), errb.Bytes(), err
	}
	logger.Debug("extract.exec.ok", "duration_ms", elapsed, "stdout_bytes", out.Len())
	return out.Bytes(), errb.Bytes(), nil
}

// clip cuts s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
