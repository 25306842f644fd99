package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// poppler shells out to pdftotext. Pages come back separated by form feeds.
type poppler struct {
	bin    string
	runner Runner
	logger *slog.Logger
}

func NewPopplerStrategy(bin string, runner Runner, logger *slog.Logger) Strategy {
	if logger == nil {
		logger = slog.Default()
	}
	return poppler{bin: bin, runner: runner, logger: logger}
}

func (poppler) Name() string     { return "pdftotext" }
func (poppler) Join() JoinPolicy { return JoinNewline }

func (s poppler) Extract(ctx context.Context, doc *Document) (string, error) {
	f, err := os.CreateTemp("", "clauseguard-*.pdf")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(doc.Bytes()); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp pdf: %w", err)
	}

	stdout, stderr, err := s.runner.Run(ctx, s.bin, s.logger,
		"-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrToolUnavailable, s.bin)
		}
		return "", fmt.Errorf("pdftotext: %w: %s", err, clip(strings.TrimSpace(string(stderr)), 512))
	}

	pages := strings.Split(string(stdout), "\f")
	kept := pages[:0]
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return s.Join().Join(kept), nil
}
