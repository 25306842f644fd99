package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/extract"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "extractpdf <file.pdf>")
		os.Exit(2)
	}
	buf, err := os.ReadFile(os.Args[1])
	if err != nil {
		logger.Error("read file", "path", os.Args[1], "error", err)
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	p := extract.NewPipeline(extract.Config{
		Pdftotext: cfg.Extract.Pdftotext,
		MaxPages:  cfg.Extract.MaxPages,
	}, logger)

	start := time.Now()
	res, err := p.Run(ctx, buf)
	dur := time.Since(start)

	if err != nil {
		var failed *extract.FailedError
		if errors.As(err, &failed) {
			for _, a := range failed.Attempts {
				logger.Info("attempt", "strategy", a.Strategy, "error", a.Err, "duration_ms", a.Duration.Milliseconds())
			}
		}
		logger.Error("text extraction failed", "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	for _, a := range res.Attempts {
		logger.Info("attempt", "strategy", a.Strategy, "ok", a.OK(), "error", a.Err, "duration_ms", a.Duration.Milliseconds())
	}
	logger.Info("text extraction OK",
		"strategy", res.Strategy,
		"chars", len([]rune(res.Text)),
		"duration_ms", dur.Milliseconds(),
	)
	if _, err := os.Stdout.WriteString(res.Text + "\n"); err != nil {
		os.Exit(1)
	}
}
