package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joseph-ayodele/clauseguard/constants"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "lease.txt"), "The tenant may terminate at any time.")
	write(t, filepath.Join(root, "copy-of-lease.txt"), "The tenant may terminate at any time.")
	write(t, filepath.Join(root, "nested", "nda.md"), "# NDA")
	write(t, filepath.Join(root, "nested", "scan.pdf"), "%PDF-1.4")
	write(t, filepath.Join(root, "photo.jpg"), "jpeg")
	write(t, filepath.Join(root, ".git", "notes.txt"), "hidden")

	s := NewScanner(0, true, quietLogger())
	results, stats, err := s.ScanDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if stats.Matched != 4 || stats.Succeeded != 4 || stats.Deduplicated != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	formats := map[string]string{}
	for _, r := range results {
		formats[filepath.Base(r.File.Path)] = r.File.Format
		if r.File.HashHex == "" {
			t.Errorf("%s has no hash", r.File.Path)
		}
	}
	if formats["scan.pdf"] != constants.PDF || formats["nda.md"] != constants.TEXT {
		t.Fatalf("formats = %v", formats)
	}
	if _, ok := formats["notes.txt"]; ok {
		t.Fatal("hidden directory was scanned")
	}
}

func TestScanDirectoryReportsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "big.txt"), "0123456789")
	write(t, filepath.Join(root, "small.txt"), "ok")

	s := NewScanner(5, false, quietLogger())
	results, stats, err := s.ScanDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	for _, r := range results {
		if filepath.Base(r.File.Path) == "big.txt" && r.Err == nil {
			t.Fatal("oversized file was accepted")
		}
	}
}

func TestScanDirectoryRequiresRoot(t *testing.T) {
	if _, _, err := NewScanner(0, false, nil).ScanDirectory(context.Background(), " "); err == nil {
		t.Fatal("expected an error for an empty root")
	}
}

func TestReadPathRejectsUnknownExtension(t *testing.T) {
	p := filepath.Join(t.TempDir(), "data.csv")
	write(t, p, "a,b")
	if _, err := NewScanner(0, false, nil).ReadPath(p); err == nil {
		t.Fatal("expected an error for .csv")
	}
}

func TestWatchEmitsNewDocuments(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, SkipHidden: true, Debounce: 20 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	write(t, filepath.Join(root, "ignored.jpg"), "x")
	want := filepath.Join(root, "contract.txt")
	write(t, want, "Payment is due on receipt.")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-events:
			if got == want {
				cancel()
				return
			}
			if filepath.Ext(got) == ".jpg" {
				t.Fatalf("unexpected event for %s", got)
			}
		case <-deadline:
			t.Fatal("no event for the new document")
		}
	}
}
