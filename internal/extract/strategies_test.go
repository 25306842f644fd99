package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
)

type fakeRunner struct {
	stdout string
	stderr string
	err    error
	name   string
	args   []string
	seen   []byte
}

func (f *fakeRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.name = name
	f.args = args
	if len(args) >= 2 {
		f.seen, _ = os.ReadFile(args[len(args)-2])
	}
	return []byte(f.stdout), []byte(f.stderr), f.err
}

func TestPopplerStrategy(t *testing.T) {
	r := &fakeRunner{stdout: "Page one\n\fPage two\n\f"}
	s := NewPopplerStrategy("pdftotext", r, quietLogger())

	got, err := s.Extract(context.Background(), NewDocument(samplePDF))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "Page one\n\nPage two\n" {
		t.Fatalf("got %q", got)
	}
	if r.name != "pdftotext" {
		t.Fatalf("ran %q", r.name)
	}
	want := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if strings.Join(r.args[:5], " ") != strings.Join(want, " ") || r.args[len(r.args)-1] != "-" {
		t.Fatalf("unexpected args %v", r.args)
	}
	if string(r.seen) != string(samplePDF) {
		t.Fatalf("temp file did not hold the document")
	}
	if _, err := os.Stat(r.args[len(r.args)-2]); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}

func TestPopplerStrategyErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "missing binary", err: &exec.Error{Name: "pdftotext", Err: exec.ErrNotFound}, wantErr: ErrToolUnavailable},
		{name: "exit status", err: errors.New("exit status 1"), wantErr: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{stderr: "Syntax Error", err: tt.err}
			_, err := NewPopplerStrategy("pdftotext", r, quietLogger()).Extract(context.Background(), NewDocument(samplePDF))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v", err)
			}
		})
	}
}

func TestPopplerMissingBinaryFallsThrough(t *testing.T) {
	p := NewPipeline(Config{}, quietLogger(), WithStrategies(
		NewPopplerStrategy("clauseguard-no-such-binary", ExecRunner(), quietLogger()),
		&stubStrategy{name: "next", text: "fallback"},
	))
	res, err := p.Run(context.Background(), samplePDF)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(res.Attempts[0].Err, ErrToolUnavailable) {
		t.Fatalf("first attempt: %v", res.Attempts[0].Err)
	}
}

func TestRawStreamStrategy(t *testing.T) {
	content := "BT /F1 12 Tf 72 720 Td (Late fee) Tj 0 -14 Td [(of 5) -250 (%)] TJ ET"
	compressed := flated(t, "BT /F1 12 Tf 72 700 Td <005000610079> Tj ET")

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	fmt.Fprintf(&b, "4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(content), content)
	fmt.Fprintf(&b, "5 0 obj\n<< /Length %d /Filter /FlateDecode >>\nstream\n", len(compressed))
	b.Write(compressed)
	b.WriteString("\nendstream\nendobj\n")
	b.WriteString("6 0 obj\n<< /Subtype /Image /Length 4 >>\nstream\n(No)\nendstream\nendobj\n")
	// no xref table: structured readers give up on this file.

	got, err := NewRawStreamStrategy().Extract(context.Background(), NewDocument([]byte(b.String())))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"Late fee", "of 5%", "Pay"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "No") {
		t.Errorf("image stream leaked into text: %q", got)
	}
	if !strings.Contains(got, "Late fee\nof 5%") {
		t.Errorf("line move not honoured: %q", got)
	}
}

func TestReadLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`(plain)`, "plain"},
		{`(nested (parens) ok)`, "nested (parens) ok"},
		{`(esc\) \\ \n)`, "esc) \\ \n"},
		{`(\101\102C)`, "ABC"},
	}
	for _, tt := range tests {
		got, n := readLiteral([]byte(tt.in))
		if string(got) != tt.want || n != len(tt.in) {
			t.Errorf("readLiteral(%q) = %q,%d", tt.in, got, n)
		}
	}
}

func TestDecodePDFString(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("abc"), "abc"},
		{[]byte{0xFE, 0xFF, 0x00, 0x48, 0x00, 0x69}, "Hi"},
		{[]byte{0x80}, "€"},
		{[]byte{0x00, 0x41}, "A"},
	}
	for _, tt := range tests {
		if got := decodePDFString(tt.in); got != tt.want {
			t.Errorf("decodePDFString(%v) = %q want %q", tt.in, got, tt.want)
		}
	}
}

func TestLedongthucStrategies(t *testing.T) {
	pdf := buildPDF(t,
		textPage("Limitation of liability"),
		textPage("Governing law"),
	)
	for _, s := range []Strategy{NewPlainTextStrategy(0), NewGlyphRunStrategy(0)} {
		t.Run(s.Name(), func(t *testing.T) {
			got, err := s.Extract(context.Background(), NewDocument(pdf))
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if !strings.Contains(got, "liability") || !strings.Contains(got, "Governing") {
				t.Fatalf("got %q", got)
			}
		})
	}

	t.Run("max pages", func(t *testing.T) {
		got, err := NewPlainTextStrategy(1).Extract(context.Background(), NewDocument(pdf))
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		if strings.Contains(got, "Governing") {
			t.Fatalf("page limit ignored: %q", got)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := NewPlainTextStrategy(0).Extract(context.Background(), NewDocument([]byte("%PDF-1.4\nnot really")))
		if err == nil {
			t.Fatal("expected error")
		}
	})
}
