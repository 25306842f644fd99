package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// plainText reads each page with ledongthuc/pdf's plain text walker.
type plainText struct {
	maxPages int
}

func NewPlainTextStrategy(maxPages int) Strategy { return plainText{maxPages: maxPages} }

func (plainText) Name() string     { return "pdf-plaintext" }
func (plainText) Join() JoinPolicy { return JoinSpace }

func (s plainText) Extract(ctx context.Context, doc *Document) (string, error) {
	return walkPages(ctx, doc, s.maxPages, s.Join(), func(p pdf.Page) (string, error) {
		fonts := make(map[string]*pdf.Font)
		for _, name := range p.Fonts() {
			f := p.Font(name)
			fonts[name] = &f
		}
		return p.GetPlainText(fonts)
	})
}

// glyphRuns rebuilds lines from positioned glyphs. Fragments inside a line are
// concatenated, which repairs producers that place one glyph per text object.
type glyphRuns struct {
	maxPages int
}

func NewGlyphRunStrategy(maxPages int) Strategy { return glyphRuns{maxPages: maxPages} }

func (glyphRuns) Name() string     { return "pdf-glyph-runs" }
func (glyphRuns) Join() JoinPolicy { return JoinNone }

func (s glyphRuns) Extract(ctx context.Context, doc *Document) (string, error) {
	return walkPages(ctx, doc, s.maxPages, JoinNewline, func(p pdf.Page) (string, error) {
		var (
			lines []string
			cur   []string
			lastY = math.NaN()
		)
		for _, t := range p.Content().Text {
			if !math.IsNaN(lastY) && math.Abs(t.Y-lastY) > lineTolerance(t.FontSize) {
				lines = append(lines, JoinNone.Join(cur))
				cur = cur[:0]
			}
			cur = append(cur, t.S)
			lastY = t.Y
		}
		if len(cur) > 0 {
			lines = append(lines, JoinNone.Join(cur))
		}
		return strings.Join(lines, "\n"), nil
	})
}

func lineTolerance(fontSize float64) float64 {
	if fontSize <= 0 {
		return 1
	}
	return fontSize / 2
}

func walkPages(ctx context.Context, doc *Document, maxPages int, join JoinPolicy, page func(pdf.Page) (string, error)) (string, error) {
	r, err := pdf.NewReader(doc.Reader(), doc.Size())
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	if n == 0 {
		return "", errors.New("pdf has no pages")
	}
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}

	parts := make([]string, 0, n)
	var lastErr error
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := page(p)
		if err != nil {
			lastErr = fmt.Errorf("page %d: %w", i, err)
			continue
		}
		if txt = strings.TrimSpace(txt); txt != "" {
			parts = append(parts, txt)
		}
	}
	if len(parts) == 0 && lastErr != nil {
		return "", lastErr
	}
	return join.Join(parts), nil
}
