package extract

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
)

// maxInflated caps a single decompressed stream.
const maxInflated = 16 << 20

// rawStream scans content streams directly for text-showing operators. It does not
// need a valid xref table, so it survives files the structured readers reject.
type rawStream struct{}

func NewRawStreamStrategy() Strategy { return rawStream{} }

func (rawStream) Name() string     { return "raw-content-stream" }
func (rawStream) Join() JoinPolicy { return JoinNone }

func (s rawStream) Extract(ctx context.Context, doc *Document) (string, error) {
	data := doc.Bytes()
	var parts []string
	for _, st := range findStreams(data) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		dict := string(st.dict)
		if strings.Contains(dict, "/Image") || strings.Contains(dict, "/DCTDecode") || strings.Contains(dict, "/JPXDecode") {
			continue
		}
		body := st.body
		if strings.Contains(dict, "/FlateDecode") || strings.Contains(dict, "/Fl ") || strings.Contains(dict, "/Fl/") {
			inflated, ok := inflate(body)
			if !ok {
				continue
			}
			body = inflated
		} else if strings.Contains(dict, "/Filter") {
			continue
		}
		if txt := strings.TrimSpace(scanContent(body)); txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, "\n"), nil
}

type rawStreamSpan struct {
	dict []byte
	body []byte
}

func findStreams(data []byte) []rawStreamSpan {
	var out []rawStreamSpan
	kw := []byte("stream")
	end := []byte("endstream")
	pos := 0
	for pos < len(data) {
		i := bytes.Index(data[pos:], kw)
		if i < 0 {
			break
		}
		start := pos + i
		if start >= 3 && string(data[start-3:start]) == "end" {
			pos = start + len(kw)
			continue
		}
		bodyStart := start + len(kw)
		if bodyStart < len(data) && data[bodyStart] == '\r' {
			bodyStart++
		}
		if bodyStart < len(data) && data[bodyStart] == '\n' {
			bodyStart++
		}
		j := bytes.Index(data[bodyStart:], end)
		if j < 0 {
			break
		}
		bodyEnd := bodyStart + j

		dictStart := start - 1024
		if dictStart < 0 {
			dictStart = 0
		}
		dict := data[dictStart:start]
		if k := bytes.LastIndex(dict, []byte("obj")); k >= 0 {
			dict = dict[k:]
		}
		out = append(out, rawStreamSpan{dict: dict, body: bytes.TrimRight(data[bodyStart:bodyEnd], "\r\n")})
		pos = bodyEnd + len(end)
	}
	return out
}

// inflate keeps whatever decompressed before an error; truncated streams are common.
func inflate(b []byte) ([]byte, bool) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, false
	}
	defer zr.Close()
	out, _ := io.ReadAll(io.LimitReader(zr, maxInflated))
	return out, len(out) > 0
}

// scanContent walks content stream tokens and collects string operands of
// Tj, TJ, ' and " inside BT/ET blocks.
func scanContent(c []byte) string {
	var (
		b       strings.Builder
		pending [][]byte
		nums    []float64
		inText  bool
	)
	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	flush := func() {
		for _, s := range pending {
			b.WriteString(decodePDFString(s))
		}
	}

	for i := 0; i < len(c); {
		ch := c[i]
		switch {
		case ch == '(':
			s, n := readLiteral(c[i:])
			pending = append(pending, s)
			i += n
		case ch == '<' && i+1 < len(c) && c[i+1] == '<':
			i += 2
		case ch == '<':
			s, n := readHex(c[i:])
			pending = append(pending, s)
			i += n
		case ch == '%':
			for i < len(c) && c[i] != '\n' && c[i] != '\r' {
				i++
			}
		case ch == '/':
			i++
			for i < len(c) && isRegular(c[i]) {
				i++
			}
		case isRegular(ch):
			j := i
			for j < len(c) && isRegular(c[j]) {
				j++
			}
			word := string(c[i:j])
			i = j
			if f, err := strconv.ParseFloat(word, 64); err == nil {
				nums = append(nums, f)
				continue
			}
			switch word {
			case "BT":
				inText = true
			case "ET":
				inText = false
				newline()
			case "Tj", "TJ":
				if inText {
					flush()
				}
			case "'", "\"":
				if inText {
					newline()
					flush()
				}
			case "T*":
				if inText {
					newline()
				}
			case "Td", "TD":
				if inText && len(nums) >= 2 && nums[len(nums)-1] != 0 {
					newline()
				}
			}
			pending = pending[:0]
			nums = nums[:0]
		default:
			i++
		}
	}
	return b.String()
}

func isRegular(ch byte) bool {
	switch ch {
	case ' ', '\t', '\r', '\n', '\f', 0,
		'(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

// readLiteral parses a (...) string with nesting and escapes. It returns the bytes and
// how much input was consumed.
func readLiteral(c []byte) ([]byte, int) {
	var out []byte
	depth := 0
	i := 0
	for i < len(c) {
		ch := c[i]
		switch ch {
		case '(':
			if depth > 0 {
				out = append(out, ch)
			}
			depth++
			i++
		case ')':
			depth--
			i++
			if depth == 0 {
				return out, i
			}
			out = append(out, ch)
		case '\\':
			i++
			if i >= len(c) {
				return out, i
			}
			e := c[i]
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if i+1 < len(c) && c[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := 0
					k := 0
					for k < 3 && i < len(c) && c[i] >= '0' && c[i] <= '7' {
						v = v*8 + int(c[i]-'0')
						i++
						k++
					}
					out = append(out, byte(v))
					continue
				}
				out = append(out, e)
			}
			i++
		default:
			out = append(out, ch)
			i++
		}
	}
	return out, i
}

func readHex(c []byte) ([]byte, int) {
	var (
		out  []byte
		hi   = -1
		i    = 1
		done bool
	)
	for i < len(c) && !done {
		ch := c[i]
		i++
		var v int
		switch {
		case ch == '>':
			done = true
			continue
		case ch >= '0' && ch <= '9':
			v = int(ch - '0')
		case ch >= 'a' && ch <= 'f':
			v = int(ch-'a') + 10
		case ch >= 'A' && ch <= 'F':
			v = int(ch-'A') + 10
		default:
			continue
		}
		if hi < 0 {
			hi = v
		} else {
			out = append(out, byte(hi<<4|v))
			hi = -1
		}
	}
	if hi >= 0 {
		out = append(out, byte(hi<<4))
	}
	return out, i
}

// decodePDFString handles UTF-16BE (with BOM, or two-byte codes with a zero high byte)
// and falls back to Windows-1252, which is close enough to PDFDocEncoding.
func decodePDFString(s []byte) string {
	if len(s) >= 2 && s[0] == 0xFE && s[1] == 0xFF {
		return decodeUTF16BE(s[2:])
	}
	if len(s) >= 2 && len(s)%2 == 0 && zeroHighBytes(s) {
		return decodeUTF16BE(s)
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(s)
	if err != nil {
		return string(s)
	}
	return string(out)
}

func zeroHighBytes(s []byte) bool {
	for i := 0; i < len(s); i += 2 {
		if s[i] != 0 {
			return false
		}
	}
	return true
}

func decodeUTF16BE(s []byte) string {
	u := make([]uint16, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		u = append(u, uint16(s[i])<<8|uint16(s[i+1]))
	}
	return string(utf16.Decode(u))
}
