package llm

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	mojibakeMinLetters   = 20
	mojibakeLatin1Share  = 0.25
	repairHighConfidence = 0.6
	repairPreviewRunes   = 160
)

// Repair describes suspected mis-decoding of the input text.
type Repair struct {
	Suspected bool
	// Script is the most plausible intended script ("Greek" or "Cyrillic"), empty if unknown.
	Script string
	// Assumed is the encoding mix-up we think happened, e.g. "windows-1253 read as windows-1252".
	Assumed    string
	Confidence float64
	// Preview is the start of the locally re-decoded text for the best candidate.
	Preview string
}

func (r Repair) HighConfidence() bool {
	return r.Suspected && r.Confidence >= repairHighConfidence
}

type redecoder struct {
	script  string
	assumed string
	table   *unicode.RangeTable
	from    encoding.Encoding
	decode  func(b []byte) (string, bool)
}

var redecoders = []redecoder{
	{
		// script comes from the re-decoded text
		assumed: "utf-8 read as windows-1252",
		from:    charmap.Windows1252,
		decode: func(b []byte) (string, bool) {
			if !utf8.Valid(b) {
				return "", false
			}
			return string(b), true
		},
	},
	{
		script:  "Greek",
		assumed: "windows-1253 read as windows-1252",
		table:   unicode.Greek,
		from:    charmap.Windows1252,
		decode:  decodeWith(charmap.Windows1253),
	},
	{
		script:  "Greek",
		assumed: "iso-8859-7 read as iso-8859-1",
		table:   unicode.Greek,
		from:    charmap.ISO8859_1,
		decode:  decodeWith(charmap.ISO8859_7),
	},
	{
		script:  "Cyrillic",
		assumed: "windows-1251 read as windows-1252",
		table:   unicode.Cyrillic,
		from:    charmap.Windows1252,
		decode:  decodeWith(charmap.Windows1251),
	},
}

func decodeWith(cm *charmap.Charmap) func([]byte) (string, bool) {
	return func(b []byte) (string, bool) {
		out, err := cm.NewDecoder().Bytes(b)
		if err != nil {
			return "", false
		}
		return string(out), true
	}
}

// DetectMojibake flags text whose letters sit unusually often in the Latin-1 supplement,
// which is what Greek or Cyrillic bytes look like when decoded as a Western code page.
// Each candidate mix-up is reversed locally and scored.
func DetectMojibake(text string) Repair {
	var letters, latin1, native int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		switch {
		case r >= 0xC0 && r <= 0xFF && r != 0xD7 && r != 0xF7:
			latin1++
		case unicode.In(r, unicode.Greek, unicode.Cyrillic):
			native++
		}
	}
	if letters < mojibakeMinLetters {
		return Repair{}
	}
	if float64(native)/float64(letters) > 0.5 {
		return Repair{}
	}
	if float64(latin1)/float64(letters) < mojibakeLatin1Share {
		return Repair{}
	}

	best := Repair{Suspected: true}
	for _, c := range redecoders {
		raw, err := c.from.NewEncoder().String(text)
		if err != nil {
			continue
		}
		fixed, ok := c.decode([]byte(raw))
		if !ok || fixed == text {
			continue
		}
		conf := scoreRepair(fixed, c.table)
		if conf > best.Confidence {
			best.Script = c.script
			if c.table == nil {
				best.Script = dominantScript(fixed)
			}
			best.Assumed = c.assumed
			best.Confidence = conf
			best.Preview = preview(fixed)
		}
	}
	// Repair mode is for text meant to be in a non-Latin script. A mis-decoded Latin
	// document still reads in its own language, so it keeps the normal language policy.
	if best.Script == "Latin" {
		return Repair{}
	}
	return best
}

// scoreRepair rates re-decoded text by how much of its non-ASCII letters fall in the
// target script and how natural its vowel share looks.
func scoreRepair(s string, table *unicode.RangeTable) float64 {
	var nonASCII, inScript, vowels, letters int
	for _, r := range s {
		if r == utf8.RuneError {
			return 0
		}
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if isVowel(r) {
			vowels++
		}
		if r < 0x80 {
			continue
		}
		nonASCII++
		if table == nil || unicode.Is(table, r) {
			inScript++
		}
	}
	if letters == 0 || nonASCII == 0 {
		return 0
	}
	share := float64(inScript) / float64(nonASCII)
	if table == nil {
		// A clean utf-8 round trip is strong evidence on its own.
		return share
	}
	vr := float64(vowels) / float64(letters)
	plausibility := 1 - math.Min(1, math.Abs(vr-0.45)*2)
	return share * plausibility
}

func dominantScript(s string) string {
	var greek, cyrillic, latin int
	for _, r := range s {
		switch {
		case r < 0x80 || !unicode.IsLetter(r):
		case unicode.Is(unicode.Greek, r):
			greek++
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	switch {
	case greek > cyrillic && greek > latin:
		return "Greek"
	case cyrillic > latin:
		return "Cyrillic"
	default:
		return "Latin"
	}
}

// Greek and Cyrillic vowels, accented Greek vowels, and ASCII vowels.
const vowelSet = "aeiouAEIOUαεηιουωάέήίόύώΑΕΗΙΟΥΩΆΈΉΊΌΎΏаеёиоуыэюяАЕЁИОУЫЭЮЯ"

func isVowel(r rune) bool {
	return strings.ContainsRune(vowelSet, r)
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= repairPreviewRunes {
		return s
	}
	return string([]rune(s)[:repairPreviewRunes])
}
