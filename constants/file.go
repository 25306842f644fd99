package constants

import "strings"

// Source formats accepted by the batch tools.
const (
	PDF  = "PDF"
	TEXT = "TEXT"
)

// AllowedExtensions holds the file extensions picked up by batch analysis.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
	"txt": {},
	"md":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns PDF or TEXT for a known extension, "" otherwise.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "txt", "md":
		return TEXT
	default:
		return ""
	}
}

// PDFMagic is the header every PDF starts with, allowing leading junk within PDFMagicWindow bytes.
const (
	PDFMagic       = "%PDF-"
	PDFMagicWindow = 1024
)
