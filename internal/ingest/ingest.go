package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/clauseguard/constants"
)

// File is one document read from disk.
type File struct {
	Path    string
	Format  string // constants.PDF or constants.TEXT
	Data    []byte
	HashHex string
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// FileResult is the per-file scan outcome. Err is set when the file could not be read.
type FileResult struct {
	File         File
	Deduplicated bool
	Err          error
}

// Scanner reads candidate documents from the local filesystem. The duplicate set lives as
// long as the scanner, so a watcher and an initial scan share it.
type Scanner struct {
	MaxBytes   int64
	SkipHidden bool
	logger     *slog.Logger
	seen       map[string]string // hash -> first path
}

func NewScanner(maxBytes int64, skipHidden bool, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{MaxBytes: maxBytes, SkipHidden: skipHidden, logger: logger, seen: map[string]string{}}
}

// ReadPath loads one file and reports whether an identical file was already seen.
func (s *Scanner) ReadPath(path string) (FileResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileResult{}, err
	}
	format := constants.MapExtToFormat(filepath.Ext(abs))
	if format == "" {
		return FileResult{}, fmt.Errorf("unsupported or missing extension: %q", filepath.Ext(abs))
	}

	info, err := os.Stat(abs)
	if err != nil {
		return FileResult{}, err
	}
	if s.MaxBytes > 0 && info.Size() > s.MaxBytes {
		return FileResult{}, fmt.Errorf("%s is %d bytes; the limit is %d", filepath.Base(abs), info.Size(), s.MaxBytes)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return FileResult{}, err
	}

	sum := sha256.Sum256(data)
	hexSum := hex.EncodeToString(sum[:])
	res := FileResult{File: File{Path: abs, Format: format, Data: data, HashHex: hexSum}}
	if first, dup := s.seen[hexSum]; dup {
		s.logger.Debug("ingest.duplicate", "path", abs, "first", first)
		res.Deduplicated = true
		return res, nil
	}
	s.seen[hexSum] = abs
	return res, nil
}

// ScanDirectory walks root and reads every file with an allowed extension.
// Unreadable files are reported in the results; walking continues.
func (s *Scanner) ScanDirectory(ctx context.Context, root string) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{File: File{Path: path}, Err: walkErr})
			stats.Failed++
			return nil
		}
		if s.SkipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		res, err := s.ReadPath(path)
		if err != nil {
			results = append(results, FileResult{File: File{Path: path}, Err: err})
			stats.Failed++
			return nil
		}
		results = append(results, res)
		stats.Succeeded++
		if res.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// AllowedExt checks if a file extension is in constants.AllowedExtensions.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
