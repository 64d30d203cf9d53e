// Package ingest finds report workbooks on disk and runs each one through
// extraction, border filtering and unpivoting, in parallel, producing one
// typed batch per workbook.
package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Source is one workbook and the fiscal year its file name declares.
type Source struct {
	Path string `json:"path"`
	Year int    `json:"year"`
}

// Skipped is a workbook matching the file pattern that discovery left out.
type Skipped struct {
	Path   string `json:"path"`
	Year   int    `json:"year,omitempty"` // 0 when the name holds no digits
	Reason string `json:"reason"`
}

// Skip reasons.
const (
	SkipNoYear     = "no_year"
	SkipOutOfRange = "year_out_of_range"
)

// Scan is the result of listing a raw directory.
type Scan struct {
	Sources []Source
	Skipped []Skipped
}

// ScanDir lists the workbooks in dir matching pattern whose year falls in
// [minYear, maxYear], ordered by (year, path). The year is every digit of
// the file name read as one number, so "GSD REPORT FY2013.xlsx" is 2013.
// Office lock files ("~$...") are ignored; other matches without a usable
// year are returned in Skipped.
func ScanDir(dir, pattern string, minYear, maxYear int) (*Scan, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("raw directory not found: %s — set raw_dir in the config or pass it as an argument", dir)
		}
		return nil, fmt.Errorf("could not read raw directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}

	scan := &Scan{}
	for _, path := range matches {
		name := filepath.Base(path)
		if IsLockFile(name) {
			continue
		}
		year, ok := SourceYear(name)
		switch {
		case !ok:
			scan.Skipped = append(scan.Skipped, Skipped{Path: path, Reason: SkipNoYear})
		case year < minYear || (maxYear > 0 && year > maxYear):
			scan.Skipped = append(scan.Skipped, Skipped{Path: path, Year: year, Reason: SkipOutOfRange})
		default:
			scan.Sources = append(scan.Sources, Source{Path: path, Year: year})
		}
	}

	sort.Slice(scan.Sources, func(i, j int) bool {
		a, b := scan.Sources[i], scan.Sources[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Path < b.Path
	})
	return scan, nil
}

// Discover is ScanDir that logs every skipped workbook, so a renamed file
// such as "GSD REPORT FY2013 (rev 2).xlsx" (year 20132) does not vanish
// from a run unnoticed.
func Discover(dir, pattern string, minYear, maxYear int, logger *slog.Logger) ([]Source, error) {
	scan, err := ScanDir(dir, pattern, minYear, maxYear)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, s := range scan.Skipped {
		logger.Warn("workbook skipped",
			"file", filepath.Base(s.Path), "reason", s.Reason, "year", s.Year,
			"min_year", minYear, "max_year", maxYear)
	}
	return scan.Sources, nil
}

// SourceYear reads the digits of a file name as a year.
func SourceYear(name string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, name)
	if digits == "" || len(digits) > 9 {
		return 0, false
	}
	year, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return year, true
}

// IsLockFile reports whether name is an Office owner/lock file.
func IsLockFile(name string) bool {
	return strings.HasPrefix(name, "~$")
}
