// Package output writes consolidated records to CSV and XLSX files and
// formats command results for the terminal and for --json.
package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klytics/gsdkit/internal/formats/xlsx"
	"github.com/klytics/gsdkit/internal/record"
)

// Output formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// WriteCSV writes records with a header row. A missing value is an empty
// field.
func WriteCSV(w io.Writer, records []record.NormalizedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(record.Columns); err != nil {
		return err
	}
	for _, r := range records {
		value := ""
		if r.Value != nil {
			value = strconv.FormatFloat(*r.Value, 'f', -1, 64)
		}
		if err := cw.Write([]string{
			r.Date.Format(record.DateLayout),
			r.Entity,
			string(r.Pipeline),
			r.Measure,
			value,
			strconv.Itoa(r.FiscalYear),
			strconv.Itoa(r.SourceYearHint),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses records written by WriteCSV.
func ReadCSV(r io.Reader) ([]record.NormalizedRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(record.Columns)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("CSV is empty — expected header %s", strings.Join(record.Columns, ","))
		}
		return nil, fmt.Errorf("could not read CSV header: %w", err)
	}
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) != record.Columns[i] {
			return nil, fmt.Errorf("unexpected CSV header %v — expected %v", header, record.Columns)
		}
	}

	var records []record.NormalizedRecord
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line, err)
		}
		rec, err := parseRow(fields)
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(f []string) (record.NormalizedRecord, error) {
	var rec record.NormalizedRecord

	date, err := time.Parse(record.DateLayout, f[0])
	if err != nil {
		return rec, fmt.Errorf("invalid date %q", f[0])
	}
	pipeline, err := record.ParsePipeline(f[2])
	if err != nil {
		return rec, err
	}
	fy, err := strconv.Atoi(f[5])
	if err != nil {
		return rec, fmt.Errorf("invalid fiscal_year %q", f[5])
	}
	hint, err := strconv.Atoi(f[6])
	if err != nil {
		return rec, fmt.Errorf("invalid source_year_hint %q", f[6])
	}

	rec = record.NormalizedRecord{
		Date:           date,
		Entity:         f[1],
		Pipeline:       pipeline,
		Measure:        f[3],
		FiscalYear:     fy,
		SourceYearHint: hint,
	}
	if f[4] != "" {
		v, err := strconv.ParseFloat(f[4], 64)
		if err != nil {
			return rec, fmt.Errorf("invalid value %q", f[4])
		}
		rec.Value = record.Float(v)
	}
	return rec, nil
}

// ReadCSVFile parses a consolidated CSV file.
func ReadCSVFile(path string) ([]record.NormalizedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s — check that the path is correct", path)
		}
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// WriteFiles writes records to dir/base.<format> for each format and
// returns the paths written. Each format is attempted even if an earlier
// one failed; the joined error names every failure.
func WriteFiles(dir, base string, formats []string, records []record.NormalizedRecord) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create output directory %s: %w", dir, err)
	}

	var (
		written []string
		errs    []error
	)
	for _, format := range formats {
		path := filepath.Join(dir, base+"."+format)
		var err error
		switch format {
		case FormatCSV:
			err = writeCSVFile(path, records)
		case FormatXLSX:
			err = xlsx.WriteRecords(path, "", records)
		default:
			err = fmt.Errorf("unknown output format %q — supported: %s, %s", format, FormatCSV, FormatXLSX)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s output failed: %w", format, err))
			continue
		}
		written = append(written, path)
	}
	return written, errors.Join(errs...)
}

func writeCSVFile(path string, records []record.NormalizedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", path, err)
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	return f.Close()
}
