// Package report exports stored certification results as CSV, JSON or XLSX.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"hypcert/internal/store"
)

// Format is an export format.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	XLSX Format = "xlsx"
)

// SheetName is the worksheet XLSX exports write to.
const SheetName = "results"

// ErrUnknownFormat is returned for a format other than csv, json or xlsx.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSON, XLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (valid: csv, json, xlsx)", ErrUnknownFormat, s)
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Headers are the tabular column names, in order.
var Headers = []string{
	"presentation", "relator", "evaluated", "minimal", "outcome", "cause",
	"criterion", "detail", "certificate", "trail", "run_id", "batch_id",
	"elapsed_ms", "created_at",
}

// Row flattens a record into the columns of Headers.
func Row(r store.Record) []string {
	return []string{
		r.Presentation,
		r.Relator,
		r.Evaluated,
		strconv.FormatBool(r.Minimal),
		string(r.Outcome),
		string(r.Cause),
		r.Criterion,
		r.Detail,
		certificateString(r.Certificate),
		strings.Join(r.Trail.Names(), " > "),
		r.RunID,
		r.BatchID,
		strconv.FormatFloat(float64(r.Elapsed)/float64(time.Millisecond), 'f', 3, 64),
		formatTime(r.CreatedAt),
	}
}

// certificateString renders key=value pairs sorted by key.
func certificateString(cert map[string]string) string {
	keys := make([]string, 0, len(cert))
	for k := range cert {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + cert[k]
	}
	return strings.Join(parts, "; ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Write encodes records to w in the given format.
func Write(w io.Writer, format Format, records []store.Record) error {
	switch format {
	case CSV:
		return writeCSV(w, records)
	case JSON:
		return writeJSON(w, records)
	case XLSX:
		return writeXLSX(w, records)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// WriteFile writes records to path, creating parent directories.
func WriteFile(path string, format Format, records []store.Record) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, format, records); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func writeCSV(w io.Writer, records []store.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, records []store.Record) error {
	if records == nil {
		records = []store.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func writeXLSX(w io.Writer, records []store.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return err
		}
	}
	for r, rec := range records {
		for c, v := range Row(rec) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	_, err := f.WriteTo(w)
	return err
}
