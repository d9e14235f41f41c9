// Package decode turns uploaded spreadsheets into ordered header + row tables.
//
// CSV (and TSV) files are streamed through encoding/csv with BOM stripping,
// UTF-8 sanitizing and delimiter sniffing. XLSX workbooks are read with
// excelize, one sheet per import. Both decoders skip blank lines, make header
// names unique and stop early when the file exceeds the configured limits.
package decode

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// Limits applied when no Options are given.
const (
	DefaultMaxRows = 100_000
)

// ErrTooManyRows is returned when a file has more data rows than allowed.
var ErrTooManyRows = errors.New("file too large: too many rows")

// Options configure the decoders returned by ForFile.
type Options struct {
	MaxBytes int64 // 0 means unlimited
	MaxRows  int   // 0 means DefaultMaxRows
}

// ForFile returns a resolver that picks a decoder by file extension.
func ForFile(opts Options) core.DecoderResolver {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	return func(fileName string) (core.TabularDecoder, error) {
		ext := strings.ToLower(filepath.Ext(fileName))
		switch ext {
		case ".csv", ".txt":
			return &CSV{MaxBytes: opts.MaxBytes, MaxRows: opts.MaxRows}, nil
		case ".tsv":
			return &CSV{Comma: '\t', MaxBytes: opts.MaxBytes, MaxRows: opts.MaxRows}, nil
		case ".xlsx", ".xlsm":
			return &XLSX{MaxBytes: opts.MaxBytes, MaxRows: opts.MaxRows}, nil
		default:
			if ext == "" {
				ext = "(none)"
			}
			return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedFile, ext)
		}
	}
}

// tableBuilder collects records into a DecodedTable.
// The first non-blank record is the header.
type tableBuilder struct {
	headers []string
	rows    []core.RawRow
	maxRows int
}

func newTableBuilder(maxRows int) *tableBuilder {
	return &tableBuilder{maxRows: maxRows}
}

func (b *tableBuilder) add(record []string) error {
	if isBlank(record) {
		return nil
	}
	if b.headers == nil {
		b.headers = uniqueHeaders(record)
		return nil
	}
	if b.maxRows > 0 && len(b.rows) >= b.maxRows {
		return fmt.Errorf("%w: limit is %d", ErrTooManyRows, b.maxRows)
	}
	b.rows = append(b.rows, core.NewRawRow(b.headers, record))
	return nil
}

func (b *tableBuilder) table() (*core.DecodedTable, error) {
	if b.headers == nil {
		return nil, core.ErrEmptyFile
	}
	return &core.DecodedTable{Headers: b.headers, Rows: b.rows}, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// uniqueHeaders trims header cells, names empty ones "Column N" and
// suffixes repeats: "Notes", "Notes (2)".
func uniqueHeaders(record []string) []string {
	out := make([]string, len(record))
	seen := make(map[string]int, len(record))
	for i, h := range record {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		out[i] = h
	}
	return out
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
