package decode

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/metrics"
)

// XLSX decodes one worksheet of an Excel workbook.
// Cell values are read as displayed, so dates arrive in the sheet's number format.
type XLSX struct {
	Sheet    string // empty uses the active sheet
	MaxBytes int64
	MaxRows  int
}

// Decode implements core.TabularDecoder.
func (d *XLSX) Decode(ctx context.Context, r io.Reader, size int64) (table *core.DecodedTable, err error) {
	defer func() { metrics.IncDecode("xlsx", result(err)) }()

	f, err := excelize.OpenReader(NewCountingReader(r, d.MaxBytes))
	if err != nil {
		if errors.Is(err, core.ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet, err := d.pickSheet(f)
	if err != nil {
		return nil, err
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	b := newTableBuilder(d.MaxRows)
	for n := 0; rows.Next(); n++ {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read sheet %q row %d: %w", sheet, n+1, err)
		}
		if err := b.add(cols); err != nil {
			return nil, err
		}
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return b.table()
}

func (d *XLSX) pickSheet(f *excelize.File) (string, error) {
	if d.Sheet != "" {
		if idx, err := f.GetSheetIndex(d.Sheet); err != nil || idx < 0 {
			return "", fmt.Errorf("decode: sheet %q not found", d.Sheet)
		}
		return d.Sheet, nil
	}
	if name := f.GetSheetName(f.GetActiveSheetIndex()); name != "" {
		return name, nil
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", core.ErrEmptyFile
	}
	return sheets[0], nil
}
