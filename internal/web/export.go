package web

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// writeTable streams header and rows as a CSV or XLSX download.
func writeTable(w http.ResponseWriter, format, prefix, sheet string, header []string, rows [][]string) error {
	switch format {
	case "", "csv":
		attachment(w, "text/csv", prefix, "csv")
		cw := csv.NewWriter(w)
		cw.Write(header)
		for _, row := range rows {
			cw.Write(row)
		}
		cw.Flush()
		return cw.Error()

	case "xlsx":
		f := excelize.NewFile()
		defer f.Close()
		f.SetSheetName("Sheet1", sheet)

		if err := setRow(f, sheet, 1, header); err != nil {
			return err
		}
		for i, row := range rows {
			if err := setRow(f, sheet, i+2, row); err != nil {
				return err
			}
		}
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return err
		}

		attachment(w, xlsxContentType, prefix, "xlsx")
		return f.Write(w)
	}
	return fmt.Errorf("%w: %s", errBadFormat, format)
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(sheet, cell, &cells)
}
