package decode

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

func decodeCSV(t *testing.T, d *CSV, data string) (*core.DecodedTable, error) {
	t.Helper()
	return d.Decode(context.Background(), strings.NewReader(data), int64(len(data)))
}

func TestForFile(t *testing.T) {
	resolve := ForFile(Options{})

	tests := []struct {
		file    string
		want    any
		wantErr bool
	}{
		{"loads.csv", &CSV{}, false},
		{"LOADS.CSV", &CSV{}, false},
		{"export.tsv", &CSV{}, false},
		{"trucks.xlsx", &XLSX{}, false},
		{"report.pdf", nil, true},
		{"noext", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			dec, err := resolve(tt.file)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrUnsupportedFile)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, dec)
		})
	}

	dec, err := resolve("x.tsv")
	require.NoError(t, err)
	assert.Equal(t, '\t', dec.(*CSV).Comma)
}

// =============================================================================
// CSV
// =============================================================================

func TestCSV_Decode(t *testing.T) {
	data := "\xEF\xBB\xBFLoad ID,Customer,Notes\r\n" +
		"L-1001,Acme,\"Dock 4, ask for Sam\"\r\n" +
		",,\r\n" +
		"L-1002,Globex\r\n"

	table, err := decodeCSV(t, &CSV{}, data)
	require.NoError(t, err)

	assert.Equal(t, []string{"Load ID", "Customer", "Notes"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "L-1001", table.Rows[0].Get("Load ID"))
	assert.Equal(t, "Dock 4, ask for Sam", table.Rows[0].Get("Notes"))
	assert.Equal(t, "", table.Rows[1].Get("Notes"))
}

func TestCSV_SniffsDelimiter(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{"semicolon", "Load ID;Customer;Revenue\nL-1;Acme;1.200,50\n", []string{"L-1", "Acme", "1.200,50"}},
		{"tab", "Load ID\tCustomer\tRevenue\nL-1\tAcme\t1200\n", []string{"L-1", "Acme", "1200"}},
		{"pipe", "Load ID|Customer|Revenue\nL-1|Acme|1200\n", []string{"L-1", "Acme", "1200"}},
		{"quoted commas do not count", "\"A;B\";\"C,D,E\"\nx;y\n", []string{"x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := decodeCSV(t, &CSV{}, tt.data)
			require.NoError(t, err)
			require.Len(t, table.Rows, 1)
			var got []string
			for _, h := range table.Headers {
				got = append(got, table.Rows[0].Get(h))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCSV_InvalidUTF8IsReplaced(t *testing.T) {
	data := "Customer\nCaf\xe9 Express\n"
	table, err := decodeCSV(t, &CSV{}, data)
	require.NoError(t, err)
	assert.Equal(t, "Caf\uFFFD Express", table.Rows[0].Get("Customer"))
}

func TestCSV_UniqueHeaders(t *testing.T) {
	table, err := decodeCSV(t, &CSV{}, "Notes, ,Notes\na,b,c\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"Notes", "Column 2", "Notes (2)"}, table.Headers)
	assert.Equal(t, "c", table.Rows[0].Get("Notes (2)"))
}

func TestCSV_Limits(t *testing.T) {
	data := "A\n1\n2\n3\n"

	_, err := decodeCSV(t, &CSV{MaxRows: 2}, data)
	assert.ErrorIs(t, err, ErrTooManyRows)
	assert.Equal(t, "FILE001", core.MapError(err).Code)

	big := "A\n" + strings.Repeat("x\n", 10_000)
	_, err = decodeCSV(t, &CSV{MaxBytes: 1024}, big)
	assert.ErrorIs(t, err, core.ErrFileTooLarge)
}

func TestCSV_Empty(t *testing.T) {
	_, err := decodeCSV(t, &CSV{}, "\n\n")
	assert.ErrorIs(t, err, core.ErrEmptyFile)

	table, err := decodeCSV(t, &CSV{}, "A,B\n")
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
}

func TestCSV_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&CSV{}).Decode(ctx, strings.NewReader("A\n1\n"), 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCountingReader(t *testing.T) {
	cr := NewCountingReader(strings.NewReader("hello world"), 0)
	b, err := io.ReadAll(cr)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(b))
	assert.Equal(t, int64(11), cr.BytesRead())
}

// =============================================================================
// XLSX
// =============================================================================

func workbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheet))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestXLSX_Decode(t *testing.T) {
	data := workbook(t, "Loads", [][]any{
		{"Truck #", "Make", "Year"},
		{"T-1", "Volvo", 2019},
		{},
		{"T-2", "Mack", 2021},
	})

	table, err := (&XLSX{}).Decode(context.Background(), bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	assert.Equal(t, []string{"Truck #", "Make", "Year"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "T-1", table.Rows[0].Get("Truck #"))
	assert.Equal(t, "2019", table.Rows[0].Get("Year"))
	assert.Equal(t, "Mack", table.Rows[1].Get("Make"))
}

func TestXLSX_NamedSheet(t *testing.T) {
	data := workbook(t, "Trucks", [][]any{{"A"}, {"1"}})

	_, err := (&XLSX{Sheet: "Missing"}).Decode(context.Background(), bytes.NewReader(data), 0)
	require.Error(t, err)
	assert.Equal(t, "FILE006", core.MapError(err).Code)

	table, err := (&XLSX{Sheet: "Trucks"}).Decode(context.Background(), bytes.NewReader(data), 0)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)
}

func TestXLSX_NotAWorkbook(t *testing.T) {
	_, err := (&XLSX{}).Decode(context.Background(), strings.NewReader("Load ID,Customer\n"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open workbook")
}
