package decode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/fleetimport/internal/core"
	"github.com/JonMunkholm/fleetimport/internal/metrics"
)

// sniffBytes is how much of the file is inspected to guess the delimiter.
const sniffBytes = 4096

// candidateDelimiters are tried in order; ties go to the earlier one.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// CSV decodes delimited text files.
type CSV struct {
	Comma    rune // 0 sniffs the delimiter from the header line
	MaxBytes int64
	MaxRows  int
}

// Decode implements core.TabularDecoder.
func (d *CSV) Decode(ctx context.Context, r io.Reader, size int64) (table *core.DecodedTable, err error) {
	defer func() { metrics.IncDecode("csv", result(err)) }()

	br := bufio.NewReaderSize(NewTextReader(NewCountingReader(r, d.MaxBytes)), sniffBytes)

	comma := d.Comma
	if comma == 0 {
		comma = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	b := newTableBuilder(d.MaxRows)
	for n := 0; ; n++ {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) && !errors.Is(err, core.ErrFileTooLarge) {
				return nil, fmt.Errorf("csv line %d: %w", pe.Line, pe.Err)
			}
			return nil, err
		}
		if err := b.add(record); err != nil {
			return nil, err
		}
	}
	return b.table()
}

// sniffDelimiter picks the candidate that occurs most often in the first line.
// Quoted sections are ignored. Defaults to a comma.
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(sniffBytes)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}

	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, c := range string(peek) {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[c]++
		}
	}

	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}
