package core

import (
	"fmt"
	"time"
)

// DefaultPreviewSampleLimit caps the rows returned per class.
const DefaultPreviewSampleLimit = 100

// RowPreview represents a single row for preview display.
type RowPreview struct {
	RowIndex int               `json:"rowIndex"`
	Key      string            `json:"key,omitempty"`
	Values   map[string]string `json:"values"`
	Errors   []RowError        `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// DuplicatePreview represents a natural key that appears more than once in the file.
type DuplicatePreview struct {
	Key        string `json:"key"`
	RowIndexes []int  `json:"rowIndexes"`
}

// PreviewResult is the read-only outcome of a dry run.
//
// ValidCount + WarningCount + InvalidCount == TotalRows. A warning row is a
// valid row with diagnostics; whether it is committed depends on the
// warning acknowledgment options.
type PreviewResult struct {
	TotalRows    int `json:"totalRows"`
	ValidCount   int `json:"validCount"`
	WarningCount int `json:"warningCount"`
	InvalidCount int `json:"invalidCount"`

	// Importable is the number of rows a commit with the same options would send to the store.
	Importable int `json:"importable"`

	Valid    []RowPreview `json:"valid"`
	Warnings []RowPreview `json:"warnings"`
	Invalid  []RowPreview `json:"invalid"`

	// MissingFields are required fields with no mapped column and no fixed value.
	MissingFields []string           `json:"missingFields,omitempty"`
	Duplicates    []DuplicatePreview `json:"duplicates,omitempty"`
	DuplicateRows int                `json:"duplicateRows"`

	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

// Preview classifies every row without persisting anything.
// It always recomputes from scratch.
func Preview(entityType string, rows []RawRow, mapping ColumnMapping, fixed FixedValues, opts ImportOptions, sampleLimit int) (*PreviewResult, error) {
	start := time.Now()
	if sampleLimit <= 0 {
		sampleLimit = DefaultPreviewSampleLimit
	}

	ev, err := newRowEvaluator(entityType, mapping, fixed, opts)
	if err != nil {
		return nil, err
	}

	res := &PreviewResult{
		TotalRows:     len(rows),
		Valid:         []RowPreview{},
		Warnings:      []RowPreview{},
		Invalid:       []RowPreview{},
		MissingFields: UnmappedRequired(ev.catalog, mapping, ev.supplied()),
	}

	keyField := ev.catalog.NaturalKey()
	acceptWarnings := !opts.RequireWarningAck || opts.WarningsAcknowledged
	seen := make(map[string]int)
	dupes := make(map[string][]int)
	var dupOrder []string

	for i, row := range rows {
		r := ev.evaluate(i, row)

		p := RowPreview{
			RowIndex: i,
			Key:      r.Candidate.Get(keyField),
			Values:   r.Candidate.Values,
		}
		for _, w := range r.Report.Warnings {
			p.Warnings = append(p.Warnings, w.Error())
		}

		switch r.Class {
		case RowValid:
			res.ValidCount++
			if len(res.Valid) < sampleLimit {
				res.Valid = append(res.Valid, p)
			}
		case RowWarning:
			res.WarningCount++
			if len(res.Warnings) < sampleLimit {
				res.Warnings = append(res.Warnings, p)
			}
			if !acceptWarnings {
				continue
			}
		default:
			res.InvalidCount++
			if len(res.Invalid) < sampleLimit {
				p.Errors = r.Report.RowErrors(i)
				res.Invalid = append(res.Invalid, p)
			}
			continue
		}

		// Duplicates are counted among rows a commit would send to the store.
		key := NormalizeKey(p.Key)
		if first, ok := seen[key]; ok {
			if _, tracked := dupes[key]; !tracked {
				dupes[key] = []int{first}
				dupOrder = append(dupOrder, key)
			}
			dupes[key] = append(dupes[key], i)
			res.DuplicateRows++
			continue
		}
		seen[key] = i
		res.Importable++
	}

	for _, k := range dupOrder {
		if len(res.Duplicates) >= sampleLimit {
			break
		}
		res.Duplicates = append(res.Duplicates, DuplicatePreview{Key: k, RowIndexes: dupes[k]})
	}

	res.ProcessingTimeMs = time.Since(start).Milliseconds()
	return res, nil
}

// String summarizes the counts for logs and the CLI.
func (r *PreviewResult) String() string {
	return fmt.Sprintf("%d rows: %d valid, %d warnings, %d invalid, %d duplicates",
		r.TotalRows, r.ValidCount, r.WarningCount, r.InvalidCount, r.DuplicateRows)
}
