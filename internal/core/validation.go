package core

// validation.go turns a mapped row into a candidate record and classifies it.
//
// A candidate is the field -> value view of one source row after the mapping
// and fixed values are applied. Validation happens at two levels:
//  1. SpecValidator: required, recommended and type checks from the catalog
//  2. Entity validator: business checks registered with the entity
//
// The record builder runs last; a builder error also makes the row invalid.

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Candidate is one source row expressed in target fields.
type Candidate struct {
	RowIndex int               // 0-based position in the decoded row set
	Values   map[string]string // field -> cleaned, non-empty value
}

// Get returns a field value or "".
func (c Candidate) Get(field string) string {
	return c.Values[field]
}

// Has reports whether the field has a non-empty value.
func (c Candidate) Has(field string) bool {
	return c.Values[field] != ""
}

// BuildCandidate applies mapping then fixed values to a raw row.
// Unmapped columns and empty values are dropped; fixed values override mapped ones.
func BuildCandidate(rowIndex int, row RawRow, mapping ColumnMapping, fixed FixedValues) Candidate {
	c := Candidate{
		RowIndex: rowIndex,
		Values:   make(map[string]string, len(mapping)+len(fixed)),
	}
	for _, col := range row.Columns {
		field := mapping[col]
		if field == "" {
			continue
		}
		if v := CleanCell(row.Get(col)); v != "" {
			c.Values[field] = v
		}
	}
	for field, v := range fixed {
		if v = strings.TrimSpace(v); v != "" {
			c.Values[field] = v
		}
	}
	return c
}

// ValidationError is a single problem with one field of a candidate.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationReport is the result of validating one candidate.
type ValidationReport struct {
	MissingRequired []string          `json:"missingRequired,omitempty"`
	Warnings        []ValidationError `json:"warnings,omitempty"`
	Errors          []ValidationError `json:"errors,omitempty"`
}

// Invalid reports whether the candidate must not be persisted.
func (r ValidationReport) Invalid() bool {
	return len(r.MissingRequired) > 0 || len(r.Errors) > 0
}

// HasWarnings reports whether the candidate carries warnings.
func (r ValidationReport) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Failures turns the blocking findings into errors for rowIndex.
func (r ValidationReport) Failures(rowIndex int) []*ValidationFailure {
	out := make([]*ValidationFailure, 0, len(r.MissingRequired)+len(r.Errors))
	for _, f := range r.MissingRequired {
		out = append(out, &ValidationFailure{RowIndex: rowIndex, Field: f, Message: "required field is empty"})
	}
	for _, e := range r.Errors {
		out = append(out, &ValidationFailure{RowIndex: rowIndex, Field: e.Field, Message: e.Message})
	}
	return out
}

// RowErrors flattens the report into reported errors for rowIndex.
func (r ValidationReport) RowErrors(rowIndex int) []RowError {
	failures := r.Failures(rowIndex)
	out := make([]RowError, len(failures))
	for i, f := range failures {
		out[i] = f.RowError()
	}
	return out
}

// Merge appends other's findings.
func (r *ValidationReport) Merge(other ValidationReport) {
	r.MissingRequired = append(r.MissingRequired, other.MissingRequired...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Errors = append(r.Errors, other.Errors...)
}

// EntityValidator checks a candidate against entity rules.
type EntityValidator interface {
	Validate(c Candidate, cat *Catalog) ValidationReport
}

// ValidatorFunc adapts a function to EntityValidator.
type ValidatorFunc func(c Candidate, cat *Catalog) ValidationReport

// Validate calls f.
func (f ValidatorFunc) Validate(c Candidate, cat *Catalog) ValidationReport {
	return f(c, cat)
}

// SpecValidator checks required, recommended and type rules from the catalog.
type SpecValidator struct{}

// Validate implements EntityValidator.
func (SpecValidator) Validate(c Candidate, cat *Catalog) ValidationReport {
	var r ValidationReport
	for _, spec := range cat.Fields {
		raw := c.Get(spec.Name)
		if raw == "" {
			switch {
			case spec.Required:
				r.MissingRequired = append(r.MissingRequired, spec.Name)
			case spec.Recommended:
				r.Warnings = append(r.Warnings, ValidationError{
					Field:   spec.Name,
					Message: "recommended field is empty",
				})
			}
			continue
		}

		if spec.Normalizer != nil {
			raw = spec.Normalizer(raw)
		}
		if err := ValidateCell(raw, spec); err != nil {
			r.Errors = append(r.Errors, ValidationError{
				Field:   spec.Name,
				Value:   raw,
				Message: err.Error(),
			})
		}
	}
	return r
}

// chainValidator runs validators in order and merges their reports.
type chainValidator []EntityValidator

func (vs chainValidator) Validate(c Candidate, cat *Catalog) ValidationReport {
	var r ValidationReport
	for _, v := range vs {
		r.Merge(v.Validate(c, cat))
	}
	return r
}

// ValidatorFor returns the catalog checks followed by the entity's own validator.
func ValidatorFor(def EntityDefinition) EntityValidator {
	if def.Validator == nil {
		return SpecValidator{}
	}
	return chainValidator{SpecValidator{}, def.Validator}
}

// ValidateCell validates a single cell value against a field specification.
// Returns nil if valid, or an error describing the problem.
func ValidateCell(value string, spec FieldSpec) error {
	if value == "" {
		return nil
	}

	switch spec.Type {
	case FieldNumeric:
		if _, ok := ParseDecimal(value); !ok {
			return fmt.Errorf("invalid number format")
		}
	case FieldDate:
		if _, ok := ParseDate(value); !ok {
			return fmt.Errorf("invalid date format (use YYYY-MM-DD or similar)")
		}
	case FieldBool:
		if _, ok := ParseBool(value); !ok {
			return fmt.Errorf("must be yes/no, true/false, or 1/0")
		}
	case FieldEnum:
		if len(spec.EnumValues) > 0 {
			for _, ev := range spec.EnumValues {
				if strings.EqualFold(ev, value) {
					return nil
				}
			}
			return fmt.Errorf("value must be one of: %s", strings.Join(spec.EnumValues, ", "))
		}
	}
	return nil
}

// FieldError is returned by record builders for a problem with one field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RowClass is the preview classification of a row.
type RowClass int

const (
	RowValid RowClass = iota
	RowWarning
	RowInvalid
)

func (c RowClass) String() string {
	switch c {
	case RowValid:
		return "valid"
	case RowWarning:
		return "warning"
	default:
		return "invalid"
	}
}

// evaluatedRow is a row after mapping, validation and record building.
type evaluatedRow struct {
	Candidate Candidate
	Report    ValidationReport
	Record    Record // nil when the row is invalid
	Class     RowClass
}

// rowEvaluator applies one mapping configuration to rows.
type rowEvaluator struct {
	def       EntityDefinition
	catalog   *Catalog
	validator EntityValidator
	mapping   ColumnMapping
	fixed     FixedValues
	opts      ImportOptions
}

func newRowEvaluator(entityType string, mapping ColumnMapping, fixed FixedValues, opts ImportOptions) (*rowEvaluator, error) {
	def, ok := Get(entityType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
	cat := NewCatalog(def)

	if err := checkMapping(cat, mapping); err != nil {
		return nil, err
	}

	return &rowEvaluator{
		def:       def,
		catalog:   cat,
		validator: ValidatorFor(def),
		mapping:   mapping,
		fixed:     effectiveFixed(fixed, opts),
		opts:      opts,
	}, nil
}

// checkMapping rejects mappings naming fields outside the catalog.
func checkMapping(cat *Catalog, mapping ColumnMapping) error {
	var unknown []string
	for col, field := range mapping {
		if field != "" && !cat.Has(field) {
			unknown = append(unknown, fmt.Sprintf("%s -> %s", col, field))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown field in mapping: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// effectiveFixed merges import-wide defaults under the fixed values.
func effectiveFixed(fixed FixedValues, opts ImportOptions) FixedValues {
	out := make(FixedValues, len(fixed)+len(opts.Defaults))
	for k, v := range opts.Defaults {
		out[k] = v
	}
	for k, v := range fixed {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// supplied returns the fields provided by mapping, fixed values or defaults.
func (e *rowEvaluator) supplied() map[string]bool {
	out := make(map[string]bool)
	for _, f := range e.mapping {
		if f != "" {
			out[f] = true
		}
	}
	for f, v := range e.fixed {
		if strings.TrimSpace(v) != "" {
			out[f] = true
		}
	}
	return out
}

func (e *rowEvaluator) evaluate(i int, row RawRow) evaluatedRow {
	c := BuildCandidate(i, row, e.mapping, e.fixed)
	report := e.validator.Validate(c, e.catalog)

	ev := evaluatedRow{Candidate: c, Report: report}
	if report.Invalid() {
		ev.Class = RowInvalid
		return ev
	}

	rec, err := e.def.Build(c, e.opts.Entity)
	if err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			ev.Report.Errors = append(ev.Report.Errors, ValidationError{Field: fe.Field, Value: c.Get(fe.Field), Message: fe.Message})
		} else {
			ev.Report.Errors = append(ev.Report.Errors, ValidationError{Message: err.Error()})
		}
		ev.Class = RowInvalid
		return ev
	}

	ev.Record = rec
	if ev.Report.HasWarnings() {
		ev.Class = RowWarning
	} else {
		ev.Class = RowValid
	}
	return ev
}
