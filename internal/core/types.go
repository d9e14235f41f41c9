package core

// FieldType represents the expected data type for a target field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
)

// String returns the lower-case name used in API responses.
func (t FieldType) String() string {
	switch t {
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	default:
		return "text"
	}
}

// FieldSpec describes a single recognized system field of an entity.
type FieldSpec struct {
	Name        string              // System field name: "pickupCity"
	Label       string              // Display label: "Pickup City"
	Type        FieldType           // Expected data type
	Required    bool                // Row is invalid without a value
	Recommended bool                // Row gets a warning without a value
	Synonyms    []string            // Known alternative header spellings
	EnumValues  []string            // Valid values for FieldEnum type
	Normalizer  func(string) string // Optional transformation before type checks
}

// EntityInfo contains display information about an importable entity type.
type EntityInfo struct {
	Key        string `json:"key"`        // Unique identifier: "loads"
	Label      string `json:"label"`      // Display name: "Loads"
	NaturalKey string `json:"naturalKey"` // Field that identifies an existing record: "loadNumber"
}

// RecordBuilder turns a candidate into the entity's typed record.
// Errors are row-level and are attributed to the returned field when known.
type RecordBuilder func(c Candidate, opts EntityOptions) (Record, error)

// EntityDefinition contains everything needed to import one entity type.
type EntityDefinition struct {
	Info      EntityInfo
	Fields    []FieldSpec
	Build     RecordBuilder
	Validator EntityValidator // Optional; SpecValidator is used when nil
}

// EntityOptions carries entity-specific option flags chosen by the operator.
type EntityOptions map[string]bool

// Enabled reports whether the named option is set.
func (o EntityOptions) Enabled(name string) bool {
	return o != nil && o[name]
}

// Record is a typed entity record ready for persistence.
type Record interface {
	NaturalKey() string
}

// RawRow is one decoded source record. Columns preserves the source header order.
type RawRow struct {
	Columns []string
	Values  map[string]string
}

// Get returns the value of a source column.
func (r RawRow) Get(col string) string {
	if r.Values == nil {
		return ""
	}
	return r.Values[col]
}

// NewRawRow builds a RawRow from a header and a positional record.
// Missing trailing cells are empty.
func NewRawRow(headers, cells []string) RawRow {
	row := RawRow{
		Columns: headers,
		Values:  make(map[string]string, len(headers)),
	}
	for i, h := range headers {
		if i < len(cells) {
			row.Values[h] = cells[i]
		} else {
			row.Values[h] = ""
		}
	}
	return row
}

// ColumnMapping maps source column name -> target field name.
type ColumnMapping map[string]string

// Clone returns a copy of the mapping.
func (m ColumnMapping) Clone() ColumnMapping {
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Targets returns the set of target fields claimed by the mapping.
func (m ColumnMapping) Targets() map[string]string {
	out := make(map[string]string, len(m))
	for src, field := range m {
		if field != "" {
			out[field] = src
		}
	}
	return out
}

// FixedValues maps target field name -> literal value applied to every row.
type FixedValues map[string]string

// ImportOptions are the operator-chosen options for preview and commit.
type ImportOptions struct {
	UpdateExisting bool `json:"updateExisting"`

	// RequireWarningAck makes warning rows count as errors at commit time
	// unless WarningsAcknowledged is also set.
	RequireWarningAck    bool `json:"requireWarningAck"`
	WarningsAcknowledged bool `json:"warningsAcknowledged"`

	// Defaults are values pre-selected once for the whole import,
	// e.g. {"mcNumberId": "..."}. They count as supplied fields.
	Defaults map[string]string `json:"defaults,omitempty"`

	Entity EntityOptions `json:"entityOptions,omitempty"`
}

// Profile is a saved, named column mapping.
type Profile struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	EntityType string        `json:"entityType"`
	Mapping    ColumnMapping `json:"mapping"`
}

// ExistingRecord is a persisted record matched by natural key.
type ExistingRecord struct {
	ID         string
	NaturalKey string
}
