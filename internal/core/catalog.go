package core

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Catalog is the ordered set of recognized fields for one entity type.
type Catalog struct {
	Entity EntityInfo
	Fields []FieldSpec
	index  map[string]int
}

// NewCatalog builds a catalog from an entity definition.
func NewCatalog(def EntityDefinition) *Catalog {
	c := &Catalog{
		Entity: def.Info,
		Fields: def.Fields,
		index:  make(map[string]int, len(def.Fields)),
	}
	for i, f := range def.Fields {
		c.index[f.Name] = i
	}
	return c
}

// CatalogFor returns the catalog of a registered entity type.
func CatalogFor(entityType string) (*Catalog, error) {
	def, ok := Get(entityType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
	return NewCatalog(def), nil
}

// Lookup returns the field spec with the given name.
func (c *Catalog) Lookup(name string) (FieldSpec, bool) {
	i, ok := c.index[name]
	if !ok {
		return FieldSpec{}, false
	}
	return c.Fields[i], true
}

// Has reports whether name is a field of the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Required returns the required fields in catalog order.
func (c *Catalog) Required() []FieldSpec {
	var out []FieldSpec
	for _, f := range c.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// Recommended returns the recommended fields in catalog order.
func (c *Catalog) Recommended() []FieldSpec {
	var out []FieldSpec
	for _, f := range c.Fields {
		if f.Recommended {
			out = append(out, f)
		}
	}
	return out
}

// NaturalKey returns the name of the field that identifies existing records.
func (c *Catalog) NaturalKey() string {
	return c.Entity.NaturalKey
}

// NormalizeHeader reduces a header or field name to its comparison form:
// accents stripped, case-folded, letters and digits only.
// "Pick-Up  Date" and "pickupDate" both become "pickupdate".
func NormalizeHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeKey is the comparison form of a natural key: trimmed and lower-cased.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
