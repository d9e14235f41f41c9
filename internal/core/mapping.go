package core

// mapping.go resolves which source column feeds which catalog field.
//
// Resolution runs in a fixed order and each later pass wins over the earlier:
//
//  1. deterministic: normalized header equals a field name, label or synonym
//  2. assisted: advisor suggestions fill columns still unmapped
//  3. profile: a saved mapping replaces pairs for the columns it names
//  4. overrides: operator edits, applied last
//
// A target field is claimed by at most one column. When a later pass assigns
// a field that an earlier pass gave to another column, the earlier claim is dropped.

import (
	"sync"
)

// AutoMap runs the deterministic pass. Headers are visited in source order and
// the first header that matches a field claims it.
func AutoMap(headers []string, cat *Catalog) ColumnMapping {
	candidates := make(map[string]string)
	for _, f := range cat.Fields {
		names := append([]string{f.Name, f.Label}, f.Synonyms...)
		for _, n := range names {
			key := NormalizeHeader(n)
			if key == "" {
				continue
			}
			// Earlier fields keep a shared synonym.
			if _, taken := candidates[key]; !taken {
				candidates[key] = f.Name
			}
		}
	}

	mapping := make(ColumnMapping)
	claimed := make(map[string]bool)
	for _, h := range headers {
		field, ok := candidates[NormalizeHeader(h)]
		if !ok || claimed[field] {
			continue
		}
		if _, dup := mapping[h]; dup {
			continue
		}
		mapping[h] = field
		claimed[field] = true
	}
	return mapping
}

// MergeSuggestions fills gaps in current with advisor suggestions.
// Headers already mapped, headers in locked, unknown headers, fields outside
// the catalog and fields already claimed are all left alone.
func MergeSuggestions(current, suggestion ColumnMapping, headers []string, cat *Catalog, locked map[string]bool) ColumnMapping {
	out := current.Clone()
	if len(suggestion) == 0 {
		return out
	}

	claimed := make(map[string]bool, len(out))
	for _, field := range out {
		if field != "" {
			claimed[field] = true
		}
	}

	// Header order keeps the merge deterministic when two suggestions share a field.
	for _, h := range headers {
		field, ok := suggestion[h]
		if !ok || field == "" {
			continue
		}
		if locked[h] || out[h] != "" || !cat.Has(field) || claimed[field] {
			continue
		}
		out[h] = field
		claimed[field] = true
	}
	return out
}

// ApplyProfile lays a saved profile over current for the columns present in headers.
func ApplyProfile(current ColumnMapping, profile Profile, headers []string, cat *Catalog) ColumnMapping {
	present := headerSet(headers)
	out := current.Clone()
	for _, h := range headers {
		field, ok := profile.Mapping[h]
		if !ok || !present[h] {
			continue
		}
		if field != "" && !cat.Has(field) {
			continue
		}
		assign(out, h, field)
	}
	return out
}

// ApplyOverrides applies operator edits. An override to "" unmaps the column.
func ApplyOverrides(current, overrides ColumnMapping, headers []string, cat *Catalog) ColumnMapping {
	present := headerSet(headers)
	out := current.Clone()
	// Header order so that two overrides naming the same field resolve predictably.
	for _, h := range headers {
		field, ok := overrides[h]
		if !ok || !present[h] {
			continue
		}
		if field != "" && !cat.Has(field) {
			continue
		}
		assign(out, h, field)
	}
	return out
}

// assign maps col to field and drops any other column's claim on field.
func assign(m ColumnMapping, col, field string) {
	if field == "" {
		delete(m, col)
		return
	}
	for other, f := range m {
		if f == field && other != col {
			delete(m, other)
		}
	}
	m[col] = field
}

func headerSet(headers []string) map[string]bool {
	set := make(map[string]bool, len(headers))
	for _, h := range headers {
		set[h] = true
	}
	return set
}

// ResolveInput carries the non-deterministic inputs to Resolve.
type ResolveInput struct {
	Suggestion ColumnMapping
	Profile    *Profile
	Overrides  ColumnMapping
}

// Resolve composes all passes in precedence order.
func Resolve(headers []string, cat *Catalog, in ResolveInput) ColumnMapping {
	m := AutoMap(headers, cat)

	locked := make(map[string]bool, len(in.Overrides))
	for h := range in.Overrides {
		locked[h] = true
	}
	m = MergeSuggestions(m, in.Suggestion, headers, cat, locked)

	if in.Profile != nil {
		m = ApplyProfile(m, *in.Profile, headers, cat)
	}
	return ApplyOverrides(m, in.Overrides, headers, cat)
}

// UnmappedRequired returns required fields no column or fixed value supplies.
func UnmappedRequired(cat *Catalog, mapping ColumnMapping, supplied map[string]bool) []string {
	targets := mapping.Targets()
	var missing []string
	for _, f := range cat.Required() {
		if _, ok := targets[f.Name]; ok {
			continue
		}
		if supplied[f.Name] {
			continue
		}
		missing = append(missing, f.Name)
	}
	return missing
}

// MappingState holds a session's mapping inputs and the current resolution.
//
// Every operator edit bumps the generation. An assisted result is tagged with
// the generation it was requested at and is discarded if the operator has
// edited since, so a slow advisor can never clobber a newer edit.
type MappingState struct {
	mu         sync.Mutex
	headers    []string
	catalog    *Catalog
	suggestion ColumnMapping
	profile    *Profile
	overrides  ColumnMapping
	current    ColumnMapping
	generation uint64
}

// NewMappingState resolves the deterministic mapping for headers.
func NewMappingState(headers []string, cat *Catalog) *MappingState {
	s := &MappingState{
		headers:   headers,
		catalog:   cat,
		overrides: make(ColumnMapping),
	}
	s.recompute()
	return s
}

func (s *MappingState) recompute() {
	s.current = Resolve(s.headers, s.catalog, ResolveInput{
		Suggestion: s.suggestion,
		Profile:    s.profile,
		Overrides:  s.overrides,
	})
}

// Snapshot returns a copy of the current mapping and its generation.
func (s *MappingState) Snapshot() (ColumnMapping, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone(), s.generation
}

// Mapping returns a copy of the current mapping.
func (s *MappingState) Mapping() ColumnMapping {
	m, _ := s.Snapshot()
	return m
}

// Generation returns the current edit generation.
func (s *MappingState) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// ApplySuggestion merges an assisted result requested at generation gen.
// Returns false if the state has moved on and the result was dropped.
func (s *MappingState) ApplySuggestion(gen uint64, suggestion ColumnMapping) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.suggestion = suggestion.Clone()
	s.recompute()
	return true
}

// SetOverride records an operator edit for one column. field "" unmaps it.
func (s *MappingState) SetOverride(column, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[column] = field
	s.generation++
	s.recompute()
}

// SetOverrides replaces all operator edits.
func (s *MappingState) SetOverrides(overrides ColumnMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = overrides.Clone()
	s.generation++
	s.recompute()
}

// ApplyProfile layers a saved profile under the operator's edits.
func (s *MappingState) ApplyProfile(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &p
	s.generation++
	s.recompute()
}

// Reset drops the advisor result, profile and edits and returns to the
// deterministic mapping.
func (s *MappingState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestion = nil
	s.profile = nil
	s.overrides = make(ColumnMapping)
	s.generation++
	s.recompute()
}
