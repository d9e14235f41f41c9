package advisor

import (
	"context"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/JonMunkholm/fleetimport/internal/core"
)

// minFuzzyLen is the shortest normalized header the fuzzy advisor will try.
const minFuzzyLen = 3

// Fuzzy suggests mappings by approximate matching against field names,
// labels and synonyms. It needs no network and never fails on valid input.
type Fuzzy struct {
	// MaxDistance caps the Levenshtein distance of an accepted match as a
	// fraction of the longer string. Zero uses 0.5.
	MaxDistance float64
}

type fuzzyCandidate struct {
	name  string // normalized
	field string
}

// Suggest implements core.Advisor.
func (a Fuzzy) Suggest(ctx context.Context, headers []string, entityType string) (core.ColumnMapping, error) {
	cat, err := core.CatalogFor(entityType)
	if err != nil {
		return nil, err
	}

	var cands []fuzzyCandidate
	for _, f := range cat.Fields {
		for _, n := range append([]string{f.Name, f.Label}, f.Synonyms...) {
			if key := core.NormalizeHeader(n); key != "" {
				cands = append(cands, fuzzyCandidate{name: key, field: f.Name})
			}
		}
	}
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}

	out := make(core.ColumnMapping)
	claimed := make(map[string]bool)
	for _, h := range headers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		field, ok := a.best(core.NormalizeHeader(h), names, cands, claimed)
		if !ok {
			continue
		}
		out[h] = field
		claimed[field] = true
	}
	return out, nil
}

// best returns the closest unclaimed field for a normalized header.
// A match needs one string to be a subsequence of the other.
func (a Fuzzy) best(header string, names []string, cands []fuzzyCandidate, claimed map[string]bool) (string, bool) {
	if len(header) < minFuzzyLen {
		return "", false
	}

	ranks := fuzzy.RankFindNormalizedFold(header, names)
	for i, name := range names {
		if len(name) >= minFuzzyLen && len(name) < len(header) && fuzzy.MatchNormalizedFold(name, header) {
			ranks = append(ranks, fuzzy.Rank{
				Source:        name,
				Target:        header,
				Distance:      fuzzy.LevenshteinDistance(name, header),
				OriginalIndex: i,
			})
		}
	}
	sort.Stable(ranks)

	limit := a.MaxDistance
	if limit <= 0 {
		limit = 0.5
	}
	for _, r := range ranks {
		c := cands[r.OriginalIndex]
		if claimed[c.field] {
			continue
		}
		longest := max(len(header), len(c.name))
		if float64(r.Distance) > limit*float64(longest) {
			break
		}
		return c.field, true
	}
	return "", false
}
