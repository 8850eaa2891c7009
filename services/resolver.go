package services

import (
	"strings"

	"iacollector/errs"
	"iacollector/models"
)

// ResolveResult carries the outcome of a batch resolution. Cities is
// unique by folder token, in first-match order; Errors holds one
// ResolutionError per query that could not be resolved.
type ResolveResult struct {
	Cities []models.CatalogCity
	Errors []error
}

// OK reports whether every query resolved to exactly one city.
func (r *ResolveResult) OK() bool { return len(r.Errors) == 0 }

// Resolve matches a user-supplied city name against the catalog. Matching
// is case-insensitive: the query matches an entry when it is a substring
// of the city token, the folder token, or any comma-separated part of the
// display name. Exact token matches take priority over substring matches,
// so "amsterdam" resolves even when another entry contains it. Zero
// matches yield a not-found ResolutionError; multiple matches are all
// returned.
func Resolve(query string, catalog []models.CatalogCity) ([]models.CatalogCity, error) {
	q := normalizeQuery(query)
	if q == "" {
		return nil, &errs.ResolutionError{Query: query, Kind: errs.NotFound}
	}

	var exact, partial []models.CatalogCity
	for _, entry := range catalog {
		switch {
		case entryMatchesExactly(q, entry):
			exact = append(exact, entry)
		case entryMatches(q, entry):
			partial = append(partial, entry)
		}
	}

	if len(exact) > 0 {
		return exact, nil
	}
	if len(partial) > 0 {
		return partial, nil
	}
	return nil, &errs.ResolutionError{Query: query, Kind: errs.NotFound}
}

// ResolveOne is the strict form used by the pipeline: a query matching
// more than one entry is an ambiguity error carrying the candidates,
// never a silent first pick.
func ResolveOne(query string, catalog []models.CatalogCity) (models.CatalogCity, error) {
	matches, err := Resolve(query, catalog)
	if err != nil {
		return models.CatalogCity{}, err
	}
	if len(matches) > 1 {
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.DisplayName
		}
		return models.CatalogCity{}, &errs.ResolutionError{Query: query, Kind: errs.Ambiguous, Candidates: names}
	}
	return matches[0], nil
}

// ResolveAll resolves each query independently; one bad query never
// blocks the others. Queries resolving to the same city are collapsed.
func ResolveAll(queries []string, catalog []models.CatalogCity) *ResolveResult {
	result := &ResolveResult{}
	seen := make(map[string]bool)

	for _, query := range queries {
		entry, err := ResolveOne(query, catalog)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if seen[entry.Folder] {
			continue
		}
		seen[entry.Folder] = true
		result.Cities = append(result.Cities, entry)
	}
	return result
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func entryMatches(q string, entry models.CatalogCity) bool {
	for _, token := range entryTokens(entry) {
		if strings.Contains(token, q) {
			return true
		}
	}
	return false
}

func entryMatchesExactly(q string, entry models.CatalogCity) bool {
	for _, token := range entryTokens(entry) {
		if token == q {
			return true
		}
	}
	return false
}

func entryTokens(entry models.CatalogCity) []string {
	tokens := []string{
		strings.ToLower(entry.CitySlug),
		strings.ToLower(entry.Folder),
	}
	for _, part := range strings.Split(entry.DisplayName, ",") {
		tokens = append(tokens, normalizeQuery(part))
	}
	return tokens
}
