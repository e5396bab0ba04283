package models

// MaxCountryFilters caps both country lists of a FilterSet.
const MaxCountryFilters = 3

// FilterSet is the matching preference a client sends with join-queue.
// Interests are free-text tags compared case-sensitively; the number of tags
// is not capped here.
type FilterSet struct {
	Interests             []string `json:"interests"`
	PreferredCountries    []string `json:"preferredCountries"`
	NonPreferredCountries []string `json:"nonPreferredCountries"`
}

// Normalize returns a copy safe to keep as a queue snapshot: empty tags are
// dropped and the country lists are clamped to MaxCountryFilters.
func (f FilterSet) Normalize() FilterSet {
	return FilterSet{
		Interests:             compact(f.Interests, 0),
		PreferredCountries:    compact(f.PreferredCountries, MaxCountryFilters),
		NonPreferredCountries: compact(f.NonPreferredCountries, MaxCountryFilters),
	}
}

func compact(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, v)
	}
	return out
}
