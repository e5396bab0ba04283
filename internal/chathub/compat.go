package chathub

import (
	"strings"

	"voicechat/backend/internal/models"
)

// Profile is what the matcher knows about a waiting connection: the filters it
// joined with and, if the session validator supplied one, its country claim.
type Profile struct {
	Filters models.FilterSet
	Country string
}

// Compatible reports whether two filter sets may be paired when neither side
// carries a country of origin.
func Compatible(a, b models.FilterSet) bool {
	return CompatibleProfiles(Profile{Filters: a}, Profile{Filters: b})
}

// CompatibleProfiles is symmetric. The interest axis requires a shared interest
// only when both sides listed some. The country axes are evaluated only when
// both sides have a country; otherwise they are open.
func CompatibleProfiles(a, b Profile) bool {
	if !interestsOverlap(a.Filters.Interests, b.Filters.Interests) {
		return false
	}
	if a.Country == "" || b.Country == "" {
		return true
	}
	return acceptsCountry(a.Filters, b.Country) && acceptsCountry(b.Filters, a.Country)
}

func interestsOverlap(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	seen := make(map[string]struct{}, len(a))
	for _, i := range a {
		seen[i] = struct{}{}
	}
	for _, i := range b {
		if _, ok := seen[i]; ok {
			return true
		}
	}
	return false
}

func acceptsCountry(f models.FilterSet, country string) bool {
	if len(f.PreferredCountries) > 0 && !containsFold(f.PreferredCountries, country) {
		return false
	}
	return !containsFold(f.NonPreferredCountries, country)
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
