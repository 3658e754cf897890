package model

import "regexp"

// Store describes a single custard stand.
type Store struct {
	ID          string  `json:"id" csv:"id"`
	Brand       string  `json:"brand" csv:"brand"`
	Name        string  `json:"name" csv:"name"`
	City        string  `json:"city,omitempty" csv:"city"`
	State       string  `json:"state,omitempty" csv:"state"`
	Lat         float64 `json:"lat,omitempty" csv:"lat"`
	Lon         float64 `json:"lon,omitempty" csv:"lon"`
	HasLocation bool    `json:"has_location" csv:"-"`
}

// DefaultBrand is assumed for any slug that matches no other brand.
const DefaultBrand = "Culver's"

var brandPatterns = []struct {
	re    *regexp.Regexp
	brand string
}{
	{regexp.MustCompile(`^kopps-`), "Kopp's"},
	{regexp.MustCompile(`^gilles$`), "Gille's"},
	{regexp.MustCompile(`^hefners$`), "Hefner's"},
	{regexp.MustCompile(`^kraverz$`), "Kraverz"},
	{regexp.MustCompile(`^oscars`), "Oscar's"},
}

// InferBrand derives the brand name from a store slug.
func InferBrand(slug string) string {
	for _, p := range brandPatterns {
		if p.re.MatchString(slug) {
			return p.brand
		}
	}
	return DefaultBrand
}
