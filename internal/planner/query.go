// Package planner ranks 2 to 5 candidate stores for a custard run. It
// combines certainty, content tags, flavor rarity, novelty and drive
// distance into an explainable score per store.
package planner

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sells-group/custard-cli/internal/geo"
)

// SortMode orders the returned cards.
type SortMode string

const (
	SortMatch  SortMode = "match"
	SortDetour SortMode = "detour"
	SortRarity SortMode = "rarity"
	SortETA    SortMode = "eta"
)

// Store-count bounds for a plan request.
const (
	MinStores = 2
	MaxStores = 5
)

// Query is a validated plan request.
type Query struct {
	StoreIDs        []string   `json:"stores"`
	Location        *geo.Point `json:"location,omitempty"`
	ExcludeTags     []string   `json:"exclude"`
	BoostTags       []string   `json:"boost"`
	AvoidTags       []string   `json:"avoid"`
	AllowEstimated  bool       `json:"estimated"`
	IncludeTomorrow bool       `json:"tomorrow"`
	Sort            SortMode   `json:"sort"`
}

// ValidationError is a caller input problem. It is returned before any
// storage access happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("planner: invalid %s: %s", e.Field, e.Reason)
}

// ParseQuery reads a plan request from URL query parameters and validates it.
func ParseQuery(v url.Values) (Query, error) {
	q := Query{
		StoreIDs:    splitList(v.Get("stores"), false),
		ExcludeTags: splitList(v.Get("exclude"), true),
		BoostTags:   splitList(v.Get("boost"), true),
		AvoidTags:   splitList(v.Get("avoid"), true),
		Sort:        SortMode(strings.ToLower(strings.TrimSpace(v.Get("sort")))),
	}
	if q.Sort == "" {
		q.Sort = SortMatch
	}

	if raw := strings.TrimSpace(v.Get("location")); raw != "" {
		p, err := geo.ParseLocation(raw)
		if err != nil {
			return Query{}, &ValidationError{Field: "location", Reason: fmt.Sprintf("%q is not a lat,lon pair", raw)}
		}
		q.Location = &p
	}

	var err error
	if q.AllowEstimated, err = parseFlag(v, "estimated"); err != nil {
		return Query{}, err
	}
	if q.IncludeTomorrow, err = parseFlag(v, "tomorrow"); err != nil {
		return Query{}, err
	}

	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// Validate checks store count, sort mode, and location bounds.
func (q Query) Validate() error {
	if n := len(q.StoreIDs); n < MinStores || n > MaxStores {
		return &ValidationError{
			Field:  "stores",
			Reason: fmt.Sprintf("need between %d and %d stores, got %d", MinStores, MaxStores, n),
		}
	}
	switch q.Sort {
	case SortMatch, SortDetour, SortRarity, SortETA:
	default:
		return &ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown sort mode %q", q.Sort)}
	}
	if q.Location != nil && !q.Location.Valid() {
		return &ValidationError{Field: "location", Reason: "coordinates out of range"}
	}
	return nil
}

func parseFlag(v url.Values, key string) (bool, error) {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ValidationError{Field: key, Reason: fmt.Sprintf("%q is not a boolean", raw)}
	}
	return b, nil
}

// splitList splits a comma list, trimming blanks and dropping duplicates.
func splitList(raw string, lower bool) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if lower {
			part = strings.ToLower(part)
		}
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
