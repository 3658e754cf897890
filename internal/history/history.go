// Package history groups a store's observations into per-flavor appearance
// timelines and derives cadence statistics from them.
package history

import (
	"sort"
	"time"

	"github.com/sells-group/custard-cli/internal/model"
)

// FlavorHistory is the sorted, de-duplicated list of dates a flavor was served.
type FlavorHistory struct {
	Flavor string      `json:"flavor_name"`
	Dates  []time.Time `json:"-"`
}

// Cadence summarizes how often a flavor rotates through one store.
type Cadence struct {
	Appearances   int     `json:"appearances"`
	AvgGapDays    float64 `json:"avg_gap_days"`
	DaysSinceLast int     `json:"days_since_last"`
	// Seen is false when the flavor never appeared on or before today;
	// DaysSinceLast is meaningless in that case.
	Seen bool `json:"seen"`
}

// Build groups observations by flavor. Flavors are keyed by normalized name;
// the first display spelling encountered wins. Output is sorted by flavor.
func Build(obs []model.Observation) []FlavorHistory {
	type acc struct {
		name  string
		dates map[time.Time]struct{}
	}
	byKey := make(map[string]*acc)
	for _, o := range obs {
		key := model.NormalizeFlavor(o.Flavor)
		if key == "" || o.Date.IsZero() {
			continue
		}
		a, ok := byKey[key]
		if !ok {
			a = &acc{name: o.Flavor, dates: make(map[time.Time]struct{})}
			byKey[key] = a
		}
		a.dates[model.Day(o.Date)] = struct{}{}
	}

	out := make([]FlavorHistory, 0, len(byKey))
	for _, a := range byKey {
		dates := make([]time.Time, 0, len(a.dates))
		for d := range a.dates {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		out = append(out, FlavorHistory{Flavor: a.name, Dates: dates})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Flavor < out[j].Flavor })
	return out
}

// Until returns the dates on or before today.
func (h FlavorHistory) Until(today time.Time) []time.Time {
	cut := model.Day(today)
	n := sort.Search(len(h.Dates), func(i int) bool { return h.Dates[i].After(cut) })
	return h.Dates[:n]
}

// Gaps returns the day gaps between consecutive dates.
func Gaps(dates []time.Time) []int {
	if len(dates) < 2 {
		return nil
	}
	gaps := make([]int, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		gaps = append(gaps, model.DaysBetween(dates[i-1], dates[i]))
	}
	return gaps
}

// Mean returns the arithmetic mean of gaps, or 0 for none.
func Mean(gaps []int) float64 {
	if len(gaps) == 0 {
		return 0
	}
	sum := 0
	for _, g := range gaps {
		sum += g
	}
	return float64(sum) / float64(len(gaps))
}

// CadenceOf computes cadence statistics as of today.
func CadenceOf(h FlavorHistory, today time.Time) Cadence {
	dates := h.Until(today)
	c := Cadence{Appearances: len(dates)}
	if len(dates) == 0 {
		return c
	}
	c.Seen = true
	c.AvgGapDays = Mean(Gaps(dates))
	c.DaysSinceLast = model.DaysBetween(dates[len(dates)-1], today)
	return c
}

// Lookup finds the history for flavor by normalized name.
func Lookup(histories []FlavorHistory, flavor string) (FlavorHistory, bool) {
	key := model.NormalizeFlavor(flavor)
	for _, h := range histories {
		if model.NormalizeFlavor(h.Flavor) == key {
			return h, true
		}
	}
	return FlavorHistory{}, false
}

// CadenceFor returns the cadence of flavor at a store, or the zero Cadence
// when the store has never served it.
func CadenceFor(histories []FlavorHistory, flavor string, today time.Time) Cadence {
	h, ok := Lookup(histories, flavor)
	if !ok {
		return Cadence{}
	}
	return CadenceOf(h, today)
}

// PriorCadence computes cadence from appearances strictly before today, with
// DaysSinceLast measured to today. It answers "how long since this store last
// had the flavor" when today's own appearance must not count.
func PriorCadence(h FlavorHistory, today time.Time) Cadence {
	cut := model.Day(today)
	n := sort.Search(len(h.Dates), func(i int) bool { return !h.Dates[i].Before(cut) })
	dates := h.Dates[:n]
	c := Cadence{Appearances: len(dates)}
	if len(dates) == 0 {
		return c
	}
	c.Seen = true
	c.AvgGapDays = Mean(Gaps(dates))
	c.DaysSinceLast = model.DaysBetween(dates[len(dates)-1], cut)
	return c
}
