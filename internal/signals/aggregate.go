package signals

import (
	"sort"
	"time"

	"github.com/sells-group/custard-cli/internal/history"
	"github.com/sells-group/custard-cli/internal/model"
)

// Limit bounds.
const (
	DefaultLimit = 5
	MaxLimit     = 20
)

// ClampLimit applies the default for an unset (zero) limit and clamps the
// rest into [1, MaxLimit].
func ClampLimit(n int) int {
	switch {
	case n == 0:
		return DefaultLimit
	case n < 1:
		return 1
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

// Detect runs every detector over the store's histories as of today, keeps
// the best signal per (flavor, type), and returns them best-first, truncated
// to limit. rare may be nil when today's flavor is unknown.
func Detect(histories []history.FlavorHistory, today time.Time, rare *RareFindInput, limit int) []Signal {
	today = model.Day(today)

	var found []Signal
	for _, h := range histories {
		dates := h.Until(today)
		if len(dates) == 0 {
			continue
		}
		if s, ok := detectOverdue(h.Flavor, dates, today); ok {
			found = append(found, s)
		}
		if s, ok := detectDOW(h.Flavor, dates); ok {
			found = append(found, s)
		}
		if s, ok := detectSeasonal(h.Flavor, dates); ok {
			found = append(found, s)
		}
		if s, ok := detectStreak(h.Flavor, dates, today); ok {
			found = append(found, s)
		}
	}
	if rare != nil {
		if s, ok := detectRareFind(*rare); ok {
			found = append(found, s)
		}
	}

	return rank(found, ClampLimit(limit))
}

type dedupeKey struct {
	flavor string
	typ    Type
}

func rank(found []Signal, limit int) []Signal {
	best := make(map[dedupeKey]Signal, len(found))
	for _, s := range found {
		k := dedupeKey{flavor: model.NormalizeFlavor(s.Flavor), typ: s.Type}
		if cur, ok := best[k]; !ok || s.Score > cur.Score {
			best[k] = s
		}
	}

	out := make([]Signal, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Flavor != out[j].Flavor {
			return out[i].Flavor < out[j].Flavor
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
