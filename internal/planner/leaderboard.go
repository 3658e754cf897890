package planner

import (
	"sort"

	"github.com/sells-group/custard-cli/internal/geo"
)

// Leaderboard defaults.
const (
	DefaultLeaderboardLimit = 5
	LeaderboardRadiusMiles  = 15.0
)

// Leaderboard scores nearby stores that were not part of the request. Only
// confirmed flavors are considered, hard excludes are dropped, and stores
// without coordinates or beyond the radius are skipped. Best score first,
// then nearest.
func Leaderboard(q Query, nearby []Candidate, origin geo.Point, limit int) []LeaderboardEntry {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	requested := make(map[string]bool, len(q.StoreIDs))
	for _, id := range q.StoreIDs {
		requested[id] = true
	}

	scoring := q
	scoring.Location = &origin

	out := []LeaderboardEntry{}
	for _, c := range nearby {
		if requested[c.Store.ID] || c.Location == nil {
			continue
		}
		if geo.Miles(origin, *c.Location) > LeaderboardRadiusMiles {
			continue
		}
		card, excluded := scoreCandidate(scoring, c, false)
		if excluded != nil {
			continue
		}
		out = append(out, LeaderboardEntry{
			StoreID:       card.StoreID,
			StoreName:     card.StoreName,
			City:          card.City,
			Flavor:        card.Flavor,
			Tags:          card.Tags,
			Score:         card.Score,
			Bucket:        card.Bucket,
			DistanceMiles: *card.DistanceMiles,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DistanceMiles < out[j].DistanceMiles
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Centroid returns the mean location of the candidates that have one.
func Centroid(candidates []Candidate) (geo.Point, bool) {
	var lat, lon float64
	n := 0
	for _, c := range candidates {
		if c.Location == nil {
			continue
		}
		lat += c.Location.Lat
		lon += c.Location.Lon
		n++
	}
	if n == 0 {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat / float64(n), Lon: lon / float64(n)}, true
}
