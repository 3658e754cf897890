package planner

import (
	"math"
	"sort"

	"github.com/sells-group/custard-cli/internal/certainty"
	"github.com/sells-group/custard-cli/internal/geo"
	"github.com/sells-group/custard-cli/internal/tags"
)

// Scoring weights.
const (
	BaseScore       = 50
	BoostPerTag     = 12
	AvoidPerTag     = 8
	RarityGapDays   = 7.0
	MaxRarityBonus  = 18
	NoveltyBonus    = 10
	NoveltyDays     = 30
	DetourPerMile   = 1.5
	MaxDetour       = 20
	MinScore        = 0
	MaxScore        = 100
	GreatThreshold  = 70
	OKThreshold     = 45
	ETAMinutesPerMi = 2.2
	ETAFixedMinutes = 2
	MinETAMinutes   = 3
)

// Result is the scored batch.
type Result struct {
	Cards        []Card
	Excluded     []ExcludedCard
	FallbackUsed bool
}

// Plan scores every candidate. Without an explicit request for estimates it
// first runs confirmed-only; if that yields no confirmed card at all, the
// whole batch is re-run with estimates allowed and that result is used.
func Plan(q Query, candidates []Candidate) Result {
	res := run(q, candidates, q.AllowEstimated)
	if !q.AllowEstimated && countSource(res.Cards, SourceConfirmed) == 0 {
		res = run(q, candidates, true)
		res.FallbackUsed = true
	}
	Sort(res.Cards, q.Sort)
	return res
}

func run(q Query, candidates []Candidate, allowEstimated bool) Result {
	res := Result{Cards: []Card{}, Excluded: []ExcludedCard{}}
	for _, c := range candidates {
		card, excluded := scoreCandidate(q, c, allowEstimated)
		if excluded != nil {
			res.Excluded = append(res.Excluded, *excluded)
			continue
		}
		res.Cards = append(res.Cards, card)
	}
	return res
}

func countSource(cards []Card, src Source) int {
	n := 0
	for _, c := range cards {
		if c.Source == src {
			n++
		}
	}
	return n
}

// resolve picks the flavor a candidate is judged on.
func resolve(c Candidate, allowEstimated bool) (*Pick, Source) {
	if c.Confirmed != nil && c.Confirmed.Flavor != "" {
		return c.Confirmed, SourceConfirmed
	}
	if allowEstimated && c.Estimated != nil && c.Estimated.Flavor != "" {
		return c.Estimated, SourceEstimated
	}
	return nil, SourceNone
}

func scoreCandidate(q Query, c Candidate, allowEstimated bool) (Card, *ExcludedCard) {
	pick, src := resolve(c, allowEstimated)
	if pick == nil {
		return Card{}, &ExcludedCard{
			StoreID:     c.Store.ID,
			StoreName:   c.Store.Name,
			Source:      SourceNone,
			Bucket:      BucketPass,
			ReasonCodes: []string{ReasonNoConfirmed},
		}
	}

	if hits := hardExcludeHits(q.ExcludeTags, pick.Tags); len(hits) > 0 {
		return Card{}, &ExcludedCard{
			StoreID:     c.Store.ID,
			StoreName:   c.Store.Name,
			Flavor:      pick.Flavor,
			Source:      src,
			Bucket:      BucketHardPass,
			ReasonCodes: hits,
		}
	}

	matchedBoost := intersect(q.BoostTags, pick.Tags)
	matchedAvoid := intersect(q.AvoidTags, pick.Tags)
	b := Breakdown{
		Base:         BaseScore,
		Boost:        BoostPerTag * len(matchedBoost),
		Avoid:        AvoidPerTag * len(matchedAvoid),
		Rarity:       clampInt(roundInt(pick.Cadence.AvgGapDays/RarityGapDays), 0, MaxRarityBonus),
		MatchedBoost: matchedBoost,
		MatchedAvoid: matchedAvoid,
	}
	if !pick.Cadence.Seen || pick.Cadence.DaysSinceLast >= NoveltyDays {
		b.Novelty = NoveltyBonus
	}

	card := Card{
		StoreID:       c.Store.ID,
		StoreName:     c.Store.Name,
		Brand:         c.Store.Brand,
		City:          c.Store.City,
		State:         c.Store.State,
		Flavor:        pick.Flavor,
		Description:   pick.Description,
		Source:        src,
		Reliability:   c.Reliability,
		Tags:          nonNil(pick.Tags),
		Appearances:   pick.Cadence.Appearances,
		AvgGapDays:    pick.Cadence.AvgGapDays,
		StoresServing: pick.StoresServing,
		DriveBand:     geo.BandUnknown,
		Signals:       c.Signals,
	}
	if pick.Cadence.Seen {
		d := pick.Cadence.DaysSinceLast
		card.DaysSinceLast = &d
	}

	if miles, ok := distance(q.Location, c.Location); ok {
		b.Detour = clampInt(roundInt(miles*DetourPerMile), 0, MaxDetour)
		eta := max(MinETAMinutes, roundInt(miles*ETAMinutesPerMi+ETAFixedMinutes))
		card.DistanceMiles = &miles
		card.ETAMinutes = &eta
		card.DriveBand = geo.Classify(miles)
	}

	card.Breakdown = b
	card.Score = clampInt(b.Base+b.Boost+b.Rarity+b.Novelty-b.Avoid-b.Detour, MinScore, MaxScore)
	card.Bucket = bucketFor(card.Score)

	hasForecast := c.Estimated != nil && c.Estimated.Flavor != ""
	card.Certainty = certainty.Determine(src == SourceConfirmed, hasForecast, pick.Probability, pick.HistoryDepth, c.Reliability)
	card.CertaintyCap = certainty.Cap(card.Certainty, pick.Probability)

	if q.IncludeTomorrow && c.Tomorrow != nil && c.Tomorrow.Flavor != "" {
		card.Tomorrow = preview(c)
	}
	return card, nil
}

func preview(c Candidate) *Preview {
	p := &Preview{Flavor: c.Tomorrow.Flavor, Tags: nonNil(c.Tomorrow.Tags)}
	if c.TomorrowConfirmed {
		p.Source = SourceConfirmed
		p.Certainty = certainty.Determine(true, false, 0, 0, c.Reliability)
	} else {
		p.Source = SourceEstimated
		p.Certainty = certainty.Determine(false, true, c.Tomorrow.Probability, c.Tomorrow.HistoryDepth, c.Reliability)
	}
	p.CertaintyCap = certainty.Cap(p.Certainty, c.Tomorrow.Probability)
	return p
}

func bucketFor(score int) Bucket {
	switch {
	case score >= GreatThreshold:
		return BucketGreat
	case score >= OKThreshold:
		return BucketOK
	default:
		return BucketPass
	}
}

func distance(origin, store *geo.Point) (float64, bool) {
	if origin == nil || store == nil {
		return 0, false
	}
	return geo.Miles(*origin, *store), true
}

// hardExcludeHits returns exclude ∩ flavorTags ∩ the hard-exclude set, sorted.
func hardExcludeHits(exclude, flavorTags []string) []string {
	var hits []string
	for _, t := range intersect(exclude, flavorTags) {
		if tags.IsHardExclude(t) {
			hits = append(hits, t)
		}
	}
	return hits
}

// intersect returns the distinct members of a also in b, sorted.
func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	inB := make(map[string]bool, len(b))
	for _, t := range b {
		inB[t] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range a {
		if inB[t] && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func roundInt(v float64) int {
	return int(math.Round(v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
