// Package reliability scores how trustworthy a store's published flavor
// schedule has been over a trailing window of observations.
package reliability

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sells-group/custard-cli/internal/model"
)

// DefaultWindowDays is the trailing window used when none is configured.
const DefaultWindowDays = 30

// Score weights and normalization horizons.
const (
	missingWeight  = 0.4
	lagWeight      = 0.3
	recoveryWeight = 0.3

	lagHorizonHours     = 24.0
	recoveryHorizonDays = 7.0
)

// Tier thresholds.
const (
	ConfirmedThreshold = 0.7
	WatchThreshold     = 0.4
)

// Secondary breach thresholds reported in the reason text.
const (
	missingReasonRate  = 0.3
	lagReasonHours     = 12.0
	recoveryReasonDays = 3.0
)

// Input carries one store's observations and the window to judge them over.
type Input struct {
	StoreID      string
	Brand        string
	Observations []model.Observation
	// WindowDays defaults to DefaultWindowDays when <= 0.
	WindowDays int
	// Now fixes the window end; the window ends on Now's UTC calendar day.
	Now time.Time
}

// Compute builds a ReliabilityRecord from the observations that fall in the
// window. It returns nil when the window holds no observations: absence of
// history is "no opinion", never zero reliability.
func Compute(in Input) *model.ReliabilityRecord {
	window := in.WindowDays
	if window <= 0 {
		window = DefaultWindowDays
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := model.Day(now)
	start := today.AddDate(0, 0, -(window - 1))

	present := make(map[time.Time]struct{})
	var lagSum float64
	var lagCount int
	for _, o := range in.Observations {
		d := model.Day(o.Date)
		if d.Before(start) || d.After(today) {
			continue
		}
		present[d] = struct{}{}
		if o.HasCapture() {
			lagSum += math.Max(0, o.CapturedAt.Sub(d).Hours())
			lagCount++
		}
	}
	if len(present) == 0 {
		return nil
	}

	missingRate := float64(window-len(present)) / float64(window)

	lagAvg := lagHorizonHours
	if lagCount > 0 {
		lagAvg = lagSum / float64(lagCount)
	}

	recoveryDays := meanMissingRun(start, window, present)

	lagNorm := math.Min(lagAvg/lagHorizonHours, 1)
	recoveryNorm := math.Min(recoveryDays/recoveryHorizonDays, 1)
	penalty := missingWeight*missingRate + lagWeight*lagNorm + recoveryWeight*recoveryNorm
	score := round(clamp(1-penalty, 0, 1), 4)

	brand := in.Brand
	if brand == "" {
		brand = model.InferBrand(in.StoreID)
	}

	return &model.ReliabilityRecord{
		StoreID:              in.StoreID,
		Brand:                brand,
		FreshnessLagAvgHours: round(lagAvg, 2),
		MissingWindowRate:    round(missingRate, 4),
		RecoveryTimeAvgHours: round(recoveryDays*24, 2),
		Score:                score,
		Tier:                 TierFor(score),
		Reason:               reason(missingRate, lagAvg, recoveryDays),
		ComputedAt:           now.UTC(),
		WindowDays:           window,
	}
}

// TierFor maps a score onto its tier. Every score lands in exactly one tier.
func TierFor(score float64) model.ReliabilityTier {
	switch {
	case score >= ConfirmedThreshold:
		return model.ReliabilityConfirmed
	case score >= WatchThreshold:
		return model.ReliabilityWatch
	default:
		return model.ReliabilityUnreliable
	}
}

// meanMissingRun walks the window day by day and averages the length, in
// days, of each maximal run of missing dates. Zero when nothing is missing.
func meanMissingRun(start time.Time, window int, present map[time.Time]struct{}) float64 {
	var runs, total, cur int
	for i := 0; i < window; i++ {
		if _, ok := present[start.AddDate(0, 0, i)]; ok {
			if cur > 0 {
				runs++
				total += cur
				cur = 0
			}
			continue
		}
		cur++
	}
	if cur > 0 {
		runs++
		total += cur
	}
	if runs == 0 {
		return 0
	}
	return float64(total) / float64(runs)
}

func reason(missingRate, lagHours, recoveryDays float64) string {
	var clauses []string
	if missingRate > missingReasonRate {
		clauses = append(clauses, fmt.Sprintf("missing %.0f%% of window days", missingRate*100))
	}
	if lagHours > lagReasonHours {
		clauses = append(clauses, fmt.Sprintf("schedule captured %.1fh after day start on average", lagHours))
	}
	if recoveryDays > recoveryReasonDays {
		clauses = append(clauses, fmt.Sprintf("gaps take %.1f days to recover on average", recoveryDays))
	}
	return strings.Join(clauses, "; ")
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
