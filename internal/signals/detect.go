package signals

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sells-group/custard-cli/internal/history"
	"github.com/sells-group/custard-cli/internal/model"
)

// Minimum-evidence gates and firing thresholds. The chi-squared critical
// value and the seasonal window assume exactly 7 weekday and 12 month buckets.
const (
	MinOverdueAppearances = 3
	OverdueRatio          = 1.5
	MinOverdueAvgGapDays  = 2.0

	MinDOWAppearances     = 7
	ChiSquaredCriticalDF6 = 12.592

	MinSeasonalAppearances = 3
	MinSeasonalFireCount   = 6
	SeasonalWindowMonths   = 3
	SeasonalConcentration  = 0.5

	MinStreakAppearances = 2
	StreakGapDays        = 1.5
	MinStreakLength      = 2

	RareFindMaxStores = 3
)

var weekdayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func detectOverdue(flavor string, dates []time.Time, today time.Time) (Signal, bool) {
	if len(dates) < MinOverdueAppearances {
		return Signal{}, false
	}
	avgGap := history.Mean(history.Gaps(dates))
	if avgGap < MinOverdueAvgGapDays {
		return Signal{}, false
	}
	last := dates[len(dates)-1]
	daysSince := model.DaysBetween(last, today)
	ratio := float64(daysSince) / avgGap
	if ratio < OverdueRatio {
		return Signal{}, false
	}

	return Signal{
		Type:     TypeOverdue,
		Flavor:   flavor,
		Headline: fmt.Sprintf("%s is overdue", flavor),
		Explanation: fmt.Sprintf("%s usually returns every %.1f days but was last seen %d days ago (%.1fx its normal gap).",
			flavor, avgGap, daysSince, ratio),
		Action: ActionAlert,
		Evidence: OverdueEvidence{
			Appearances: len(dates),
			AvgGapDays:  round(avgGap, 1),
			DaysSince:   daysSince,
			Ratio:       round(ratio, 2),
			LastSeen:    model.FormatDate(last),
		},
		Score: ratio,
	}, true
}

func detectDOW(flavor string, dates []time.Time) (Signal, bool) {
	n := len(dates)
	if n < MinDOWAppearances {
		return Signal{}, false
	}
	var counts [7]int
	for _, d := range dates {
		counts[(int(d.Weekday())+6)%7]++
	}
	expected := float64(n) / 7
	var chi float64
	peak := 0
	for i, c := range counts {
		diff := float64(c) - expected
		chi += diff * diff / expected
		if c > counts[peak] {
			peak = i
		}
	}
	if chi < ChiSquaredCriticalDF6 {
		return Signal{}, false
	}

	day := weekdayNames[peak]
	return Signal{
		Type:     TypeDOWPattern,
		Flavor:   flavor,
		Headline: fmt.Sprintf("%s favors %ss", flavor, day),
		Explanation: fmt.Sprintf("%d of %s's %d appearances fell on a %s, far more than an even spread would give.",
			counts[peak], flavor, n, day),
		Action: ActionCalendar,
		Evidence: DOWEvidence{
			Appearances: n,
			ChiSquared:  round(chi, 2),
			PeakDay:     day,
			PeakCount:   counts[peak],
			Counts:      counts,
		},
		Score: chi,
	}, true
}

func detectSeasonal(flavor string, dates []time.Time) (Signal, bool) {
	n := len(dates)
	if n < MinSeasonalAppearances {
		return Signal{}, false
	}
	var counts [12]int
	for _, d := range dates {
		counts[int(d.Month())-1]++
	}
	bestStart, bestSum := 0, 0
	for start := 0; start < 12; start++ {
		sum := 0
		for i := 0; i < SeasonalWindowMonths; i++ {
			sum += counts[(start+i)%12]
		}
		if sum > bestSum {
			bestStart, bestSum = start, sum
		}
	}
	concentration := float64(bestSum) / float64(n)
	if n < MinSeasonalFireCount || concentration < SeasonalConcentration {
		return Signal{}, false
	}

	months := make([]string, 0, SeasonalWindowMonths)
	for i := 0; i < SeasonalWindowMonths; i++ {
		months = append(months, monthNames[(bestStart+i)%12])
	}
	span := months[0] + "–" + months[len(months)-1]
	return Signal{
		Type:     TypeSeasonal,
		Flavor:   flavor,
		Headline: fmt.Sprintf("%s peaks %s", flavor, span),
		Explanation: fmt.Sprintf("%.0f%% of %s's %d appearances fall in %s.",
			concentration*100, flavor, n, strings.Join(months, ", ")),
		Action: ActionCalendar,
		Evidence: SeasonalEvidence{
			Appearances:   n,
			PeakMonths:    months,
			WindowCount:   bestSum,
			Concentration: round(concentration, 3),
		},
		Score: concentration,
	}, true
}

func detectStreak(flavor string, dates []time.Time, today time.Time) (Signal, bool) {
	n := len(dates)
	if n < MinStreakAppearances {
		return Signal{}, false
	}
	last := dates[n-1]
	if today.Sub(last).Hours()/24 > StreakGapDays {
		return Signal{}, false
	}
	length := 1
	for i := n - 1; i > 0; i-- {
		if dates[i].Sub(dates[i-1]).Hours()/24 > StreakGapDays {
			break
		}
		length++
	}
	if length < MinStreakLength {
		return Signal{}, false
	}

	since := dates[n-length]
	return Signal{
		Type:     TypeActiveStreak,
		Flavor:   flavor,
		Headline: fmt.Sprintf("%s is on a %d-day run", flavor, length),
		Explanation: fmt.Sprintf("%s has been served %d days in a row since %s.",
			flavor, length, model.FormatDate(since)),
		Action: ActionDirections,
		Evidence: StreakEvidence{
			Length:   length,
			Since:    model.FormatDate(since),
			LastSeen: model.FormatDate(last),
		},
		Score: float64(length),
	}, true
}

// RareFindInput describes today's confirmed flavor and how many stores in
// the caller's scope, this one included, are serving it.
type RareFindInput struct {
	Flavor        string
	StoresServing int
	Scope         string
}

func detectRareFind(in RareFindInput) (Signal, bool) {
	if in.Flavor == "" || in.StoresServing < 1 || in.StoresServing > RareFindMaxStores {
		return Signal{}, false
	}
	scope := in.Scope
	if scope == "" {
		scope = "last_24h"
	}
	noun := "stores are"
	if in.StoresServing == 1 {
		noun = "store is"
	}
	return Signal{
		Type:        TypeRareFind,
		Flavor:      in.Flavor,
		Headline:    fmt.Sprintf("%s is a rare find today", in.Flavor),
		Explanation: fmt.Sprintf("Only %d %s serving %s today.", in.StoresServing, noun, in.Flavor),
		Action:      ActionDirections,
		Evidence:    RareFindEvidence{StoresServing: in.StoresServing, Scope: scope},
		Score:       1 / float64(in.StoresServing),
	}, true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
