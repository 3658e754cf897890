package planner

import "sort"

// Sort orders cards in place. Ties keep their input order.
func Sort(cards []Card, mode SortMode) {
	switch mode {
	case SortDetour:
		sort.SliceStable(cards, func(i, j int) bool {
			return lessOptional(cards[i].DistanceMiles, cards[j].DistanceMiles)
		})
	case SortRarity:
		sort.SliceStable(cards, func(i, j int) bool {
			return cards[i].AvgGapDays > cards[j].AvgGapDays
		})
	case SortETA:
		sort.SliceStable(cards, func(i, j int) bool {
			return lessOptional(cards[i].ETAMinutes, cards[j].ETAMinutes)
		})
	default:
		sort.SliceStable(cards, func(i, j int) bool {
			if cards[i].Score != cards[j].Score {
				return cards[i].Score > cards[j].Score
			}
			return cards[i].CertaintyCap > cards[j].CertaintyCap
		})
	}
}

// lessOptional orders known values ascending with unknown values last.
func lessOptional[T int | float64](a, b *T) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return *a < *b
	}
}
