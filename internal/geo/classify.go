// Package geo provides location parsing, great-circle distances, and the
// EWKB encoding used for store coordinates.
package geo

// Drive-band classification of a trip leg.
const (
	BandNearby  = "nearby"
	BandShort   = "short_drive"
	BandLong    = "long_drive"
	BandUnknown = "unknown"
)

// Distance thresholds for classification (miles).
const (
	nearbyMilesThreshold = 3.0
	shortMilesThreshold  = 10.0
)

// Classify returns the drive band for a distance in miles. A negative
// distance means the distance is unknown.
func Classify(miles float64) string {
	switch {
	case miles < 0:
		return BandUnknown
	case miles <= nearbyMilesThreshold:
		return BandNearby
	case miles <= shortMilesThreshold:
		return BandShort
	default:
		return BandLong
	}
}
