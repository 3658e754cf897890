// Package certainty decides how much a flavor claim can be trusted and caps
// any score built on top of it accordingly.
package certainty

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/custard-cli/internal/model"
)

// Tier is an ordered trust level: None < Estimated < Watch < Confirmed.
type Tier int

const (
	None Tier = iota
	Estimated
	Watch
	Confirmed
)

// Score caps per tier. Estimated claims scale with forecast probability.
const (
	ConfirmedCap      = 1.0
	WatchCap          = 0.7
	EstimatedCap      = 0.5
	EstimatedCapScale = 5.0
)

var tierNames = map[Tier]string{
	None:      "none",
	Estimated: "estimated",
	Watch:     "watch",
	Confirmed: "confirmed",
}

func (t Tier) String() string {
	if s, ok := tierNames[t]; ok {
		return s
	}
	return tierNames[None]
}

// ParseTier maps a tier name back to its Tier. Unknown names are None.
func ParseTier(s string) Tier {
	for t, name := range tierNames {
		if name == s {
			return t
		}
	}
	return None
}

// MarshalJSON encodes the tier as its name.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a tier name.
func (t *Tier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return eris.Wrap(err, "certainty: decode tier")
	}
	*t = ParseTier(s)
	return nil
}

// Determine classifies a flavor claim. A confirmed claim is downgraded to
// Watch when the store's schedule source is on watch or unreliable; a store
// with no reliability opinion keeps Confirmed. Any forecast without a
// confirmation is Estimated; probability and history depth do not change the
// tier today.
func Determine(hasConfirmed, hasForecast bool, probability float64, historyDepth int, reliability model.ReliabilityTier) Tier {
	switch {
	case hasConfirmed:
		switch reliability {
		case model.ReliabilityWatch, model.ReliabilityUnreliable:
			return Watch
		default:
			return Confirmed
		}
	case hasForecast:
		return Estimated
	default:
		return None
	}
}

// Cap returns the maximum score multiplier for a tier. Probability only
// matters for Estimated and is clamped into [0, 1].
func Cap(t Tier, probability float64) float64 {
	switch t {
	case Confirmed:
		return ConfirmedCap
	case Watch:
		return WatchCap
	case Estimated:
		p := math.Max(0, math.Min(probability, 1))
		return math.Min(EstimatedCap, p*EstimatedCapScale)
	default:
		return 0
	}
}
