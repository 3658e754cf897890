package planner

import (
	"time"

	"github.com/sells-group/custard-cli/internal/certainty"
	"github.com/sells-group/custard-cli/internal/geo"
	"github.com/sells-group/custard-cli/internal/history"
	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/signals"
)

// Source says where a card's flavor came from.
type Source string

const (
	SourceConfirmed Source = "confirmed"
	SourceEstimated Source = "estimated"
	SourceNone      Source = "none"
)

// Bucket is the coarse verdict shown on a card.
type Bucket string

const (
	BucketGreat    Bucket = "great"
	BucketOK       Bucket = "ok"
	BucketPass     Bucket = "pass"
	BucketHardPass Bucket = "hard_pass"
)

// ReasonNoConfirmed marks a candidate with no usable flavor.
const ReasonNoConfirmed = "no_confirmed"

// Pick is a resolved flavor claim for one store and day.
type Pick struct {
	Flavor        string
	Description   string
	Tags          []string
	Cadence       history.Cadence
	Probability   float64
	HistoryDepth  int
	StoresServing int
}

// Candidate is everything the caller resolved for one store. Any pick may be
// nil; a nil Location means the store has no coordinates.
type Candidate struct {
	Store             model.Store
	Location          *geo.Point
	Confirmed         *Pick
	Estimated         *Pick
	Tomorrow          *Pick
	TomorrowConfirmed bool
	Reliability       model.ReliabilityTier
	Signals           []signals.Signal
}

// Breakdown itemizes a card's score.
type Breakdown struct {
	Base         int      `json:"base"`
	Boost        int      `json:"boost"`
	Avoid        int      `json:"avoid"`
	Rarity       int      `json:"rarity"`
	Novelty      int      `json:"novelty"`
	Detour       int      `json:"detour"`
	MatchedBoost []string `json:"matched_boost,omitempty"`
	MatchedAvoid []string `json:"matched_avoid,omitempty"`
}

// Preview is the next-day flavor shown alongside a card.
type Preview struct {
	Flavor       string         `json:"flavor"`
	Source       Source         `json:"source"`
	Certainty    certainty.Tier `json:"certainty"`
	CertaintyCap float64        `json:"certainty_cap"`
	Tags         []string       `json:"tags"`
}

// Card is one scored store.
type Card struct {
	StoreID       string                `json:"store_id"`
	StoreName     string                `json:"store_name"`
	Brand         string                `json:"brand"`
	City          string                `json:"city,omitempty"`
	State         string                `json:"state,omitempty"`
	Flavor        string                `json:"flavor"`
	Description   string                `json:"description,omitempty"`
	Source        Source                `json:"source"`
	Certainty     certainty.Tier        `json:"certainty"`
	CertaintyCap  float64               `json:"certainty_cap"`
	Reliability   model.ReliabilityTier `json:"reliability_tier,omitempty"`
	Tags          []string              `json:"tags"`
	Score         int                   `json:"score"`
	Bucket        Bucket                `json:"bucket"`
	Breakdown     Breakdown             `json:"breakdown"`
	Appearances   int                   `json:"appearances"`
	AvgGapDays    float64               `json:"avg_gap_days"`
	DaysSinceLast *int                  `json:"days_since_last,omitempty"`
	StoresServing int                   `json:"stores_serving,omitempty"`
	DistanceMiles *float64              `json:"distance_miles,omitempty"`
	ETAMinutes    *int                  `json:"eta_minutes,omitempty"`
	DriveBand     string                `json:"drive_band"`
	Tomorrow      *Preview              `json:"tomorrow,omitempty"`
	Signals       []signals.Signal      `json:"signals,omitempty"`
}

// ExcludedCard is a candidate that was routed out before scoring.
type ExcludedCard struct {
	StoreID     string   `json:"store_id"`
	StoreName   string   `json:"store_name"`
	Flavor      string   `json:"flavor,omitempty"`
	Source      Source   `json:"source"`
	Bucket      Bucket   `json:"bucket"`
	ReasonCodes []string `json:"reason_codes"`
}

// LeaderboardEntry is a nearby store outside the requested set.
type LeaderboardEntry struct {
	StoreID       string   `json:"store_id"`
	StoreName     string   `json:"store_name"`
	City          string   `json:"city,omitempty"`
	Flavor        string   `json:"flavor"`
	Tags          []string `json:"tags"`
	Score         int      `json:"score"`
	Bucket        Bucket   `json:"bucket"`
	DistanceMiles float64  `json:"distance_miles"`
}

// Response is the full plan payload.
type Response struct {
	Query             Query              `json:"query"`
	Cards             []Card             `json:"cards"`
	Excluded          []ExcludedCard     `json:"excluded"`
	NearbyLeaderboard []LeaderboardEntry `json:"nearby_leaderboard"`
	FallbackUsed      bool               `json:"fallback_used"`
	GeneratedAt       time.Time          `json:"generated_at"`
}
