package model

import "time"

// ReliabilityTier labels how trustworthy a store's schedule source has been.
type ReliabilityTier string

const (
	ReliabilityConfirmed  ReliabilityTier = "confirmed"
	ReliabilityWatch      ReliabilityTier = "watch"
	ReliabilityUnreliable ReliabilityTier = "unreliable"
	// ReliabilityUnknown means no opinion: the store had no history to judge.
	ReliabilityUnknown ReliabilityTier = ""
)

// ReliabilityRecord is the computed trust score for one store's schedule data.
type ReliabilityRecord struct {
	StoreID              string          `json:"store_id"`
	Brand                string          `json:"brand"`
	FreshnessLagAvgHours float64         `json:"freshness_lag_avg_hours"`
	MissingWindowRate    float64         `json:"missing_window_rate"`
	RecoveryTimeAvgHours float64         `json:"recovery_time_avg_hours"`
	Score                float64         `json:"score"`
	Tier                 ReliabilityTier `json:"tier"`
	Reason               string          `json:"reason,omitempty"`
	ComputedAt           time.Time       `json:"computed_at"`
	WindowDays           int             `json:"window_days"`
}
