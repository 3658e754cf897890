// Package signals mines a store's flavor history for statistically notable,
// explainable patterns: overdue flavors, weekday bias, seasonal
// concentration, active streaks, and today's rarity.
package signals

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Type identifies a detector.
type Type string

const (
	TypeOverdue      Type = "overdue"
	TypeDOWPattern   Type = "dow_pattern"
	TypeSeasonal     Type = "seasonal"
	TypeActiveStreak Type = "active_streak"
	TypeRareFind     Type = "rare_find"
)

// Action is the call-to-action a client should offer for a signal.
type Action string

const (
	ActionAlert      Action = "alert"
	ActionCalendar   Action = "calendar"
	ActionDirections Action = "directions"
)

// Signal is one detected pattern. Score orders signals and is not meant
// for display.
type Signal struct {
	Type        Type     `json:"type"`
	Flavor      string   `json:"flavor_name"`
	Headline    string   `json:"headline"`
	Explanation string   `json:"explanation"`
	Action      Action   `json:"action"`
	Evidence    Evidence `json:"evidence"`
	Score       float64  `json:"score"`
}

// Evidence is the closed set of per-type payloads. Only the types in this
// package implement it.
type Evidence interface {
	signalType() Type
}

// OverdueEvidence backs an overdue signal.
type OverdueEvidence struct {
	Appearances int     `json:"appearances"`
	AvgGapDays  float64 `json:"avg_gap_days"`
	DaysSince   int     `json:"days_since"`
	Ratio       float64 `json:"ratio"`
	LastSeen    string  `json:"last_seen"`
}

// DOWEvidence backs a day-of-week signal. Counts run Monday through Sunday.
type DOWEvidence struct {
	Appearances int     `json:"appearances"`
	ChiSquared  float64 `json:"chi_squared"`
	PeakDay     string  `json:"peak_day"`
	PeakCount   int     `json:"peak_count"`
	Counts      [7]int  `json:"counts"`
}

// SeasonalEvidence backs a seasonal signal.
type SeasonalEvidence struct {
	Appearances   int      `json:"appearances"`
	PeakMonths    []string `json:"peak_months"`
	WindowCount   int      `json:"window_count"`
	Concentration float64  `json:"concentration"`
}

// StreakEvidence backs an active-streak signal.
type StreakEvidence struct {
	Length   int    `json:"length"`
	Since    string `json:"since"`
	LastSeen string `json:"last_seen"`
}

// RareFindEvidence backs a rare-find signal.
type RareFindEvidence struct {
	StoresServing int    `json:"stores_serving"`
	Scope         string `json:"scope"`
}

func (OverdueEvidence) signalType() Type  { return TypeOverdue }
func (DOWEvidence) signalType() Type      { return TypeDOWPattern }
func (SeasonalEvidence) signalType() Type { return TypeSeasonal }
func (StreakEvidence) signalType() Type   { return TypeActiveStreak }
func (RareFindEvidence) signalType() Type { return TypeRareFind }

// UnmarshalJSON decodes the evidence payload into the struct matching the
// signal type.
func (s *Signal) UnmarshalJSON(b []byte) error {
	type plain Signal
	var raw struct {
		plain
		Evidence json.RawMessage `json:"evidence"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(err, "signals: decode signal")
	}
	*s = Signal(raw.plain)
	s.Evidence = nil

	var ev Evidence
	switch s.Type {
	case TypeOverdue:
		ev = &OverdueEvidence{}
	case TypeDOWPattern:
		ev = &DOWEvidence{}
	case TypeSeasonal:
		ev = &SeasonalEvidence{}
	case TypeActiveStreak:
		ev = &StreakEvidence{}
	case TypeRareFind:
		ev = &RareFindEvidence{}
	default:
		return eris.Errorf("signals: unknown signal type %q", s.Type)
	}
	if len(raw.Evidence) == 0 || string(raw.Evidence) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw.Evidence, ev); err != nil {
		return eris.Wrapf(err, "signals: decode %s evidence", s.Type)
	}
	s.Evidence = deref(ev)
	return nil
}

// deref stores evidence by value, matching what the detectors emit.
func deref(ev Evidence) Evidence {
	switch e := ev.(type) {
	case *OverdueEvidence:
		return *e
	case *DOWEvidence:
		return *e
	case *SeasonalEvidence:
		return *e
	case *StreakEvidence:
		return *e
	case *RareFindEvidence:
		return *e
	}
	return ev
}
