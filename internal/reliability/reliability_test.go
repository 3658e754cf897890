package reliability

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/custard-cli/internal/model"
)

var now = time.Date(2026, 3, 30, 15, 0, 0, 0, time.UTC)

func fullWindow(days int, lag time.Duration) []model.Observation {
	today := model.Day(now)
	out := make([]model.Observation, 0, days)
	for i := 0; i < days; i++ {
		d := today.AddDate(0, 0, -i)
		out = append(out, model.Observation{
			StoreID:    "mt-horeb",
			Date:       d,
			Flavor:     "Turtle",
			CapturedAt: d.Add(lag),
		})
	}
	return out
}

func TestCompute_NoObservationsIsNoOpinion(t *testing.T) {
	assert.Nil(t, Compute(Input{StoreID: "verona", Now: now}))

	old := []model.Observation{{StoreID: "verona", Date: now.AddDate(0, 0, -45)}}
	assert.Nil(t, Compute(Input{StoreID: "verona", Observations: old, Now: now}),
		"observations outside the window do not count")
}

func TestCompute_FullWindowFourHourLag(t *testing.T) {
	rec := Compute(Input{StoreID: "mt-horeb", Observations: fullWindow(30, 4*time.Hour), Now: now})
	require.NotNil(t, rec)

	assert.Equal(t, 0.0, rec.MissingWindowRate)
	assert.InDelta(t, 4.0, rec.FreshnessLagAvgHours, 1e-9)
	assert.Equal(t, 0.0, rec.RecoveryTimeAvgHours)
	assert.InDelta(t, 0.95, rec.Score, 1e-9)
	assert.Equal(t, model.ReliabilityConfirmed, rec.Tier)
	assert.Empty(t, rec.Reason)
	assert.Equal(t, 30, rec.WindowDays)
	assert.Equal(t, "Culver's", rec.Brand)
	assert.Equal(t, now, rec.ComputedAt)
}

func TestCompute_MissingRunsAndNoCaptures(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var rows []model.Observation
	for _, offset := range []int{0, 1, 4, 5, 9} {
		rows = append(rows, model.Observation{StoreID: "kopps-greenfield", Date: start.AddDate(0, 0, offset)})
	}

	rec := Compute(Input{
		StoreID:      "kopps-greenfield",
		Observations: rows,
		WindowDays:   10,
		Now:          time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC),
	})
	require.NotNil(t, rec)

	assert.InDelta(t, 0.5, rec.MissingWindowRate, 1e-9)
	assert.InDelta(t, 24.0, rec.FreshnessLagAvgHours, 1e-9, "no capture times defaults to worst case")
	assert.InDelta(t, 60.0, rec.RecoveryTimeAvgHours, 1e-9, "runs of 2 and 3 days average 2.5 days")
	assert.InDelta(t, 0.3929, rec.Score, 1e-9)
	assert.Equal(t, model.ReliabilityUnreliable, rec.Tier)
	assert.Equal(t, "Kopp's", rec.Brand)
	assert.Contains(t, rec.Reason, "missing 50% of window days")
	assert.Contains(t, rec.Reason, "24.0h")
	assert.NotContains(t, rec.Reason, "recover")
}

func TestCompute_TrailingGapCountsAsRun(t *testing.T) {
	rows := fullWindow(30, 2*time.Hour)[5:] // last five days missing
	rec := Compute(Input{StoreID: "verona", Observations: rows, Now: now})
	require.NotNil(t, rec)
	assert.InDelta(t, 5*24.0, rec.RecoveryTimeAvgHours, 1e-9)
	assert.Contains(t, rec.Reason, "5.0 days")
}

func TestCompute_NegativeLagClampsToZero(t *testing.T) {
	rows := fullWindow(30, -36*time.Hour)
	rec := Compute(Input{StoreID: "verona", Observations: rows, Now: now})
	require.NotNil(t, rec)
	assert.Equal(t, 0.0, rec.FreshnessLagAvgHours)
	assert.Equal(t, 1.0, rec.Score)
}

func TestTierFor_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  model.ReliabilityTier
	}{
		{1.0, model.ReliabilityConfirmed},
		{0.7, model.ReliabilityConfirmed},
		{0.6999, model.ReliabilityWatch},
		{0.4, model.ReliabilityWatch},
		{0.3999, model.ReliabilityUnreliable},
		{0, model.ReliabilityUnreliable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.score), "score %v", tt.score)
	}
}

func TestCompute_ScoreAlwaysInRange(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	today := model.Day(now)
	for i := 0; i < 200; i++ {
		var rows []model.Observation
		for d := 0; d < 40; d++ {
			if r.IntN(3) == 0 {
				continue
			}
			date := today.AddDate(0, 0, -d)
			o := model.Observation{StoreID: "s", Date: date}
			if r.IntN(4) > 0 {
				o.CapturedAt = date.Add(time.Duration(r.IntN(96)-24) * time.Hour)
			}
			rows = append(rows, o)
		}
		rec := Compute(Input{StoreID: "s", Observations: rows, WindowDays: 1 + r.IntN(60), Now: now})
		if rec == nil {
			continue
		}
		assert.GreaterOrEqual(t, rec.Score, 0.0)
		assert.LessOrEqual(t, rec.Score, 1.0)
		assert.Equal(t, TierFor(rec.Score), rec.Tier)
	}
}
