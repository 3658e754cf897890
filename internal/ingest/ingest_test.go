package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/custard-cli/internal/model"
)

func TestReadObservations(t *testing.T) {
	in := `store_slug,flavor_date,title,description,source,fetched_at
mt-horeb,2026-03-01,Turtle,"Vanilla custard with pecans",wayback,2026-03-01T09:15:00
kopps-greenfield,2026-03-01,Grasshopper Fudge,,kopps,2026-03-01T06:00:00Z
,2026-03-01,Orphan,,,
verona,2026-03-02,Mint Explosion,,,
`
	obs, skipped, err := ReadObservations(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, obs, 3)

	assert.Equal(t, "mt-horeb", obs[0].StoreID)
	assert.Equal(t, "Culver's", obs[0].Brand)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), obs[0].Date)
	assert.Equal(t, "Vanilla custard with pecans", obs[0].Description)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC), obs[0].CapturedAt)

	assert.Equal(t, "Kopp's", obs[1].Brand)
	assert.False(t, obs[2].HasCapture())
}

func TestReadObservations_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"bad date", "store_slug,flavor_date,title\nmt-horeb,03/01/2026,Turtle\n"},
		{"bad timestamp", "store_slug,flavor_date,title,fetched_at\nmt-horeb,2026-03-01,Turtle,yesterday\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadObservations(strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestReadStores(t *testing.T) {
	in := `id,brand,name,city,state,lat,lon
mt-horeb,,Mt. Horeb,Mount Horeb,WI,43.0086,-89.7387
gilles,,,Milwaukee,WI,,
`
	stores, err := ReadStores(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, stores, 2)

	assert.True(t, stores[0].HasLocation)
	assert.InDelta(t, 43.0086, stores[0].Lat, 1e-9)
	assert.Equal(t, "Culver's", stores[0].Brand)

	assert.False(t, stores[1].HasLocation)
	assert.Equal(t, "Gille's", stores[1].Brand)
	assert.Equal(t, "gilles", stores[1].Name)
}

func TestReadStores_BadCoordinate(t *testing.T) {
	_, err := ReadStores(strings.NewReader("id,lat,lon\nmt-horeb,north,-89.7\n"))
	assert.Error(t, err)
}

func TestReadForecasts(t *testing.T) {
	in := `{
  "generated_at": "2026-03-01T05:00:00",
  "target_date": "2026-03-02",
  "model": "frequency_recency_v1",
  "forecasts": {
    "verona": {"predictions": [
      {"flavor": "Turtle", "probability": 0.04},
      {"flavor": "Mint Explosion", "probability": 0.09}
    ]},
    "mt-horeb": {"history_depth": 120, "days": [
      {"date": "2026-03-02", "predictions": [{"flavor": "Caramel Cashew", "probability": 0.12}]},
      {"date": "2026-03-03", "predictions": [{"flavor": "Turtle", "probability": 0.08}]}
    ]}
  }
}`
	preds, err := ReadForecasts(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, preds, 4)

	assert.Equal(t, "mt-horeb", preds[0].StoreID)
	assert.Equal(t, 120, preds[0].HistoryDepth)
	assert.Equal(t, "2026-03-03", model.FormatDate(preds[1].Date))

	assert.Equal(t, "verona", preds[2].StoreID)
	assert.Equal(t, "Mint Explosion", preds[2].Flavor)
	assert.Equal(t, 1, preds[2].Rank)
	assert.Equal(t, 2, preds[3].Rank)
	assert.Equal(t, "2026-03-02", model.FormatDate(preds[2].Date))
	assert.Equal(t, "frequency_recency_v1", preds[2].Model)
	assert.Equal(t, time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC), preds[2].GeneratedAt)
}

func TestReadForecasts_SingleDayNeedsTargetDate(t *testing.T) {
	_, err := ReadForecasts(strings.NewReader(`{"forecasts": {"verona": {"predictions": [{"flavor": "Turtle", "probability": 0.1}]}}}`))
	assert.Error(t, err)
}
