package ingest

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/custard-cli/internal/model"
)

// forecastFile is the batch forecast output. Each store entry is either
// multi-day ({"days": [...]}) or single-day ({"predictions": [...]}) for
// the file's target date.
type forecastFile struct {
	GeneratedAt string                   `json:"generated_at"`
	TargetDate  string                   `json:"target_date"`
	Model       string                   `json:"model"`
	Forecasts   map[string]storeForecast `json:"forecasts"`
}

type storeForecast struct {
	HistoryDepth int           `json:"history_depth"`
	Days         []dayForecast `json:"days"`
	Predictions  []prediction  `json:"predictions"`
}

type dayForecast struct {
	Date        string       `json:"date"`
	Predictions []prediction `json:"predictions"`
}

type prediction struct {
	Flavor      string  `json:"flavor"`
	Probability float64 `json:"probability"`
}

// ReadForecasts decodes a batch forecast file into ranked predictions.
// Rank follows descending probability within a store and date.
func ReadForecasts(r io.Reader) ([]model.Prediction, error) {
	var f forecastFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, eris.Wrap(err, "ingest: decode forecast file")
	}
	generated, err := parseTimestamp(f.GeneratedAt)
	if err != nil {
		return nil, err
	}

	slugs := make([]string, 0, len(f.Forecasts))
	for slug := range f.Forecasts {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	var out []model.Prediction
	for _, slug := range slugs {
		sf := f.Forecasts[slug]
		days := sf.Days
		if len(days) == 0 && len(sf.Predictions) > 0 {
			if f.TargetDate == "" {
				return nil, eris.Errorf("ingest: store %s has single-day predictions but the file has no target_date", slug)
			}
			days = []dayForecast{{Date: f.TargetDate, Predictions: sf.Predictions}}
		}
		for _, d := range days {
			date, err := model.ParseDate(strings.TrimSpace(d.Date))
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: store %s", slug)
			}
			preds := append([]prediction(nil), d.Predictions...)
			sort.SliceStable(preds, func(i, j int) bool { return preds[i].Probability > preds[j].Probability })
			for i, p := range preds {
				if strings.TrimSpace(p.Flavor) == "" {
					continue
				}
				out = append(out, model.Prediction{
					StoreID:      slug,
					Date:         date,
					Flavor:       strings.TrimSpace(p.Flavor),
					Probability:  p.Probability,
					Rank:         i + 1,
					HistoryDepth: sf.HistoryDepth,
					Model:        f.Model,
					GeneratedAt:  generated,
				})
			}
		}
	}
	return out, nil
}
