package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/custard-cli/internal/certainty"
	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/planner"
)

// TodayResponse is one store's flavor claim for a day with its certainty.
type TodayResponse struct {
	StoreID      string                `json:"store_id"`
	Date         string                `json:"date"`
	Flavor       string                `json:"flavor,omitempty"`
	Description  string                `json:"description,omitempty"`
	Source       planner.Source        `json:"source"`
	Certainty    certainty.Tier        `json:"certainty"`
	CertaintyCap float64               `json:"certainty_cap"`
	Probability  *float64              `json:"probability,omitempty"`
	Reliability  model.ReliabilityTier `json:"reliability_tier,omitempty"`
	Tags         []string              `json:"tags"`
}

// Today resolves what a store is serving on date (zero means today): the
// confirmed observation when there is one, else the top forecast.
func (s *Service) Today(ctx context.Context, storeID string, date time.Time) (*TodayResponse, error) {
	if date.IsZero() {
		date = s.today()
	}
	date = model.Day(date)

	if err := s.checkAvailable(ctx); err != nil {
		return nil, err
	}
	if _, err := s.lookupStore(ctx, storeID); err != nil {
		return nil, err
	}

	var (
		obs   []model.Observation
		preds []model.Prediction
		tier  model.ReliabilityTier
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		obs, _ = fetch(gctx, s, "observations", func(ctx context.Context) ([]model.Observation, error) {
			return s.store.ObservationsForStore(ctx, storeID, date, date)
		})
		return nil
	})
	g.Go(func() error {
		preds, _ = fetch(gctx, s, "forecasts", func(ctx context.Context) ([]model.Prediction, error) {
			return s.store.ForecastsFor(ctx, storeID, date)
		})
		return nil
	})
	g.Go(func() error {
		tier = s.reliabilityTier(gctx, storeID)
		return nil
	})
	_ = g.Wait()

	resp := &TodayResponse{
		StoreID:     storeID,
		Date:        model.FormatDate(date),
		Source:      planner.SourceNone,
		Reliability: tier,
		Tags:        []string{},
	}

	confirmed := confirmedOn(obs, date)
	top := model.TopPrediction(preds)
	var prob float64
	var depth int
	switch {
	case confirmed != nil:
		resp.Flavor = confirmed.Flavor
		resp.Description = confirmed.Description
		resp.Source = planner.SourceConfirmed
	case top != nil:
		resp.Flavor = top.Flavor
		resp.Source = planner.SourceEstimated
		prob, depth = top.Probability, top.HistoryDepth
		resp.Probability = &prob
	}
	if resp.Flavor != "" {
		resp.Tags = append(resp.Tags, s.tags.Classify(resp.Flavor, resp.Description)...)
	}

	resp.Certainty = certainty.Determine(confirmed != nil, top != nil, prob, depth, tier)
	resp.CertaintyCap = certainty.Cap(resp.Certainty, prob)
	return resp, nil
}
