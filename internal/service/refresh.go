package service

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/reliability"
	"github.com/sells-group/custard-cli/internal/resilience"
	"github.com/sells-group/custard-cli/internal/store"
	"github.com/sells-group/custard-cli/internal/telemetry"
)

// RefreshResult is the outcome of recomputing every store's reliability.
type RefreshResult struct {
	Records []model.ReliabilityRecord
	// Previous holds the tier each store had before the refresh.
	Previous map[string]model.ReliabilityTier
	// NoOpinion lists stores with no observations in the window.
	NoOpinion  []string
	ComputedAt time.Time
}

// TierChange is a store whose tier moved during a refresh.
type TierChange struct {
	StoreID string
	From    model.ReliabilityTier
	To      model.ReliabilityTier
}

// Counts returns the number of records per tier.
func (r *RefreshResult) Counts() map[model.ReliabilityTier]int {
	out := make(map[model.ReliabilityTier]int, 3)
	for _, rec := range r.Records {
		out[rec.Tier]++
	}
	return out
}

// Changes lists stores whose tier differs from before the refresh, by
// store ID. Stores seen for the first time are not changes.
func (r *RefreshResult) Changes() []TierChange {
	var out []TierChange
	for _, rec := range r.Records {
		prev, ok := r.Previous[rec.StoreID]
		if !ok || prev == rec.Tier {
			continue
		}
		out = append(out, TierChange{StoreID: rec.StoreID, From: prev, To: rec.Tier})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out
}

// RefreshReliability recomputes and persists every registered store's
// reliability record over the configured window.
func (s *Service) RefreshReliability(ctx context.Context) (*RefreshResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "service.RefreshReliability")
	defer span.End()

	if err := s.checkAvailable(ctx); err != nil {
		return nil, err
	}

	stores, err := fetch(ctx, s, "stores", s.store.ListStores)
	if err != nil {
		return nil, eris.Wrap(err, "service: list stores for refresh")
	}

	previous, err := fetch(ctx, s, "reliability_board", func(ctx context.Context) ([]model.ReliabilityRecord, error) {
		return s.store.ListReliability(ctx, max(len(stores), store.DefaultListLimit))
	})
	if err != nil {
		// Without priors no tier change is reported.
		previous = nil
	}

	now := s.now().UTC()
	today := model.Day(now)
	ids := make([]string, len(stores))
	for i, st := range stores {
		ids[i] = st.ID
	}
	from := today.AddDate(0, 0, -s.opts.ReliabilityWindowDays)
	byStore, err := fetch(ctx, s, "reliability_history", func(ctx context.Context) (map[string][]model.Observation, error) {
		return s.store.ObservationsForStores(ctx, ids, from, today)
	})
	if err != nil {
		return nil, eris.Wrap(err, "service: load refresh history")
	}

	res := &RefreshResult{
		Previous:   make(map[string]model.ReliabilityTier, len(previous)),
		ComputedAt: now,
	}
	for _, rec := range previous {
		res.Previous[rec.StoreID] = rec.Tier
	}
	for _, st := range stores {
		rec := reliability.Compute(reliability.Input{
			StoreID:      st.ID,
			Brand:        st.Brand,
			Observations: byStore[st.ID],
			WindowDays:   s.opts.ReliabilityWindowDays,
			Now:          now,
		})
		if rec == nil {
			res.NoOpinion = append(res.NoOpinion, st.ID)
			continue
		}
		res.Records = append(res.Records, *rec)
	}

	if len(res.Records) > 0 {
		err := resilience.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
			return s.store.UpsertReliability(ctx, res.Records)
		})
		if err != nil {
			return nil, eris.Wrap(err, "service: persist reliability")
		}
	}

	s.log.Info("reliability refreshed",
		zap.Int("stores", len(stores)),
		zap.Int("records", len(res.Records)),
		zap.Int("no_opinion", len(res.NoOpinion)),
	)
	return res, nil
}
