package service

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/reliability"
	"github.com/sells-group/custard-cli/internal/store"
)

// ReliabilityResponse wraps one store's record. A nil Record means no
// opinion.
type ReliabilityResponse struct {
	StoreID string                   `json:"store_id"`
	Record  *model.ReliabilityRecord `json:"record"`
	// Computed is true when the record was derived on demand rather than
	// read from the last refresh.
	Computed bool `json:"computed"`
}

// Reliability returns the persisted record for a store, computing one on
// demand when none has been stored yet.
func (s *Service) Reliability(ctx context.Context, storeID string) (*ReliabilityResponse, error) {
	if err := s.checkAvailable(ctx); err != nil {
		return nil, err
	}
	st, err := s.lookupStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	resp := &ReliabilityResponse{StoreID: storeID}
	rec, err := fetch(ctx, s, "reliability", func(ctx context.Context) (*model.ReliabilityRecord, error) {
		return s.store.GetReliability(ctx, storeID)
	})
	if err == nil && rec != nil {
		resp.Record = rec
		return resp, nil
	}

	resp.Record = s.computeReliability(ctx, st)
	resp.Computed = resp.Record != nil
	return resp, nil
}

// computeReliability scores a store over the configured window. Nil when
// the store has no observations or the fetch failed.
func (s *Service) computeReliability(ctx context.Context, st model.Store) *model.ReliabilityRecord {
	now := s.now().UTC()
	today := model.Day(now)
	from := today.AddDate(0, 0, -s.opts.ReliabilityWindowDays)
	obs, err := fetch(ctx, s, "reliability_history", func(ctx context.Context) ([]model.Observation, error) {
		return s.store.ObservationsForStore(ctx, st.ID, from, today)
	})
	if err != nil {
		return nil
	}
	return reliability.Compute(reliability.Input{
		StoreID:      st.ID,
		Brand:        st.Brand,
		Observations: obs,
		WindowDays:   s.opts.ReliabilityWindowDays,
		Now:          now,
	})
}

// ReliabilityBoard lists persisted records worst-first.
func (s *Service) ReliabilityBoard(ctx context.Context, limit int) ([]model.ReliabilityRecord, error) {
	if err := s.checkAvailable(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	recs, err := fetch(ctx, s, "reliability_board", func(ctx context.Context) ([]model.ReliabilityRecord, error) {
		return s.store.ListReliability(ctx, limit)
	})
	if err != nil {
		return nil, eris.Wrap(err, "service: list reliability")
	}
	if recs == nil {
		recs = []model.ReliabilityRecord{}
	}
	return recs, nil
}

// reliabilityTier returns the persisted tier for a store, or no opinion.
func (s *Service) reliabilityTier(ctx context.Context, storeID string) model.ReliabilityTier {
	rec, err := fetch(ctx, s, "reliability", func(ctx context.Context) (*model.ReliabilityRecord, error) {
		return s.store.GetReliability(ctx, storeID)
	})
	if err != nil || rec == nil {
		return model.ReliabilityUnknown
	}
	return rec.Tier
}
