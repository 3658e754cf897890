package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/cache"
	"github.com/sells-group/custard-cli/internal/history"
	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/rarity"
	"github.com/sells-group/custard-cli/internal/signals"
	"github.com/sells-group/custard-cli/internal/store"
	"github.com/sells-group/custard-cli/internal/telemetry"
)

// NoHistoryMessage accompanies an empty signal list for a store with no
// usable history.
const NoHistoryMessage = "No flavor history for this store."

// SignalsResponse is the payload for one store's signals.
type SignalsResponse struct {
	StoreID string           `json:"store_id"`
	Today   string           `json:"today"`
	Signals []signals.Signal `json:"signals"`
	Message string           `json:"message,omitempty"`
}

// Signals detects patterns in a store's history as of date. A zero date
// means today; limit is clamped to [1, 20].
func (s *Service) Signals(ctx context.Context, storeID string, date time.Time, limit int) (*SignalsResponse, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "service.Signals")
	defer span.End()

	if date.IsZero() {
		date = s.today()
	}
	date = model.Day(date)
	limit = signals.ClampLimit(limit)

	if err := s.checkAvailable(ctx); err != nil {
		return nil, err
	}
	if _, err := s.lookupStore(ctx, storeID); err != nil {
		return nil, err
	}

	table := s.rarityTable(ctx, date)

	key := cache.Key("signals", storeID, model.FormatDate(date), strconv.Itoa(limit), table.Generation)
	if s.cache != nil {
		var cached SignalsResponse
		err := s.cache.Get(ctx, key, &cached)
		switch {
		case err == nil:
			s.metrics.CacheResult("hit")
			return &cached, nil
		case errors.Is(err, cache.ErrMiss):
			s.metrics.CacheResult("miss")
		default:
			s.metrics.CacheResult("error")
			s.log.Debug("signals cache read failed", zap.Error(err))
		}
	}

	obs := s.history(ctx, storeID, date)
	resp := s.buildSignals(storeID, date, obs, table, limit)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp); err != nil {
			s.log.Debug("signals cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

func (s *Service) buildSignals(storeID string, date time.Time, obs []model.Observation, table *rarity.Table, limit int) *SignalsResponse {
	resp := &SignalsResponse{
		StoreID: storeID,
		Today:   model.FormatDate(date),
		Signals: []signals.Signal{},
	}
	histories := history.Build(obs)
	if len(histories) == 0 {
		resp.Message = NoHistoryMessage
		return resp
	}

	found := signals.Detect(histories, date, rareFindInput(obs, date, table), limit)
	for _, sig := range found {
		s.metrics.SignalEmitted(string(sig.Type))
	}
	resp.Signals = append(resp.Signals, found...)
	return resp
}

// rareFindInput describes today's confirmed flavor for the rare-find
// detector, or nil when the store has nothing confirmed for date.
func rareFindInput(obs []model.Observation, date time.Time, table *rarity.Table) *signals.RareFindInput {
	o := confirmedOn(obs, date)
	if o == nil || table == nil || table.Len() == 0 {
		return nil
	}
	return &signals.RareFindInput{
		Flavor:        o.Flavor,
		StoresServing: max(1, table.StoresServing(o.Flavor)),
		Scope:         RareFindScope,
	}
}

// confirmedOn returns the observation dated on date, if any.
func confirmedOn(obs []model.Observation, date time.Time) *model.Observation {
	date = model.Day(date)
	for i := range obs {
		if model.Day(obs[i].Date).Equal(date) && obs[i].Flavor != "" {
			return &obs[i]
		}
	}
	return nil
}

// history loads the lookback window ending on date. A failed fetch yields
// no history.
func (s *Service) history(ctx context.Context, storeID string, date time.Time) []model.Observation {
	from := date.AddDate(0, 0, -s.opts.HistoryDays)
	obs, err := fetch(ctx, s, "history", func(ctx context.Context) ([]model.Observation, error) {
		return s.store.ObservationsForStore(ctx, storeID, from, date)
	})
	if err != nil {
		return nil
	}
	return obs
}

// rarityTable returns the table for date, rebuilding only when the day's
// data has changed. A failed fetch yields an empty table.
func (s *Service) rarityTable(ctx context.Context, date time.Time) *rarity.Table {
	stats, err := fetch(ctx, s, "day_stats", func(ctx context.Context) (store.DayStats, error) {
		return s.store.DayStats(ctx, date)
	})
	if err != nil {
		return rarity.Build(nil, date, "")
	}
	gen := rarity.Fingerprint(date, stats.NewestCapture, stats.Rows)
	t, err := s.rarity.Get(gen, func() (*rarity.Table, error) {
		obs, err := fetch(ctx, s, "rarity", func(ctx context.Context) ([]model.Observation, error) {
			return s.store.ObservationsOn(ctx, date)
		})
		if err != nil {
			return nil, err
		}
		return rarity.Build(obs, date, gen), nil
	})
	if err != nil {
		return rarity.Build(nil, date, "")
	}
	return t
}
