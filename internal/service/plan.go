package service

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/custard-cli/internal/geo"
	"github.com/sells-group/custard-cli/internal/history"
	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/planner"
	"github.com/sells-group/custard-cli/internal/rarity"
	"github.com/sells-group/custard-cli/internal/signals"
	"github.com/sells-group/custard-cli/internal/telemetry"
)

// Plan scores the requested stores for today. Each store is resolved
// independently: a failed lookup leaves that store with no history, no
// forecast, or no reliability opinion instead of failing the request.
func (s *Service) Plan(ctx context.Context, q planner.Query) (*planner.Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "service.Plan")
	defer span.End()
	span.SetAttributes(attribute.Int("stores", len(q.StoreIDs)))

	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkAvailable(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	today := model.Day(now)
	table := s.rarityTable(ctx, today)
	obs := s.bulkHistory(ctx, q.StoreIDs, today)

	candidates := make([]planner.Candidate, len(q.StoreIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, id := range q.StoreIDs {
		g.Go(func() error {
			candidates[i] = s.resolveCandidate(gctx, id, obs[id], table, today, q.IncludeTomorrow)
			return nil
		})
	}
	_ = g.Wait()

	res := planner.Plan(q, candidates)
	resp := &planner.Response{
		Query:             q,
		Cards:             res.Cards,
		Excluded:          res.Excluded,
		NearbyLeaderboard: s.leaderboard(ctx, q, candidates, table, today),
		FallbackUsed:      res.FallbackUsed,
		GeneratedAt:       now.UTC(),
	}
	s.log.Debug("plan built",
		zap.Int("cards", len(resp.Cards)),
		zap.Int("excluded", len(resp.Excluded)),
		zap.Bool("fallback_used", resp.FallbackUsed),
	)
	return resp, nil
}

// bulkHistory loads the lookback window for every id, through tomorrow so
// confirmed previews are included. Failed chunks leave their stores empty.
func (s *Service) bulkHistory(ctx context.Context, ids []string, today time.Time) map[string][]model.Observation {
	from := today.AddDate(0, 0, -s.opts.HistoryDays)
	to := today.AddDate(0, 0, 1)
	byStore, err := fetch(ctx, s, "history", func(ctx context.Context) (map[string][]model.Observation, error) {
		return s.store.ObservationsForStores(ctx, ids, from, to)
	})
	if err != nil || byStore == nil {
		return map[string][]model.Observation{}
	}
	return byStore
}

// resolveCandidate gathers everything the planner needs for one store.
func (s *Service) resolveCandidate(ctx context.Context, id string, obs []model.Observation, table *rarity.Table, today time.Time, withTomorrow bool) planner.Candidate {
	ctx, span := telemetry.Tracer().Start(ctx, "service.resolveCandidate")
	defer span.End()
	span.SetAttributes(attribute.String("store_id", id))

	st, err := s.lookupStore(ctx, id)
	if err != nil {
		st = model.Store{ID: id, Name: id, Brand: model.InferBrand(id)}
	}
	c := planner.Candidate{
		Store:       st,
		Location:    location(st),
		Reliability: s.reliabilityTier(ctx, id),
	}

	histories := history.Build(obs)
	if o := confirmedOn(obs, today); o != nil {
		c.Confirmed = s.pick(o.Flavor, o.Description, histories, today, table)
	}
	preds, _ := fetch(ctx, s, "forecasts", func(ctx context.Context) ([]model.Prediction, error) {
		return s.store.ForecastsFor(ctx, id, today)
	})
	if top := model.TopPrediction(preds); top != nil {
		c.Estimated = s.pick(top.Flavor, "", histories, today, table)
		c.Estimated.Probability = top.Probability
		c.Estimated.HistoryDepth = top.HistoryDepth
	}

	if withTomorrow {
		tomorrow := today.AddDate(0, 0, 1)
		if o := confirmedOn(obs, tomorrow); o != nil {
			c.Tomorrow = s.pick(o.Flavor, o.Description, histories, tomorrow, nil)
			c.TomorrowConfirmed = true
		} else {
			preds, _ := fetch(ctx, s, "forecasts", func(ctx context.Context) ([]model.Prediction, error) {
				return s.store.ForecastsFor(ctx, id, tomorrow)
			})
			if top := model.TopPrediction(preds); top != nil {
				c.Tomorrow = s.pick(top.Flavor, "", histories, tomorrow, nil)
				c.Tomorrow.Probability = top.Probability
				c.Tomorrow.HistoryDepth = top.HistoryDepth
			}
		}
	}

	if len(histories) > 0 {
		c.Signals = signals.Detect(histories, today, rareFindInput(obs, today, table), CardSignalLimit)
	}
	return c
}

// pick builds a flavor claim. Cadence counts only appearances before day.
func (s *Service) pick(flavor, description string, histories []history.FlavorHistory, day time.Time, table *rarity.Table) *planner.Pick {
	p := &planner.Pick{
		Flavor:        flavor,
		Description:   description,
		Tags:          s.tags.Classify(flavor, description),
		StoresServing: table.StoresServing(flavor),
	}
	if h, ok := history.Lookup(histories, flavor); ok {
		p.Cadence = history.PriorCadence(h, day)
	}
	return p
}

func location(st model.Store) *geo.Point {
	if !st.HasLocation {
		return nil
	}
	return &geo.Point{Lat: st.Lat, Lon: st.Lon}
}

// leaderboard ranks unrequested stores near the query location, or near
// the requested stores' centroid. Any failure yields an empty board.
func (s *Service) leaderboard(ctx context.Context, q planner.Query, requested []planner.Candidate, table *rarity.Table, today time.Time) []planner.LeaderboardEntry {
	empty := []planner.LeaderboardEntry{}

	var origin geo.Point
	if q.Location != nil {
		origin = *q.Location
	} else {
		c, ok := planner.Centroid(requested)
		if !ok {
			return empty
		}
		origin = c
	}

	all, err := fetch(ctx, s, "leaderboard", s.store.ListStores)
	if err != nil {
		return empty
	}
	skip := make(map[string]bool, len(q.StoreIDs))
	for _, id := range q.StoreIDs {
		skip[id] = true
	}

	type near struct {
		store model.Store
		miles float64
	}
	var nearby []near
	for _, st := range all {
		if skip[st.ID] || !st.HasLocation {
			continue
		}
		miles := geo.Miles(origin, geo.Point{Lat: st.Lat, Lon: st.Lon})
		if miles <= planner.LeaderboardRadiusMiles {
			nearby = append(nearby, near{store: st, miles: miles})
		}
	}
	if len(nearby) == 0 {
		return empty
	}
	sort.Slice(nearby, func(i, j int) bool { return nearby[i].miles < nearby[j].miles })
	if len(nearby) > s.opts.NearbyScanLimit {
		nearby = nearby[:s.opts.NearbyScanLimit]
	}

	ids := make([]string, len(nearby))
	for i, n := range nearby {
		ids[i] = n.store.ID
	}
	obs := s.bulkHistory(ctx, ids, today)

	candidates := make([]planner.Candidate, 0, len(nearby))
	for _, n := range nearby {
		c := planner.Candidate{Store: n.store, Location: location(n.store)}
		storeObs := obs[n.store.ID]
		if o := confirmedOn(storeObs, today); o != nil {
			c.Confirmed = s.pick(o.Flavor, o.Description, history.Build(storeObs), today, table)
		}
		candidates = append(candidates, c)
	}
	board := planner.Leaderboard(q, candidates, origin, s.opts.LeaderboardLimit)
	if board == nil {
		return empty
	}
	return board
}
