// Package service is the request shell around the decision engines. It
// fetches history, reliability, and forecast rows from storage, isolates
// each fetch so one failure only degrades its own store, and assembles the
// JSON-ready responses.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/cache"
	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/rarity"
	"github.com/sells-group/custard-cli/internal/resilience"
	"github.com/sells-group/custard-cli/internal/store"
	"github.com/sells-group/custard-cli/internal/tags"
	"github.com/sells-group/custard-cli/internal/telemetry"
)

// ErrUnavailable means the primary store could not be reached at all.
var ErrUnavailable = eris.New("service: storage unavailable")

// ErrNotFound is returned for a store that is not registered.
var ErrNotFound = store.ErrNotFound

// Defaults for Options.
const (
	DefaultHistoryDays     = 365
	DefaultConcurrency     = 8
	DefaultNearbyScanLimit = 25
	CardSignalLimit        = 3
	RareFindScope          = "last_24h"
)

// Options tunes the service.
type Options struct {
	// HistoryDays is the lookback for cadence and signals.
	HistoryDays int
	// ReliabilityWindowDays is the window for on-demand reliability.
	ReliabilityWindowDays int
	LeaderboardLimit      int
	// NearbyScanLimit caps how many nearby stores the leaderboard resolves.
	NearbyScanLimit int
	// Concurrency bounds the per-request fan-out.
	Concurrency int
	Retry       resilience.RetryConfig
}

func (o Options) withDefaults() Options {
	if o.HistoryDays <= 0 {
		o.HistoryDays = DefaultHistoryDays
	}
	if o.ReliabilityWindowDays <= 0 {
		o.ReliabilityWindowDays = 30
	}
	if o.NearbyScanLimit <= 0 {
		o.NearbyScanLimit = DefaultNearbyScanLimit
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = resilience.DefaultRetryConfig()
	}
	return o
}

// Option configures optional collaborators.
type Option func(*Service)

// WithCache enables the signals response cache.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics records fetch failures, cache results, and emitted signals.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service answers signals, reliability, certainty, and plan requests.
type Service struct {
	store   store.Store
	tags    tags.Classifier
	rarity  *rarity.Cache
	cache   *cache.Cache
	metrics *telemetry.Metrics
	now     func() time.Time
	opts    Options
	log     *zap.Logger
}

// New creates a Service. classifier may be nil to use the default keyword
// rules.
func New(st store.Store, classifier tags.Classifier, opts Options, options ...Option) *Service {
	if classifier == nil {
		classifier = tags.NewKeywordClassifier(tags.DefaultRules)
	}
	s := &Service{
		store:  st,
		tags:   classifier,
		rarity: &rarity.Cache{},
		now:    time.Now,
		opts:   opts.withDefaults(),
		log:    zap.L().With(zap.String("component", "service")),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// today returns the current UTC calendar day.
func (s *Service) today() time.Time {
	return model.Day(s.now())
}

// checkAvailable is the only path to ErrUnavailable.
func (s *Service) checkAvailable(ctx context.Context) error {
	err := resilience.Do(ctx, s.opts.Retry, s.store.Ping)
	if err != nil {
		s.log.Error("primary store unreachable", zap.Error(err))
		return eris.Wrap(ErrUnavailable, err.Error())
	}
	return nil
}

// lookupStore returns the registered store. Lookup failures other than
// not-found degrade to a bare store with an inferred brand.
func (s *Service) lookupStore(ctx context.Context, id string) (model.Store, error) {
	st, err := fetch(ctx, s, "store", func(ctx context.Context) (*model.Store, error) {
		return s.store.GetStore(ctx, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.Store{}, eris.Wrapf(ErrNotFound, "service: store %s", id)
	}
	if err != nil {
		return model.Store{ID: id, Name: id, Brand: model.InferBrand(id)}, nil
	}
	return *st, nil
}

// fetch runs a storage read with retries. A final failure is logged and
// counted under source; the caller decides the fallback.
func fetch[T any](ctx context.Context, s *Service, source string, fn func(context.Context) (T, error)) (T, error) {
	cfg := s.opts.Retry
	cfg.ShouldRetry = func(err error) bool {
		return !errors.Is(err, store.ErrNotFound) && resilience.IsTransient(err)
	}
	v, err := resilience.DoVal(ctx, cfg, fn)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Warn("fetch failed, using default",
			zap.String("source", source),
			zap.Error(err),
		)
		s.metrics.FetchFailed(source)
	}
	return v, err
}
