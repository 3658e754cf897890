package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/cache"
	"github.com/sells-group/custard-cli/internal/db"
	"github.com/sells-group/custard-cli/internal/events"
	"github.com/sells-group/custard-cli/internal/monitoring"
	"github.com/sells-group/custard-cli/internal/resilience"
	"github.com/sells-group/custard-cli/internal/service"
	"github.com/sells-group/custard-cli/internal/store"
	"github.com/sells-group/custard-cli/internal/tags"
	"github.com/sells-group/custard-cli/internal/telemetry"
)

// appEnv holds the wired dependencies shared by commands.
type appEnv struct {
	Store     store.Store
	Service   *service.Service
	Metrics   *telemetry.Metrics
	Breakers  *resilience.Breakers
	Publisher events.Publisher
	Checker   *monitoring.Checker

	closers []func()
}

// Close releases everything initEnv opened, last first.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initStore opens the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "create database dir %s", dir)
			}
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv validates config for mode and wires the store, service, and
// optional infrastructure. Redis, NATS, and tracing are skipped when not
// configured; a failure to reach them is logged, not fatal.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "env"))

	env := &appEnv{Metrics: telemetry.NewMetrics()}

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	} else {
		env.closers = append(env.closers, func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(sctx)
		})
	}

	st, err := initStore(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Store = st
	env.closers = append(env.closers, func() { _ = st.Close() })

	// The local SQLite file is created on first use; Postgres is migrated
	// explicitly with the migrate command.
	if cfg.Store.Driver == "sqlite" {
		if err := st.Migrate(ctx); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}

	retry, breakerCfg := resilience.FromConfig(cfg.Resilience)
	retry.OnRetry = resilience.RetryLogger("store")
	env.Breakers = resilience.NewBreakers(breakerCfg, func(name string, from, to resilience.CircuitState) {
		log.Warn("circuit breaker state change",
			zap.String("breaker", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		env.Metrics.SetBreakerState(name, int(to))
	})

	classifier, err := initClassifier()
	if err != nil {
		env.Close()
		return nil, err
	}

	opts := []service.Option{
		service.WithMetrics(env.Metrics),
	}
	rc, err := cache.Open(ctx, cfg.Redis, env.Breakers.Get("redis"))
	switch {
	case err != nil:
		log.Warn("redis unavailable, signals cache disabled", zap.Error(err))
	case rc != nil:
		opts = append(opts, service.WithCache(rc))
	}

	env.Service = service.New(st, classifier, service.Options{
		HistoryDays:           cfg.Planner.HistoryDays,
		ReliabilityWindowDays: cfg.Reliability.WindowDays,
		LeaderboardLimit:      cfg.Planner.LeaderboardLimit,
		Retry:                 retry,
	}, opts...)

	env.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		pub, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			log.Warn("nats unavailable, refresh events disabled", zap.Error(err))
		} else {
			env.Publisher = pub
			env.closers = append(env.closers, pub.Close)
		}
	}

	alertRetry := retry
	alertRetry.OnRetry = resilience.RetryLogger("alert webhook")
	env.Checker = monitoring.NewChecker(
		monitoring.NewCollector(env.Service),
		monitoring.NewAlerter(cfg.Monitoring, alertRetry, env.Breakers.Get("webhook"), env.Metrics),
		env.Publisher,
		env.Metrics,
		cfg.Monitoring,
	)
	return env, nil
}

func initClassifier() (tags.Classifier, error) {
	if cfg.Tags.RulesFile == "" {
		return tags.NewKeywordClassifier(tags.DefaultRules), nil
	}
	rules, err := tags.LoadRules(cfg.Tags.RulesFile)
	if err != nil {
		return nil, err
	}
	return tags.NewKeywordClassifier(rules), nil
}
