package store

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/db"
	"github.com/sells-group/custard-cli/internal/model"
)

//go:embed migrations
var migrationFS embed.FS

var pgSQ = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// migrationLockID serializes concurrent migrate runs across processes.
const migrationLockID = 7401553

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close is a no-op.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Migrate runs all pending SQL migrations in lexicographic order under an
// advisory lock, recording each in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			log.Warn("postgres: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename   TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}
	names, err := migrationFiles("postgres")
	if err != nil {
		return err
	}

	for _, name := range names {
		if applied[name] {
			continue
		}
		data, err := fs.ReadFile(migrationFS, "migrations/postgres/"+name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())", name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "postgres: applied migrations iterate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertStores(ctx context.Context, stores []model.Store) (int, error) {
	stores = dedupeLast(stores, func(st model.Store) string { return st.ID })
	rows := make([][]any, 0, len(stores))
	for _, st := range stores {
		loc, err := encodeLocation(st)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{st.ID, brandOf(st.ID, st.Brand), st.Name, st.City, st.State, loc})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "stores",
		Columns:      storeColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	return int(n), eris.Wrap(err, "postgres: upsert stores")
}

func (s *PostgresStore) GetStore(ctx context.Context, id string) (*model.Store, error) {
	query, args, err := pgSQ.Select(storeColumns...).From("stores").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get store")
	}
	st, err := scanStore(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: store %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get store %s", id)
	}
	return st, nil
}

func (s *PostgresStore) ListStores(ctx context.Context) ([]model.Store, error) {
	query, args, err := pgSQ.Select(storeColumns...).From("stores").OrderBy("id").ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list stores")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stores")
	}
	defer rows.Close()

	var out []model.Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan store")
		}
		out = append(out, *st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list stores iterate")
}

func (s *PostgresStore) InsertObservations(ctx context.Context, obs []model.Observation) (int, error) {
	rows := make([][]any, 0, len(obs))
	for _, o := range obs {
		var captured *time.Time
		if o.HasCapture() {
			t := o.CapturedAt.UTC()
			captured = &t
		}
		rows = append(rows, []any{
			o.StoreID, brandOf(o.StoreID, o.Brand), model.Day(o.Date), o.Flavor,
			model.NormalizeFlavor(o.Flavor), o.Description, captured,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:           "observations",
		Columns:         []string{"store_id", "brand", "date", "flavor", "normalized_flavor", "description", "captured_at"},
		ConflictKeys:    []string{"store_id", "date"},
		IgnoreConflicts: true,
	}, rows)
	return int(n), eris.Wrap(err, "postgres: insert observations")
}

func (s *PostgresStore) ObservationsForStore(ctx context.Context, storeID string, from, to time.Time) ([]model.Observation, error) {
	return s.queryObservations(ctx, sq.Eq{"store_id": storeID}, from, to)
}

func (s *PostgresStore) ObservationsForStores(ctx context.Context, storeIDs []string, from, to time.Time) (map[string][]model.Observation, error) {
	return fetchChunked(ctx, storeIDs, func(ctx context.Context, ids []string) ([]model.Observation, error) {
		return s.queryObservations(ctx, sq.Eq{"store_id": ids}, from, to)
	})
}

func (s *PostgresStore) ObservationsOn(ctx context.Context, date time.Time) ([]model.Observation, error) {
	return s.queryObservations(ctx, sq.Eq{"date": model.Day(date)}, date, date)
}

func (s *PostgresStore) DayStats(ctx context.Context, date time.Time) (DayStats, error) {
	query, args, err := pgSQ.Select("COUNT(*)", "MAX(captured_at)").
		From("observations").Where(sq.Eq{"date": model.Day(date)}).ToSql()
	if err != nil {
		return DayStats{}, eris.Wrap(err, "postgres: build day stats")
	}
	var (
		st     DayStats
		newest *time.Time
	)
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&st.Rows, &newest); err != nil {
		return DayStats{}, eris.Wrap(err, "postgres: day stats")
	}
	if newest != nil {
		st.NewestCapture = newest.UTC()
	}
	return st, nil
}

func (s *PostgresStore) queryObservations(ctx context.Context, where sq.Sqlizer, from, to time.Time) ([]model.Observation, error) {
	query, args, err := pgSQ.Select(observationColumns...).From("observations").
		Where(where).
		Where(sq.GtOrEq{"date": model.Day(from)}).
		Where(sq.LtOrEq{"date": model.Day(to)}).
		OrderBy("store_id", "date").
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build observation query")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query observations")
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		var (
			o        model.Observation
			captured *time.Time
		)
		if err := rows.Scan(&o.StoreID, &o.Brand, &o.Date, &o.Flavor, &o.Description, &captured); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		o.Date = model.Day(o.Date)
		if captured != nil {
			o.CapturedAt = captured.UTC()
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: observations iterate")
}

func (s *PostgresStore) UpsertReliability(ctx context.Context, recs []model.ReliabilityRecord) error {
	recs = dedupeLast(recs, func(r model.ReliabilityRecord) string { return r.StoreID })
	rows := make([][]any, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []any{
			r.StoreID, r.Brand, r.FreshnessLagAvgHours, r.MissingWindowRate, r.RecoveryTimeAvgHours,
			r.Score, string(r.Tier), r.Reason, r.ComputedAt.UTC(), r.WindowDays,
		})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "reliability",
		Columns:      reliabilityColumns,
		ConflictKeys: []string{"store_id"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert reliability")
}

func (s *PostgresStore) GetReliability(ctx context.Context, storeID string) (*model.ReliabilityRecord, error) {
	query, args, err := pgSQ.Select(reliabilityColumns...).From("reliability").
		Where(sq.Eq{"store_id": storeID}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get reliability")
	}
	rec, err := scanPostgresReliability(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get reliability %s", storeID)
	}
	return rec, nil
}

func (s *PostgresStore) ListReliability(ctx context.Context, limit int) ([]model.ReliabilityRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query, args, err := pgSQ.Select(reliabilityColumns...).From("reliability").
		OrderBy("score ASC", "store_id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list reliability")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reliability")
	}
	defer rows.Close()

	var out []model.ReliabilityRecord
	for rows.Next() {
		rec, err := scanPostgresReliability(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan reliability")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list reliability iterate")
}

func (s *PostgresStore) UpsertForecasts(ctx context.Context, preds []model.Prediction) (int, error) {
	preds = dedupeLast(preds, func(p model.Prediction) string {
		return p.StoreID + "|" + model.FormatDate(p.Date) + "|" + p.Flavor
	})
	rows := make([][]any, 0, len(preds))
	for _, p := range preds {
		rows = append(rows, []any{
			p.StoreID, model.Day(p.Date), p.Flavor, p.Probability, p.Rank, p.HistoryDepth, p.Model, p.GeneratedAt.UTC(),
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "forecasts",
		Columns:      forecastColumns,
		ConflictKeys: []string{"store_id", "date", "flavor"},
	}, rows)
	return int(n), eris.Wrap(err, "postgres: upsert forecasts")
}

func (s *PostgresStore) ForecastsFor(ctx context.Context, storeID string, date time.Time) ([]model.Prediction, error) {
	query, args, err := pgSQ.Select(forecastColumns...).From("forecasts").
		Where(sq.Eq{"store_id": storeID, "date": model.Day(date)}).
		OrderBy("rank ASC", "probability DESC").
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build forecast query")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query forecasts")
	}
	defer rows.Close()

	var out []model.Prediction
	for rows.Next() {
		var p model.Prediction
		if err := rows.Scan(&p.StoreID, &p.Date, &p.Flavor, &p.Probability, &p.Rank, &p.HistoryDepth, &p.Model, &p.GeneratedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan forecast")
		}
		p.Date = model.Day(p.Date)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: forecasts iterate")
}

func scanPostgresReliability(row scannable) (*model.ReliabilityRecord, error) {
	var (
		r    model.ReliabilityRecord
		tier string
	)
	if err := row.Scan(&r.StoreID, &r.Brand, &r.FreshnessLagAvgHours, &r.MissingWindowRate,
		&r.RecoveryTimeAvgHours, &r.Score, &tier, &r.Reason, &r.ComputedAt, &r.WindowDays); err != nil {
		return nil, err
	}
	r.Tier = model.ReliabilityTier(tier)
	r.ComputedAt = r.ComputedAt.UTC()
	return &r, nil
}

// dedupeLast keeps the last item per key, preserving first-seen order.
// ON CONFLICT DO UPDATE rejects a batch that touches the same row twice.
func dedupeLast[T any](items []T, key func(T) string) []T {
	idx := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := key(it)
		if i, ok := idx[k]; ok {
			out[i] = it
			continue
		}
		idx[k] = len(out)
		out = append(out, it)
	}
	return out
}
