package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/custard-cli/internal/geo"
	"github.com/sells-group/custard-cli/internal/model"
)

var sqliteSQ = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var (
	storeColumns       = []string{"id", "brand", "name", "city", "state", "location"}
	observationColumns = []string{"store_id", "brand", "date", "flavor", "description", "captured_at"}
	reliabilityColumns = []string{
		"store_id", "brand", "freshness_lag_avg_hours", "missing_window_rate",
		"recovery_time_avg_hours", "score", "tier", "reason", "computed_at", "window_days",
	}
	forecastColumns = []string{"store_id", "date", "flavor", "probability", "rank", "history_depth", "model", "generated_at"}
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	names, err := migrationFiles("sqlite")
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := fs.ReadFile(migrationFS, "migrations/sqlite/"+name)
		if err != nil {
			return eris.Wrapf(err, "sqlite: read migration %s", name)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "sqlite: apply migration %s", name)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertStores(ctx context.Context, stores []model.Store) (int, error) {
	return s.execBatch(ctx, `INSERT INTO stores (id, brand, name, city, state, location)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			brand = excluded.brand, name = excluded.name, city = excluded.city,
			state = excluded.state, location = excluded.location`,
		len(stores), func(i int) ([]any, error) {
			st := stores[i]
			loc, err := encodeLocation(st)
			if err != nil {
				return nil, err
			}
			return []any{st.ID, brandOf(st.ID, st.Brand), st.Name, st.City, st.State, loc}, nil
		})
}

func (s *SQLiteStore) GetStore(ctx context.Context, id string) (*model.Store, error) {
	query, args, err := sqliteSQ.Select(storeColumns...).From("stores").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get store")
	}
	st, err := scanStore(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: store %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get store %s", id)
	}
	return st, nil
}

func (s *SQLiteStore) ListStores(ctx context.Context) ([]model.Store, error) {
	query, args, err := sqliteSQ.Select(storeColumns...).From("stores").OrderBy("id").ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list stores")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stores")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan store")
		}
		out = append(out, *st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list stores iterate")
}

func (s *SQLiteStore) InsertObservations(ctx context.Context, obs []model.Observation) (int, error) {
	return s.execBatch(ctx, `INSERT OR IGNORE INTO observations
		(store_id, brand, date, flavor, normalized_flavor, description, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		len(obs), func(i int) ([]any, error) {
			o := obs[i]
			var captured any
			if o.HasCapture() {
				captured = o.CapturedAt.UTC().Format(time.RFC3339Nano)
			}
			return []any{
				o.StoreID, brandOf(o.StoreID, o.Brand), model.FormatDate(o.Date), o.Flavor,
				model.NormalizeFlavor(o.Flavor), o.Description, captured,
			}, nil
		})
}

func (s *SQLiteStore) ObservationsForStore(ctx context.Context, storeID string, from, to time.Time) ([]model.Observation, error) {
	return s.queryObservations(ctx, sq.Eq{"store_id": storeID}, from, to)
}

func (s *SQLiteStore) ObservationsForStores(ctx context.Context, storeIDs []string, from, to time.Time) (map[string][]model.Observation, error) {
	return fetchChunked(ctx, storeIDs, func(ctx context.Context, ids []string) ([]model.Observation, error) {
		return s.queryObservations(ctx, sq.Eq{"store_id": ids}, from, to)
	})
}

func (s *SQLiteStore) ObservationsOn(ctx context.Context, date time.Time) ([]model.Observation, error) {
	return s.queryObservations(ctx, sq.Eq{"date": model.FormatDate(date)}, date, date)
}

func (s *SQLiteStore) DayStats(ctx context.Context, date time.Time) (DayStats, error) {
	query, args, err := sqliteSQ.Select("COUNT(*)", "COALESCE(MAX(captured_at), '')").
		From("observations").Where(sq.Eq{"date": model.FormatDate(date)}).ToSql()
	if err != nil {
		return DayStats{}, eris.Wrap(err, "sqlite: build day stats")
	}
	var (
		st     DayStats
		newest string
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&st.Rows, &newest); err != nil {
		return DayStats{}, eris.Wrap(err, "sqlite: day stats")
	}
	if newest != "" {
		st.NewestCapture, err = time.Parse(time.RFC3339Nano, newest)
		if err != nil {
			return DayStats{}, eris.Wrap(err, "sqlite: parse newest capture")
		}
	}
	return st, nil
}

func (s *SQLiteStore) queryObservations(ctx context.Context, where sq.Sqlizer, from, to time.Time) ([]model.Observation, error) {
	query, args, err := sqliteSQ.Select(observationColumns...).From("observations").
		Where(where).
		Where(sq.GtOrEq{"date": model.FormatDate(from)}).
		Where(sq.LtOrEq{"date": model.FormatDate(to)}).
		OrderBy("store_id", "date").
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build observation query")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query observations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Observation
	for rows.Next() {
		var (
			o        model.Observation
			date     string
			captured sql.NullString
		)
		if err := rows.Scan(&o.StoreID, &o.Brand, &date, &o.Flavor, &o.Description, &captured); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		if o.Date, err = model.ParseDate(date); err != nil {
			return nil, err
		}
		if captured.Valid && captured.String != "" {
			if o.CapturedAt, err = time.Parse(time.RFC3339Nano, captured.String); err != nil {
				return nil, eris.Wrap(err, "sqlite: parse captured_at")
			}
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: observations iterate")
}

func (s *SQLiteStore) UpsertReliability(ctx context.Context, recs []model.ReliabilityRecord) error {
	_, err := s.execBatch(ctx, `INSERT INTO reliability
		(store_id, brand, freshness_lag_avg_hours, missing_window_rate, recovery_time_avg_hours,
		 score, tier, reason, computed_at, window_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_id) DO UPDATE SET
			brand = excluded.brand,
			freshness_lag_avg_hours = excluded.freshness_lag_avg_hours,
			missing_window_rate = excluded.missing_window_rate,
			recovery_time_avg_hours = excluded.recovery_time_avg_hours,
			score = excluded.score, tier = excluded.tier, reason = excluded.reason,
			computed_at = excluded.computed_at, window_days = excluded.window_days`,
		len(recs), func(i int) ([]any, error) {
			r := recs[i]
			return []any{
				r.StoreID, r.Brand, r.FreshnessLagAvgHours, r.MissingWindowRate, r.RecoveryTimeAvgHours,
				r.Score, string(r.Tier), r.Reason, r.ComputedAt.UTC().Format(time.RFC3339Nano), r.WindowDays,
			}, nil
		})
	return err
}

func (s *SQLiteStore) GetReliability(ctx context.Context, storeID string) (*model.ReliabilityRecord, error) {
	query, args, err := sqliteSQ.Select(reliabilityColumns...).From("reliability").
		Where(sq.Eq{"store_id": storeID}).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get reliability")
	}
	rec, err := scanSQLiteReliability(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get reliability %s", storeID)
	}
	return rec, nil
}

func (s *SQLiteStore) ListReliability(ctx context.Context, limit int) ([]model.ReliabilityRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query, args, err := sqliteSQ.Select(reliabilityColumns...).From("reliability").
		OrderBy("score ASC", "store_id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list reliability")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reliability")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ReliabilityRecord
	for rows.Next() {
		rec, err := scanSQLiteReliability(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reliability")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list reliability iterate")
}

func (s *SQLiteStore) UpsertForecasts(ctx context.Context, preds []model.Prediction) (int, error) {
	return s.execBatch(ctx, `INSERT INTO forecasts
		(store_id, date, flavor, probability, rank, history_depth, model, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_id, date, flavor) DO UPDATE SET
			probability = excluded.probability, rank = excluded.rank,
			history_depth = excluded.history_depth, model = excluded.model,
			generated_at = excluded.generated_at`,
		len(preds), func(i int) ([]any, error) {
			p := preds[i]
			return []any{
				p.StoreID, model.FormatDate(p.Date), p.Flavor, p.Probability, p.Rank,
				p.HistoryDepth, p.Model, p.GeneratedAt.UTC().Format(time.RFC3339Nano),
			}, nil
		})
}

func (s *SQLiteStore) ForecastsFor(ctx context.Context, storeID string, date time.Time) ([]model.Prediction, error) {
	query, args, err := sqliteSQ.Select(forecastColumns...).From("forecasts").
		Where(sq.Eq{"store_id": storeID, "date": model.FormatDate(date)}).
		OrderBy("rank ASC", "probability DESC").
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build forecast query")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query forecasts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Prediction
	for rows.Next() {
		var (
			p              model.Prediction
			date, genAtStr string
		)
		if err := rows.Scan(&p.StoreID, &date, &p.Flavor, &p.Probability, &p.Rank, &p.HistoryDepth, &p.Model, &genAtStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan forecast")
		}
		if p.Date, err = model.ParseDate(date); err != nil {
			return nil, err
		}
		if p.GeneratedAt, err = time.Parse(time.RFC3339Nano, genAtStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse generated_at")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: forecasts iterate")
}

// execBatch runs stmt once per row inside one transaction and returns the
// total rows affected.
func (s *SQLiteStore) execBatch(ctx context.Context, stmt string, n int, args func(i int) ([]any, error)) (int, error) {
	if n == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare batch")
	}
	defer prepared.Close() //nolint:errcheck

	var total int64
	for i := 0; i < n; i++ {
		a, err := args(i)
		if err != nil {
			return 0, err
		}
		res, err := prepared.ExecContext(ctx, a...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: exec batch row %d", i)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		total += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit batch")
	}
	return int(total), nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanStore(row scannable) (*model.Store, error) {
	var (
		st  model.Store
		loc []byte
	)
	if err := row.Scan(&st.ID, &st.Brand, &st.Name, &st.City, &st.State, &loc); err != nil {
		return nil, err
	}
	p, ok, err := geo.DecodeEWKB(loc)
	if err != nil {
		return nil, err
	}
	if ok {
		st.Lat, st.Lon, st.HasLocation = p.Lat, p.Lon, true
	}
	return &st, nil
}

func scanSQLiteReliability(row scannable) (*model.ReliabilityRecord, error) {
	var (
		r          model.ReliabilityRecord
		tier       string
		computedAt string
	)
	if err := row.Scan(&r.StoreID, &r.Brand, &r.FreshnessLagAvgHours, &r.MissingWindowRate,
		&r.RecoveryTimeAvgHours, &r.Score, &tier, &r.Reason, &computedAt, &r.WindowDays); err != nil {
		return nil, err
	}
	r.Tier = model.ReliabilityTier(tier)
	t, err := time.Parse(time.RFC3339Nano, computedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse computed_at")
	}
	r.ComputedAt = t
	return &r, nil
}

func encodeLocation(st model.Store) ([]byte, error) {
	if !st.HasLocation {
		return nil, nil
	}
	return geo.EncodeEWKB(geo.Point{Lat: st.Lat, Lon: st.Lon})
}

func brandOf(storeID, brand string) string {
	if brand != "" {
		return brand
	}
	return model.InferBrand(storeID)
}

func migrationFiles(dialect string) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations/"+dialect)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read %s migrations", dialect)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
