package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/custard-cli/internal/geo"
	"github.com/sells-group/custard-cli/internal/model"
)

func newMockPostgresStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresWithPool(mock)
}

func TestPostgres_MigrateFresh(t *testing.T) {
	mock, s := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	for _, m := range []struct{ file, table string }{
		{"001_init.sql", "stores"},
		{"002_reliability.sql", "reliability"},
		{"003_forecasts.sql", "forecasts"},
	} {
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS ` + m.table).WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs(m.file).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MigrateSkipsApplied(t *testing.T) {
	mock, s := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).
			AddRow("001_init.sql").
			AddRow("002_reliability.sql"))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS forecasts`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("003_forecasts.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MigrateLockError(t *testing.T) {
	mock, s := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).WillReturnError(errors.New("connection reset"))

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advisory lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Ping(t *testing.T) {
	mock, s := newMockPostgresStore(t)
	mock.ExpectPing()
	require.NoError(t, s.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetStore(t *testing.T) {
	mock, s := newMockPostgresStore(t)

	loc, err := geo.EncodeEWKB(geo.Point{Lat: 43.0086, Lon: -89.7387})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, brand, name, city, state, location FROM stores WHERE id = \$1`).
		WithArgs("mt-horeb").
		WillReturnRows(pgxmock.NewRows(storeColumns).
			AddRow("mt-horeb", "Culver's", "Mt. Horeb", "Mount Horeb", "WI", loc))
	mock.ExpectQuery(`FROM stores WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	st, err := s.GetStore(context.Background(), "mt-horeb")
	require.NoError(t, err)
	assert.Equal(t, "Mt. Horeb", st.Name)
	assert.True(t, st.HasLocation)
	assert.InDelta(t, 43.0086, st.Lat, 1e-9)

	_, err = s.GetStore(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertStoresDedupes(t *testing.T) {
	mock, s := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_stores"}, storeColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "stores" .+ ON CONFLICT \("id"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertStores(context.Background(), []model.Store{
		{ID: "mt-horeb", Name: "old"},
		{ID: "kopps-glendale"},
		{ID: "mt-horeb", Name: "new"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertObservationsIgnoresConflicts(t *testing.T) {
	mock, s := newMockPostgresStore(t)

	cols := []string{"store_id", "brand", "date", "flavor", "normalized_flavor", "description", "captured_at"}
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_observations"}, cols).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("store_id", "date"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.InsertObservations(context.Background(), []model.Observation{
		{StoreID: "mt-horeb", Date: day("2026-03-01"), Flavor: "Turtle"},
		{StoreID: "mt-horeb", Date: day("2026-03-02"), Flavor: "Oreo", CapturedAt: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ObservationsForStore(t *testing.T) {
	mock, s := newMockPostgresStore(t)
	captured := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT store_id, brand, date, flavor, description, captured_at FROM observations WHERE store_id = \$1 AND date >= \$2 AND date <= \$3 ORDER BY store_id, date`).
		WillReturnRows(pgxmock.NewRows(observationColumns).
			AddRow("mt-horeb", "Culver's", day("2026-03-02"), "Turtle", "Caramel and pecans", &captured))

	got, err := s.ObservationsForStore(context.Background(), "mt-horeb", day("2026-03-01"), day("2026-03-31"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Turtle", got[0].Flavor)
	assert.Equal(t, day("2026-03-02"), got[0].Date)
	assert.True(t, captured.Equal(got[0].CapturedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ObservationsForStoresPartialFailure(t *testing.T) {
	mock, s := newMockPostgresStore(t)

	ids := storeIDs(120)
	mock.ExpectQuery(`FROM observations WHERE store_id IN`).WillReturnError(errors.New("statement timeout"))
	mock.ExpectQuery(`FROM observations WHERE store_id IN`).
		WillReturnRows(pgxmock.NewRows(observationColumns).
			AddRow("store-100", "Culver's", day("2026-03-02"), "Turtle", "", nil))

	got, err := s.ObservationsForStores(context.Background(), ids, day("2026-03-01"), day("2026-03-31"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, got["store-100"], 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DayStats(t *testing.T) {
	mock, s := newMockPostgresStore(t)
	newest := time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\), MAX\(captured_at\) FROM observations WHERE date = \$1`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "max"}).AddRow(42, &newest))

	st, err := s.DayStats(context.Background(), day("2026-03-05"))
	require.NoError(t, err)
	assert.Equal(t, 42, st.Rows)
	assert.True(t, newest.Equal(st.NewestCapture))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetReliability(t *testing.T) {
	mock, s := newMockPostgresStore(t)
	computed := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM reliability WHERE store_id = \$1`).
		WithArgs("kopps").
		WillReturnRows(pgxmock.NewRows(reliabilityColumns).
			AddRow("kopps", "Kopp's", 2.5, 0.4, 12.0, 0.31, "unreliable", "missing days", computed, 30))
	mock.ExpectQuery(`FROM reliability WHERE store_id = \$1`).
		WithArgs("new-store").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.GetReliability(context.Background(), "kopps")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.ReliabilityUnreliable, rec.Tier)
	assert.InDelta(t, 0.31, rec.Score, 1e-9)
	assert.Equal(t, 30, rec.WindowDays)

	rec, err = s.GetReliability(context.Background(), "new-store")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListReliability(t *testing.T) {
	mock, s := newMockPostgresStore(t)
	computed := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM reliability ORDER BY score ASC, store_id ASC LIMIT 10`).
		WillReturnRows(pgxmock.NewRows(reliabilityColumns).
			AddRow("kopps", "Kopp's", 2.5, 0.4, 12.0, 0.31, "unreliable", "missing days", computed, 30).
			AddRow("mt-horeb", "Culver's", 0.5, 0.0, 0.0, 0.97, "confirmed", "", computed, 30))

	list, err := s.ListReliability(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "kopps", list[0].StoreID)
	assert.Equal(t, model.ReliabilityConfirmed, list[1].Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertReliability(t *testing.T) {
	mock, s := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_reliability"}, reliabilityColumns).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("store_id"\) DO UPDATE SET "brand" = EXCLUDED."brand"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.UpsertReliability(context.Background(), []model.ReliabilityRecord{
		{StoreID: "kopps", Brand: "Kopp's", Score: 0.31, Tier: model.ReliabilityUnreliable, ComputedAt: time.Now()},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ForecastsFor(t *testing.T) {
	mock, s := newMockPostgresStore(t)
	gen := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM forecasts WHERE date = \$1 AND store_id = \$2 ORDER BY rank ASC, probability DESC`).
		WillReturnRows(pgxmock.NewRows(forecastColumns).
			AddRow("mt-horeb", day("2026-03-05"), "Butter Pecan", 0.31, 1, 40, "frequency", gen))

	got, err := s.ForecastsFor(context.Background(), "mt-horeb", day("2026-03-05"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Butter Pecan", got[0].Flavor)
	assert.Equal(t, 1, got[0].Rank)
	assert.NoError(t, mock.ExpectationsWereMet())
}
