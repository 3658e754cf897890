// Package store persists stores, flavor observations, reliability records,
// and forecasts. SQLite is the local default; Postgres backs shared
// deployments.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/custard-cli/internal/model"
)

// ErrNotFound is returned when a keyed lookup has no row.
var ErrNotFound = eris.New("store: not found")

// DayStats summarizes the observations captured for one calendar date.
type DayStats struct {
	Rows          int
	NewestCapture time.Time
}

// Store defines the persistence interface for the custard decision core.
type Store interface {
	// Stores
	UpsertStores(ctx context.Context, stores []model.Store) (int, error)
	GetStore(ctx context.Context, id string) (*model.Store, error)
	ListStores(ctx context.Context) ([]model.Store, error)

	// Observations are append-only; a second row for the same store and
	// date is ignored.
	InsertObservations(ctx context.Context, obs []model.Observation) (int, error)
	ObservationsForStore(ctx context.Context, storeID string, from, to time.Time) ([]model.Observation, error)
	ObservationsForStores(ctx context.Context, storeIDs []string, from, to time.Time) (map[string][]model.Observation, error)
	ObservationsOn(ctx context.Context, date time.Time) ([]model.Observation, error)
	DayStats(ctx context.Context, date time.Time) (DayStats, error)

	// Reliability
	UpsertReliability(ctx context.Context, recs []model.ReliabilityRecord) error
	GetReliability(ctx context.Context, storeID string) (*model.ReliabilityRecord, error)
	ListReliability(ctx context.Context, limit int) ([]model.ReliabilityRecord, error)

	// Forecasts
	UpsertForecasts(ctx context.Context, preds []model.Prediction) (int, error)
	ForecastsFor(ctx context.Context, storeID string, date time.Time) ([]model.Prediction, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// DefaultListLimit caps ListReliability when the caller passes no limit.
const DefaultListLimit = 100

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
