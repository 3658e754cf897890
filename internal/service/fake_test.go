package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/store"
)

// memStore is an in-memory store.Store with per-call error injection.
// Errors are keyed by method name, or "Method:storeID" for one store.
type memStore struct {
	mu      sync.Mutex
	stores  map[string]model.Store
	obs     []model.Observation
	rel     map[string]model.ReliabilityRecord
	preds   []model.Prediction
	pingErr error
	errs    map[string]error
	// failN fails the keyed call n times before succeeding.
	failN map[string]int
	calls map[string]int
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		stores: make(map[string]model.Store),
		rel:    make(map[string]model.ReliabilityRecord),
		errs:   make(map[string]error),
		failN:  make(map[string]int),
		calls:  make(map[string]int),
	}
}

func (m *memStore) addStore(id string, lat, lon float64) {
	m.stores[id] = model.Store{
		ID: id, Name: "Store " + id, Brand: model.InferBrand(id),
		Lat: lat, Lon: lon, HasLocation: lat != 0 || lon != 0,
	}
}

func (m *memStore) serve(id string, date time.Time, flavor, description string) {
	m.obs = append(m.obs, model.Observation{
		StoreID: id, Brand: model.InferBrand(id), Date: model.Day(date),
		Flavor: flavor, Description: description, CapturedAt: model.Day(date).Add(4 * time.Hour),
	})
}

func (m *memStore) forecast(id string, date time.Time, flavor string, prob float64) {
	m.preds = append(m.preds, model.Prediction{
		StoreID: id, Date: model.Day(date), Flavor: flavor, Probability: prob, Rank: 1, HistoryDepth: 40,
	})
}

// fail must be called with mu held.
func (m *memStore) fail(method, id string) error {
	m.calls[method]++
	for _, key := range []string{method, method + ":" + id} {
		if err := m.errs[key]; err != nil {
			return err
		}
		if m.failN[key] > 0 {
			m.failN[key]--
			return eris.New("read tcp: connection reset by peer")
		}
	}
	return nil
}

func (m *memStore) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func inRange(d, from, to time.Time) bool {
	d = model.Day(d)
	return !d.Before(model.Day(from)) && !d.After(model.Day(to))
}

func (m *memStore) UpsertStores(_ context.Context, stores []model.Store) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertStores", ""); err != nil {
		return 0, err
	}
	for _, s := range stores {
		m.stores[s.ID] = s
	}
	return len(stores), nil
}

func (m *memStore) GetStore(_ context.Context, id string) (*model.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetStore", id); err != nil {
		return nil, err
	}
	s, ok := m.stores[id]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "store %s", id)
	}
	return &s, nil
}

func (m *memStore) ListStores(context.Context) ([]model.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListStores", ""); err != nil {
		return nil, err
	}
	out := make([]model.Store, 0, len(m.stores))
	for _, s := range m.stores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) InsertObservations(_ context.Context, obs []model.Observation) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertObservations", ""); err != nil {
		return 0, err
	}
	m.obs = append(m.obs, obs...)
	return len(obs), nil
}

func (m *memStore) ObservationsForStore(_ context.Context, id string, from, to time.Time) ([]model.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ObservationsForStore", id); err != nil {
		return nil, err
	}
	var out []model.Observation
	for _, o := range m.obs {
		if o.StoreID == id && inRange(o.Date, from, to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ObservationsForStores(_ context.Context, ids []string, from, to time.Time) (map[string][]model.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ObservationsForStores", ""); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[string][]model.Observation)
	for _, o := range m.obs {
		if want[o.StoreID] && inRange(o.Date, from, to) {
			out[o.StoreID] = append(out[o.StoreID], o)
		}
	}
	return out, nil
}

func (m *memStore) ObservationsOn(_ context.Context, date time.Time) ([]model.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ObservationsOn", ""); err != nil {
		return nil, err
	}
	var out []model.Observation
	for _, o := range m.obs {
		if inRange(o.Date, date, date) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) DayStats(_ context.Context, date time.Time) (store.DayStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DayStats", ""); err != nil {
		return store.DayStats{}, err
	}
	var st store.DayStats
	for _, o := range m.obs {
		if !inRange(o.Date, date, date) {
			continue
		}
		st.Rows++
		if o.CapturedAt.After(st.NewestCapture) {
			st.NewestCapture = o.CapturedAt
		}
	}
	return st, nil
}

func (m *memStore) UpsertReliability(_ context.Context, recs []model.ReliabilityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertReliability", ""); err != nil {
		return err
	}
	for _, r := range recs {
		m.rel[r.StoreID] = r
	}
	return nil
}

func (m *memStore) GetReliability(_ context.Context, id string) (*model.ReliabilityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetReliability", id); err != nil {
		return nil, err
	}
	r, ok := m.rel[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) ListReliability(_ context.Context, limit int) ([]model.ReliabilityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListReliability", ""); err != nil {
		return nil, err
	}
	out := make([]model.ReliabilityRecord, 0, len(m.rel))
	for _, r := range m.rel {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].StoreID < out[j].StoreID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) UpsertForecasts(_ context.Context, preds []model.Prediction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertForecasts", ""); err != nil {
		return 0, err
	}
	m.preds = append(m.preds, preds...)
	return len(preds), nil
}

func (m *memStore) ForecastsFor(_ context.Context, id string, date time.Time) ([]model.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ForecastsFor", id); err != nil {
		return nil, err
	}
	var out []model.Prediction
	for _, p := range m.preds {
		if p.StoreID == id && inRange(p.Date, date, date) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Ping"]++
	return m.pingErr
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }
