package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/resilience"
	"github.com/sells-group/custard-cli/internal/service"
	"github.com/sells-group/custard-cli/internal/store"
	"github.com/sells-group/custard-cli/internal/telemetry"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testNow = time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "custard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	_, err = st.UpsertStores(ctx, []model.Store{
		{ID: "mt-horeb", Brand: "Culver's", Name: "Mt. Horeb", Lat: 43.0086, Lon: -89.7387, HasLocation: true},
		{ID: "verona", Brand: "Culver's", Name: "Verona", Lat: 42.9908, Lon: -89.5332, HasLocation: true},
	})
	require.NoError(t, err)

	today := model.Day(testNow)
	_, err = st.InsertObservations(ctx, []model.Observation{
		{StoreID: "mt-horeb", Brand: "Culver's", Date: today, Flavor: "Turtle", CapturedAt: today.Add(4 * time.Hour)},
		{StoreID: "verona", Brand: "Culver's", Date: today, Flavor: "Mint Explosion", CapturedAt: today.Add(4 * time.Hour)},
	})
	require.NoError(t, err)

	svc := service.New(st, nil, service.Options{
		Retry: resilience.RetryConfig{MaxAttempts: 1},
	}, service.WithClock(func() time.Time { return testNow }))

	breakers := resilience.NewBreakers(resilience.CircuitBreakerConfig{}, nil)
	breakers.Get("redis")

	srv := httptest.NewServer(newRouter(svc, routerConfig{
		RequestTimeout: 5 * time.Second,
		Metrics:        telemetry.NewMetrics(),
		Breakers:       breakers,
	}))
	t.Cleanup(srv.Close)
	return srv, st
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth_ReportsBreakers(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Status   string            `json:"status"`
		Breakers map[string]string `json:"breakers"`
	}
	code := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "closed", body.Breakers["redis"])
}

func TestPlan_Endpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Cards []struct {
			StoreID string `json:"store_id"`
		} `json:"cards"`
		NearbyLeaderboard []any `json:"nearby_leaderboard"`
	}
	code := getJSON(t, srv.URL+"/api/v1/plan?stores=mt-horeb,verona", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Cards, 2)
	assert.NotNil(t, body.NearbyLeaderboard)
}

func TestPlan_ValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"one store", "stores=mt-horeb", "stores"},
		{"six stores", "stores=a,b,c,d,e,f", "stores"},
		{"bad sort", "stores=mt-horeb,verona&sort=fastest", "sort"},
		{"bad location", "stores=mt-horeb,verona&location=here", "location"},
		{"bad flag", "stores=mt-horeb,verona&estimated=maybe", "estimated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			code := getJSON(t, srv.URL+"/api/v1/plan?"+tt.query, &body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, tt.field, body["field"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSignals_Endpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body service.SignalsResponse
	code := getJSON(t, srv.URL+"/api/v1/signals/mt-horeb?limit=3", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "mt-horeb", body.StoreID)
	assert.Equal(t, "2026-06-10", body.Today)
}

func TestSignals_BadParams(t *testing.T) {
	srv, _ := newTestServer(t)

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/signals/mt-horeb?limit=lots", &body))
	assert.Equal(t, "limit", body["field"])

	body = nil
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/signals/mt-horeb?date=06-10-2026", &body))
	assert.Equal(t, "date", body["field"])
}

func TestSingleStoreEndpoints_UnknownStoreIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{
		"/api/v1/signals/nowhere",
		"/api/v1/today/nowhere",
		"/api/v1/reliability/nowhere",
	} {
		t.Run(path, func(t *testing.T) {
			var body map[string]string
			assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+path, &body))
			assert.Equal(t, "store not found", body["error"])
		})
	}
}

func TestToday_Endpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var body service.TodayResponse
	code := getJSON(t, srv.URL+"/api/v1/today/verona", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Mint Explosion", body.Flavor)
}

func TestReliabilityBoard_EmptyIsList(t *testing.T) {
	srv, _ := newTestServer(t)

	var body struct {
		Stores []model.ReliabilityRecord `json:"stores"`
	}
	code := getJSON(t, srv.URL+"/api/v1/reliability", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.NotNil(t, body.Stores)
	assert.Empty(t, body.Stores)
}

func TestStorageDown_Is503(t *testing.T) {
	srv, st := newTestServer(t)
	require.NoError(t, st.Close())

	var body map[string]string
	code := getJSON(t, srv.URL+"/api/v1/signals/mt-horeb", &body)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "storage unavailable", body["error"])
}

func TestMetrics_Endpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	getJSON(t, srv.URL+"/health", nil)

	resp, err := http.Get(srv.URL + "/metrics") //nolint:gosec,noctx
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "http_requests_total")
}
