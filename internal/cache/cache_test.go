package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/config"
	"github.com/sells-group/custard-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeClient struct {
	data    map[string]string
	ttls    map[string]time.Duration
	failErr error
	gets    int
}

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	f.gets++
	if f.failErr != nil {
		return redis.NewStringResult("", f.failErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	if f.failErr != nil {
		return redis.NewStatusResult("", f.failErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.failErr)
}

type payload struct {
	StoreID string   `json:"store_id"`
	Flavors []string `json:"flavors"`
}

func TestKey(t *testing.T) {
	assert.Equal(t, "custard:signals:mt-horeb:2026-03-05", Key("signals", "mt-horeb", "2026-03-05"))
}

func TestSetGetRoundTrip(t *testing.T) {
	fc := newFakeClient()
	c := New(fc, time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", payload{StoreID: "mt-horeb", Flavors: []string{"Turtle"}}))
	assert.Equal(t, time.Minute, fc.ttls["k"])

	var got payload
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, payload{StoreID: "mt-horeb", Flavors: []string{"Turtle"}}, got)
	assert.NoError(t, c.Ping(ctx))
}

func TestGetMiss(t *testing.T) {
	c := New(newFakeClient(), 0, nil)
	var got payload
	err := c.Get(context.Background(), "absent", &got)
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, 5*time.Minute, c.ttl)
}

func TestGetDecodeError(t *testing.T) {
	fc := newFakeClient()
	fc.data["bad"] = "{not json"
	var got payload
	err := New(fc, time.Minute, nil).Get(context.Background(), "bad", &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache: decode bad")
}

func TestBreakerShortCircuitsFailingRedis(t *testing.T) {
	fc := newFakeClient()
	fc.failErr = errors.New("dial tcp: connection refused")
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	c := New(fc, time.Minute, breaker)
	ctx := context.Background()

	var got payload
	for i := 0; i < 2; i++ {
		err := c.Get(ctx, "k", &got)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMiss)
	}
	assert.Equal(t, resilience.CircuitOpen, breaker.State())

	err := c.Get(ctx, "k", &got)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, fc.gets)
}

func TestMissDoesNotTripBreaker(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	c := New(newFakeClient(), time.Minute, breaker)

	var got payload
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, c.Get(context.Background(), "absent", &got), ErrMiss)
	}
	assert.Equal(t, resilience.CircuitClosed, breaker.State())
}

func TestOpenDisabledWithoutAddr(t *testing.T) {
	c, err := Open(context.Background(), config.RedisConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}
