package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeConn struct {
	subject string
	data    []byte
	err     error
	closed  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

func (f *fakeConn) Close() { f.closed = true }

func TestPublishRefresh(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "custard.reliability.refreshed")
	at := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)

	err := p.PublishRefresh(context.Background(), ReliabilityRefreshed{
		Stores:     3,
		Unreliable: 1,
		Changes:    []TierChange{{StoreID: "kopps", From: "confirmed", To: "unreliable"}},
		ComputedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, "custard.reliability.refreshed", conn.subject)

	var got ReliabilityRefreshed
	require.NoError(t, json.Unmarshal(conn.data, &got))
	assert.Equal(t, TypeReliabilityRefreshed, got.Type)
	_, err = uuid.Parse(got.ID)
	assert.NoError(t, err)
	assert.True(t, at.Equal(got.ComputedAt))
	require.Len(t, got.Changes, 1)
	assert.Equal(t, "unreliable", got.Changes[0].To)

	p.Close()
	assert.True(t, conn.closed)
}

func TestPublishRefreshError(t *testing.T) {
	p := NewNATSPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "s")
	err := p.PublishRefresh(context.Background(), ReliabilityRefreshed{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events: publish to s")
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.PublishRefresh(context.Background(), ReliabilityRefreshed{}))
	p.Close()
}
