// Package events publishes reliability refresh notifications over NATS.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TypeReliabilityRefreshed is the event type for a completed refresh.
const TypeReliabilityRefreshed = "reliability_refreshed"

// TierChange records a store whose reliability tier moved during a refresh.
type TierChange struct {
	StoreID string `json:"store_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// ReliabilityRefreshed summarizes one refresh run.
type ReliabilityRefreshed struct {
	ID         string       `json:"id"`
	Type       string       `json:"event_type"`
	Stores     int          `json:"stores"`
	Confirmed  int          `json:"confirmed"`
	Watch      int          `json:"watch"`
	Unreliable int          `json:"unreliable"`
	NoOpinion  int          `json:"no_opinion"`
	Changes    []TierChange `json:"changes,omitempty"`
	ComputedAt time.Time    `json:"computed_at"`
}

// Publisher sends refresh events somewhere.
type Publisher interface {
	PublishRefresh(ctx context.Context, evt ReliabilityRefreshed) error
	Close()
}

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher publishes JSON events to a single subject.
type NATSPublisher struct {
	conn    Conn
	subject string
}

// Connect dials NATS and returns a publisher on subject.
func Connect(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("custard-cli"))
	if err != nil {
		return nil, eris.Wrapf(err, "events: connect %s", url)
	}
	return NewNATSPublisher(nc, subject), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// PublishRefresh fills in ID, type, and timestamp when unset and publishes.
func (p *NATSPublisher) PublishRefresh(_ context.Context, evt ReliabilityRefreshed) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	evt.Type = TypeReliabilityRefreshed
	if evt.ComputedAt.IsZero() {
		evt.ComputedAt = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return eris.Wrap(err, "events: marshal refresh event")
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return eris.Wrapf(err, "events: publish to %s", p.subject)
	}
	zap.L().Debug("events: published refresh",
		zap.String("subject", p.subject),
		zap.String("id", evt.ID),
		zap.Int("changes", len(evt.Changes)),
	)
	return nil
}

// Close closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// Nop discards events. Used when NATS is not configured.
type Nop struct{}

func (Nop) PublishRefresh(context.Context, ReliabilityRefreshed) error { return nil }
func (Nop) Close()                                                     {}
