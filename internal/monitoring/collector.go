package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/custard-cli/internal/events"
	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/service"
)

// Snapshot summarizes one reliability refresh.
type Snapshot struct {
	Stores     int `json:"stores"`
	Confirmed  int `json:"confirmed"`
	Watch      int `json:"watch"`
	Unreliable int `json:"unreliable"`
	NoOpinion  int `json:"no_opinion"`
	// UnreliableShare is Unreliable over the stores that have a record.
	UnreliableShare float64              `json:"unreliable_share"`
	Changes         []service.TierChange `json:"changes,omitempty"`
	ComputedAt      time.Time            `json:"computed_at"`
}

// Scored returns the number of stores with a reliability opinion.
func (s *Snapshot) Scored() int {
	return s.Confirmed + s.Watch + s.Unreliable
}

// Event converts the snapshot into a refresh event.
func (s *Snapshot) Event() events.ReliabilityRefreshed {
	evt := events.ReliabilityRefreshed{
		Stores:     s.Stores,
		Confirmed:  s.Confirmed,
		Watch:      s.Watch,
		Unreliable: s.Unreliable,
		NoOpinion:  s.NoOpinion,
		ComputedAt: s.ComputedAt,
	}
	for _, ch := range s.Changes {
		evt.Changes = append(evt.Changes, events.TierChange{
			StoreID: ch.StoreID,
			From:    string(ch.From),
			To:      string(ch.To),
		})
	}
	return evt
}

// Summarize builds a snapshot from a refresh result.
func Summarize(res *service.RefreshResult) *Snapshot {
	counts := res.Counts()
	snap := &Snapshot{
		Confirmed:  counts[model.ReliabilityConfirmed],
		Watch:      counts[model.ReliabilityWatch],
		Unreliable: counts[model.ReliabilityUnreliable],
		NoOpinion:  len(res.NoOpinion),
		Changes:    res.Changes(),
		ComputedAt: res.ComputedAt,
	}
	snap.Stores = snap.Scored() + snap.NoOpinion
	if n := snap.Scored(); n > 0 {
		snap.UnreliableShare = float64(snap.Unreliable) / float64(n)
	}
	return snap
}

// Refresher recomputes every store's reliability.
type Refresher interface {
	RefreshReliability(ctx context.Context) (*service.RefreshResult, error)
}

// Collector runs a refresh and summarizes it.
type Collector struct {
	refresher Refresher
}

// NewCollector creates a collector backed by refresher.
func NewCollector(refresher Refresher) *Collector {
	return &Collector{refresher: refresher}
}

// Collect refreshes reliability and returns the summary.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	res, err := c.refresher.RefreshReliability(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: refresh reliability")
	}
	return Summarize(res), nil
}
