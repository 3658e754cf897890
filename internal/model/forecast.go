package model

import "time"

// Prediction is one ranked forecast entry for a store and date, produced by
// the batch forecasting pipeline.
type Prediction struct {
	StoreID      string    `json:"store_id"`
	Date         time.Time `json:"-"`
	Flavor       string    `json:"flavor"`
	Probability  float64   `json:"probability"`
	Rank         int       `json:"rank"`
	HistoryDepth int       `json:"history_depth,omitempty"`
	Model        string    `json:"model,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// TopPrediction returns the highest-probability prediction, or nil.
func TopPrediction(preds []Prediction) *Prediction {
	var best *Prediction
	for i := range preds {
		p := &preds[i]
		if best == nil || p.Probability > best.Probability ||
			(p.Probability == best.Probability && p.Rank < best.Rank) {
			best = p
		}
	}
	return best
}
