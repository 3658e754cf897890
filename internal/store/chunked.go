package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/db"
	"github.com/sells-group/custard-cli/internal/model"
)

type chunkFetcher func(ctx context.Context, ids []string) ([]model.Observation, error)

// fetchChunked runs fetch over ids in chunks of db.MaxIDsPerQuery and groups
// the rows by store. A failing chunk is logged and skipped; an error is only
// returned when every chunk fails.
func fetchChunked(ctx context.Context, ids []string, fetch chunkFetcher) (map[string][]model.Observation, error) {
	out := make(map[string][]model.Observation, len(ids))
	chunks := db.Chunk(ids, db.MaxIDsPerQuery)
	if len(chunks) == 0 {
		return out, nil
	}

	var (
		failed  int
		lastErr error
	)
	for i, chunk := range chunks {
		rows, err := fetch(ctx, chunk)
		if err != nil {
			failed++
			lastErr = err
			zap.L().Warn("store: observation chunk failed",
				zap.Int("chunk", i),
				zap.Int("ids", len(chunk)),
				zap.Error(err),
			)
			continue
		}
		for _, o := range rows {
			out[o.StoreID] = append(out[o.StoreID], o)
		}
	}
	if failed == len(chunks) {
		return nil, eris.Wrapf(lastErr, "store: all %d observation chunks failed", failed)
	}
	return out, nil
}
