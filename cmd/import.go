package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/ingest"
	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/store"
)

var (
	importCSVPath       string
	importStoresCSVPath string
	importForecastsPath string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import flavor observations from a backfill CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close() //nolint:errcheck

		obs, skipped, err := ingest.ReadObservations(f)
		if err != nil {
			return eris.Wrap(err, "import csv")
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		registered, err := registerMissingStores(ctx, env.Store, obs)
		if err != nil {
			return err
		}
		inserted, err := env.Store.InsertObservations(ctx, obs)
		if err != nil {
			return eris.Wrap(err, "insert observations")
		}

		zap.L().Info("import complete",
			zap.Int("rows", len(obs)),
			zap.Int("inserted", inserted),
			zap.Int("duplicates", len(obs)-inserted),
			zap.Int("skipped", skipped),
			zap.Int("stores_registered", registered),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

// registerMissingStores adds a bare store row for every slug in obs that
// is not registered yet.
func registerMissingStores(ctx context.Context, st store.Store, obs []model.Observation) (int, error) {
	known, err := st.ListStores(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "list stores")
	}
	seen := make(map[string]bool, len(known))
	for _, s := range known {
		seen[s.ID] = true
	}
	var missing []model.Store
	for _, o := range obs {
		if seen[o.StoreID] {
			continue
		}
		seen[o.StoreID] = true
		missing = append(missing, model.Store{ID: o.StoreID, Name: o.StoreID, Brand: o.Brand})
	}
	if len(missing) == 0 {
		return 0, nil
	}
	n, err := st.UpsertStores(ctx, missing)
	if err != nil {
		return 0, eris.Wrap(err, "register stores")
	}
	return n, nil
}

var importStoresCmd = &cobra.Command{
	Use:   "import-stores",
	Short: "Import or update store metadata from a CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f, err := os.Open(importStoresCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close() //nolint:errcheck

		stores, err := ingest.ReadStores(f)
		if err != nil {
			return eris.Wrap(err, "import stores")
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.UpsertStores(ctx, stores)
		if err != nil {
			return eris.Wrap(err, "upsert stores")
		}
		zap.L().Info("stores imported", zap.Int("stores", n), zap.String("csv", importStoresCSVPath))
		return nil
	},
}

var importForecastsCmd = &cobra.Command{
	Use:   "import-forecasts",
	Short: "Load a batch forecast JSON file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f, err := os.Open(importForecastsPath)
		if err != nil {
			return eris.Wrap(err, "open forecast file")
		}
		defer f.Close() //nolint:errcheck

		preds, err := ingest.ReadForecasts(f)
		if err != nil {
			return eris.Wrap(err, "import forecasts")
		}

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.UpsertForecasts(ctx, preds)
		if err != nil {
			return eris.Wrap(err, "upsert forecasts")
		}
		zap.L().Info("forecasts imported", zap.Int("predictions", n), zap.String("input", importForecastsPath))
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to observation CSV (required)")
	_ = importCmd.MarkFlagRequired("csv")
	importStoresCmd.Flags().StringVar(&importStoresCSVPath, "csv", "", "path to store CSV (required)")
	_ = importStoresCmd.MarkFlagRequired("csv")
	importForecastsCmd.Flags().StringVar(&importForecastsPath, "input", "", "path to batch forecast JSON (required)")
	_ = importForecastsCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(importCmd, importStoresCmd, importForecastsCmd)
}
