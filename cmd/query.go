package main

import (
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/planner"
)

var (
	signalsLimit int
	signalsDate  string
	todayDate    string

	planStores    string
	planLocation  string
	planExclude   string
	planBoost     string
	planAvoid     string
	planSort      string
	planEstimated bool
	planTomorrow  bool
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}

// optionalDate parses --date; empty means today.
func optionalDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return model.ParseDate(raw)
}

var signalsCmd = &cobra.Command{
	Use:   "signals <store>",
	Short: "Show flavor-history signals for a store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		at, err := optionalDate(signalsDate)
		if err != nil {
			return err
		}
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Service.Signals(ctx, args[0], at, signalsLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var todayCmd = &cobra.Command{
	Use:   "today <store>",
	Short: "Show a store's flavor for the day with its certainty tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		at, err := optionalDate(todayDate)
		if err != nil {
			return err
		}
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Service.Today(ctx, args[0], at)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

// planValues maps the plan flags onto the query parameters the HTTP API
// accepts so both paths share one parser.
func planValues() url.Values {
	v := url.Values{}
	v.Set("stores", planStores)
	v.Set("location", planLocation)
	v.Set("exclude", planExclude)
	v.Set("boost", planBoost)
	v.Set("avoid", planAvoid)
	v.Set("sort", planSort)
	v.Set("estimated", strconv.FormatBool(planEstimated))
	v.Set("tomorrow", strconv.FormatBool(planTomorrow))
	return v
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Score 2-5 stores for a custard run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		q, err := planner.ParseQuery(planValues())
		if err != nil {
			return err
		}
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		resp, err := env.Service.Plan(ctx, q)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var reliabilityLimit int

var reliabilityCmd = &cobra.Command{
	Use:   "reliability [store]",
	Short: "Show one store's reliability, or the worst-first board",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			resp, err := env.Service.Reliability(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		}
		recs, err := env.Service.ReliabilityBoard(ctx, reliabilityLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), recs)
	},
}

func init() {
	signalsCmd.Flags().IntVar(&signalsLimit, "limit", 0, "max signals (1-20, default 5)")
	signalsCmd.Flags().StringVar(&signalsDate, "date", "", "as-of date YYYY-MM-DD (default today)")
	todayCmd.Flags().StringVar(&todayDate, "date", "", "date YYYY-MM-DD (default today)")

	planCmd.Flags().StringVar(&planStores, "stores", "", "comma-separated store slugs (required)")
	planCmd.Flags().StringVar(&planLocation, "location", "", "origin as lat,lon")
	planCmd.Flags().StringVar(&planExclude, "exclude", "", "hard-exclude tags")
	planCmd.Flags().StringVar(&planBoost, "boost", "", "preferred tags")
	planCmd.Flags().StringVar(&planAvoid, "avoid", "", "disliked tags")
	planCmd.Flags().StringVar(&planSort, "sort", "match", "match, detour, rarity, or eta")
	planCmd.Flags().BoolVar(&planEstimated, "estimated", false, "allow forecast flavors")
	planCmd.Flags().BoolVar(&planTomorrow, "tomorrow", false, "include tomorrow's preview")
	_ = planCmd.MarkFlagRequired("stores")

	reliabilityCmd.Flags().IntVar(&reliabilityLimit, "limit", 0, "max stores on the board")

	rootCmd.AddCommand(signalsCmd, todayCmd, planCmd, reliabilityCmd)
}
