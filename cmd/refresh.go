package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute store reliability, publish the summary, and send alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "refresh")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Checker.RunOnce(ctx)
		if err != nil {
			return eris.Wrap(err, "refresh")
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
