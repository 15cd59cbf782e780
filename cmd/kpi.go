package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	engine "github.com/capitalead/leadsync/internal/sync"
)

var kpiCmd = &cobra.Command{
	Use:   "kpi",
	Short: "Print engine-wide totals and the latest import",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := engine.BuildReport(ctx, env.Store)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(kpiCmd)
}
