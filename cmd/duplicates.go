package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Scan all CRM lists for cross-list phone duplicates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Scanner.Scan(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("scanned %d lists: %d duplicates recorded, %d leads backfilled\n",
			report.ListsScanned, report.DuplicatesFound, report.LeadsBackfilled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)
}
