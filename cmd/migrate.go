package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run one full migration across all active clusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Coordinator.StartMigration(ctx); err != nil {
			return err
		}

		info := env.Coordinator.Status()
		fmt.Printf("migrated %d clusters, %d leads added\n", len(info.CompletedClusters), info.AddedTotal())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
